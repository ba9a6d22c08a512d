package conv

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
)

// captureGateThreshold is the normalized peak amplitude at or below
// which a block counts as near-silence and is suppressed entirely.
const captureGateThreshold = 0.01

// Capture is the per-session audio capture pipeline. It binds to one
// agent audio track and fans each PCM block out to two independent
// consumers: the frequency analyser and the sampler that re-emits
// gated, sequenced audio events through the inbound path.
type Capture struct {
	session  *Session
	track    RemoteTrack
	format   Format
	analyser *Analyser

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// newCapture builds the pipeline for the negotiated output format.
// Failures leave the session without a pipeline; the caller logs and
// continues.
func newCapture(s *Session, track RemoteTrack, format Format) (*Capture, error) {
	if track == nil {
		return nil, errors.New("no track to bind")
	}
	return &Capture{
		session:  s,
		track:    track,
		format:   format,
		analyser: NewAnalyser(),
		done:     make(chan struct{}),
	}, nil
}

// start launches the read loop. One producer feeds both consumers; the
// loop ends when the track drains or Close cancels it.
func (c *Capture) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

func (c *Capture) run(ctx context.Context) {
	defer close(c.done)
	for {
		block, err := c.track.ReadPCM(ctx)
		if err != nil {
			c.session.log.Log(ctx, drainTrackErr(err), "capture read loop ended", "error", err)
			return
		}
		c.process(block)
	}
}

// process runs one block through both pipeline stages: spectrum update
// for the analyser, then gate-encode-sequence-deliver for the sampler.
func (c *Capture) process(block []byte) {
	if c.format.SampleRate != c.track.SampleRate() {
		block = resamplePCM16(block, c.track.SampleRate(), c.format.SampleRate)
	}

	peak, _ := pcm16Stats(block)
	c.analyser.Feed(pcm16Samples(block))

	// Near-silence blocks are dropped before sequencing, so suppressed
	// blocks never consume an event id.
	if peak <= captureGateThreshold {
		return
	}

	// Gating and analysis run on linear samples; the negotiated
	// encoding is applied only to the emitted payload.
	payload := block
	if c.format.Encoding == EncodingULaw {
		payload = pcm16ToULaw(block)
	}

	ev := &AudioEvent{
		Type: EventTypeAudio,
		Audio: AudioChunk{
			Base64:  base64.StdEncoding.EncodeToString(payload),
			EventID: c.session.nextAudioEventID(),
		},
	}
	c.session.handleInbound(ev)
}

// OutputByteFrequencyData returns the analyser's byte-valued spectrum.
// The returned slice is reused between calls.
func (c *Capture) OutputByteFrequencyData() []byte {
	return c.analyser.ByteFrequencyData()
}

// OutputVolume returns the agent's current output level on a 0 to 1
// scale, derived from the smoothed frequency spectrum.
func (c *Capture) OutputVolume() float64 {
	spectrum := c.analyser.ByteFrequencyData()
	if len(spectrum) == 0 {
		return 0
	}
	var sum float64
	for _, v := range spectrum {
		sum += float64(v)
	}
	return sum / float64(len(spectrum)) / 255
}

// Close stops the read loop and waits for it to finish. Safe to call
// more than once.
func (c *Capture) Close() error {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		} else {
			close(c.done)
		}
	})
	<-c.done
	return nil
}
