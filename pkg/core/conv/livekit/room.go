// Package livekit adapts a LiveKit media room to the session core's
// room capability interface.
package livekit

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/hraban/opus"

	"github.com/convkit/convkit/pkg/core/conv"
)

// Browser-standard opus parameters. Decoded PCM is mono 48 kHz; the
// session core resamples to its negotiated format downstream.
const (
	opusSampleRate = 48000
	opusChannels   = 1

	// Largest opus frame is 120 ms, 5760 samples at 48 kHz.
	opusMaxFrameSamples = 5760
)

// RoomFactory returns a conv.SessionConfig.NewRoom factory producing
// LiveKit-backed rooms.
func RoomFactory() func() conv.Room {
	return func() conv.Room { return &room{} }
}

type room struct {
	mu       sync.Mutex
	handlers conv.RoomHandlers
	lkRoom   *lksdk.Room
	local    *localParticipant
}

func (r *room) SetHandlers(handlers conv.RoomHandlers) {
	r.mu.Lock()
	r.handlers = handlers
	r.mu.Unlock()
}

func (r *room) Connect(ctx context.Context, serverURL, token string) error {
	r.mu.Lock()
	handlers := r.handlers
	r.mu.Unlock()

	callback := &lksdk.RoomCallback{
		OnDisconnectedWithReason: func(reason lksdk.DisconnectionReason) {
			if handlers.OnDisconnected != nil {
				handlers.OnDisconnected(string(reason))
			}
		},
		OnDisconnected: func() {
			if handlers.OnConnectionStateChanged != nil {
				handlers.OnConnectionStateChanged(conv.ConnectionStateDisconnected)
			}
		},
		OnReconnecting: func() {
			if handlers.OnConnectionStateChanged != nil {
				handlers.OnConnectionStateChanged(conv.ConnectionStateReconnecting)
			}
		},
		OnReconnected: func() {
			if handlers.OnConnectionStateChanged != nil {
				handlers.OnConnectionStateChanged(conv.ConnectionStateConnected)
			}
		},
		OnActiveSpeakersChanged: func(participants []lksdk.Participant) {
			if handlers.OnActiveSpeakersChanged == nil {
				return
			}
			identities := make([]string, 0, len(participants))
			for _, p := range participants {
				identities = append(identities, p.Identity())
			}
			handlers.OnActiveSpeakersChanged(identities)
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if handlers.OnTrackSubscribed == nil {
					return
				}
				handlers.OnTrackSubscribed(newRemoteTrack(track, publication.SID()), rp.Identity())
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				if handlers.OnDataReceived == nil {
					return
				}
				if user, ok := data.(*lksdk.UserDataPacket); ok {
					handlers.OnDataReceived(user.Payload)
				}
			},
		},
	}

	lkRoom, err := lksdk.ConnectToRoomWithToken(serverURL, token, callback)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.lkRoom = lkRoom
	r.local = &localParticipant{participant: lkRoom.LocalParticipant}
	r.mu.Unlock()

	// The SDK's connect call returns only after the room is joined, so
	// the connected notification fires here rather than from a
	// transport callback.
	if handlers.OnConnected != nil {
		handlers.OnConnected()
	}
	return nil
}

func (r *room) Disconnect() error {
	r.mu.Lock()
	lkRoom := r.lkRoom
	r.mu.Unlock()
	if lkRoom == nil {
		return nil
	}
	lkRoom.Disconnect()
	return nil
}

func (r *room) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lkRoom == nil {
		return ""
	}
	return r.lkRoom.Name()
}

func (r *room) LocalParticipant() conv.LocalParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.local == nil {
		return nil
	}
	return r.local
}

// SupportsOutputSelection is false: a headless runtime has no
// selectable audio sinks.
func (r *room) SupportsOutputSelection() bool { return false }

// NewPlayback returns an inert rendering handle. Headless hosts do not
// render remote audio; the capture pipeline still consumes the track.
func (r *room) NewPlayback(track conv.RemoteTrack) (conv.Playback, error) {
	if track == nil {
		return nil, errors.New("nil track")
	}
	return &playback{}, nil
}

type playback struct{}

func (p *playback) SetOutputDevice(deviceID string) error {
	return errors.New("output device selection is not supported")
}

func (p *playback) SetVolume(volume float64) error { return nil }
func (p *playback) Close() error                   { return nil }

// localParticipant wraps the SDK participant behind the capability
// interface.
type localParticipant struct {
	participant *lksdk.LocalParticipant

	mu  sync.Mutex
	mic *micPublication
}

func (lp *localParticipant) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	lp.mu.Lock()
	mic := lp.mic
	lp.mu.Unlock()

	if mic != nil {
		return mic.SetMuted(!enabled)
	}
	if !enabled {
		return nil
	}
	_, err := lp.PublishMicrophone(ctx, conv.MicrophoneOptions{
		Channels: opusChannels,
		Name:     "microphone",
	})
	return err
}

func (lp *localParticipant) PublishMicrophone(ctx context.Context, opts conv.MicrophoneOptions) (conv.MicrophonePublication, error) {
	channels := opts.Channels
	if channels <= 0 {
		channels = opusChannels
	}
	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: opusSampleRate,
		Channels:  uint16(channels),
	})
	if err != nil {
		return nil, err
	}
	publication, err := lp.participant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   opts.Name,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return nil, err
	}

	mic := &micPublication{publication: publication, track: track}
	lp.mu.Lock()
	lp.mic = mic
	lp.mu.Unlock()
	return mic, nil
}

func (lp *localParticipant) UnpublishMicrophone(ctx context.Context) error {
	lp.mu.Lock()
	mic := lp.mic
	lp.mic = nil
	lp.mu.Unlock()
	if mic == nil {
		return nil
	}
	return lp.participant.UnpublishTrack(mic.publication.SID())
}

func (lp *localParticipant) Microphone() (conv.MicrophonePublication, bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.mic == nil {
		return nil, false
	}
	return lp.mic, true
}

func (lp *localParticipant) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	var opts []lksdk.DataPublishOption
	if reliable {
		opts = append(opts, lksdk.WithDataPublishReliable(true))
	}
	return lp.participant.PublishDataPacket(lksdk.UserData(payload), opts...)
}

// opusFrameSamples is the 20 ms opus frame at 48 kHz.
const opusFrameSamples = 960

// micPublication owns the published sample track and the encoder that
// feeds it. WritePCM accumulates samples until a full opus frame is
// available, so callers may write blocks of any size.
type micPublication struct {
	publication *lksdk.LocalTrackPublication
	track       *lksdk.LocalSampleTrack

	mu      sync.Mutex
	encoder *opus.Encoder
	pending []int16
	packet  []byte
}

func (m *micPublication) SetMuted(muted bool) error {
	m.publication.SetMuted(muted)
	return nil
}

func (m *micPublication) IsMuted() bool {
	return m.publication.IsMuted()
}

func (m *micPublication) SampleRate() int { return opusSampleRate }

func (m *micPublication) WritePCM(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.encoder == nil {
		encoder, err := opus.NewEncoder(opusSampleRate, opusChannels, opus.AppVoIP)
		if err != nil {
			return err
		}
		m.encoder = encoder
		m.packet = make([]byte, 1500)
	}

	for i := 0; i+1 < len(pcm); i += 2 {
		m.pending = append(m.pending, int16(binary.LittleEndian.Uint16(pcm[i:i+2])))
	}
	for len(m.pending) >= opusFrameSamples {
		n, err := m.encoder.Encode(m.pending[:opusFrameSamples], m.packet)
		if err != nil {
			return err
		}
		m.pending = m.pending[opusFrameSamples:]

		sample := media.Sample{
			Data:     append([]byte(nil), m.packet[:n]...),
			Duration: opusFrameSamples * time.Second / opusSampleRate,
		}
		if err := m.track.WriteSample(sample, nil); err != nil {
			return err
		}
	}
	return nil
}

// remoteTrack decodes a subscribed opus track into PCM blocks on
// demand.
type remoteTrack struct {
	id    string
	track *webrtc.TrackRemote

	mu      sync.Mutex
	decoder *opus.Decoder
	pcmBuf  []int16
}

func newRemoteTrack(track *webrtc.TrackRemote, sid string) *remoteTrack {
	return &remoteTrack{id: sid, track: track}
}

func (t *remoteTrack) ID() string { return t.id }

func (t *remoteTrack) Kind() conv.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return conv.TrackKindVideo
	}
	return conv.TrackKindAudio
}

func (t *remoteTrack) SampleRate() int { return opusSampleRate }

// ReadPCM reads RTP packets until one yields decodable audio, then
// returns the decoded 16-bit little-endian mono PCM block.
func (t *remoteTrack) ReadPCM(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.decoder == nil {
		decoder, err := opus.NewDecoder(opusSampleRate, opusChannels)
		if err != nil {
			return nil, err
		}
		t.decoder = decoder
		t.pcmBuf = make([]int16, opusMaxFrameSamples)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		packet, _, err := t.track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if len(packet.Payload) == 0 {
			continue
		}
		n, err := t.decoder.Decode(packet.Payload, t.pcmBuf)
		if err != nil || n == 0 {
			// Undecodable frames are skipped, not fatal.
			continue
		}

		block := make([]byte, n*2)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(block[i*2:], uint16(t.pcmBuf[i]))
		}
		return block, nil
	}
}
