package conv

import (
	"context"
	"errors"
	"io"
	"sync"
)

// fakeRoom is an in-memory room used by the session tests. Connect
// fires the connected handler synchronously, mirroring a transport
// whose connect call returns after the room is joined.
type fakeRoom struct {
	mu       sync.Mutex
	handlers RoomHandlers

	name               string
	connectErr         error
	connected          bool
	disconnectCalls    int
	handlersBeforeConn bool
	handlersSet        bool

	local *fakeLocalParticipant

	supportsOutput bool
	playbackErr    error
	playbacks      []*fakePlayback
}

func newFakeRoom(name string) *fakeRoom {
	return &fakeRoom{
		name:           name,
		local:          &fakeLocalParticipant{},
		supportsOutput: true,
	}
}

func (r *fakeRoom) SetHandlers(handlers RoomHandlers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = handlers
	r.handlersSet = true
	if !r.connected {
		r.handlersBeforeConn = true
	}
}

func (r *fakeRoom) Connect(ctx context.Context, serverURL, token string) error {
	r.mu.Lock()
	if r.connectErr != nil {
		err := r.connectErr
		r.mu.Unlock()
		return err
	}
	r.connected = true
	onConnected := r.handlers.OnConnected
	r.mu.Unlock()
	if onConnected != nil {
		onConnected()
	}
	return nil
}

func (r *fakeRoom) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnectCalls++
	r.connected = false
	return nil
}

func (r *fakeRoom) Name() string                       { return r.name }
func (r *fakeRoom) LocalParticipant() LocalParticipant { return r.local }
func (r *fakeRoom) SupportsOutputSelection() bool      { return r.supportsOutput }

func (r *fakeRoom) NewPlayback(track RemoteTrack) (Playback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playbackErr != nil {
		return nil, r.playbackErr
	}
	p := &fakePlayback{}
	r.playbacks = append(r.playbacks, p)
	return p, nil
}

type fakeLocalParticipant struct {
	mu sync.Mutex

	micEnabled     bool
	micEnableCalls []bool
	micEnableErr   error

	mic           *fakeMicPublication
	publishMicErr error
	unpublishErr  error

	published   [][]byte
	publishErr  error
	reliableAll bool
}

func (lp *fakeLocalParticipant) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.micEnableCalls = append(lp.micEnableCalls, enabled)
	if lp.micEnableErr != nil {
		return lp.micEnableErr
	}
	lp.micEnabled = enabled
	return nil
}

func (lp *fakeLocalParticipant) PublishMicrophone(ctx context.Context, opts MicrophoneOptions) (MicrophonePublication, error) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.publishMicErr != nil {
		return nil, lp.publishMicErr
	}
	lp.mic = &fakeMicPublication{deviceID: opts.DeviceID}
	return lp.mic, nil
}

func (lp *fakeLocalParticipant) UnpublishMicrophone(ctx context.Context) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.unpublishErr != nil {
		return lp.unpublishErr
	}
	lp.mic = nil
	return nil
}

func (lp *fakeLocalParticipant) Microphone() (MicrophonePublication, bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.mic == nil {
		return nil, false
	}
	return lp.mic, true
}

func (lp *fakeLocalParticipant) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.publishErr != nil {
		return lp.publishErr
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	lp.published = append(lp.published, buf)
	lp.reliableAll = reliable
	return nil
}

func (lp *fakeLocalParticipant) publishedCount() int {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return len(lp.published)
}

type fakeMicPublication struct {
	mu         sync.Mutex
	deviceID   string
	muted      bool
	muteErr    error
	sampleRate int
	written    [][]byte
	writeErr   error
}

func (m *fakeMicPublication) SetMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.muteErr != nil {
		return m.muteErr
	}
	m.muted = muted
	return nil
}

func (m *fakeMicPublication) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *fakeMicPublication) SampleRate() int {
	if m.sampleRate == 0 {
		return 16000
	}
	return m.sampleRate
}

func (m *fakeMicPublication) WritePCM(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.written = append(m.written, buf)
	return nil
}

type fakePlayback struct {
	mu         sync.Mutex
	deviceID   string
	deviceErr  error
	volume     float64
	volumeErr  error
	closeCalls int
}

func (p *fakePlayback) SetOutputDevice(deviceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deviceErr != nil {
		return p.deviceErr
	}
	p.deviceID = deviceID
	return nil
}

func (p *fakePlayback) SetVolume(volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.volumeErr != nil {
		return p.volumeErr
	}
	p.volume = volume
	return nil
}

func (p *fakePlayback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	return nil
}

// fakeRemoteTrack serves PCM blocks from a channel. Closing the channel
// ends the track with io.EOF.
type fakeRemoteTrack struct {
	id         string
	kind       TrackKind
	sampleRate int
	blocks     chan []byte
}

func newFakeRemoteTrack(sampleRate int) *fakeRemoteTrack {
	return &fakeRemoteTrack{
		id:         "TR_fake",
		kind:       TrackKindAudio,
		sampleRate: sampleRate,
		blocks:     make(chan []byte, 16),
	}
}

func (t *fakeRemoteTrack) ID() string      { return t.id }
func (t *fakeRemoteTrack) Kind() TrackKind { return t.kind }
func (t *fakeRemoteTrack) SampleRate() int { return t.sampleRate }

func (t *fakeRemoteTrack) ReadPCM(ctx context.Context) ([]byte, error) {
	select {
	case block, ok := <-t.blocks:
		if !ok {
			return nil, io.EOF
		}
		return block, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var errFakeFailure = errors.New("induced failure")
