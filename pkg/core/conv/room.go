package conv

import (
	"context"
)

// ConnectionState is the media room's low-level connection state as
// observed through the transport's state-change notifications.
type ConnectionState int

const (
	ConnectionStateConnecting ConnectionState = iota
	ConnectionStateConnected
	ConnectionStateReconnecting
	ConnectionStateDisconnected
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateConnecting:
		return "CONNECTING"
	case ConnectionStateConnected:
		return "CONNECTED"
	case ConnectionStateReconnecting:
		return "RECONNECTING"
	case ConnectionStateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// TrackKind distinguishes audio from video remote tracks.
type TrackKind int

const (
	TrackKindAudio TrackKind = iota
	TrackKindVideo
)

// RemoteTrack is a subscribed remote media track. Audio tracks yield
// 16-bit signed little-endian mono PCM blocks at SampleRate.
type RemoteTrack interface {
	ID() string
	Kind() TrackKind
	SampleRate() int

	// ReadPCM blocks until the next PCM block is available. It returns
	// io.EOF when the track ends and ctx.Err() on cancellation.
	ReadPCM(ctx context.Context) ([]byte, error)
}

// Playback renders a subscribed remote audio track. The session owns
// playback lifecycles exclusively; the device manager only mutates
// output routing and volume.
type Playback interface {
	SetOutputDevice(deviceID string) error
	SetVolume(volume float64) error
	Close() error
}

// MicrophoneOptions are the constraints applied when creating a local
// microphone track.
type MicrophoneOptions struct {
	// DeviceID requests an exact input device. Empty means the system
	// default.
	DeviceID         string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	Channels         int

	// Name and Source tag the published track so the remote side can
	// identify it as the conversation microphone.
	Name   string
	Source string
}

// MicrophonePublication is the local microphone's published track.
// Besides mute control it accepts the user's audio: implementations
// encode and transmit what WritePCM receives.
type MicrophonePublication interface {
	SetMuted(muted bool) error
	IsMuted() bool

	// SampleRate returns the linear PCM rate WritePCM expects.
	SampleRate() int

	// WritePCM queues a 16-bit signed little-endian mono PCM block for
	// transmission on the published track.
	WritePCM(pcm []byte) error
}

// LocalParticipant exposes the local side of the media room: microphone
// control, track publication, and the reliable data channel.
type LocalParticipant interface {
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	PublishMicrophone(ctx context.Context, opts MicrophoneOptions) (MicrophonePublication, error)
	UnpublishMicrophone(ctx context.Context) error
	Microphone() (MicrophonePublication, bool)

	// PublishData sends a structured payload over the data channel.
	// Reliable publishes carry must-arrive semantics.
	PublishData(ctx context.Context, payload []byte, reliable bool) error
}

// RoomHandlers are the lifecycle, data, track, and speaker callbacks a
// session installs on its room. Handlers must be installed before
// Connect so no early event is missed, and implementations must invoke
// them from a single dispatch goroutine per room.
type RoomHandlers struct {
	OnConnected              func()
	OnDisconnected           func(reason string)
	OnConnectionStateChanged func(state ConnectionState)
	OnDataReceived           func(payload []byte)
	OnTrackSubscribed        func(track RemoteTrack, participantIdentity string)
	OnActiveSpeakersChanged  func(identities []string)
}

// Room is the media-room capability interface. The session core never
// depends on a concrete transport; the livekit subpackage provides the
// production implementation and tests inject fakes.
type Room interface {
	// SetHandlers registers event subscriptions. Must be called before
	// Connect.
	SetHandlers(handlers RoomHandlers)

	Connect(ctx context.Context, serverURL, token string) error
	Disconnect() error

	// Name returns the transport-assigned room name, or "" when the
	// transport does not expose one.
	Name() string

	LocalParticipant() LocalParticipant

	// SupportsOutputSelection reports whether the runtime can route
	// playback to a selectable output device.
	SupportsOutputSelection() bool

	// NewPlayback creates a rendering handle for a subscribed remote
	// audio track, configured for immediate, non-interactive playback.
	NewPlayback(track RemoteTrack) (Playback, error)
}
