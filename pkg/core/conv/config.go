package conv

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/convkit/convkit/pkg/core"
)

// Built-in endpoint defaults. Both are plain configuration: every test
// environment can point the session elsewhere.
const (
	// DefaultServerURL is the media-room endpoint used when the config
	// leaves ServerURL empty.
	DefaultServerURL = "wss://livekit.rtc.elevenlabs.io"

	// DefaultOrigin is the platform origin the token-exchange origin is
	// derived from when no explicit Origin override is given.
	DefaultOrigin = "wss://api.elevenlabs.io"

	// DefaultSource is the client source tag reported in the token
	// exchange and the initiation message.
	DefaultSource = "go_sdk"

	// DefaultConnectTimeout bounds the wait for the room's connected
	// event during bring-up.
	DefaultConnectTimeout = 15 * time.Second
)

// Mode is the session's simplified speaking/listening state, derived
// from the room's active-speaker set.
type Mode int

const (
	ModeListening Mode = iota
	ModeSpeaking
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeListening:
		return "LISTENING"
	case ModeSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Disconnect classifications passed to OnDisconnect.
const (
	// DisconnectReasonAgent: the remote side ended the session.
	DisconnectReasonAgent = "agent"
	// DisconnectReasonError: the connection-state observation path saw
	// the transport drop.
	DisconnectReasonError = "error"
	// DisconnectReasonUser: the client called Close.
	DisconnectReasonUser = "user"
)

// DisconnectDetails describes a terminal disconnect.
type DisconnectDetails struct {
	Reason  string
	Message string
}

// DebugInfo is a structured diagnostic payload delivered to the debug
// observer. Purely observational: it never affects control flow.
type DebugInfo struct {
	Type    string `json:"type"`
	Message any    `json:"message,omitempty"`
}

// AgentOverrides adjusts the remote agent's behavior for this
// conversation.
type AgentOverrides struct {
	Prompt       string
	FirstMessage string
	Language     string
}

// TTSOverrides adjusts the agent's voice for this conversation.
type TTSOverrides struct {
	VoiceID string
}

// Overrides carries the per-conversation configuration sent in the
// initiation message.
type Overrides struct {
	Agent *AgentOverrides
	TTS   *TTSOverrides
}

// SessionConfig configures a conversation session. Exactly one of
// Token or AgentID must be supplied.
type SessionConfig struct {
	// Token is a pre-issued conversation token, used verbatim.
	Token string

	// AgentID identifies the agent to converse with; when no Token is
	// given, a token-exchange call resolves it into one.
	AgentID string

	// ServerURL is the media-room endpoint. Default: DefaultServerURL.
	ServerURL string

	// Origin overrides the API origin for the token exchange. When
	// empty the origin is derived from DefaultOrigin by rewriting its
	// scheme to https.
	Origin string

	// InputFormat and OutputFormat are symbolic audio format
	// identifiers (see ParseFormat). Default: pcm_16000 for both.
	InputFormat  string
	OutputFormat string

	// Overrides, CustomLLMExtraBody and DynamicVariables populate the
	// initiation message.
	Overrides          Overrides
	CustomLLMExtraBody map[string]any
	DynamicVariables   map[string]any

	// Source and Version identify this client to the platform.
	// Defaults: DefaultSource and core.Version.
	Source  string
	Version string

	// ConnectTimeout bounds the wait for the connected event.
	ConnectTimeout time.Duration

	// NewRoom constructs the media-room handle. Required; the livekit
	// subpackage provides the production factory.
	NewRoom func() Room

	// HTTPClient performs the token exchange. Default: a transport
	// with conservative dial and header timeouts.
	HTTPClient *http.Client

	// Logger receives steady-state warnings and errors.
	// Default: slog.Default().
	Logger *slog.Logger

	// OnMessage receives every validated inbound structured event,
	// including the synthetic audio events produced by the capture
	// pipeline.
	OnMessage func(ev InboundEvent)

	// OnModeChange fires when the speaking/listening mode flips.
	OnModeChange func(mode Mode)

	// OnDisconnect fires exactly once, on terminal disconnect.
	OnDisconnect func(details DisconnectDetails)

	// OnDebug is the optional debug observer.
	OnDebug func(info DebugInfo)
}

// withDefaults returns a copy with zero-value fields filled in.
func (c SessionConfig) withDefaults() SessionConfig {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.InputFormat == "" {
		c.InputFormat = DefaultInputFormatID
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutputFormatID
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.Version == "" {
		c.Version = core.Version
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = newDefaultHTTPClient()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
