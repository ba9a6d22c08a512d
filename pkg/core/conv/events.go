package conv

import (
	"encoding/json"
	"strings"

	"github.com/convkit/convkit/pkg/core"
)

// Event type tags. The inbound and outbound sets are closed: anything
// off the data channel that does not decode into one of the inbound
// shapes is logged and discarded.
const (
	// EventTypeAudio is the reserved audio kind. In this transport mode
	// audio never travels the data channel: inbound audio arrives via
	// track subscription (resynthesized by the capture pipeline) and
	// outbound audio rides the published microphone track.
	EventTypeAudio          = "audio"
	EventTypeUserAudioChunk = "user_audio_chunk"

	EventTypeInitiationMetadata       = "conversation_initiation_metadata"
	EventTypeAgentResponse            = "agent_response"
	EventTypeAgentResponseCorrection  = "agent_response_correction"
	EventTypeUserTranscript           = "user_transcript"
	EventTypeInterruption             = "interruption"
	EventTypePing                     = "ping"
	EventTypeVADScore                 = "vad_score"
	EventTypeClientToolCall           = "client_tool_call"
	EventTypeInitiationClientData     = "conversation_initiation_client_data"
	EventTypePong                     = "pong"
	EventTypeUserMessage              = "user_message"
	EventTypeUserActivity             = "user_activity"
	EventTypeContextualUpdate         = "contextual_update"
	EventTypeClientToolResult         = "client_tool_result"
)

// InboundEvent is a validated structured event received from the data
// channel or synthesized by the capture pipeline.
type InboundEvent interface {
	EventType() string
}

// OutboundEvent is a structured event the client can place on the data
// channel.
type OutboundEvent interface {
	EventType() string
}

// AudioChunk is the payload of the reserved audio kind.
type AudioChunk struct {
	Base64  string `json:"audio_base_64"`
	EventID int64  `json:"event_id"`
}

// AudioEvent carries one discretized block of agent audio.
type AudioEvent struct {
	Type  string     `json:"type"`
	Audio AudioChunk `json:"audio_event"`
}

func (e *AudioEvent) EventType() string { return EventTypeAudio }

// InitiationMetadataEvent acknowledges the handshake and reports the
// server-side conversation identity and formats.
type InitiationMetadataEvent struct {
	Type     string             `json:"type"`
	Metadata InitiationMetadata `json:"conversation_initiation_metadata_event"`
}

type InitiationMetadata struct {
	ConversationID         string `json:"conversation_id"`
	AgentOutputAudioFormat string `json:"agent_output_audio_format,omitempty"`
	UserInputAudioFormat   string `json:"user_input_audio_format,omitempty"`
}

func (e *InitiationMetadataEvent) EventType() string { return EventTypeInitiationMetadata }

// AgentResponseEvent carries the agent's textual reply.
type AgentResponseEvent struct {
	Type     string `json:"type"`
	Response struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`
}

func (e *AgentResponseEvent) EventType() string { return EventTypeAgentResponse }

// AgentResponseCorrectionEvent replaces a truncated reply after an
// interruption.
type AgentResponseCorrectionEvent struct {
	Type       string `json:"type"`
	Correction struct {
		OriginalAgentResponse  string `json:"original_agent_response"`
		CorrectedAgentResponse string `json:"corrected_agent_response"`
	} `json:"agent_response_correction_event"`
}

func (e *AgentResponseCorrectionEvent) EventType() string { return EventTypeAgentResponseCorrection }

// UserTranscriptEvent carries the server-side transcription of the
// user's speech.
type UserTranscriptEvent struct {
	Type          string `json:"type"`
	Transcription struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`
}

func (e *UserTranscriptEvent) EventType() string { return EventTypeUserTranscript }

// InterruptionEvent signals that the agent's reply was cut off.
type InterruptionEvent struct {
	Type         string `json:"type"`
	Interruption struct {
		EventID int64 `json:"event_id"`
	} `json:"interruption_event"`
}

func (e *InterruptionEvent) EventType() string { return EventTypeInterruption }

// PingEvent is the server's liveness probe; clients answer with a Pong
// carrying the same event id.
type PingEvent struct {
	Type string `json:"type"`
	Ping struct {
		EventID int64 `json:"event_id"`
		PingMS  int64 `json:"ping_ms,omitempty"`
	} `json:"ping_event"`
}

func (e *PingEvent) EventType() string { return EventTypePing }

// VADScoreEvent reports the server's voice-activity estimate for the
// user's input.
type VADScoreEvent struct {
	Type  string `json:"type"`
	Score struct {
		VADScore float64 `json:"vad_score"`
	} `json:"vad_score_event"`
}

func (e *VADScoreEvent) EventType() string { return EventTypeVADScore }

// ClientToolCallEvent asks the client to execute a tool and report the
// result.
type ClientToolCallEvent struct {
	Type     string `json:"type"`
	ToolCall struct {
		ToolName   string         `json:"tool_name"`
		ToolCallID string         `json:"tool_call_id"`
		Parameters map[string]any `json:"parameters,omitempty"`
	} `json:"client_tool_call"`
}

func (e *ClientToolCallEvent) EventType() string { return EventTypeClientToolCall }

// DecodeInboundEvent decodes a data-channel payload into one of the
// known structured-event shapes. The envelope's type tag is probed
// first; unknown tags and shape violations return a malformed-payload
// error so the receive handler can log and discard.
func DecodeInboundEvent(payload []byte) (InboundEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, core.NewMalformedPayloadError("invalid json payload", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, core.NewMalformedPayloadError("missing event type", nil)
	}

	switch typ {
	case EventTypeAudio:
		var ev AudioEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid audio event", err)
		}
		if ev.Audio.Base64 == "" {
			return nil, core.NewMalformedPayloadError("audio_event.audio_base_64 is required", nil)
		}
		return &ev, nil
	case EventTypeInitiationMetadata:
		var ev InitiationMetadataEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid conversation_initiation_metadata event", err)
		}
		return &ev, nil
	case EventTypeAgentResponse:
		var ev AgentResponseEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid agent_response event", err)
		}
		return &ev, nil
	case EventTypeAgentResponseCorrection:
		var ev AgentResponseCorrectionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid agent_response_correction event", err)
		}
		return &ev, nil
	case EventTypeUserTranscript:
		var ev UserTranscriptEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid user_transcript event", err)
		}
		return &ev, nil
	case EventTypeInterruption:
		var ev InterruptionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid interruption event", err)
		}
		return &ev, nil
	case EventTypePing:
		var ev PingEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid ping event", err)
		}
		return &ev, nil
	case EventTypeVADScore:
		var ev VADScoreEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid vad_score event", err)
		}
		return &ev, nil
	case EventTypeClientToolCall:
		var ev ClientToolCallEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, core.NewMalformedPayloadError("invalid client_tool_call event", err)
		}
		if ev.ToolCall.ToolCallID == "" {
			return nil, core.NewMalformedPayloadError("client_tool_call.tool_call_id is required", nil)
		}
		return &ev, nil
	default:
		return nil, core.NewMalformedPayloadError("unknown event type "+typ, nil)
	}
}

// PromptOverride wraps an agent prompt replacement.
type PromptOverride struct {
	Prompt string `json:"prompt"`
}

// AgentConfigOverride is the wire shape of per-conversation agent
// overrides.
type AgentConfigOverride struct {
	Prompt       *PromptOverride `json:"prompt,omitempty"`
	FirstMessage string          `json:"first_message,omitempty"`
	Language     string          `json:"language,omitempty"`
}

// TTSConfigOverride is the wire shape of per-conversation voice
// overrides.
type TTSConfigOverride struct {
	VoiceID string `json:"voice_id,omitempty"`
}

// ConversationConfigOverride groups all override sections.
type ConversationConfigOverride struct {
	Agent *AgentConfigOverride `json:"agent,omitempty"`
	TTS   *TTSConfigOverride   `json:"tts,omitempty"`
}

// SourceInfo identifies the client library to the platform.
type SourceInfo struct {
	Source  string `json:"source"`
	Version string `json:"version"`
}

// InitiationEvent is the application-level handshake. The remote agent
// does not consider the conversation started until it arrives.
type InitiationEvent struct {
	Type                       string                      `json:"type"`
	ConversationConfigOverride *ConversationConfigOverride `json:"conversation_config_override,omitempty"`
	CustomLLMExtraBody         map[string]any              `json:"custom_llm_extra_body,omitempty"`
	DynamicVariables           map[string]any              `json:"dynamic_variables,omitempty"`
	SourceInfo                 SourceInfo                  `json:"source_info"`
}

func (e *InitiationEvent) EventType() string { return EventTypeInitiationClientData }

// PongEvent answers a ping, echoing its event id.
type PongEvent struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

// NewPongEvent builds a pong for the given ping event id.
func NewPongEvent(eventID int64) *PongEvent {
	return &PongEvent{Type: EventTypePong, EventID: eventID}
}

func (e *PongEvent) EventType() string { return EventTypePong }

// UserMessageEvent sends a typed user utterance.
type UserMessageEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewUserMessageEvent builds a user text message.
func NewUserMessageEvent(text string) *UserMessageEvent {
	return &UserMessageEvent{Type: EventTypeUserMessage, Text: text}
}

func (e *UserMessageEvent) EventType() string { return EventTypeUserMessage }

// UserActivityEvent signals non-verbal user presence.
type UserActivityEvent struct {
	Type string `json:"type"`
}

// NewUserActivityEvent builds a user activity marker.
func NewUserActivityEvent() *UserActivityEvent {
	return &UserActivityEvent{Type: EventTypeUserActivity}
}

func (e *UserActivityEvent) EventType() string { return EventTypeUserActivity }

// ContextualUpdateEvent feeds out-of-band context to the agent.
type ContextualUpdateEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewContextualUpdateEvent builds a contextual update.
func NewContextualUpdateEvent(text string) *ContextualUpdateEvent {
	return &ContextualUpdateEvent{Type: EventTypeContextualUpdate, Text: text}
}

func (e *ContextualUpdateEvent) EventType() string { return EventTypeContextualUpdate }

// ClientToolResultEvent reports a client-side tool execution back to
// the agent.
type ClientToolResultEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Result     any    `json:"result,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// NewClientToolResultEvent builds a tool result for the given call id.
func NewClientToolResultEvent(toolCallID string, result any, isError bool) *ClientToolResultEvent {
	return &ClientToolResultEvent{
		Type:       EventTypeClientToolResult,
		ToolCallID: toolCallID,
		Result:     result,
		IsError:    isError,
	}
}

func (e *ClientToolResultEvent) EventType() string { return EventTypeClientToolResult }

// UserAudioChunkEvent is the reserved outbound audio kind. The router
// never places it on the data channel: in this transport mode outbound
// audio travels exclusively over the published microphone track.
type UserAudioChunkEvent struct {
	Chunk string `json:"user_audio_chunk"`
}

func (e *UserAudioChunkEvent) EventType() string { return EventTypeUserAudioChunk }
