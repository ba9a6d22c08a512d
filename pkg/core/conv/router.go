package conv

import (
	"context"
	"encoding/json"

	"github.com/convkit/convkit/pkg/core"
)

// publish serializes an outbound event and delivers it over the
// reliable data channel. Errors propagate to the caller; SendMessage
// converts them into debug notifications, bring-up lets them abort
// session creation.
func (s *Session) publish(ctx context.Context, ev OutboundEvent) error {
	if ev.EventType() == EventTypeUserAudioChunk {
		// Audio travels on the media track in this connection mode. The
		// chunk kind is reserved so stale senders cannot double-deliver
		// microphone data over the data channel.
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return core.NewMessageDeliveryError("encode outbound event", err)
	}
	if err := s.room.LocalParticipant().PublishData(ctx, payload, true); err != nil {
		return core.NewMessageDeliveryError("publish outbound event", err)
	}
	return nil
}

// SendMessage delivers a structured outbound event to the agent.
// Delivery failures never surface to the caller: the session stays
// usable and the failure is reported through the debug observer.
func (s *Session) SendMessage(ctx context.Context, ev OutboundEvent) {
	if !s.alive.Load() || s.room.LocalParticipant() == nil {
		s.log.Warn("dropping outbound event, session is not connected", "type", ev.EventType())
		return
	}
	if err := s.publish(ctx, ev); err != nil {
		s.log.Warn("outbound event not delivered", "type", ev.EventType(), "error", err)
		s.debugEvent(DebugInfo{Type: "send_message_error", Message: err.Error()})
	}
}

// SendUserMessage sends a typed text message as the user's turn.
func (s *Session) SendUserMessage(ctx context.Context, text string) {
	s.SendMessage(ctx, NewUserMessageEvent(text))
}

// SendUserActivity signals non-verbal user presence, postponing agent
// turn-taking.
func (s *Session) SendUserActivity(ctx context.Context) {
	s.SendMessage(ctx, NewUserActivityEvent())
}

// SendContextualUpdate pushes background context into the conversation
// without triggering a response.
func (s *Session) SendContextualUpdate(ctx context.Context, text string) {
	s.SendMessage(ctx, NewContextualUpdateEvent(text))
}

// SendToolResult reports a client-side tool invocation result back to
// the agent.
func (s *Session) SendToolResult(ctx context.Context, toolCallID string, result any, isError bool) {
	s.SendMessage(ctx, NewClientToolResultEvent(toolCallID, result, isError))
}

// SendPong answers a ping event, echoing its event id.
func (s *Session) SendPong(ctx context.Context, eventID int64) {
	s.SendMessage(ctx, NewPongEvent(eventID))
}

// WriteUserAudio pushes a block of the user's audio onto the published
// microphone track, the only outbound audio path in this transport
// mode. The block is interpreted per the negotiated input format and
// converted to the publication's linear PCM rate. Blocks are dropped
// with a warning when the session is not connected or no microphone is
// published.
func (s *Session) WriteUserAudio(block []byte) error {
	if !s.alive.Load() {
		s.log.Warn("dropping user audio, session is not connected")
		return nil
	}
	pub, ok := s.room.LocalParticipant().Microphone()
	if !ok {
		s.log.Warn("dropping user audio, no microphone publication")
		return nil
	}

	pcm := block
	if s.inputFormat.Encoding == EncodingULaw {
		pcm = ulawToPCM16(pcm)
	}
	if rate := pub.SampleRate(); rate != s.inputFormat.SampleRate {
		pcm = resamplePCM16(pcm, s.inputFormat.SampleRate, rate)
	}
	if err := pub.WritePCM(pcm); err != nil {
		return core.NewMessageDeliveryError("write user audio", err)
	}
	return nil
}
