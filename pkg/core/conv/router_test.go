package conv

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
)

func TestSendMessagePublishesReliably(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()

	before := room.local.publishedCount()
	s.SendUserMessage(context.Background(), "hello there")

	if got := room.local.publishedCount(); got != before+1 {
		t.Fatalf("published = %d, want %d", got, before+1)
	}
	if !room.local.reliableAll {
		t.Fatal("payload was not published reliably")
	}

	var decoded struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	last := room.local.published[room.local.publishedCount()-1]
	if err := json.Unmarshal(last, &decoded); err != nil {
		t.Fatalf("unmarshal published payload: %v", err)
	}
	if decoded.Type != EventTypeUserMessage || decoded.Text != "hello there" {
		t.Fatalf("payload = %+v, want user_message hello there", decoded)
	}
}

func TestSendMessageSuppressesReservedAudioKind(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()

	before := room.local.publishedCount()
	for i := 0; i < 3; i++ {
		s.SendMessage(context.Background(), &UserAudioChunkEvent{Chunk: "AAAA"})
	}
	if got := room.local.publishedCount(); got != before {
		t.Fatalf("published = %d, want %d (audio chunks never hit the data channel)", got, before)
	}
}

func TestSendMessageFailureIsNonFatal(t *testing.T) {
	var mu sync.Mutex
	var debugs []DebugInfo

	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, func(cfg *SessionConfig) {
		cfg.OnDebug = func(info DebugInfo) {
			mu.Lock()
			debugs = append(debugs, info)
			mu.Unlock()
		}
	})
	defer s.Close()

	room.local.publishErr = errFakeFailure
	s.SendUserMessage(context.Background(), "will not arrive")

	if !s.IsOpen() {
		t.Fatal("delivery failure closed the session")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(debugs) != 1 || debugs[0].Type != "send_message_error" {
		t.Fatalf("debug events = %+v, want one send_message_error", debugs)
	}
}

func TestSendMessageAfterCloseIsNoOp(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	s.Close()

	before := room.local.publishedCount()
	s.SendUserMessage(context.Background(), "too late")
	if got := room.local.publishedCount(); got != before {
		t.Fatalf("published = %d, want %d after close", got, before)
	}
}

func TestWriteUserAudioReachesMicrophoneTrack(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()

	if _, err := room.local.PublishMicrophone(context.Background(), MicrophoneOptions{}); err != nil {
		t.Fatalf("seed microphone: %v", err)
	}
	if err := s.WriteUserAudio(pcmBlock(1000, 160)); err != nil {
		t.Fatalf("WriteUserAudio: %v", err)
	}

	written := room.local.mic.written
	if len(written) != 1 {
		t.Fatalf("written blocks = %d, want 1", len(written))
	}
	// Default pcm_16000 input matches the publication rate, so the
	// block passes through unchanged.
	if len(written[0]) != 160*2 {
		t.Fatalf("written block = %d bytes, want %d", len(written[0]), 160*2)
	}
}

func TestWriteUserAudioConvertsULawInput(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, func(cfg *SessionConfig) {
		cfg.InputFormat = "ulaw_8000"
	})
	defer s.Close()

	if _, err := room.local.PublishMicrophone(context.Background(), MicrophoneOptions{}); err != nil {
		t.Fatalf("seed microphone: %v", err)
	}
	if err := s.WriteUserAudio(pcm16ToULaw(pcmBlock(1000, 80))); err != nil {
		t.Fatalf("WriteUserAudio: %v", err)
	}

	written := room.local.mic.written
	if len(written) != 1 {
		t.Fatalf("written blocks = %d, want 1", len(written))
	}
	// 80 mu-law samples at 8 kHz expand and resample to 160 PCM
	// samples at the publication's 16 kHz.
	if len(written[0]) != 160*2 {
		t.Fatalf("written block = %d bytes, want %d", len(written[0]), 160*2)
	}
}

func TestWriteUserAudioDropsWhenNotConnected(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	if _, err := room.local.PublishMicrophone(context.Background(), MicrophoneOptions{}); err != nil {
		t.Fatalf("seed microphone: %v", err)
	}
	s.Close()

	if err := s.WriteUserAudio(pcmBlock(1000, 160)); err != nil {
		t.Fatalf("WriteUserAudio after close: %v", err)
	}
	if got := len(room.local.mic.written); got != 0 {
		t.Fatalf("written blocks = %d, want 0 after close", got)
	}
}

func TestOutboundEventShapes(t *testing.T) {
	tests := []struct {
		name string
		ev   OutboundEvent
		want string
	}{
		{"pong", NewPongEvent(42), `{"type":"pong","event_id":42}`},
		{"user activity", NewUserActivityEvent(), `{"type":"user_activity"}`},
		{"contextual update", NewContextualUpdateEvent("ctx"), `{"type":"contextual_update","text":"ctx"}`},
		{"tool result", NewClientToolResultEvent("call_1", "ok", false), `{"type":"client_tool_result","tool_call_id":"call_1","result":"ok"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("payload = %s, want %s", got, tt.want)
			}
		})
	}
}
