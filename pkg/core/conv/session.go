// Package conv implements live voice conversation sessions with a
// remote agent over a media room: credential resolution, ordered
// bring-up, room event reconciliation, dual-channel message routing,
// audio capture, and device switching.
package conv

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/convkit/convkit/pkg/core"
)

// convIDPattern extracts the canonical conversation identifier from the
// transport-provided room name. Non-matching names are kept as-is: the
// fallback is permissive on purpose, callers read ConversationID and
// rely on whatever the transport reported.
var convIDPattern = regexp.MustCompile(`conv_[a-zA-Z0-9]+`)

// teardownTimeout bounds the best-effort transport calls made during
// terminal teardown.
const teardownTimeout = 2 * time.Second

// Session is one live conversation with a remote agent over a media
// room. It owns the room handle, the playback registry, and the capture
// context; every other component references the session, never the
// room directly.
type Session struct {
	cfg SessionConfig
	log *slog.Logger

	room         Room
	inputFormat  Format
	outputFormat Format

	alive      atomic.Bool
	terminated atomic.Bool

	connectedOnce sync.Once
	connected     chan struct{}

	// lastEventID sequences the synthetic audio events emitted by the
	// capture pipeline. Session-wide, strictly increasing, starts at 1.
	lastEventID atomic.Int64

	mu             sync.Mutex
	conversationID string
	mode           Mode
	playbacks      []Playback
	outputDevice   *string
	outputVolume   *float64
	capture        *Capture
}

// StartSession resolves credentials, connects the media room, and
// performs the application-level handshake. It returns only after the
// initiation message has been delivered; any bring-up failure tears the
// transport down before surfacing.
func StartSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	cfg = cfg.withDefaults()
	if cfg.NewRoom == nil {
		return nil, core.NewConnectionSetupError("session config: NewRoom factory is required", nil)
	}

	inputFormat, err := ParseFormat(cfg.InputFormat)
	if err != nil {
		return nil, core.NewConnectionSetupError("negotiate input format", err)
	}
	outputFormat, err := ParseFormat(cfg.OutputFormat)
	if err != nil {
		return nil, core.NewConnectionSetupError("negotiate output format", err)
	}

	token, err := resolveToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:            cfg,
		log:            cfg.Logger,
		room:           cfg.NewRoom(),
		inputFormat:    inputFormat,
		outputFormat:   outputFormat,
		connected:      make(chan struct{}),
		conversationID: "conv_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		mode:           ModeListening,
	}

	// Subscriptions go in before the connect call so no early lifecycle
	// event is missed.
	s.room.SetHandlers(RoomHandlers{
		OnConnected:              s.handleConnected,
		OnDisconnected:           s.handleDisconnected,
		OnConnectionStateChanged: s.handleConnectionStateChanged,
		OnDataReceived:           s.handleDataReceived,
		OnTrackSubscribed:        s.handleTrackSubscribed,
		OnActiveSpeakersChanged:  s.handleActiveSpeakersChanged,
	})

	if err := s.room.Connect(ctx, cfg.ServerURL, token); err != nil {
		return nil, s.abortBringUp("connect to media room", err)
	}
	if err := s.waitForConnected(ctx); err != nil {
		return nil, s.abortBringUp("wait for room connection", err)
	}

	s.deriveConversationID(s.room.Name())

	if err := s.room.LocalParticipant().SetMicrophoneEnabled(ctx, true); err != nil {
		return nil, s.abortBringUp("enable microphone", err)
	}
	if err := s.publish(ctx, s.buildInitiationEvent()); err != nil {
		return nil, s.abortBringUp("send initiation message", err)
	}
	return s, nil
}

// abortBringUp releases the transport handle best-effort and wraps the
// failing step's error.
func (s *Session) abortBringUp(step string, err error) error {
	if derr := s.room.Disconnect(); derr != nil {
		s.log.Warn("disconnect after failed bring-up", "error", derr)
	}
	return core.NewConnectionSetupError(step, err)
}

// waitForConnected suspends until the connected event has been
// observed. The alive flag is checked first: the event may already have
// fired before this call, and waiting on the channel alone would
// deadlock.
func (s *Session) waitForConnected(ctx context.Context) error {
	if s.alive.Load() {
		return nil
	}
	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-s.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return core.NewConnectionSetupError("timed out waiting for room connection", nil)
	}
}

// deriveConversationID extracts the canonical identifier from the room
// name when present, falling back to the raw name, and keeping the
// generated placeholder when the transport reports no name.
func (s *Session) deriveConversationID(roomName string) {
	if roomName == "" {
		return
	}
	id := roomName
	if match := convIDPattern.FindString(roomName); match != "" {
		id = match
	}
	s.mu.Lock()
	s.conversationID = id
	s.mu.Unlock()
}

// buildInitiationEvent assembles the handshake payload from the session
// configuration.
func (s *Session) buildInitiationEvent() *InitiationEvent {
	ev := &InitiationEvent{
		Type:               EventTypeInitiationClientData,
		CustomLLMExtraBody: s.cfg.CustomLLMExtraBody,
		DynamicVariables:   s.cfg.DynamicVariables,
		SourceInfo:         SourceInfo{Source: s.cfg.Source, Version: s.cfg.Version},
	}
	override := &ConversationConfigOverride{}
	if o := s.cfg.Overrides.Agent; o != nil {
		agent := &AgentConfigOverride{
			FirstMessage: o.FirstMessage,
			Language:     o.Language,
		}
		if o.Prompt != "" {
			agent.Prompt = &PromptOverride{Prompt: o.Prompt}
		}
		override.Agent = agent
	}
	if o := s.cfg.Overrides.TTS; o != nil {
		override.TTS = &TTSConfigOverride{VoiceID: o.VoiceID}
	}
	if override.Agent != nil || override.TTS != nil {
		ev.ConversationConfigOverride = override
	}
	return ev
}

// ConversationID returns the session identifier: the pattern-extracted
// room name when available, else the raw room name, else the locally
// generated placeholder.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// IsOpen reports whether the transport is currently connected.
func (s *Session) IsOpen() bool {
	return s.alive.Load()
}

// Mode returns the current speaking/listening mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// InputFormat returns the negotiated input format descriptor.
func (s *Session) InputFormat() Format { return s.inputFormat }

// OutputFormat returns the negotiated output format descriptor.
func (s *Session) OutputFormat() Format { return s.outputFormat }

// Capture returns the active capture pipeline, or nil before the first
// agent audio track is subscribed.
func (s *Session) Capture() *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// Close ends the session from the client side. Teardown is idempotent:
// calling Close twice, or alongside a transport-initiated disconnect,
// releases resources at most once.
func (s *Session) Close() error {
	s.terminate(DisconnectReasonUser, "session closed by client")
	return s.room.Disconnect()
}

// handleConnected sets the alive flag and releases the connected wait.
// Subsequent connected events are no-ops: the wait resolves once.
func (s *Session) handleConnected() {
	s.alive.Store(true)
	s.connectedOnce.Do(func() { close(s.connected) })
}

// handleDisconnected is the remote-initiated observation path.
func (s *Session) handleDisconnected(reason string) {
	s.alive.Store(false)
	s.terminate(DisconnectReasonAgent, reason)
}

// handleConnectionStateChanged is the second, independent disconnect
// observation path. Both paths can fire for one underlying failure;
// terminate's guard keeps teardown single-shot.
func (s *Session) handleConnectionStateChanged(state ConnectionState) {
	if state != ConnectionStateDisconnected {
		return
	}
	s.alive.Store(false)
	s.terminate(DisconnectReasonError, "room connection state changed to "+state.String())
}

// handleDataReceived decodes and validates a data-channel payload,
// dispatching structured events inbound. Undecodable or invalid
// payloads are logged and discarded; the reserved audio kind is
// discarded because audio arrives via track subscription in this mode.
func (s *Session) handleDataReceived(payload []byte) {
	ev, err := DecodeInboundEvent(payload)
	if err != nil {
		s.log.Warn("discarding inbound payload", "error", err)
		return
	}
	if ev.EventType() == EventTypeAudio {
		return
	}
	s.handleInbound(ev)
}

// handleTrackSubscribed reacts to an agent audio track: creates a
// playback element, reapplies remembered output routing and volume,
// registers it, and starts the capture pipeline on the first track.
func (s *Session) handleTrackSubscribed(track RemoteTrack, participantIdentity string) {
	if track.Kind() != TrackKindAudio || !strings.Contains(participantIdentity, "agent") {
		return
	}

	playback, err := s.room.NewPlayback(track)
	if err != nil {
		s.log.Error("create playback for agent track", "track", track.ID(), "error", err)
		return
	}

	s.mu.Lock()
	device := s.outputDevice
	volume := s.outputVolume
	s.mu.Unlock()

	if device != nil {
		if err := playback.SetOutputDevice(*device); err != nil {
			s.log.Warn("apply remembered output device to new playback", "error", err)
		}
	}
	if volume != nil {
		if err := playback.SetVolume(*volume); err != nil {
			s.log.Warn("apply remembered output volume to new playback", "error", err)
		}
	}

	s.mu.Lock()
	s.playbacks = append(s.playbacks, playback)
	first := len(s.playbacks) == 1
	startCapture := s.capture == nil
	s.mu.Unlock()

	if first {
		// Upstream volume settings are reapplied on this notification.
		s.debugEvent(DebugInfo{Type: "audio_element_ready"})
	}

	if startCapture {
		capture, err := newCapture(s, track, s.outputFormat)
		if err != nil {
			// The pipeline stays inert; the rest of the session keeps
			// operating on the playback path alone.
			s.log.Error("capture pipeline setup failed", "error", core.NewCaptureSetupError("build capture pipeline", err))
			return
		}
		s.mu.Lock()
		s.capture = capture
		s.mu.Unlock()
		capture.start()
	}
}

// handleActiveSpeakersChanged reconciles the speaker set into the
// simplified speaking/listening mode. An empty set means listening.
func (s *Session) handleActiveSpeakersChanged(identities []string) {
	mode := ModeListening
	for _, identity := range identities {
		if strings.HasPrefix(identity, "agent") {
			mode = ModeSpeaking
			break
		}
	}

	s.mu.Lock()
	changed := s.mode != mode
	s.mode = mode
	s.mu.Unlock()

	if changed && s.cfg.OnModeChange != nil {
		s.cfg.OnModeChange(mode)
	}
}

// terminate is the single teardown procedure shared by the remote
// disconnect event, the connection-state observation path, and client
// Close. The compare-and-swap guarantees the body runs once no matter
// how many triggers fire.
func (s *Session) terminate(reason, message string) {
	if !s.terminated.CompareAndSwap(false, true) {
		return
	}
	s.alive.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if lp := s.room.LocalParticipant(); lp != nil {
		if err := lp.SetMicrophoneEnabled(ctx, false); err != nil {
			s.log.Warn("disable microphone during teardown", "error", err)
		}
	}

	s.mu.Lock()
	capture := s.capture
	s.capture = nil
	playbacks := s.playbacks
	s.playbacks = nil
	s.mu.Unlock()

	if capture != nil {
		// Audio-context teardown is fire-and-forget.
		go func() {
			if err := capture.Close(); err != nil {
				s.log.Warn("close capture pipeline", "error", err)
			}
		}()
	}
	for _, playback := range playbacks {
		if err := playback.Close(); err != nil {
			s.log.Warn("close playback", "error", err)
		}
	}

	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(DisconnectDetails{Reason: reason, Message: message})
	}
}

// handleInbound is the single inbound entry point shared by validated
// transport events and the capture pipeline's synthetic audio events.
func (s *Session) handleInbound(ev InboundEvent) {
	if s.cfg.OnMessage != nil {
		s.cfg.OnMessage(ev)
	}
}

// debugEvent forwards a diagnostic payload to the debug observer.
func (s *Session) debugEvent(info DebugInfo) {
	if s.cfg.OnDebug != nil {
		s.cfg.OnDebug(info)
	}
}

// nextAudioEventID returns the next capture sequence number. Starts at
// 1 and is never reused, including across suppressed blocks.
func (s *Session) nextAudioEventID() int64 {
	return s.lastEventID.Add(1)
}

// drainTrackErr classifies capture read-loop exits for logging.
func drainTrackErr(err error) slog.Level {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}
