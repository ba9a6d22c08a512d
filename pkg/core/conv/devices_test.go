package conv

import (
	"context"
	"errors"
	"testing"

	"github.com/convkit/convkit/pkg/core"
)

func subscribeAgentTracks(room *fakeRoom, n int) {
	for i := 0; i < n; i++ {
		room.handlers.OnTrackSubscribed(newFakeRemoteTrack(16000), "agent_007")
	}
}

func TestSetAudioOutputDeviceRequiresSinkSelection(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	room.supportsOutput = false
	s := startTestSession(t, room, nil)
	defer s.Close()

	err := s.SetAudioOutputDevice("speakers-1")
	var cerr *core.Error
	if !errors.As(err, &cerr) || cerr.Type != core.ErrDeviceSwitch {
		t.Fatalf("err = %v, want device switch error", err)
	}
}

func TestSetAudioOutputDeviceAppliesToAllPlaybacks(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()
	subscribeAgentTracks(room, 3)

	if err := s.SetAudioOutputDevice("speakers-1"); err != nil {
		t.Fatalf("SetAudioOutputDevice: %v", err)
	}
	for i, p := range room.playbacks {
		if p.deviceID != "speakers-1" {
			t.Fatalf("playback %d device = %q, want speakers-1", i, p.deviceID)
		}
	}

	// The selection is remembered and applied to playbacks created
	// afterwards.
	subscribeAgentTracks(room, 1)
	if got := room.playbacks[3].deviceID; got != "speakers-1" {
		t.Fatalf("new playback device = %q, want remembered speakers-1", got)
	}
}

func TestSetAudioOutputDeviceAbortsOnFirstFailure(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()
	subscribeAgentTracks(room, 3)
	room.playbacks[1].deviceErr = errFakeFailure

	err := s.SetAudioOutputDevice("speakers-1")
	var cerr *core.Error
	if !errors.As(err, &cerr) || cerr.Type != core.ErrDeviceSwitch {
		t.Fatalf("err = %v, want device switch error", err)
	}

	// Elements updated before the failing one keep the new device.
	for _, i := range []int{0, 2} {
		if got := room.playbacks[i].deviceID; got != "speakers-1" {
			t.Fatalf("playback %d device = %q, want speakers-1 despite the aborted call", i, got)
		}
	}

	// A failed switch is not remembered for future playbacks.
	subscribeAgentTracks(room, 1)
	if got := room.playbacks[3].deviceID; got != "" {
		t.Fatalf("new playback device = %q, want no remembered selection", got)
	}
}

func TestSetOutputVolume(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()
	subscribeAgentTracks(room, 2)

	if err := s.SetOutputVolume(0.5); err != nil {
		t.Fatalf("SetOutputVolume: %v", err)
	}
	for i, p := range room.playbacks {
		if p.volume != 0.5 {
			t.Fatalf("playback %d volume = %v, want 0.5", i, p.volume)
		}
	}

	subscribeAgentTracks(room, 1)
	if got := room.playbacks[2].volume; got != 0.5 {
		t.Fatalf("new playback volume = %v, want remembered 0.5", got)
	}
}

func TestSetAudioInputDeviceRepublishesMicrophone(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()

	if _, err := room.local.PublishMicrophone(context.Background(), MicrophoneOptions{}); err != nil {
		t.Fatalf("seed microphone: %v", err)
	}
	if err := s.SetAudioInputDevice(context.Background(), "usb-mic"); err != nil {
		t.Fatalf("SetAudioInputDevice: %v", err)
	}
	if room.local.mic == nil || room.local.mic.deviceID != "usb-mic" {
		t.Fatalf("microphone = %+v, want republished with usb-mic", room.local.mic)
	}
}

func TestSetAudioInputDeviceFailsWhenClosed(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	s.Close()

	err := s.SetAudioInputDevice(context.Background(), "usb-mic")
	var cerr *core.Error
	if !errors.As(err, &cerr) || cerr.Type != core.ErrDeviceSwitch {
		t.Fatalf("err = %v, want device switch error", err)
	}
}

func TestSetAudioInputDeviceRecoversDefaultMicOnFailure(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()
	room.local.publishMicErr = errFakeFailure

	before := len(room.local.micEnableCalls)
	err := s.SetAudioInputDevice(context.Background(), "usb-mic")
	var cerr *core.Error
	if !errors.As(err, &cerr) || cerr.Type != core.ErrDeviceSwitch {
		t.Fatalf("err = %v, want device switch error", err)
	}

	calls := room.local.micEnableCalls
	if len(calls) != before+1 || !calls[len(calls)-1] {
		t.Fatalf("mic enable calls = %v, want a trailing recovery enable", calls)
	}
}

func TestSetMicMutedPrefersPublicationLevel(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()

	if _, err := room.local.PublishMicrophone(context.Background(), MicrophoneOptions{}); err != nil {
		t.Fatalf("seed microphone: %v", err)
	}
	before := len(room.local.micEnableCalls)

	if err := s.SetMicMuted(context.Background(), true); err != nil {
		t.Fatalf("SetMicMuted: %v", err)
	}
	if !s.IsMicMuted() {
		t.Fatal("microphone is not muted")
	}
	if got := len(room.local.micEnableCalls); got != before {
		t.Fatalf("participant-level calls = %d, want %d (publication path preferred)", got, before)
	}
}

func TestSetMicMutedFallsBackToParticipantLevel(t *testing.T) {
	room := newFakeRoom("conv_abc123")
	s := startTestSession(t, room, nil)
	defer s.Close()

	if _, err := room.local.PublishMicrophone(context.Background(), MicrophoneOptions{}); err != nil {
		t.Fatalf("seed microphone: %v", err)
	}
	room.local.mic.muteErr = errFakeFailure

	if err := s.SetMicMuted(context.Background(), true); err != nil {
		t.Fatalf("SetMicMuted: %v", err)
	}
	calls := room.local.micEnableCalls
	if len(calls) == 0 || calls[len(calls)-1] {
		t.Fatalf("mic enable calls = %v, want a trailing disable", calls)
	}
}
