package conv

import (
	"context"
	"sync"

	"github.com/convkit/convkit/pkg/core"
)

// micTrackName is the logical name and source tag under which the
// conversation microphone is published, so the remote side can tell it
// apart from other local tracks.
const (
	micTrackName   = "conversation-mic"
	micTrackSource = "microphone"
)

// SetAudioOutputDevice routes playback of every active agent track to
// the given output device. The empty string selects the system default.
// The device is applied to all registered playbacks concurrently; the
// first failure aborts the call, leaving elements updated before the
// failure on the new device. On success the selection is remembered and
// applied to playbacks created later.
func (s *Session) SetAudioOutputDevice(deviceID string) error {
	if !s.room.SupportsOutputSelection() {
		return core.NewDeviceSwitchError("output device selection is not supported by this runtime", nil)
	}

	s.mu.Lock()
	playbacks := make([]Playback, len(s.playbacks))
	copy(playbacks, s.playbacks)
	s.mu.Unlock()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, playback := range playbacks {
		wg.Add(1)
		go func(p Playback) {
			defer wg.Done()
			if err := p.SetOutputDevice(deviceID); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(playback)
	}
	wg.Wait()

	if firstErr != nil {
		err := core.NewDeviceSwitchError("apply output device", firstErr)
		s.log.Error("output device switch failed", "device", deviceID, "error", err)
		return err
	}

	s.mu.Lock()
	s.outputDevice = &deviceID
	s.mu.Unlock()
	return nil
}

// SetOutputVolume sets the playback volume, on a 0 to 1 scale, of
// every active agent track and remembers it for playbacks created
// later.
func (s *Session) SetOutputVolume(volume float64) error {
	s.mu.Lock()
	playbacks := make([]Playback, len(s.playbacks))
	copy(playbacks, s.playbacks)
	s.mu.Unlock()

	for _, playback := range playbacks {
		if err := playback.SetVolume(volume); err != nil {
			return core.NewDeviceSwitchError("apply output volume", err)
		}
	}

	s.mu.Lock()
	s.outputVolume = &volume
	s.mu.Unlock()
	return nil
}

// SetAudioInputDevice switches the local microphone to the given input
// device by recreating and republishing the track. The empty string
// selects the system default. On failure the default microphone is
// re-enabled best-effort before the original error is returned.
func (s *Session) SetAudioInputDevice(ctx context.Context, deviceID string) error {
	if !s.alive.Load() {
		return core.NewDeviceSwitchError("session is not connected", nil)
	}
	lp := s.room.LocalParticipant()

	switchErr := func() error {
		if _, ok := lp.Microphone(); ok {
			if err := lp.UnpublishMicrophone(ctx); err != nil {
				return err
			}
		}
		_, err := lp.PublishMicrophone(ctx, MicrophoneOptions{
			DeviceID:         deviceID,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			Channels:         1,
			Name:             micTrackName,
			Source:           micTrackSource,
		})
		return err
	}()
	if switchErr == nil {
		return nil
	}

	// Recovery path: fall back to the default microphone so the
	// conversation keeps an input even though the switch failed.
	if rerr := lp.SetMicrophoneEnabled(ctx, true); rerr != nil {
		s.log.Warn("default microphone recovery failed", "error", rerr)
	}
	err := core.NewDeviceSwitchError("switch input device", switchErr)
	s.log.Error("input device switch failed", "device", deviceID, "error", err)
	return err
}

// SetMicMuted mutes or unmutes the local microphone. Track-level mute
// on the existing publication is preferred; when no publication exists
// or the mute call fails, participant-level enable/disable is used
// instead.
func (s *Session) SetMicMuted(ctx context.Context, muted bool) error {
	if pub, ok := s.room.LocalParticipant().Microphone(); ok {
		err := pub.SetMuted(muted)
		if err == nil {
			return nil
		}
		s.log.Warn("track-level mute failed, falling back to participant-level", "error", err)
	}
	if err := s.room.LocalParticipant().SetMicrophoneEnabled(ctx, !muted); err != nil {
		return core.NewDeviceSwitchError("set microphone muted", err)
	}
	return nil
}

// IsMicMuted reports the microphone publication's mute state. Without a
// publication the microphone counts as unmuted.
func (s *Session) IsMicMuted() bool {
	if pub, ok := s.room.LocalParticipant().Microphone(); ok {
		return pub.IsMuted()
	}
	return false
}
