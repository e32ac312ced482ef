// ABOUTME: Channel playback, narration and haptic entry points of the engine
// ABOUTME: Capability gaps degrade to silent no-ops; lifecycle misuse errors
package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/resonate-feedback/internal/assets"
	"github.com/Resonate-Protocol/resonate-feedback/internal/audioctx"
	"github.com/Resonate-Protocol/resonate-feedback/internal/haptic"
	"github.com/Resonate-Protocol/resonate-feedback/internal/spatial"
	"github.com/Resonate-Protocol/resonate-feedback/internal/voice"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

// Channel is a mixer channel with its own configured volume
type Channel string

const (
	ChannelSFX     Channel = "sfx"
	ChannelMusic   Channel = "music"
	ChannelAmbient Channel = "ambient"
	ChannelVoice   Channel = "voice"
)

// PlayOptions customise one sound. Nil fields take channel defaults.
type PlayOptions struct {
	Volume   *float64
	Position *mgl64.Vec3
	Loop     *bool
	Intent   spatial.Intent
}

// VoiceOptions customise one utterance
type VoiceOptions struct {
	Lang     string
	Context  voice.Context
	Emphasis voice.Emphasis
	Speed    voice.Speed
	OnStart  func()
	OnEnd    func()
	OnError  func(error)
}

// channelVolume returns the configured volume for ch
func channelVolume(c Config, ch Channel) float64 {
	switch ch {
	case ChannelMusic:
		return c.MusicVolume
	case ChannelAmbient:
		return c.AmbientVolume
	case ChannelVoice:
		return c.VoiceVolume
	}
	return c.SFXVolume
}

// ready reports whether audio can play. It errors only after Shutdown or
// before Initialize.
func (e *Engine) ready() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return false, ErrClosed
	case !e.initialized:
		return false, ErrNotInitialized
	}
	return e.audioAvailable, nil
}

// PlaySFX plays a one-shot effect. It returns an empty id when the
// device has no audio output.
func (e *Engine) PlaySFX(ctx context.Context, assetID string, opts PlayOptions) (string, error) {
	return e.play(ctx, ChannelSFX, assetID, opts, false)
}

// PlayMusic replaces the current music track. Music loops by default.
func (e *Engine) PlayMusic(ctx context.Context, assetID string, opts PlayOptions) (string, error) {
	return e.playExclusive(ctx, ChannelMusic, assetID, opts, &e.music)
}

// PlayAmbient replaces the current ambient bed. Ambience loops by default.
func (e *Engine) PlayAmbient(ctx context.Context, assetID string, opts PlayOptions) (string, error) {
	if opts.Intent == "" {
		opts.Intent = spatial.IntentAmbient
	}
	return e.playExclusive(ctx, ChannelAmbient, assetID, opts, &e.ambient)
}

func (e *Engine) playExclusive(ctx context.Context, ch Channel, assetID string, opts PlayOptions, slot *string) (string, error) {
	id, err := e.play(ctx, ch, assetID, opts, true)
	if err != nil || id == "" {
		return id, err
	}

	e.mu.Lock()
	previous := *slot
	*slot = id
	e.mu.Unlock()

	if previous != "" {
		// already gone if it was evicted or swept
		_ = e.sounds.Stop(previous)
	}
	return id, nil
}

func (e *Engine) play(ctx context.Context, ch Channel, assetID string, opts PlayOptions, loopDefault bool) (string, error) {
	ok, err := e.ready()
	if err != nil || !ok {
		return "", err
	}

	epoch := e.sounds.Epoch()
	buf, asset, err := e.cache.Load(ctx, assetID)
	if err != nil {
		e.log.Warn().Err(err).Str("asset", assetID).Msg("asset load failed")
		return "", fmt.Errorf("load %s: %w", assetID, err)
	}

	cfg := e.Config()
	requested := 1.0
	if opts.Volume != nil {
		requested = *opts.Volume
	} else if opts.Intent != "" {
		requested, _ = spatial.IntentDefaults(opts.Intent)
	}
	// unset loop falls through to the intent default unless the channel loops
	loop := opts.Loop
	if loop == nil && loopDefault {
		loop = lo.ToPtr(true)
	}

	sopts := spatial.Options{
		AssetID: asset.ID,
		Intent:  opts.Intent,
		Volume:  lo.ToPtr(requested * channelVolume(cfg, ch)),
		Loop:    loop,
		Params:  spatialParams(cfg),
		Epoch:   epoch,
	}

	var id string
	if opts.Position != nil {
		id, err = e.sounds.CreateSpatialSound(buf, *opts.Position, sopts)
	} else {
		id, err = e.sounds.CreateSound(buf, sopts)
	}
	switch {
	case errors.Is(err, spatial.ErrSuperseded):
		e.log.Debug().Str("asset", assetID).Msg("dropped sound stopped while loading")
		return "", nil
	case errors.Is(err, audioctx.ErrContextUnavailable):
		e.log.Debug().Str("asset", assetID).Msg("context suspended, sound skipped")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if err := e.sounds.Play(id); err != nil {
		return "", err
	}

	e.metrics.SoundsStarted.WithLabelValues(string(ch)).Inc()
	e.metrics.ActiveInstances.Set(float64(len(e.sounds.ActiveInstances())))
	e.log.Debug().
		Str("asset", assetID).
		Str("channel", string(ch)).
		Str("instance", id).
		Msg("sound started")
	return id, nil
}

// StopAll stops every sound, including ones still loading
func (e *Engine) StopAll() {
	e.sounds.StopAll()
	e.mu.Lock()
	e.music, e.ambient = "", ""
	e.mu.Unlock()
	e.metrics.ActiveInstances.Set(0)
}

// PlayVoice narrates text, replacing any active utterance. Devices
// without speech, or a muted voice channel, skip silently. Completion is
// reported through the option callbacks.
func (e *Engine) PlayVoice(text string, opts VoiceOptions) error {
	req, ok, err := e.voiceRequest(text, opts)
	if err != nil || !ok {
		return err
	}
	err = e.narration.Speak(req)
	if errors.Is(err, voice.ErrVoiceUnsupported) {
		return nil
	}
	return err
}

// voiceRequest reports false when narration should be skipped
func (e *Engine) voiceRequest(text string, opts VoiceOptions) (voice.Request, bool, error) {
	if _, err := e.ready(); err != nil {
		return voice.Request{}, false, err
	}
	cfg := e.optimizer.OptimizedConfig(e.Config())
	if !e.narration.IsSupported() || cfg.VoiceVolume == 0 {
		return voice.Request{}, false, nil
	}

	return voice.Request{
		Text:     text,
		Lang:     opts.Lang,
		Context:  opts.Context,
		Emphasis: opts.Emphasis,
		Speed:    opts.Speed,
		Scale:    &voice.Params{Rate: cfg.VoiceRate, Pitch: cfg.VoicePitch, Volume: cfg.VoiceVolume},
		OnStart:  opts.OnStart,
		OnEnd:    opts.OnEnd,
		OnError: func(err error) {
			e.log.Warn().Err(err).Msg("narration failed")
			if opts.OnError != nil {
				opts.OnError(err)
			}
		},
	}, true, nil
}

// StopVoice cancels the active utterance
func (e *Engine) StopVoice() {
	e.narration.Stop()
}

// TriggerHaptic plays a library pattern. Unsupported devices skip it.
func (e *Engine) TriggerHaptic(ctx context.Context, patternID string) error {
	if _, err := e.ready(); err != nil {
		return err
	}
	if !e.haptics.IsSupported() {
		return nil
	}
	err := e.haptics.Trigger(ctx, patternID)
	if errors.Is(err, haptic.ErrHapticUnsupported) {
		return nil
	}
	return err
}

// TriggerSuccess plays the medium success pattern
func (e *Engine) TriggerSuccess(ctx context.Context) error {
	return e.TriggerHaptic(ctx, "success-medium")
}

// TriggerError plays the medium error pattern
func (e *Engine) TriggerError(ctx context.Context) error {
	return e.TriggerHaptic(ctx, "error-medium")
}

// TriggerNavigation plays the light navigation pattern
func (e *Engine) TriggerNavigation(ctx context.Context) error {
	return e.TriggerHaptic(ctx, "navigation-light")
}

// Preload decodes ids into the cache. Nil ids preloads the critical
// assets of the catalog.
func (e *Engine) Preload(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = lo.Map(e.cache.Catalog().Critical(), func(a assets.Asset, _ int) string { return a.ID })
	}
	limit := max(e.caps.Cores, 1)
	if err := e.cache.Preload(ctx, ids, limit); err != nil {
		return fmt.Errorf("preload: %w", err)
	}
	e.log.Debug().Int("assets", len(ids)).Msg("preloaded")
	return nil
}
