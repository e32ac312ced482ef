// ABOUTME: Viper-backed loading of Config from YAML files and environment
// ABOUTME: Watch re-reads the file on change and hands over validated configs
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FEEDBACK_MASTER_VOLUME
const EnvPrefix = "FEEDBACK"

// Loader reads a Config through a dedicated viper instance
type Loader struct {
	v   *viper.Viper
	log zerolog.Logger
}

// NewLoader creates a loader. An empty path searches ./feedback.yaml and
// $HOME/.config/feedback/feedback.yaml.
func NewLoader(path string, logger zerolog.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("feedback")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/feedback")
	}

	return &Loader{v: v, log: logger.With().Str("component", "config").Logger()}
}

// Viper exposes the underlying instance for flag binding
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads the config file if present, applies overrides and validates
func (l *Loader) Load() (Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Watch calls fn with every valid config written to the file. Invalid
// edits are logged and skipped.
func (l *Loader) Watch(fn func(Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.log.Warn().Err(err).Str("file", e.Name).Msg("ignoring config change")
			return
		}
		l.log.Info().Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()
}

// ConfigFile returns the file in use, or empty when running on defaults
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load reads path with a throwaway loader
func Load(path string) (Config, error) {
	return NewLoader(path, zerolog.Nop()).Load()
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("master_volume", d.MasterVolume)
	v.SetDefault("sfx_volume", d.SFXVolume)
	v.SetDefault("music_volume", d.MusicVolume)
	v.SetDefault("voice_volume", d.VoiceVolume)
	v.SetDefault("ambient_volume", d.AmbientVolume)
	v.SetDefault("enable_spatial_audio", d.EnableSpatialAudio)
	v.SetDefault("max_distance", d.MaxDistance)
	v.SetDefault("ref_distance", d.RefDistance)
	v.SetDefault("rolloff_factor", d.RolloffFactor)
	v.SetDefault("quality", string(d.Quality))
	v.SetDefault("enable_audio_cache", d.EnableAudioCache)
	v.SetDefault("max_concurrent_sounds", d.MaxConcurrentSounds)
	v.SetDefault("voice_language", d.VoiceLanguage)
	v.SetDefault("voice_rate", d.VoiceRate)
	v.SetDefault("voice_pitch", d.VoicePitch)
	v.SetDefault("voice_gender", d.VoiceGender)
	v.SetDefault("speech_command", d.SpeechCommand)
	v.SetDefault("haptic_enabled", d.HapticEnabled)
	v.SetDefault("haptic_intensity", d.HapticIntensity)
	v.SetDefault("scale_haptics", d.ScaleHaptics)
	v.SetDefault("battery.threshold", d.Battery.Threshold)
	v.SetDefault("battery.hysteresis", d.Battery.Hysteresis)
	v.SetDefault("battery.poll", d.Battery.Poll)
	v.SetDefault("battery.poll_interval", d.Battery.PollInterval)
	v.SetDefault("battery.sysfs_path", d.Battery.SysfsPath)
	v.SetDefault("cleanup_interval", d.CleanupInterval)
	v.SetDefault("assets.catalog", d.Assets.Catalog)
	v.SetDefault("assets.base_dir", d.Assets.BaseDir)
	v.SetDefault("assets.base_url", d.Assets.BaseURL)
	v.SetDefault("assets.cache_entries", d.Assets.CacheEntries)
	v.SetDefault("output.backend", d.Output.Backend)
	v.SetDefault("output.buffer_size", d.Output.BufferSize)
	v.SetDefault("bridge.addr", d.Bridge.Addr)
	v.SetDefault("bridge.name", d.Bridge.Name)
	v.SetDefault("bridge.advertise", d.Bridge.Advertise)
	v.SetDefault("log_level", d.LogLevel)

	bindings := make(map[string]any, len(d.Bindings))
	for kind, b := range d.Bindings {
		bindings[kind] = map[string]any{
			"sound":          b.Sound,
			"haptic":         b.Haptic,
			"narrate":        b.Narrate,
			"require_target": b.RequireTarget,
		}
	}
	v.SetDefault("bindings", bindings)
}
