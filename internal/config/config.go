// ABOUTME: Engine configuration with defaults, validation and viper loading
// ABOUTME: Supports YAML files, FEEDBACK_ environment overrides and live reload
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Quality selects the audio context sample rate
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// SampleRate maps a quality level to a context sample rate
func (q Quality) SampleRate() int {
	switch q {
	case QualityLow:
		return 22050
	case QualityMedium:
		return 32000
	case QualityUltra:
		return 48000
	}
	return 44100
}

func (q Quality) valid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return true
	}
	return false
}

// Binding maps an event kind to feedback
type Binding struct {
	Sound   string `mapstructure:"sound" yaml:"sound"`
	Haptic  string `mapstructure:"haptic" yaml:"haptic"`
	Narrate bool   `mapstructure:"narrate" yaml:"narrate"`
	// RequireTarget skips events without a target id
	RequireTarget bool `mapstructure:"require_target" yaml:"require_target"`
}

// BatteryConfig controls low-battery degradation
type BatteryConfig struct {
	Threshold    float64       `mapstructure:"threshold" yaml:"threshold"`
	Hysteresis   float64       `mapstructure:"hysteresis" yaml:"hysteresis"`
	Poll         bool          `mapstructure:"poll" yaml:"poll"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SysfsPath    string        `mapstructure:"sysfs_path" yaml:"sysfs_path"`
}

// AssetsConfig locates the catalog and asset files
type AssetsConfig struct {
	// Catalog is a YAML file; empty uses the embedded catalog
	Catalog      string `mapstructure:"catalog" yaml:"catalog"`
	BaseDir      string `mapstructure:"base_dir" yaml:"base_dir"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	CacheEntries int    `mapstructure:"cache_entries" yaml:"cache_entries"`
}

// OutputConfig selects the audio sink
type OutputConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// BufferSize is the device buffer; zero uses the device profile
	BufferSize time.Duration `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// BridgeConfig controls the host websocket bridge
type BridgeConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Name      string `mapstructure:"name" yaml:"name"`
	Advertise bool   `mapstructure:"advertise" yaml:"advertise"`
}

// Config holds every engine option
type Config struct {
	MasterVolume  float64 `mapstructure:"master_volume" yaml:"master_volume"`
	SFXVolume     float64 `mapstructure:"sfx_volume" yaml:"sfx_volume"`
	MusicVolume   float64 `mapstructure:"music_volume" yaml:"music_volume"`
	VoiceVolume   float64 `mapstructure:"voice_volume" yaml:"voice_volume"`
	AmbientVolume float64 `mapstructure:"ambient_volume" yaml:"ambient_volume"`

	EnableSpatialAudio  bool    `mapstructure:"enable_spatial_audio" yaml:"enable_spatial_audio"`
	MaxDistance         float64 `mapstructure:"max_distance" yaml:"max_distance"`
	RefDistance         float64 `mapstructure:"ref_distance" yaml:"ref_distance"`
	RolloffFactor       float64 `mapstructure:"rolloff_factor" yaml:"rolloff_factor"`
	Quality             Quality `mapstructure:"quality" yaml:"quality"`
	EnableAudioCache    bool    `mapstructure:"enable_audio_cache" yaml:"enable_audio_cache"`
	MaxConcurrentSounds int     `mapstructure:"max_concurrent_sounds" yaml:"max_concurrent_sounds"`

	VoiceLanguage string  `mapstructure:"voice_language" yaml:"voice_language"`
	VoiceRate     float64 `mapstructure:"voice_rate" yaml:"voice_rate"`
	VoicePitch    float64 `mapstructure:"voice_pitch" yaml:"voice_pitch"`
	VoiceGender   string  `mapstructure:"voice_gender" yaml:"voice_gender"`
	// SpeechCommand is the synthesizer binary; empty probes the PATH
	SpeechCommand string `mapstructure:"speech_command" yaml:"speech_command"`

	HapticEnabled   bool    `mapstructure:"haptic_enabled" yaml:"haptic_enabled"`
	HapticIntensity float64 `mapstructure:"haptic_intensity" yaml:"haptic_intensity"`
	// ScaleHaptics applies HapticIntensity on top of pattern and device intensity
	ScaleHaptics bool `mapstructure:"scale_haptics" yaml:"scale_haptics"`

	Battery         BatteryConfig      `mapstructure:"battery" yaml:"battery"`
	CleanupInterval time.Duration      `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	Assets          AssetsConfig       `mapstructure:"assets" yaml:"assets"`
	Output          OutputConfig       `mapstructure:"output" yaml:"output"`
	Bridge          BridgeConfig       `mapstructure:"bridge" yaml:"bridge"`
	Bindings        map[string]Binding `mapstructure:"bindings" yaml:"bindings"`
	LogLevel        string             `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultBindings maps UI event kinds to sounds and patterns
func DefaultBindings() map[string]Binding {
	return map[string]Binding{
		"brain-region-select":       {Sound: "brain-region-select", Haptic: "brain-region-select", RequireTarget: true},
		"brain-region-hover":        {Sound: "brain-region-hover", Haptic: "interaction-hover", RequireTarget: true},
		"neurotransmitter-activate": {Sound: "neurotransmitter-activate", Haptic: "neurotransmitter-activate", RequireTarget: true},
		"supplement-apply":          {Sound: "supplement-apply", Haptic: "supplement-apply", RequireTarget: true},
		"quiz-correct":              {Sound: "success-chime", Haptic: "success-medium"},
		"quiz-incorrect":            {Sound: "error-boop", Haptic: "error-medium"},
		"success":                   {Sound: "success-chime", Haptic: "success-medium"},
		"error":                     {Sound: "error-boop", Haptic: "error-medium"},
		"navigation":                {Sound: "navigation-click", Haptic: "navigation-light"},
		"narrate":                   {Narrate: true},
	}
}

// Default returns the stock configuration
func Default() Config {
	return Config{
		MasterVolume:        0.8,
		SFXVolume:           0.7,
		MusicVolume:         0.5,
		VoiceVolume:         0.8,
		AmbientVolume:       0.4,
		EnableSpatialAudio:  true,
		MaxDistance:         100,
		RefDistance:         1,
		RolloffFactor:       1,
		Quality:             QualityHigh,
		EnableAudioCache:    true,
		MaxConcurrentSounds: 16,
		VoiceLanguage:       "pl-PL",
		VoiceRate:           1,
		VoicePitch:          1,
		VoiceGender:         "neutral",
		HapticEnabled:       true,
		HapticIntensity:     0.7,
		Battery: BatteryConfig{
			Threshold:    0.2,
			Hysteresis:   1.2,
			PollInterval: time.Minute,
			SysfsPath:    "/sys/class/power_supply/BAT0/capacity",
		},
		CleanupInterval: 5 * time.Second,
		Assets: AssetsConfig{
			BaseDir:      ".",
			CacheEntries: 64,
		},
		Output: OutputConfig{
			Backend: "oto",
		},
		Bridge: BridgeConfig{
			Addr: ":8928",
			Name: "feedback-engine",
		},
		Bindings: DefaultBindings(),
		LogLevel: "info",
	}
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", name, v)
	}
	return nil
}

// Validate reports every invalid option at once
func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"master_volume":     c.MasterVolume,
		"sfx_volume":        c.SFXVolume,
		"music_volume":      c.MusicVolume,
		"voice_volume":      c.VoiceVolume,
		"ambient_volume":    c.AmbientVolume,
		"haptic_intensity":  c.HapticIntensity,
		"battery.threshold": c.Battery.Threshold,
	} {
		if err := checkUnit(name, v); err != nil {
			errs = append(errs, err)
		}
	}

	if c.RefDistance <= 0 {
		errs = append(errs, fmt.Errorf("ref_distance must be positive, got %v", c.RefDistance))
	}
	if c.MaxDistance <= c.RefDistance {
		errs = append(errs, fmt.Errorf("max_distance %v must exceed ref_distance %v", c.MaxDistance, c.RefDistance))
	}
	if c.RolloffFactor < 0 {
		errs = append(errs, fmt.Errorf("rolloff_factor must not be negative, got %v", c.RolloffFactor))
	}
	if !c.Quality.valid() {
		errs = append(errs, fmt.Errorf("invalid quality: %q (must be low, medium, high or ultra)", c.Quality))
	}
	if c.MaxConcurrentSounds < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_sounds must be at least 1, got %d", c.MaxConcurrentSounds))
	}
	if c.VoiceRate < 0.1 || c.VoiceRate > 10 {
		errs = append(errs, fmt.Errorf("voice_rate must be within [0.1,10], got %v", c.VoiceRate))
	}
	if c.VoicePitch < 0 || c.VoicePitch > 2 {
		errs = append(errs, fmt.Errorf("voice_pitch must be within [0,2], got %v", c.VoicePitch))
	}
	switch c.VoiceGender {
	case "", "neutral", "male", "female":
	default:
		errs = append(errs, fmt.Errorf("invalid voice_gender: %q", c.VoiceGender))
	}
	if c.Battery.Hysteresis < 1 {
		errs = append(errs, fmt.Errorf("battery.hysteresis must be at least 1, got %v", c.Battery.Hysteresis))
	}
	if c.Battery.Poll && c.Battery.PollInterval <= 0 {
		errs = append(errs, errors.New("battery.poll_interval must be positive when polling"))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("cleanup_interval must be positive, got %v", c.CleanupInterval))
	}
	switch strings.ToLower(c.Output.Backend) {
	case "oto", "null":
	default:
		errs = append(errs, fmt.Errorf("invalid output.backend: %q (must be oto or null)", c.Output.Backend))
	}
	for kind, b := range c.Bindings {
		if b.Sound == "" && b.Haptic == "" && !b.Narrate {
			errs = append(errs, fmt.Errorf("binding %q does nothing", kind))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy
func (c Config) Clone() Config {
	out := c
	out.Bindings = make(map[string]Binding, len(c.Bindings))
	for k, v := range c.Bindings {
		out.Bindings[k] = v
	}
	return out
}
