// ABOUTME: Tests for the resource optimizer
// ABOUTME: Covers profile derivation, battery hysteresis and battery sources
package optimizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/capability"
	"github.com/Resonate-Protocol/resonate-feedback/internal/clock"
	"github.com/Resonate-Protocol/resonate-feedback/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSuspender struct {
	suspends int
	resumes  int
}

func (f *fakeSuspender) Suspend() { f.suspends++ }
func (f *fakeSuspender) Resume()  { f.resumes++ }

func desktop(cores int) capability.Capabilities {
	return capability.Capabilities{
		FormFactor: capability.Desktop,
		Cores:      cores,
		MemoryGB:   8,
		Audio:      true,
		Connection: capability.Connection{DownlinkMbps: 10, EffectiveType: "4g"},
	}
}

func phone() capability.Capabilities {
	return capability.Capabilities{
		FormFactor: capability.Mobile,
		OS:         capability.OSAndroid,
		Cores:      8,
		MemoryGB:   4,
		Vibration:  true,
		Connection: capability.Connection{DownlinkMbps: 10},
	}
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierFast, TierFor(5))
	assert.Equal(t, TierMedium, TierFor(4.9))
	assert.Equal(t, TierMedium, TierFor(1))
	assert.Equal(t, TierSlow, TierFor(0.99))
}

func TestBaseProfile(t *testing.T) {
	p := BaseProfile(desktop(8))
	assert.Equal(t, Profile{
		MaxBitrate:          320000,
		PreloadCritical:     true,
		CacheSizeMB:         200,
		BufferSize:          512,
		MaxConcurrentSounds: 16,
		SpatialAudio:        true,
	}, p)

	assert.Equal(t, 12, BaseProfile(desktop(2)).MaxConcurrentSounds)
	assert.True(t, BaseProfile(desktop(1)).SimplifyGraph)

	mobile := BaseProfile(phone())
	assert.Equal(t, 128000, mobile.MaxBitrate)
	assert.Equal(t, 8, mobile.MaxConcurrentSounds)
	assert.True(t, mobile.SpatialAudio)
	assert.True(t, mobile.StreamNonCritical)
	assert.False(t, mobile.PreloadCritical)

	weak := phone()
	weak.Cores = 2
	assert.False(t, BaseProfile(weak).SpatialAudio)
}

func TestBatteryHysteresis(t *testing.T) {
	sus := &fakeSuspender{}
	o := New(Config{Capabilities: desktop(8), Suspender: sus})

	o.UpdateBattery(0.15)
	assert.Equal(t, 1, sus.suspends)
	assert.True(t, o.State().LowBattery)
	assert.Equal(t, 4, o.Profile().MaxConcurrentSounds)
	assert.False(t, o.Profile().SpatialAudio)

	o.UpdateBattery(0.22)
	assert.Equal(t, 0, sus.resumes)
	assert.True(t, o.State().LowBattery)
	assert.Equal(t, 4, o.Profile().MaxConcurrentSounds)

	o.UpdateBattery(0.25)
	assert.Equal(t, 1, sus.resumes)
	assert.False(t, o.State().LowBattery)
	assert.Equal(t, 16, o.Profile().MaxConcurrentSounds)
	assert.True(t, o.Profile().SpatialAudio)
}

func TestRepeatedSamplesAreIdempotent(t *testing.T) {
	sus := &fakeSuspender{}
	o := New(Config{Capabilities: desktop(8), Suspender: sus})

	o.UpdateBattery(0.1)
	first := o.State()
	o.UpdateBattery(0.1)
	o.UpdateBattery(0.2)

	assert.Equal(t, 1, sus.suspends)
	assert.Equal(t, first.Profile, o.Profile())
}

func TestSlowNetwork(t *testing.T) {
	o := New(Config{Capabilities: desktop(8)})

	o.UpdateNetwork(0.5, "2g")
	s := o.State()
	assert.Equal(t, TierSlow, s.Tier)
	assert.Equal(t, "2g", s.EffectiveType)
	assert.Equal(t, 64000, s.Profile.MaxBitrate)
	assert.False(t, s.Profile.PreloadCritical)
	assert.Contains(t, s.ActiveOptimizations, "network_optimization")

	o.UpdateNetwork(2, "")
	s = o.State()
	assert.Equal(t, TierMedium, s.Tier)
	assert.Equal(t, "2g", s.EffectiveType)
	assert.Equal(t, 320000, s.Profile.MaxBitrate)
	assert.True(t, s.Profile.PreloadCritical)
}

func TestSubscribersSeeFullState(t *testing.T) {
	o := New(Config{Capabilities: desktop(8)})
	var got []State
	unsubscribe := o.Subscribe(func(s State) { got = append(got, s) })

	o.UpdateBattery(0.1)
	o.UpdateNetwork(0.2, "")
	require.Len(t, got, 2)
	assert.True(t, got[1].LowBattery)
	assert.Equal(t, TierSlow, got[1].Tier)
	assert.Equal(t, []string{"battery_optimization", "network_optimization"}, got[1].ActiveOptimizations)

	unsubscribe()
	o.UpdateBattery(0.9)
	assert.Len(t, got, 2)
}

func TestOptimizedConfig(t *testing.T) {
	caps := phone()
	caps.Vibration = false
	o := New(Config{Capabilities: caps})
	base := config.Default()

	out := o.OptimizedConfig(base)
	assert.Equal(t, 8, out.MaxConcurrentSounds)
	assert.False(t, out.HapticEnabled)
	assert.Equal(t, 0.0, out.VoiceVolume)
	assert.Equal(t, base.MasterVolume, out.MasterVolume)

	o.UpdateBattery(0.1)
	o.UpdateNetwork(0.3, "")
	out = o.OptimizedConfig(base)
	assert.Equal(t, 4, out.MaxConcurrentSounds)
	assert.InDelta(t, 0.56, out.MasterVolume, 1e-9)
	assert.False(t, out.EnableSpatialAudio)
	assert.Equal(t, config.QualityLow, out.Quality)

	// base untouched
	assert.Equal(t, 0.8, base.MasterVolume)
}

func TestMemoryEstimates(t *testing.T) {
	assert.Equal(t, 50.0+30.0+60.0, EstimateMemoryUsageMB(10, 3))

	o := New(Config{Capabilities: capability.Capabilities{MemoryGB: 1}})
	// limit is 307.2 MB
	assert.False(t, o.IsMemoryUsageHigh(10, 3))
	assert.True(t, o.IsMemoryUsageHigh(100, 3))
	assert.True(t, o.NeedsAggressiveOptimization())
	assert.False(t, New(Config{Capabilities: desktop(8)}).NeedsAggressiveOptimization())
}

func TestRecommendations(t *testing.T) {
	o := New(Config{Capabilities: desktop(8)})
	assert.Equal(t, []string{
		"Haptyka nieobsługiwana - wyłączono wibracje",
		"Synteza mowy nieobsługiwana - ograniczono funkcje głosowe",
	}, o.Recommendations())

	o.UpdateBattery(0.05)
	assert.Contains(t, o.Recommendations(), "Niski poziom baterii - zmniejszono jakość audio")
}

func TestParseCapacity(t *testing.T) {
	v, err := parseCapacity("87\n")
	require.NoError(t, err)
	assert.Equal(t, 0.87, v)

	_, err = parseCapacity("abc")
	assert.Error(t, err)
	_, err = parseCapacity("120")
	assert.Error(t, err)
}

func TestSysfsBattery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capacity")
	require.NoError(t, os.WriteFile(path, []byte("15\n"), 0o644))

	v, err := SysfsBattery{Path: path}.Level(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.15, v)

	_, err = SysfsBattery{Path: filepath.Join(dir, "missing")}.Level(context.Background())
	assert.ErrorIs(t, err, ErrNoBattery)
}

func TestWatchBattery(t *testing.T) {
	sus := &fakeSuspender{}
	o := New(Config{Capabilities: desktop(8), Suspender: sus})
	clk := clock.NewFake(time.Unix(0, 0))
	src := &ManualBattery{}
	src.Set(0.5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.WatchBattery(ctx, src, clk, time.Minute)
	assert.Equal(t, 0.5, o.State().BatteryLevel)

	src.Set(0.1)
	clk.Advance(time.Minute)
	assert.Equal(t, 1, sus.suspends)
	assert.Equal(t, 1, clk.Pending())
}

type failingSource struct{ err error }

func (f failingSource) Level(context.Context) (float64, error) { return 0, f.err }

func TestWatchBatteryStopsWithoutBattery(t *testing.T) {
	o := New(Config{Capabilities: desktop(8)})
	clk := clock.NewFake(time.Unix(0, 0))

	o.WatchBattery(context.Background(), failingSource{err: ErrNoBattery}, clk, time.Minute)
	assert.Equal(t, 0, clk.Pending())

	o.WatchBattery(context.Background(), failingSource{err: errors.New("io")}, clk, time.Minute)
	assert.Equal(t, 1, clk.Pending())
}
