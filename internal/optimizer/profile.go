// ABOUTME: Pure derivation of resource limits from device, battery and network
// ABOUTME: Recomputing with identical inputs always yields the same profile
package optimizer

import (
	"github.com/Resonate-Protocol/resonate-feedback/internal/capability"
)

// Tier buckets network downlink
type Tier string

const (
	TierFast   Tier = "fast"
	TierMedium Tier = "medium"
	TierSlow   Tier = "slow"
)

// TierFor classifies a downlink in Mbps
func TierFor(downlinkMbps float64) Tier {
	switch {
	case downlinkMbps >= 5:
		return TierFast
	case downlinkMbps >= 1:
		return TierMedium
	}
	return TierSlow
}

const (
	slowBitrate           = 64000
	lowBatteryConcurrency = 4
)

// Profile is the set of limits the engine runs under
type Profile struct {
	MaxBitrate          int  `json:"max_bitrate"`
	PreloadCritical     bool `json:"preload_critical"`
	StreamNonCritical   bool `json:"stream_non_critical"`
	CacheSizeMB         int  `json:"cache_size_mb"`
	BufferSize          int  `json:"buffer_size"`
	MaxConcurrentSounds int  `json:"max_concurrent_sounds"`
	SpatialAudio        bool `json:"spatial_audio"`
	SimplifyGraph       bool `json:"simplify_graph"`
}

// BaseProfile is the device-only profile with no battery or network pressure
func BaseProfile(caps capability.Capabilities) Profile {
	mobile := caps.IsMobile()
	p := Profile{
		MaxBitrate:          320000,
		PreloadCritical:     !mobile,
		StreamNonCritical:   mobile,
		CacheSizeMB:         200,
		BufferSize:          512,
		MaxConcurrentSounds: 16,
		SpatialAudio:        !mobile || caps.Cores >= 4,
		SimplifyGraph:       caps.Cores < 2,
	}
	if mobile {
		p.MaxBitrate = 128000
		p.CacheSizeMB = 50
		p.BufferSize = 256
	}
	switch {
	case mobile:
		p.MaxConcurrentSounds = 8
	case caps.Cores < 4:
		p.MaxConcurrentSounds = 12
	}
	return p
}

// Derive applies battery and network degradation to the base profile
func Derive(caps capability.Capabilities, lowBattery bool, tier Tier) Profile {
	p := BaseProfile(caps)
	if lowBattery {
		p.MaxConcurrentSounds = lowBatteryConcurrency
		p.SpatialAudio = false
	}
	if tier == TierSlow {
		p.MaxBitrate = slowBitrate
		p.PreloadCritical = false
		p.StreamNonCritical = true
	}
	return p
}

// EstimateMemoryUsageMB estimates the footprint of n assets of avgMB each.
// Decoded buffers count twice the encoded size on top of a fixed base.
func EstimateMemoryUsageMB(n int, avgMB float64) float64 {
	assets := float64(n) * avgMB
	return 50 + assets + 2*assets
}
