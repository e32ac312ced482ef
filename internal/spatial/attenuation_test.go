// ABOUTME: Tests for distance attenuation and panning
// ABOUTME: Verifies the exact inverse-distance values and stereo placement
package spatial

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestAttenuation(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		ref, max float64
		k        float64
		expected float64
	}{
		{"at reference", 2, 2, 50, 1, 1.0},
		{"inside reference", 0.5, 2, 50, 1, 1.0},
		{"at max", 50, 2, 50, 1, 0.0},
		{"beyond max", 80, 2, 50, 1, 0.0},
		{"midpoint", 26, 2, 50, 1, 2.0 / 26.0},
		{"steeper rolloff", 12, 2, 50, 2, 2.0 / 22.0},
		{"gentle rolloff", 12, 2, 50, 0.5, 2.0 / 7.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Attenuation(tt.distance, tt.ref, tt.max, tt.k))
		})
	}

	assert.InDelta(t, 0.0769, Attenuation(26, 2, 50, 1), 1e-4)
}

func TestPanCentreAndSides(t *testing.T) {
	params := Params{RefDistance: 100, MaxDistance: 200, Rolloff: 1}
	centre := math.Cos(math.Pi / 4)

	l, r := Pan(DefaultListener, mgl64.Vec3{0, 0, 0}, params)
	assert.InDelta(t, centre, l, 1e-9)
	assert.InDelta(t, centre, r, 1e-9)

	l, r = Pan(DefaultListener, mgl64.Vec3{10, 0, 5}, params)
	assert.InDelta(t, 0, l, 1e-9)
	assert.InDelta(t, 1, r, 1e-9)

	l, r = Pan(DefaultListener, mgl64.Vec3{-10, 0, 5}, params)
	assert.InDelta(t, 1, l, 1e-9)
	assert.InDelta(t, 0, r, 1e-9)
}

func TestPanAppliesAttenuation(t *testing.T) {
	params := Params{RefDistance: 2, MaxDistance: 50, Rolloff: 1}
	centre := math.Cos(math.Pi / 4)

	// 26 units straight ahead of the default listener
	l, r := Pan(DefaultListener, mgl64.Vec3{0, 0, -21}, params)
	assert.InDelta(t, centre*2.0/26.0, l, 1e-9)
	assert.InDelta(t, centre*2.0/26.0, r, 1e-9)
}

func TestPanAtListenerPosition(t *testing.T) {
	l, r := Pan(DefaultListener, DefaultListener.Position, DefaultParams)
	assert.InDelta(t, l, r, 1e-9)
	assert.False(t, math.IsNaN(l))
}

func TestParamsWithDefaults(t *testing.T) {
	p := Params{MaxDistance: 30}.withDefaults(DefaultParams)
	assert.Equal(t, Params{RefDistance: 1, MaxDistance: 30, Rolloff: 1}, p)
}
