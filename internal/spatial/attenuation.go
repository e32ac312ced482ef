// ABOUTME: Distance attenuation and stereo panning math
// ABOUTME: Inverse-distance model clamped at the reference and maximum distances
package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Params are the distance model parameters of one sound
type Params struct {
	RefDistance float64
	MaxDistance float64
	Rolloff     float64
}

// DefaultParams matches the engine's configured defaults
var DefaultParams = Params{RefDistance: 1, MaxDistance: 100, Rolloff: 1}

func (p Params) withDefaults(d Params) Params {
	if p.RefDistance <= 0 {
		p.RefDistance = d.RefDistance
	}
	if p.MaxDistance <= 0 {
		p.MaxDistance = d.MaxDistance
	}
	if p.Rolloff <= 0 {
		p.Rolloff = d.Rolloff
	}
	return p
}

// Attenuation maps listener distance to gain:
//
//	distance <= ref: 1
//	distance >= max: 0
//	otherwise:       ref / (ref + k*(distance-ref))
func Attenuation(distance, ref, max, k float64) float64 {
	if distance <= ref {
		return 1.0
	}
	if distance >= max {
		return 0.0
	}
	return ref / (ref + k*(distance-ref))
}

// Listener is the pose every positioned sound is heard from
type Listener struct {
	Position mgl64.Vec3
	Forward  mgl64.Vec3
	Up       mgl64.Vec3
}

// DefaultListener sits in front of the origin looking down -Z
var DefaultListener = Listener{
	Position: mgl64.Vec3{0, 0, 5},
	Forward:  mgl64.Vec3{0, 0, -1},
	Up:       mgl64.Vec3{0, 1, 0},
}

// Pan returns the equal-power left/right gains for a source at pos,
// including distance attenuation.
func Pan(l Listener, pos mgl64.Vec3, p Params) (left, right float64) {
	rel := pos.Sub(l.Position)
	distance := rel.Len()
	gain := Attenuation(distance, p.RefDistance, p.MaxDistance, p.Rolloff)

	pan := 0.0
	if distance > 1e-9 {
		rightAxis := l.Forward.Cross(l.Up)
		if rightAxis.Len() > 1e-9 {
			pan = rel.Dot(rightAxis.Normalize()) / distance
		}
	}
	pan = math.Max(-1, math.Min(1, pan))

	angle := (pan + 1) * math.Pi / 4
	return math.Cos(angle) * gain, math.Sin(angle) * gain
}
