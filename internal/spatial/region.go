// ABOUTME: Helpers for sounds anchored to the 3D brain model
// ABOUTME: Region positions are scaled from model space into audio space
package spatial

import (
	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

const regionScale = 2.0

var (
	regionParams  = Params{RefDistance: 2, MaxDistance: 50, Rolloff: 1}
	pathwayParams = Params{RefDistance: 1, MaxDistance: 30, Rolloff: 1}
)

// PlayAtRegion plays buf at a model-space region position
func (e *Engine) PlayAtRegion(buf *audio.Buffer, region mgl64.Vec3, opts Options) (string, error) {
	opts.Params = regionParams
	return e.createAndPlay(buf, region.Mul(regionScale), opts)
}

// PlayPathway plays buf halfway between two connected regions
func (e *Engine) PlayPathway(buf *audio.Buffer, from, to mgl64.Vec3, opts Options) (string, error) {
	opts.Params = pathwayParams
	if opts.Volume == nil {
		opts.Volume = lo.ToPtr(0.5)
	}
	mid := from.Add(to).Mul(0.5)
	return e.createAndPlay(buf, mid, opts)
}

func (e *Engine) createAndPlay(buf *audio.Buffer, pos mgl64.Vec3, opts Options) (string, error) {
	id, err := e.CreateSpatialSound(buf, pos, opts)
	if err != nil {
		return "", err
	}
	if err := e.Play(id); err != nil {
		return "", err
	}
	return id, nil
}
