// ABOUTME: Linear interpolation resampler for decoded assets
// ABOUTME: Converts buffers to the audio context rate before they are cached
package resample

import "github.com/Resonate-Protocol/resonate-feedback/pkg/audio"

// Resampler performs linear interpolation between sample rates on
// interleaved frames. It keeps its fractional position between calls.
type Resampler struct {
	channels int
	ratio    float64
	position float64
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		channels: channels,
		ratio:    float64(inputRate) / float64(outputRate),
	}
}

// Resample converts input samples to the output rate and returns the
// number of samples written to output
func (r *Resampler) Resample(input []int32, output []int32) int {
	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels
	if inputFrames == 0 {
		return 0
	}

	outIdx := 0
	for outIdx < outputFrames {
		inputIdx := int(r.position)
		if inputIdx >= inputFrames {
			break
		}

		frac := r.position - float64(inputIdx)
		next := inputIdx + 1
		if next >= inputFrames {
			// Hold the final frame instead of reading past the end
			next = inputIdx
		}

		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(input[inputIdx*r.channels+ch])
			s2 := float64(input[next*r.channels+ch])
			output[outIdx*r.channels+ch] = int32(s1*(1.0-frac) + s2*frac)
		}

		outIdx++
		r.position += r.ratio
	}

	// Carry the remainder into the next chunk
	r.position -= float64(inputFrames)
	if r.position < 0 {
		r.position = 0
	}

	return outIdx * r.channels
}

// Reset clears the fractional position
func (r *Resampler) Reset() {
	r.position = 0
}

// OutputSamplesNeeded returns how many output samples input produces
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)/r.ratio + 0.5)
	return outputFrames * r.channels
}

// Buffer returns buf converted to rate. Buffers already at rate are
// returned unchanged.
func Buffer(buf *audio.Buffer, rate int) *audio.Buffer {
	if buf == nil || rate <= 0 || buf.Format.SampleRate == rate || buf.Format.Channels <= 0 {
		return buf
	}

	r := New(buf.Format.SampleRate, rate, buf.Format.Channels)
	out := make([]int32, r.OutputSamplesNeeded(len(buf.Samples)))
	n := r.Resample(buf.Samples, out)

	format := buf.Format
	format.SampleRate = rate
	return &audio.Buffer{Samples: out[:n], Format: format}
}
