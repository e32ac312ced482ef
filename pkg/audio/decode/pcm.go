// ABOUTME: PCM audio decoder
// ABOUTME: Decodes raw 16-bit and 24-bit little-endian PCM into a buffer
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
)

// PCMDecoder decodes headerless PCM. The format must be supplied.
type PCMDecoder struct {
	format audio.Format
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	if format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("PCM decoder needs channels and sample rate, got %d/%d", format.Channels, format.SampleRate)
	}

	return &PCMDecoder{format: format}, nil
}

// Decode reads all of r as PCM samples
func (d *PCMDecoder) Decode(r io.Reader) (*audio.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}

	return &audio.Buffer{
		Samples: pcmSamples(data, d.format.BitDepth),
		Format:  d.format,
	}, nil
}

// pcmSamples converts little-endian PCM bytes to 24-bit range samples.
// Trailing partial samples are dropped.
func pcmSamples(data []byte, bitDepth int) []int32 {
	if bitDepth == 24 {
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
		return samples
	}

	numSamples := len(data) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples
}
