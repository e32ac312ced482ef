// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes a complete FLAC asset frame by frame with mewkiz/flac
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC audio
type FLACDecoder struct{}

// NewFLAC creates a new FLAC decoder
func NewFLAC(format audio.Format) (Decoder, error) {
	if format.Codec != "flac" {
		return nil, fmt.Errorf("invalid codec for FLAC decoder: %s", format.Codec)
	}
	return &FLACDecoder{}, nil
}

// Decode parses every frame and interleaves the subframes
func (d *FLACDecoder) Decode(r io.Reader) (*audio.Buffer, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open flac stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)

	samples := make([]int32, 0, int(info.NSamples)*channels)
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac frame decode failed: %w", err)
		}

		blockSize := len(frame.Subframes[0].Samples)
		for i := 0; i < blockSize; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, audio.SampleFromDepth(frame.Subframes[ch].Samples[i], bitDepth))
			}
		}
	}

	return &audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			Codec:      "flac",
			SampleRate: int(info.SampleRate),
			Channels:   channels,
			BitDepth:   bitDepth,
		},
	}, nil
}
