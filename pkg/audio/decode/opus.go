// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Ogg/Opus assets through libopusfile
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// Opus always decodes at 48kHz
const opusSampleRate = 48000

// OpusDecoder decodes Ogg/Opus audio. The channel count comes from the
// asset metadata because the stream reader does not expose it.
type OpusDecoder struct {
	channels int
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	channels := format.Channels
	if channels == 0 {
		channels = 2
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported channel count for Opus decoder: %d", channels)
	}

	return &OpusDecoder{channels: channels}, nil
}

// Decode reads the whole Ogg stream
func (d *OpusDecoder) Decode(r io.Reader) (*audio.Buffer, error) {
	stream, err := opus.NewStream(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus stream: %w", err)
	}
	defer stream.Close()

	// 120ms at 48kHz is the largest Opus frame
	pcm16 := make([]int16, 5760*d.channels)
	var samples []int32

	for {
		n, err := stream.Read(pcm16)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("opus decode failed: %w", err)
		}

		for i := 0; i < n*d.channels; i++ {
			samples = append(samples, audio.SampleFromInt16(pcm16[i]))
		}
	}

	return &audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			Codec:      "opus",
			SampleRate: opusSampleRate,
			Channels:   d.channels,
			BitDepth:   16,
		},
	}, nil
}
