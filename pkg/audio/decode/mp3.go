// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes a complete MP3 asset to a stereo 16-bit buffer
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MP3 audio. go-mp3 always produces 16-bit stereo.
type MP3Decoder struct{}

// NewMP3 creates a new MP3 decoder
func NewMP3(format audio.Format) (Decoder, error) {
	if format.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", format.Codec)
	}
	return &MP3Decoder{}, nil
}

// Decode reads the whole stream
func (d *MP3Decoder) Decode(r io.Reader) (*audio.Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	numSamples := len(pcm) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	return &audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			Codec:      "mp3",
			SampleRate: dec.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
	}, nil
}
