// ABOUTME: WAV audio decoder
// ABOUTME: Parses RIFF/WAVE containers holding integer PCM
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
)

const wavFormatPCM = 1

// WAVDecoder decodes RIFF/WAVE files
type WAVDecoder struct{}

// NewWAV creates a new WAV decoder
func NewWAV(format audio.Format) (Decoder, error) {
	if format.Codec != "wav" {
		return nil, fmt.Errorf("invalid codec for WAV decoder: %s", format.Codec)
	}
	return &WAVDecoder{}, nil
}

type wavFmt struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Decode parses the RIFF chunks and converts the data chunk
func (d *WAVDecoder) Decode(r io.Reader) (*audio.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		header  *wavFmt
		payload []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}

		switch id {
		case "fmt ":
			var h wavFmt
			if err := binary.Read(bytes.NewReader(data[body:end]), binary.LittleEndian, &h); err != nil {
				return nil, fmt.Errorf("parse fmt chunk: %w", err)
			}
			header = &h
		case "data":
			payload = data[body:end]
		}

		// Chunks are word aligned
		pos = body + size + size%2
	}

	if header == nil {
		return nil, fmt.Errorf("wav missing fmt chunk")
	}
	if payload == nil {
		return nil, fmt.Errorf("wav missing data chunk")
	}
	if header.AudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("unsupported wav encoding: %d", header.AudioFormat)
	}
	if header.BitsPerSample != 16 && header.BitsPerSample != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", header.BitsPerSample)
	}

	return &audio.Buffer{
		Samples: pcmSamples(payload, int(header.BitsPerSample)),
		Format: audio.Format{
			Codec:      "wav",
			SampleRate: int(header.SampleRate),
			Channels:   int(header.Channels),
			BitDepth:   int(header.BitsPerSample),
		},
	}, nil
}
