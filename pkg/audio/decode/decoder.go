// ABOUTME: Decoder interface definition
// ABOUTME: Whole-asset decoders selected by codec name or file extension
package decode

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
)

// ErrUnsupportedCodec is returned when no decoder handles a codec
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Decoder decodes a complete encoded asset into a PCM buffer
type Decoder interface {
	Decode(r io.Reader) (*audio.Buffer, error)
}

// New returns the decoder for format.Codec
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "mp3":
		return NewMP3(format)
	case "flac":
		return NewFLAC(format)
	case "opus":
		return NewOpus(format)
	case "wav":
		return NewWAV(format)
	case "pcm":
		return NewPCM(format)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, format.Codec)
}

// CodecForPath maps a file name or URL path to a codec name
func CodecForPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mp3":
		return "mp3"
	case ".flac":
		return "flac"
	case ".opus", ".ogg":
		return "opus"
	case ".wav", ".wave":
		return "wav"
	case ".pcm", ".raw":
		return "pcm"
	}
	return ""
}
