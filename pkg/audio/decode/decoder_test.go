// ABOUTME: Tests for decoder selection
// ABOUTME: Tests codec dispatch, extension mapping and invalid codec errors
package decode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
)

func TestCodecForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/audio/sfx/success-chime.mp3", "mp3"},
		{"https://cdn.example.com/a/brain-ambient.MP3?v=2", "mp3"},
		{"tones/click.wav", "wav"},
		{"music/calm.flac", "flac"},
		{"voice/intro.opus", "opus"},
		{"voice/intro.ogg", "opus"},
		{"raw/beep.pcm", "pcm"},
		{"readme.txt", ""},
		{"noext", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := CodecForPath(tt.path); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNewDispatch(t *testing.T) {
	tests := []struct {
		format audio.Format
		check  func(Decoder) bool
	}{
		{audio.Format{Codec: "mp3"}, func(d Decoder) bool { _, ok := d.(*MP3Decoder); return ok }},
		{audio.Format{Codec: "flac"}, func(d Decoder) bool { _, ok := d.(*FLACDecoder); return ok }},
		{audio.Format{Codec: "opus"}, func(d Decoder) bool { _, ok := d.(*OpusDecoder); return ok }},
		{audio.Format{Codec: "wav"}, func(d Decoder) bool { _, ok := d.(*WAVDecoder); return ok }},
		{audio.Format{Codec: "pcm", BitDepth: 16, Channels: 1, SampleRate: 8000}, func(d Decoder) bool { _, ok := d.(*PCMDecoder); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.format.Codec, func(t *testing.T) {
			dec, err := New(tt.format)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(dec) {
				t.Errorf("wrong decoder type %T", dec)
			}
		})
	}
}

func TestNewUnsupported(t *testing.T) {
	dec, err := New(audio.Format{Codec: "aac"})
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
	if dec != nil {
		t.Fatal("expected nil decoder")
	}
}

func TestInvalidCodecErrors(t *testing.T) {
	tests := []struct {
		name     string
		ctor     func(audio.Format) (Decoder, error)
		expected string
	}{
		{"mp3", NewMP3, "invalid codec for MP3 decoder: opus"},
		{"flac", NewFLAC, "invalid codec for FLAC decoder: opus"},
		{"wav", NewWAV, "invalid codec for WAV decoder: opus"},
		{"pcm", NewPCM, "invalid codec for PCM decoder: opus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := tt.ctor(audio.Format{Codec: "opus"})
			if err == nil {
				t.Fatal("expected error for invalid codec, got nil")
			}
			if dec != nil {
				t.Fatal("expected decoder to be nil for invalid codec")
			}
			if err.Error() != tt.expected {
				t.Errorf("expected error %q, got %q", tt.expected, err.Error())
			}
		})
	}
}

func TestNewOpusChannels(t *testing.T) {
	dec, err := NewOpus(audio.Format{Codec: "opus"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.(*OpusDecoder).channels != 2 {
		t.Errorf("expected default of 2 channels, got %d", dec.(*OpusDecoder).channels)
	}

	_, err = NewOpus(audio.Format{Codec: "opus", Channels: 6})
	if err == nil {
		t.Fatal("expected error for 6 channels")
	}
	expected := "unsupported channel count for Opus decoder: 6"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestFLACDecode_EmptyInput(t *testing.T) {
	dec, err := NewFLAC(audio.Format{Codec: "flac"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := dec.Decode(bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error decoding empty input")
	}
}
