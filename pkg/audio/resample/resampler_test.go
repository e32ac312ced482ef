// ABOUTME: Tests for the linear resampler
// ABOUTME: Tests frame counts, interpolation and buffer conversion
package resample

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
)

func TestResampleUpsampleInterpolates(t *testing.T) {
	r := New(1, 2, 1)
	input := []int32{0, 100, 200}
	output := make([]int32, r.OutputSamplesNeeded(len(input)))

	n := r.Resample(input, output)
	if n != 6 {
		t.Fatalf("expected 6 samples, got %d", n)
	}

	expected := []int32{0, 50, 100, 150, 200, 200}
	for i, want := range expected {
		if output[i] != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, output[i])
		}
	}
}

func TestResampleDownsampleStereo(t *testing.T) {
	r := New(4, 2, 2)
	input := []int32{1, -1, 2, -2, 3, -3, 4, -4}
	output := make([]int32, r.OutputSamplesNeeded(len(input)))

	n := r.Resample(input, output)
	if n != 4 {
		t.Fatalf("expected 4 samples, got %d", n)
	}
	if output[0] != 1 || output[1] != -1 || output[2] != 3 || output[3] != -3 {
		t.Errorf("unexpected output %v", output[:n])
	}
}

func TestResampleEmptyInput(t *testing.T) {
	r := New(48000, 44100, 2)
	if n := r.Resample(nil, make([]int32, 10)); n != 0 {
		t.Errorf("expected 0 samples, got %d", n)
	}
}

func TestBufferConversion(t *testing.T) {
	buf := &audio.Buffer{
		Samples: make([]int32, 48000*2),
		Format:  audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16},
	}

	out := Buffer(buf, 24000)
	if out.Format.SampleRate != 24000 {
		t.Errorf("expected rate 24000, got %d", out.Format.SampleRate)
	}
	if out.Frames() != 24000 {
		t.Errorf("expected 24000 frames, got %d", out.Frames())
	}
	if out.Format.Codec != "pcm" || out.Format.Channels != 2 {
		t.Errorf("format not preserved: %+v", out.Format)
	}

	if Buffer(buf, 48000) != buf {
		t.Error("same-rate conversion should return the original buffer")
	}
}
