// ABOUTME: Audio type definitions
// ABOUTME: Defines asset formats, decoded PCM buffers and sample conversions
package audio

import "time"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// FullScale is the divisor that maps a 24-bit sample to [-1, 1)
	FullScale = 8388608.0
)

// Format describes an encoded or decoded audio format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Buffer is a fully decoded asset. Samples are interleaved and
// left-justified in the 24-bit range regardless of the source depth.
// A Buffer is shared read-only once it leaves the decoder.
type Buffer struct {
	Samples []int32
	Format  Format
}

// Frames returns the number of sample frames
func (b *Buffer) Frames() int {
	if b == nil || b.Format.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback length
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// SizeBytes approximates the memory held by the samples
func (b *Buffer) SizeBytes() int {
	if b == nil {
		return 0
	}
	return len(b.Samples) * 4
}

// FrameAt returns the frame index for an offset, clamped to the buffer
func (b *Buffer) FrameAt(offset time.Duration) int {
	if offset <= 0 || b.Format.SampleRate <= 0 {
		return 0
	}
	frame := int(offset.Seconds() * float64(b.Format.SampleRate))
	if frame > b.Frames() {
		return b.Frames()
	}
	return frame
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFromDepth moves a sample of the given bit depth into the 24-bit range
func SampleFromDepth(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	case bitDepth > 24:
		return sample >> (bitDepth - 24)
	}
	return sample
}

// SampleFrom24Bit reads a packed little-endian 24-bit sample as found in WAV data
func SampleFrom24Bit(b [3]byte) int32 {
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if v&0x800000 != 0 {
		v |= ^0xFFFFFF
	}
	return v
}
