// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides the PCM types shared by the feedback engine.
//
//   - Format: codec, sample rate, channel count and bit depth of an asset
//   - Buffer: a fully decoded asset, interleaved int32 samples in 24-bit range
//
// Decoders normalise every source depth into the 24-bit range so the
// mixer has a single sample representation:
//
//	buf := &audio.Buffer{Format: audio.Format{SampleRate: 44100, Channels: 2}}
//	buf.Samples = append(buf.Samples, audio.SampleFromInt16(s16))
//	fmt.Println(buf.Duration())
package audio
