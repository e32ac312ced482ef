// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Output interface with oto and silent implementations
// Package output provides pull-based audio playback backends.
//
// The device pulls 16-bit little-endian PCM from the reader passed to
// Open; the feedback engine hands it the mixer graph.
//
// Example:
//
//	out := output.NewOto(50 * time.Millisecond)
//	err := out.Open(44100, 2, graph)
//	err = out.Suspend()
package output
