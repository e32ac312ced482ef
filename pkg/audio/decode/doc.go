// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides Decoder interface and implementations for PCM, WAV, Opus, FLAC, MP3
// Package decode turns complete encoded assets into PCM buffers.
//
// Supports: raw PCM (16-bit and 24-bit), WAV, Ogg/Opus, FLAC, MP3
//
// Every decoder returns samples in the 24-bit range so the mixer works
// on one representation:
//
//	dec, err := decode.New(audio.Format{Codec: decode.CodecForPath(url)})
//	buf, err := dec.Decode(reader)
package decode
