// ABOUTME: Audio resampling package
// ABOUTME: Linear interpolation sample rate conversion for decoded buffers
// Package resample converts decoded buffers to the audio context rate.
//
// Assets arrive at whatever rate they were authored in; the mixer runs at
// a single rate chosen from the quality tier, so the asset cache converts
// each buffer once when it is inserted:
//
//	buf = resample.Buffer(buf, 44100)
package resample
