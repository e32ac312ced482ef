// ABOUTME: High-level multi-modal feedback API
// ABOUTME: One Engine owns audio, haptics, narration and adaptation
// Package feedback is the entry point for hosts that want audio, haptic
// and spoken feedback from a single object.
//
// An Engine owns:
//   - the audio context and spatial sound registry
//   - the haptic pattern library
//   - the narration queue
//   - the resource optimizer reacting to battery and network samples
//
// Example:
//
//	engine, err := feedback.New(feedback.Options{Config: config.Default()})
//	err = engine.Initialize(ctx)
//	defer engine.Shutdown()
//
//	id, err := engine.PlaySFX(ctx, "success-chime", feedback.PlayOptions{})
//	err = engine.EmitEvent(ctx, feedback.Interaction{Type: "navigation"})
package feedback
