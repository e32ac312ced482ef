// ABOUTME: Tests for event parsing and dispatch
// ABOUTME: Covers bindings, listeners and narration events
package feedback

import (
	"context"
	"sync"
	"testing"

	"github.com/Resonate-Protocol/resonate-feedback/internal/config"
	"github.com/Resonate-Protocol/resonate-feedback/internal/voice"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func TestInteractionRequiresTarget(t *testing.T) {
	f := started(t, newFixture(t, config.Default(), desktopCaps()))
	ctx := context.Background()
	seen := &eventLog{}
	f.engine.AddListener(seen.add)

	require.NoError(t, f.engine.EmitEvent(ctx, Interaction{Type: "brain-region-select"}))
	assert.Equal(t, 0, f.engine.Status().ActiveSounds)
	assert.Empty(t, f.vibrator.Calls())

	pos := mgl64.Vec3{1, 2, 0}
	require.NoError(t, f.engine.EmitEvent(ctx, Interaction{
		Type:     "brain-region-select",
		TargetID: "hippocampus",
		Position: &pos,
	}))

	sounds := f.engine.Sounds().ActiveInstances()
	require.Len(t, sounds, 1)
	assert.Equal(t, "brain-region-select", sounds[0].AssetID)
	assert.True(t, sounds[0].Spatial)
	assert.Len(t, f.vibrator.Calls(), 1)
	assert.Equal(t, 2, seen.len())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.engine.metrics.Events.WithLabelValues("brain-region-select")))
}

func TestOutcomeAndQuizBindings(t *testing.T) {
	f := started(t, newFixture(t, config.Default(), desktopCaps()))
	ctx := context.Background()

	require.NoError(t, f.engine.EmitEvent(ctx, QuizAnswer{Correct: true, Explanation: "Dobrze"}))
	require.NoError(t, f.engine.EmitEvent(ctx, Outcome{Success: false}))

	assets := make([]string, 0, 2)
	for _, s := range f.engine.Sounds().ActiveInstances() {
		assets = append(assets, s.AssetID)
	}
	assert.ElementsMatch(t, []string{"success-chime", "error-boop"}, assets)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.engine.metrics.HapticDispatches.WithLabelValues("success-medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.engine.metrics.HapticDispatches.WithLabelValues("error-medium")))
}

func TestNarrationEvent(t *testing.T) {
	f := started(t, newFixture(t, config.Default(), desktopCaps()))

	require.NoError(t, f.engine.EmitEvent(context.Background(), Narration{
		Text:     "Hipokamp odpowiada za pamięć",
		Context:  voice.ContextEducational,
		Emphasis: voice.EmphasisGentle,
	}))
	f.engine.narration.Wait()

	spoken := f.synth.utterances()
	require.Len(t, spoken, 1)
	assert.Equal(t, "Hipokamp odpowiada za pamięć", spoken[0].Text)
	assert.InDelta(t, 1.1, spoken[0].Params.Rate, 1e-9)
	assert.InDelta(t, 0.9, spoken[0].Params.Pitch, 1e-9)
}

func TestCustomBindings(t *testing.T) {
	cfg := config.Default()
	cfg.Bindings["tutorial-step"] = config.Binding{Sound: "navigation-click", Narrate: true}
	delete(cfg.Bindings, "navigation")
	f := started(t, newFixture(t, cfg, desktopCaps()))
	ctx := context.Background()

	require.NoError(t, f.engine.EmitEvent(ctx, Navigation{Instruction: "dalej"}))
	assert.Equal(t, 0, f.engine.Status().ActiveSounds)

	require.NoError(t, f.engine.EmitEvent(ctx, Interaction{Type: "tutorial-step", TargetID: "x"}))
	assert.Equal(t, 1, f.engine.Status().ActiveSounds)
}

func TestUnboundEventNotifiesListeners(t *testing.T) {
	f := started(t, newFixture(t, config.Default(), desktopCaps()))
	seen := &eventLog{}
	remove := f.engine.AddListener(seen.add)

	require.NoError(t, f.engine.EmitEvent(context.Background(), Interaction{Type: "camera-orbit"}))
	assert.Equal(t, 1, seen.len())

	remove()
	require.NoError(t, f.engine.EmitEvent(context.Background(), Interaction{Type: "camera-orbit"}))
	assert.Equal(t, 1, seen.len())
}

func TestEmitBeforeInitialize(t *testing.T) {
	f := newFixture(t, config.Default(), desktopCaps())
	assert.ErrorIs(t, f.engine.EmitEvent(context.Background(), Navigation{}), ErrNotInitialized)
}

func TestParseEvent(t *testing.T) {
	pos := mgl64.Vec3{1, 0, -2}
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{"interaction", `{"type":"brain-region-select","target_id":"amygdala","position":[1,0,-2]}`,
			Interaction{Type: "brain-region-select", TargetID: "amygdala", Position: &pos}},
		{"success", `{"type":"success","data":{"message":"Zapisano"}}`, Outcome{Success: true, Message: "Zapisano"}},
		{"error", `{"type":"error"}`, Outcome{}},
		{"quiz", `{"type":"quiz-incorrect","data":{"explanation":"Nie"}}`, QuizAnswer{Explanation: "Nie"}},
		{"navigation", `{"type":"navigation","data":{"instruction":"w lewo"}}`, Navigation{Instruction: "w lewo"}},
		{"narrate", `{"type":"narrate","data":{"text":"Dopamina","context":"educational","speed":"slow"}}`,
			Narration{Text: "Dopamina", Context: voice.ContextEducational, Speed: voice.SpeedSlow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEventErrors(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"target_id":"x"}`,
		`{"type":"narrate"}`,
		`{"type":"success","data":"oops"}`,
	} {
		_, err := ParseEvent([]byte(raw))
		assert.Error(t, err, raw)
	}
}
