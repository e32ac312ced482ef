// ABOUTME: Typed UI events and their dispatch through configured bindings
// ABOUTME: Also decodes the JSON event envelope sent by hosts
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/voice"
	"github.com/go-gl/mathgl/mgl64"
)

// Event is one of Interaction, Outcome, QuizAnswer, Navigation or
// Narration
type Event interface {
	// Kind is the binding key the event dispatches through
	Kind() string
	event()
}

// Interaction is a pointer event on a scene entity, e.g.
// "brain-region-select"
type Interaction struct {
	Type     string
	TargetID string
	Position *mgl64.Vec3
}

// Outcome reports a generic success or failure
type Outcome struct {
	Success bool
	Message string
}

// QuizAnswer reports a graded answer. A non-empty explanation is narrated.
type QuizAnswer struct {
	Correct     bool
	Explanation string
}

// Navigation reports a view change, optionally with a spoken instruction
type Navigation struct {
	Instruction string
}

// Narration asks for text to be spoken
type Narration struct {
	Text     string
	Context  voice.Context
	Emphasis voice.Emphasis
	Speed    voice.Speed
}

func (i Interaction) Kind() string { return i.Type }

func (o Outcome) Kind() string {
	if o.Success {
		return "success"
	}
	return "error"
}

func (q QuizAnswer) Kind() string {
	if q.Correct {
		return "quiz-correct"
	}
	return "quiz-incorrect"
}

func (Navigation) Kind() string { return "navigation" }
func (Narration) Kind() string  { return "narrate" }

func (Interaction) event() {}
func (Outcome) event()     {}
func (QuizAnswer) event()  {}
func (Navigation) event()  {}
func (Narration) event()   {}

// Listener observes every emitted event after its binding ran, including
// events that had no effect
type Listener func(Event)

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]Listener
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]Listener)
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) notify(ev Event) {
	l.mu.Lock()
	fns := make([]Listener, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// AddListener registers fn for every emitted event. The returned func
// removes it.
func (e *Engine) AddListener(fn Listener) func() {
	return e.listeners.add(fn)
}

// EmitEvent runs the binding for ev's kind. Unbound kinds and
// interactions missing a required target are ignored. Failures of one
// modality do not stop the others.
func (e *Engine) EmitEvent(ctx context.Context, ev Event) error {
	if _, err := e.ready(); err != nil {
		return err
	}

	kind := ev.Kind()
	e.metrics.Events.WithLabelValues(kind).Inc()

	binding, ok := e.Config().Bindings[kind]
	if !ok {
		e.log.Debug().Str("event", kind).Msg("no binding for event")
		e.listeners.notify(ev)
		return nil
	}

	var position *mgl64.Vec3
	if in, ok := ev.(Interaction); ok {
		if binding.RequireTarget && in.TargetID == "" {
			e.log.Debug().Str("event", kind).Msg("event without target ignored")
			e.listeners.notify(ev)
			return nil
		}
		position = in.Position
	}

	var errs []error
	if binding.Sound != "" {
		if _, err := e.PlaySFX(ctx, binding.Sound, PlayOptions{Position: position}); err != nil {
			errs = append(errs, err)
		}
	}
	if binding.Haptic != "" {
		if err := e.TriggerHaptic(ctx, binding.Haptic); err != nil {
			errs = append(errs, err)
		}
	}
	if binding.Narrate {
		if err := e.narrate(ev); err != nil {
			errs = append(errs, err)
		}
	}

	e.listeners.notify(ev)
	return errors.Join(errs...)
}

func (e *Engine) narrate(ev Event) error {
	switch ev := ev.(type) {
	case Narration:
		return e.PlayVoice(ev.Text, VoiceOptions{Context: ev.Context, Emphasis: ev.Emphasis, Speed: ev.Speed})
	case QuizAnswer:
		if ev.Explanation == "" {
			return nil
		}
		return e.PlayVoice(ev.Explanation, VoiceOptions{Context: voice.ContextEducational})
	case Navigation:
		if ev.Instruction == "" {
			return nil
		}
		return e.PlayVoice(ev.Instruction, VoiceOptions{Context: voice.ContextNavigation})
	case Outcome:
		if ev.Message == "" {
			return nil
		}
		return e.PlayVoice(ev.Message, VoiceOptions{Context: voice.ContextFeedback})
	}
	return nil
}

// Narrate speaks text and waits until it ends. Cancelling ctx stops the
// utterance. It returns nil at once when narration is unavailable.
func (e *Engine) Narrate(ctx context.Context, text string, opts VoiceOptions) error {
	req, ok, err := e.voiceRequest(text, opts)
	if err != nil || !ok {
		return err
	}
	err = e.narration.SpeakWait(ctx, req)
	if errors.Is(err, voice.ErrVoiceUnsupported) {
		return nil
	}
	return err
}

// wireEvent is the JSON form of an event
type wireEvent struct {
	Type      string          `json:"type"`
	TargetID  string          `json:"target_id,omitempty"`
	Position  *[3]float64     `json:"position,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

type wireData struct {
	Text        string         `json:"text"`
	Message     string         `json:"message"`
	Explanation string         `json:"explanation"`
	Instruction string         `json:"instruction"`
	Context     voice.Context  `json:"context"`
	Emphasis    voice.Emphasis `json:"emphasis"`
	Speed       voice.Speed    `json:"speed"`
}

// ParseEvent decodes a host event. Types without a dedicated kind become
// interactions.
func ParseEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if w.Type == "" {
		return nil, errors.New("event type is required")
	}

	var d wireData
	if len(w.Data) > 0 {
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", w.Type, err)
		}
	}

	switch w.Type {
	case "success", "error":
		return Outcome{Success: w.Type == "success", Message: d.Message}, nil
	case "quiz-correct", "quiz-incorrect":
		return QuizAnswer{Correct: w.Type == "quiz-correct", Explanation: d.Explanation}, nil
	case "navigation":
		return Navigation{Instruction: d.Instruction}, nil
	case "narrate":
		if d.Text == "" {
			return nil, errors.New("narrate event requires data.text")
		}
		return Narration{Text: d.Text, Context: d.Context, Emphasis: d.Emphasis, Speed: d.Speed}, nil
	}

	in := Interaction{Type: w.Type, TargetID: w.TargetID}
	if w.Position != nil {
		p := mgl64.Vec3(*w.Position)
		in.Position = &p
	}
	return in, nil
}
