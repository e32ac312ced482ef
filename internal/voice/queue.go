// ABOUTME: Single-slot narration queue over a speech synthesizer
// ABOUTME: A new request cancels the active one before it starts
package voice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	// ErrVoiceUnsupported means no synthesizer is available. Callers check
	// IsSupported first and degrade silently.
	ErrVoiceUnsupported = errors.New("speech synthesis not supported")
	ErrEmptyText        = errors.New("empty narration text")
	// ErrInterrupted is the SpeakWait result for a replaced or stopped utterance
	ErrInterrupted = errors.New("utterance interrupted")
)

// SynthesisError is delivered to OnError when the synthesizer fails
type SynthesisError struct {
	Text string
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %q: %v", e.Text, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Utterance is what the synthesizer renders
type Utterance struct {
	Text  string
	Lang  string
	Voice string
	Params
}

// Synthesizer renders speech. Speak blocks until the utterance finishes
// or ctx is cancelled.
type Synthesizer interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, u Utterance) error
}

// Request is one narration
type Request struct {
	Text     string
	Lang     string
	Context  Context
	Emphasis Emphasis
	Speed    Speed
	// Override replaces the derived parameters when set
	Override *Params
	// Scale multiplies the derived parameters before clamping
	Scale *Params

	OnStart func()
	OnEnd   func()
	OnError func(error)

	// done receives the outcome on every exit path when set
	done chan error
}

// Capabilities describes the narration subsystem for diagnostics
type Capabilities struct {
	Supported bool     `json:"supported"`
	Voices    int      `json:"voices"`
	Languages []string `json:"languages"`
	Speaking  bool     `json:"speaking"`
}

// Config configures a Queue
type Config struct {
	Synthesizer Synthesizer
	// Supported is the probed speech capability
	Supported bool
	Language  string
	Gender    string
	Logger    zerolog.Logger

	OnStarted   func()
	OnCancelled func()
	OnFailed    func()
}

// Queue holds at most one active utterance
type Queue struct {
	mu       sync.Mutex
	cfg      Config
	log      zerolog.Logger
	voices   []Voice
	gen      uint64
	cancel   context.CancelFunc
	claim    *atomic.Bool
	speaking bool
	wg       sync.WaitGroup
	closed   bool

	// beforeStart runs ahead of the start claim; nil outside tests
	beforeStart func(Utterance)
}

// New creates a queue. Call LoadVoices to populate the voice list.
func New(cfg Config) *Queue {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &Queue{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "voice").Logger(),
	}
}

// IsSupported reports whether narration can be rendered
func (q *Queue) IsSupported() bool {
	return q.cfg.Supported && q.cfg.Synthesizer != nil
}

// LoadVoices asks the synthesizer for its voices
func (q *Queue) LoadVoices(ctx context.Context) error {
	if !q.IsSupported() {
		return ErrVoiceUnsupported
	}
	voices, err := q.cfg.Synthesizer.Voices(ctx)
	if err != nil {
		return fmt.Errorf("load voices: %w", err)
	}
	q.mu.Lock()
	q.voices = voices
	q.mu.Unlock()
	q.log.Debug().Int("voices", len(voices)).Msg("voices loaded")
	return nil
}

// Voices returns the loaded voice list
func (q *Queue) Voices() []Voice {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Voice(nil), q.voices...)
}

// SetLanguage changes the default language for requests without one
func (q *Queue) SetLanguage(lang, gender string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if lang != "" {
		q.cfg.Language = lang
	}
	q.cfg.Gender = gender
}

// Speaking reports whether an utterance is active
func (q *Queue) Speaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.speaking
}

// Speak cancels any active utterance and starts req. Synthesis failures
// are delivered through req.OnError only.
func (q *Queue) Speak(req Request) error {
	_, err := q.speak(req)
	return err
}

// SpeakWait speaks req and blocks until it ends. It returns
// ErrInterrupted when a later request or Stop replaced it, and stops the
// utterance when ctx is cancelled.
func (q *Queue) SpeakWait(ctx context.Context, req Request) error {
	req.done = make(chan error, 1)
	gen, err := q.speak(req)
	if err != nil {
		return err
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		q.stopGen(gen)
		return ctx.Err()
	}
}

func (q *Queue) speak(req Request) (uint64, error) {
	if !q.IsSupported() {
		return 0, ErrVoiceUnsupported
	}
	if strings.TrimSpace(req.Text) == "" {
		return 0, ErrEmptyText
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrVoiceUnsupported
	}

	u := q.utteranceLocked(req)
	if q.cancelLocked() && q.cfg.OnCancelled != nil {
		q.cfg.OnCancelled()
	}

	q.gen++
	gen := q.gen
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	claim := new(atomic.Bool)
	q.claim = claim
	q.speaking = true

	q.wg.Add(1)
	go q.run(ctx, gen, claim, u, req)
	return gen, nil
}

func (q *Queue) utteranceLocked(req Request) Utterance {
	lang := req.Lang
	if lang == "" {
		lang = q.cfg.Language
	}

	params := Derive(req.Context, req.Emphasis, req.Speed)
	if req.Override != nil {
		params = *req.Override
	}
	if req.Scale != nil {
		params.Rate *= req.Scale.Rate
		params.Pitch *= req.Scale.Pitch
		params.Volume *= req.Scale.Volume
	}

	u := Utterance{Text: req.Text, Lang: lang, Params: params.Clamp()}
	if v, ok := SelectVoice(q.voices, lang, q.cfg.Gender); ok {
		u.Voice = v.Name
	}
	return u
}

func (q *Queue) run(ctx context.Context, gen uint64, claim *atomic.Bool, u Utterance, req Request) {
	outcome := ErrInterrupted
	defer func() {
		if req.done != nil {
			req.done <- outcome
		}
		q.wg.Done()
	}()

	if q.beforeStart != nil {
		q.beforeStart(u)
	}
	// whichever of start and cancel claims first wins
	if !claim.CompareAndSwap(false, true) {
		return
	}
	if req.OnStart != nil {
		req.OnStart()
	}
	if q.cfg.OnStarted != nil {
		q.cfg.OnStarted()
	}

	err := q.cfg.Synthesizer.Speak(ctx, u)

	q.mu.Lock()
	current := q.gen == gen
	if current {
		q.speaking = false
		q.cancel()
		q.cancel = nil
		q.claim = nil
	}
	q.mu.Unlock()

	// superseded or stopped utterances report nothing
	if !current {
		return
	}

	if err != nil && ctx.Err() == nil {
		q.log.Warn().Err(err).Str("lang", u.Lang).Msg("synthesis failed")
		if q.cfg.OnFailed != nil {
			q.cfg.OnFailed()
		}
		outcome = &SynthesisError{Text: u.Text, Err: err}
		if req.OnError != nil {
			req.OnError(outcome)
		}
		return
	}
	outcome = nil
	if req.OnEnd != nil {
		req.OnEnd()
	}
}

// cancelLocked stops the active utterance and reports whether one was active
func (q *Queue) cancelLocked() bool {
	q.gen++
	wasSpeaking := q.speaking
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	if q.claim != nil {
		q.claim.Store(true)
		q.claim = nil
	}
	q.speaking = false
	return wasSpeaking
}

// Stop cancels the active utterance without starting another
func (q *Queue) Stop() {
	q.mu.Lock()
	cancelled := q.cancelLocked()
	q.mu.Unlock()
	if cancelled && q.cfg.OnCancelled != nil {
		q.cfg.OnCancelled()
	}
}

// stopGen cancels the utterance only if gen is still the active one
func (q *Queue) stopGen(gen uint64) {
	q.mu.Lock()
	cancelled := false
	if q.gen == gen {
		cancelled = q.cancelLocked()
	}
	q.mu.Unlock()
	if cancelled && q.cfg.OnCancelled != nil {
		q.cfg.OnCancelled()
	}
}

// Wait blocks until every started utterance goroutine has returned
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close stops narration and waits for the synthesizer to return.
// Later Speak calls fail with ErrVoiceUnsupported.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cancelLocked()
	q.mu.Unlock()
	q.wg.Wait()
}

// Capabilities reports support, voices and languages
func (q *Queue) Capabilities() Capabilities {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]struct{})
	for _, v := range q.voices {
		seen[v.Lang] = struct{}{}
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)

	return Capabilities{
		Supported: q.IsSupported() && !q.closed,
		Voices:    len(q.voices),
		Languages: langs,
		Speaking:  q.speaking,
	}
}

// SpeakEducational narrates teaching content
func (q *Queue) SpeakEducational(text string) error {
	return q.Speak(Request{Text: text, Context: ContextEducational, Emphasis: EmphasisNormal})
}

// SpeakNavigation narrates an instruction gently
func (q *Queue) SpeakNavigation(text string) error {
	return q.Speak(Request{Text: text, Context: ContextNavigation, Emphasis: EmphasisGentle})
}

// SpeakSuccess narrates positive feedback with strong emphasis
func (q *Queue) SpeakSuccess(text string) error {
	return q.Speak(Request{Text: text, Context: ContextFeedback, Emphasis: EmphasisStrong})
}

// SpeakError narrates negative feedback
func (q *Queue) SpeakError(text string) error {
	return q.Speak(Request{Text: text, Context: ContextFeedback, Emphasis: EmphasisNormal})
}

// SpeakTerm reads a medical term, its pronunciation and definition slowly
func (q *Queue) SpeakTerm(term, pronunciation, definition string) error {
	text := fmt.Sprintf("Termin medyczny: %s. Wymowa: %s. Definicja: %s.", term, pronunciation, definition)
	return q.Speak(Request{Text: text, Context: ContextEducational, Emphasis: EmphasisStrong, Speed: SpeedSlow})
}

// SpeakQuizQuestion reads a question and its options
func (q *Queue) SpeakQuizQuestion(question string, options []string) error {
	text := fmt.Sprintf("Pytanie: %s.", question)
	if len(options) > 0 {
		text += fmt.Sprintf(" Opcje: %s.", strings.Join(options, ", "))
	}
	return q.Speak(Request{Text: text, Context: ContextEducational, Emphasis: EmphasisNormal})
}

// SpeakQuizResult reads the outcome of a quiz answer
func (q *Queue) SpeakQuizResult(correct bool, explanation string) error {
	text := "Niestety, błędna odpowiedź."
	emphasis := EmphasisNormal
	if correct {
		text = "Poprawna odpowiedź!"
		emphasis = EmphasisStrong
	}
	if explanation != "" {
		text += " " + explanation
	}
	return q.Speak(Request{Text: text, Context: ContextFeedback, Emphasis: emphasis})
}
