// ABOUTME: Scripted synthesizer used by the voice tests
// ABOUTME: Blocks each utterance until the test releases or cancels it
package voice

import (
	"context"
	"sync"
)

// fakeSynth blocks each utterance until released by text or cancelled
type fakeSynth struct {
	mu       sync.Mutex
	voices   []Voice
	spoken   []Utterance
	started  chan Utterance
	finishes map[string]chan error
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{
		started:  make(chan Utterance, 16),
		finishes: make(map[string]chan error),
	}
}

func (f *fakeSynth) finish(text string) chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.finishes[text]
	if !ok {
		ch = make(chan error, 1)
		f.finishes[text] = ch
	}
	return ch
}

// release completes the utterance for text with err
func (f *fakeSynth) release(text string, err error) {
	f.finish(text) <- err
}

// waitStarted blocks until the synthesizer receives text
func (f *fakeSynth) waitStarted(text string) Utterance {
	for u := range f.started {
		if u.Text == text {
			return u
		}
	}
	return Utterance{}
}

func (f *fakeSynth) Voices(context.Context) ([]Voice, error) {
	return f.voices, nil
}

func (f *fakeSynth) Speak(ctx context.Context, u Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.mu.Unlock()
	f.started <- u

	select {
	case err := <-f.finish(u.Text):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recorder collects callback events in order
type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) request(name, text string) Request {
	return Request{
		Text:    text,
		OnStart: func() { r.add(name + ":start") },
		OnEnd:   func() { r.add(name + ":end") },
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add(name + ":error")
		},
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(e string) int {
	n := 0
	for _, got := range r.snapshot() {
		if got == e {
			n++
		}
	}
	return n
}
