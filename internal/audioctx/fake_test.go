// ABOUTME: Test doubles for the audio context package
// ABOUTME: Provides an in-memory output backend
package audioctx

import (
	"io"
	"sync"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio/output"
)

type fakeBackend struct {
	mu       sync.Mutex
	src      io.Reader
	rate     int
	channels int
	suspends int
	resumes  int
	closes   int
	openErr  error
}

func (f *fakeBackend) Open(sampleRate, channels int, src io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.src, f.rate, f.channels = src, sampleRate, channels
	return nil
}

func (f *fakeBackend) Suspend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspends++
	return nil
}

func (f *fakeBackend) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func factoryFor(b *fakeBackend) BackendFactory {
	return func() (output.Output, error) { return b, nil }
}
