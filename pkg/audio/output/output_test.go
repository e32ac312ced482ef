// ABOUTME: Audio output interface tests
// ABOUTME: Verifies implementations and the silent output lifecycle
package output

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
	var _ Output = (*Null)(nil)
}

type countingReader struct {
	reads atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads.Add(1)
	return len(p), nil
}

func TestNullDrainsSource(t *testing.T) {
	src := &countingReader{}
	out := NewNull()

	if err := out.Open(8000, 2, src); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.reads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if src.reads.Load() == 0 {
		t.Fatal("expected the null output to pull from the source")
	}

	if err := out.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestNullSuspendBeforeOpen(t *testing.T) {
	out := NewNull()
	if err := out.Suspend(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if err := out.Resume(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestNullStopsOnSourceError(t *testing.T) {
	out := NewNull()
	if err := out.Open(8000, 1, bytes.NewReader(nil)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// The drain loop exits on EOF; Close must still return promptly
	if err := out.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestOtoControlBeforeOpen(t *testing.T) {
	out := NewOto(0)
	if err := out.Suspend(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("close of unopened output should succeed, got %v", err)
	}
}
