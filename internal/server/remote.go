// ABOUTME: Haptic and speech backends that render on a connected host
// ABOUTME: Commands go to the newest host that declared the primitive
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/protocol"
	"github.com/Resonate-Protocol/resonate-feedback/internal/voice"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	// ErrNoHost means no connected host renders the primitive
	ErrNoHost = errors.New("no capable host connected")
	// ErrHostGone means the host disconnected mid-request
	ErrHostGone = errors.New("host disconnected")
)

// RemoteVibrator implements haptic.Vibrator over the bridge
type RemoteVibrator struct {
	server *Server
}

func canVibrate(h *Host) bool { return h.Vibration }
func canSpeak(h *Host) bool   { return h.Speech }

func (v *RemoteVibrator) Vibrate(_ context.Context, envelope []time.Duration) error {
	host := v.server.newestHost(canVibrate)
	if host == nil {
		return ErrNoHost
	}
	return host.send(protocol.TypeVibrate, protocol.Vibrate{
		PatternMS: lo.Map(envelope, func(d time.Duration, _ int) int64 { return d.Milliseconds() }),
	})
}

func (v *RemoteVibrator) Cancel() error {
	host := v.server.newestHost(canVibrate)
	if host == nil {
		return nil
	}
	return host.send(protocol.TypeVibrateCancel, nil)
}

type pendingSpeak struct {
	hostID string
	done   chan error
}

// RemoteSynthesizer implements voice.Synthesizer over the bridge
type RemoteSynthesizer struct {
	server  *Server
	mu      sync.Mutex
	pending map[string]pendingSpeak
}

func newRemoteSynthesizer(s *Server) *RemoteSynthesizer {
	return &RemoteSynthesizer{server: s, pending: make(map[string]pendingSpeak)}
}

// Voices merges the voices of every speech-capable host
func (r *RemoteSynthesizer) Voices(context.Context) ([]voice.Voice, error) {
	var out []voice.Voice
	for _, h := range r.server.Hosts() {
		if !h.Speech {
			continue
		}
		for _, v := range h.Voices {
			out = append(out, voice.Voice{Name: v.Name, Lang: v.Lang, Gender: v.Gender})
		}
	}
	return lo.UniqBy(out, func(v voice.Voice) string { return v.Name + "|" + v.Lang }), nil
}

// Speak sends u to the host and blocks until it reports the end
func (r *RemoteSynthesizer) Speak(ctx context.Context, u voice.Utterance) error {
	host := r.server.newestHost(canSpeak)
	if host == nil {
		return ErrNoHost
	}

	id := uuid.NewString()
	done := make(chan error, 1)
	r.mu.Lock()
	r.pending[id] = pendingSpeak{hostID: host.ID, done: done}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	if err := host.send(protocol.TypeSpeak, protocol.Speak{
		ID:     id,
		Text:   u.Text,
		Lang:   u.Lang,
		Voice:  u.Voice,
		Rate:   u.Params.Rate,
		Pitch:  u.Params.Pitch,
		Volume: u.Params.Volume,
	}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = host.send(protocol.TypeSpeakCancel, protocol.SpeakReply{ID: id})
		return ctx.Err()
	}
}

func (r *RemoteSynthesizer) handleReply(msgType string, reply protocol.SpeakReply) {
	r.mu.Lock()
	p, ok := r.pending[reply.ID]
	r.mu.Unlock()
	if !ok {
		return
	}

	switch msgType {
	case protocol.TypeSpeakEnded:
		p.finish(nil)
	case protocol.TypeSpeakError:
		p.finish(fmt.Errorf("host speech: %s", reply.Error))
	}
}

// hostGone fails every request waiting on hostID
func (r *RemoteSynthesizer) hostGone(hostID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pending {
		if p.hostID == hostID {
			p.finish(ErrHostGone)
		}
	}
}

func (p pendingSpeak) finish(err error) {
	select {
	case p.done <- err:
	default:
	}
}
