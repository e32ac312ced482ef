// ABOUTME: One-shot host connections used by the CLI subcommands
// ABOUTME: Resolves the bridge via mDNS when no address is given
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/client"
	"github.com/Resonate-Protocol/resonate-feedback/internal/discovery"
	"github.com/Resonate-Protocol/resonate-feedback/internal/protocol"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/feedback"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DiscoveryTimeout bounds the mDNS search for a bridge
const DiscoveryTimeout = 10 * time.Second

// ErrNoBridge is returned when discovery finds nothing
var ErrNoBridge = errors.New("no feedback bridge found")

// FindBridge returns addr unchanged, or the first bridge found over mDNS
func FindBridge(ctx context.Context, addr string, logger zerolog.Logger) (string, error) {
	if addr != "" {
		return addr, nil
	}

	disc := discovery.NewManager(discovery.Config{Logger: logger})
	disc.Browse()
	defer disc.Stop()

	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	select {
	case b := <-disc.Bridges():
		logger.Info().Str("bridge", b.Name).Str("addr", b.Address()).Msg("discovered bridge")
		return b.Address(), nil
	case <-ctx.Done():
		return "", ErrNoBridge
	}
}

// Dial connects a host that renders nothing and only drives the engine
func Dial(ctx context.Context, addr string, logger zerolog.Logger) (*client.Client, error) {
	addr, err := FindBridge(ctx, addr, logger)
	if err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	c := client.NewClient(client.Config{
		ServerAddr: addr,
		HostID:     uuid.NewString(),
		Name:       hostname + "-cli",
		Logger:     logger,
	})
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return c, nil
}

// Emit validates raw, sends it and waits until the engine has handled it
func Emit(ctx context.Context, c *client.Client, raw json.RawMessage) error {
	if _, err := feedback.ParseEvent(raw); err != nil {
		return err
	}
	if err := c.SendEvent(raw); err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	// messages are handled in order, so the status reply follows any error
	if _, err := c.Status(ctx); err != nil {
		return fmt.Errorf("await engine: %w", err)
	}
	select {
	case e := <-c.Errors:
		return engineError(e)
	default:
		return nil
	}
}

func engineError(e protocol.EngineError) error {
	return fmt.Errorf("engine rejected event: %s: %s", e.Error, e.Message)
}

// EventJSON builds the wire form of an event from CLI arguments
func EventJSON(kind, target, text string, position []float64) (json.RawMessage, error) {
	ev := map[string]any{
		"type":      kind,
		"timestamp": time.Now().UTC(),
	}
	if target != "" {
		ev["target_id"] = target
	}
	if len(position) > 0 {
		if len(position) != 3 {
			return nil, fmt.Errorf("position needs 3 components, got %d", len(position))
		}
		ev["position"] = position
	}
	if text != "" {
		// each kind reads its own field
		ev["data"] = map[string]string{
			"text":        text,
			"message":     text,
			"explanation": text,
			"instruction": text,
		}
	}
	return json.Marshal(ev)
}
