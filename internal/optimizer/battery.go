// ABOUTME: Battery level sources and a clock-driven poller
// ABOUTME: SysfsBattery reads the Linux power_supply capacity file
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/clock"
)

// ErrNoBattery is returned by sources on machines without a battery
var ErrNoBattery = errors.New("no battery")

// BatterySource reports the battery level in [0,1]
type BatterySource interface {
	Level(ctx context.Context) (float64, error)
}

// SysfsBattery reads a capacity file holding a percentage
type SysfsBattery struct {
	Path string
}

func (s SysfsBattery) Level(context.Context) (float64, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNoBattery
		}
		return 0, err
	}
	return parseCapacity(string(data))
}

func parseCapacity(s string) (float64, error) {
	pct, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse capacity %q: %w", s, err)
	}
	if pct < 0 || pct > 100 {
		return 0, fmt.Errorf("capacity out of range: %d", pct)
	}
	return float64(pct) / 100, nil
}

// ManualBattery is set from outside, by the bridge or the TUI
type ManualBattery struct {
	mu    sync.Mutex
	level float64
	set   bool
}

// Set records a level
func (m *ManualBattery) Set(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
	m.set = true
}

func (m *ManualBattery) Level(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return 0, ErrNoBattery
	}
	return m.level, nil
}

// WatchBattery samples src immediately and then every interval until ctx
// is done. A source reporting ErrNoBattery stops the watch.
func (o *Optimizer) WatchBattery(ctx context.Context, src BatterySource, clk clock.Clock, interval time.Duration) {
	if clk == nil {
		clk = clock.Real{}
	}

	var (
		mu    sync.Mutex
		timer clock.Timer
		poll  func()
	)
	poll = func() {
		if ctx.Err() != nil {
			return
		}
		level, err := src.Level(ctx)
		switch {
		case errors.Is(err, ErrNoBattery):
			o.log.Debug().Msg("no battery, watch stopped")
			return
		case err != nil:
			o.log.Warn().Err(err).Msg("battery sample failed")
		default:
			o.UpdateBattery(level)
		}

		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() == nil {
			timer = clk.AfterFunc(interval, poll)
		}
	}

	context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	})
	poll()
}
