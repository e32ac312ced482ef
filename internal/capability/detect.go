// ABOUTME: Capability detection for the running process
// ABOUTME: Reads core count, system memory and speech tooling from the host
package capability

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// SpeechCommands are the synthesizer binaries probed in order
var SpeechCommands = []string{"espeak-ng", "espeak", "say"}

// Detect probes the local machine. Desktop processes never vibrate.
func Detect(ctx context.Context, logger zerolog.Logger) Capabilities {
	hints := Hints{
		UserAgent: "",
		Platform:  runtime.GOOS,
		Cores:     runtime.NumCPU(),
		Audio:     runtime.GOOS == "linux" || runtime.GOOS == "darwin" || runtime.GOOS == "windows",
	}

	if bytes, err := systemRAM(ctx); err != nil {
		logger.Debug().Err(err).Msg("failed to detect system RAM, assuming minimum")
	} else {
		hints.MemoryGB = float64(bytes) / (1 << 30)
	}

	if cmd := FindSpeechCommand(); cmd != "" {
		hints.Speech = true
	}

	caps := Probe(hints)
	logger.Info().
		Str("os", string(caps.OS)).
		Int("cores", caps.Cores).
		Float64("memory_gb", caps.MemoryGB).
		Bool("speech", caps.Speech).
		Bool("audio", caps.Audio).
		Msg("device capabilities detected")
	return caps
}

// FindSpeechCommand returns the first synthesizer found on PATH
func FindSpeechCommand() string {
	for _, name := range SpeechCommands {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func systemRAM(ctx context.Context) (int64, error) {
	switch runtime.GOOS {
	case "darwin":
		out, err := exec.CommandContext(ctx, "sysctl", "-n", "hw.memsize").Output()
		if err != nil {
			return 0, fmt.Errorf("sysctl hw.memsize: %w", err)
		}
		return strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	case "linux":
		data, err := os.ReadFile("/proc/meminfo")
		if err != nil {
			return 0, fmt.Errorf("read meminfo: %w", err)
		}
		return parseMemInfo(string(data))
	}
	return 0, fmt.Errorf("memory detection unsupported on %s", runtime.GOOS)
}

func parseMemInfo(data string) (int64, error) {
	for _, line := range strings.Split(data, "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse meminfo: %w", err)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemTotal not found in /proc/meminfo")
}
