// ABOUTME: Bubbletea model for the feedback engine dashboard
// ABOUTME: Defines dashboard state, key handling and rendering
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/feedback"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const (
	pollInterval = 500 * time.Millisecond
	batteryStep  = 0.05
	testPattern  = "success-medium"
)

// Controller is the slice of the engine the dashboard drives
type Controller interface {
	Status() feedback.Status
	SetVisibility(hidden bool)
	StopAll()
	TriggerHaptic(ctx context.Context, patternID string) error
	UpdateBattery(level float64)
	EmitEvent(ctx context.Context, ev feedback.Event) error
}

// HostInfo describes a connected bridge host
type HostInfo struct {
	Name      string
	Vibration bool
	Speech    bool
}

// Model represents the TUI state
type Model struct {
	ctrl  Controller
	hosts func() []HostInfo

	status    feedback.Status
	hostList  []HostInfo
	hidden    bool
	battery   float64
	lastError string
	lastNote  string

	showDebug bool
	quitting  bool

	width  int
	height int
}

// StatusMsg carries a fresh engine snapshot
type StatusMsg struct {
	Status feedback.Status
	Hosts  []HostInfo
}

type tickMsg time.Time

// actionMsg reports the outcome of a key action
type actionMsg struct {
	note string
	err  error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hostStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Init starts status polling
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// poll snapshots the engine off the update loop
func (m Model) poll() tea.Cmd {
	ctrl, hosts := m.ctrl, m.hosts
	return func() tea.Msg {
		if ctrl == nil {
			return nil
		}
		msg := StatusMsg{Status: ctrl.Status()}
		if hosts != nil {
			msg.Hosts = hosts()
		}
		return msg
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tea.Batch(m.poll(), tickEvery())
	case StatusMsg:
		m.applyStatus(msg)
	case actionMsg:
		m.lastError = ""
		m.lastNote = msg.note
		if msg.err != nil {
			m.lastError = msg.err.Error()
		}
		return m, m.poll()
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down feedback engine...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Feedback Engine"))
	b.WriteString("\n\n")
	b.WriteString(boxStyle.Render(m.renderEngine()))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(m.renderResources()))
	b.WriteString("\n")
	b.WriteString(m.renderHosts())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString(m.renderFooter())
	return b.String()
}

func field(name, value string) string {
	return headerStyle.Render(fmt.Sprintf("%-10s", name+":")) + " " + valueStyle.Render(value) + "\n"
}

// renderEngine renders context and modality state
func (m Model) renderEngine() string {
	s := m.status
	state := s.ContextState
	if !s.Initialized {
		state = "not initialized"
	}
	if s.Hidden {
		state += " (hidden)"
	}

	audio := fmt.Sprintf("%d Hz, %d active", s.SampleRate, s.ActiveSounds)
	if !s.AudioAvailable {
		audio = warnStyle.Render("unavailable")
	}

	speech := fmt.Sprintf("%d voices", s.VoicesAvailable)
	if s.Speaking {
		speech += ", speaking"
	}

	return strings.TrimRight(
		field("Context", state)+
			field("Audio", audio)+
			field("Haptics", yesNo(s.HapticsSupported))+
			field("Voice", speech)+
			field("Listener", formatVec(s.Listener.Position)), "\n")
}

// renderResources renders optimizer and cache state
func (m Model) renderResources() string {
	s := m.status
	level := int(s.BatteryLevel*100 + 0.5)
	battery := fmt.Sprintf("[%s] %d%%", renderBar(level, 100, 10), level)
	if s.BatteryLevel < 0.2 {
		battery = warnStyle.Render(battery)
	}

	spatial := "off"
	if s.SpatialEnabled {
		spatial = "on"
	}

	return strings.TrimRight(
		field("Battery", battery)+
			field("Network", s.ConnectionTier)+
			field("Limits", fmt.Sprintf("%d sounds, spatial %s", s.MaxConcurrentSounds, spatial))+
			field("Cache", fmt.Sprintf("%d assets, %s", s.CachedAssets, humanize.Bytes(uint64(max(s.CacheBytes, 0))))), "\n")
}

// renderHosts lists bridge hosts
func (m Model) renderHosts() string {
	var b strings.Builder
	b.WriteString(hostStyle.Render(fmt.Sprintf("Hosts (%d)", len(m.hostList))))
	b.WriteString("\n")
	if len(m.hostList) == 0 {
		b.WriteString(valueStyle.Render("  No hosts connected"))
		b.WriteString("\n")
	}
	for _, h := range m.hostList {
		var caps []string
		if h.Vibration {
			caps = append(caps, "vibration")
		}
		if h.Speech {
			caps = append(caps, "speech")
		}
		b.WriteString(fmt.Sprintf("  • %s", truncate(h.Name, 32)))
		if len(caps) > 0 {
			b.WriteString(valueStyle.Render(" (" + strings.Join(caps, ", ") + ")"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderDebug() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Optimizations:"))
	b.WriteString("\n")
	if len(m.status.Optimizations) == 0 {
		b.WriteString(valueStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, o := range m.status.Optimizations {
		b.WriteString("  - " + o + "\n")
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var b strings.Builder
	b.WriteString("\n")
	if m.lastError != "" {
		b.WriteString(errorStyle.Render("error: " + truncate(m.lastError, 60)))
		b.WriteString("\n")
	} else if m.lastNote != "" {
		b.WriteString(valueStyle.Render(m.lastNote))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("v:Visibility  s:Stop  t:Haptic  e:Event  +/-:Battery  d:Debug  q:Quit"))
	return b.String()
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
		return m, nil
	}

	if m.ctrl == nil {
		return m, nil
	}
	ctrl := m.ctrl

	switch msg.String() {
	case "v":
		m.hidden = !m.hidden
		hidden := m.hidden
		return m, func() tea.Msg {
			ctrl.SetVisibility(hidden)
			if hidden {
				return actionMsg{note: "page hidden"}
			}
			return actionMsg{note: "page visible"}
		}
	case "s":
		return m, func() tea.Msg {
			ctrl.StopAll()
			return actionMsg{note: "stopped all sounds"}
		}
	case "t":
		return m, func() tea.Msg {
			return actionMsg{note: "haptic " + testPattern, err: ctrl.TriggerHaptic(context.Background(), testPattern)}
		}
	case "e":
		return m, func() tea.Msg {
			return actionMsg{note: "emitted success", err: ctrl.EmitEvent(context.Background(), feedback.Outcome{Success: true})}
		}
	case "+", "=", "up":
		return m.setBattery(m.battery + batteryStep)
	case "-", "down":
		return m.setBattery(m.battery - batteryStep)
	}

	return m, nil
}

func (m Model) setBattery(level float64) (tea.Model, tea.Cmd) {
	m.battery = min(max(level, 0), 1)
	ctrl, level := m.ctrl, m.battery
	return m, func() tea.Msg {
		ctrl.UpdateBattery(level)
		return actionMsg{note: fmt.Sprintf("battery %d%%", int(level*100+0.5))}
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	m.status = msg.Status
	m.hidden = msg.Status.Hidden
	m.battery = msg.Status.BatteryLevel
	m.hostList = msg.Hosts
}

// Utility functions
func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	filled = min(filled, width)
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func formatVec(v [3]float64) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v[0], v[1], v[2])
}
