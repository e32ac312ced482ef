// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the engine dashboard
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// NewModel creates a dashboard model. hosts may be nil when no bridge runs.
func NewModel(ctrl Controller, hosts func() []HostInfo) Model {
	m := Model{
		ctrl:  ctrl,
		hosts: hosts,
	}
	if ctrl != nil {
		m.applyStatus(StatusMsg{Status: ctrl.Status()})
	}
	return m
}

// Run starts the dashboard and blocks until the user quits or ctx ends
func Run(ctx context.Context, ctrl Controller, hosts func() []HostInfo) error {
	p := tea.NewProgram(NewModel(ctrl, hosts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
