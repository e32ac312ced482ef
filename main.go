// ABOUTME: Entry point for the feedback engine
// ABOUTME: Parses CLI flags and runs the engine with dashboard or bridge
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-feedback/internal/app"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logFile    string
	noTUI      bool
	bridge     bool
)

var rootCmd = &cobra.Command{
	Use:   "feedback-engine",
	Short: "Adaptive audio, haptic and voice feedback engine",
	Long: `Runs the feedback engine with a live status dashboard.

With --bridge the engine also serves host UIs over WebSocket at /feedback
and renders vibration and speech through the newest capable host.

Configuration is read from ./feedback.yaml or $HOME/.config/feedback/
and may be overridden with FEEDBACK_* environment variables. Edits to the
config file are applied live.`,
	SilenceUsage: true,
	RunE:         runEngine,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default ./feedback.yaml)")
	pf.StringVar(&logFile, "log-file", "feedback-engine.log", "Log file path")
	pf.String("log-level", "", "Log level: debug, info, warn, error")

	f := rootCmd.Flags()
	f.BoolVar(&noTUI, "no-tui", false, "Disable the dashboard, stream logs instead")
	f.BoolVar(&bridge, "bridge", false, "Serve host UIs over WebSocket")
	f.String("addr", "", "Bridge listen address (default :8928)")
	f.String("name", "", "Bridge name advertised to hosts")
	f.Bool("advertise", false, "Advertise the bridge over mDNS")
	f.String("output", "", "Audio output backend: oto or null")

	rootCmd.AddCommand(emitCmd, statusCmd, versionCmd)
}

func runEngine(cmd *cobra.Command, _ []string) error {
	a, err := app.New(app.Config{
		ConfigFile: configFile,
		LogFile:    logFile,
		UseTUI:     !noTUI,
		Bridge:     bridge,
	})
	if err != nil {
		return err
	}
	if err := a.BindFlags(cmd.Flags()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
