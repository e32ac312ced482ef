// ABOUTME: Entry point for a headless feedback bridge
// ABOUTME: Runs the engine without a dashboard and serves host UIs
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
)

var rootCmd = &cobra.Command{
	Use:          "feedback-bridge",
	Short:        "Headless feedback engine serving host UIs over WebSocket",
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.New(app.Config{
			ConfigFile: configFile,
			LogFile:    logFile,
			Bridge:     true,
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
	},
}

func main() {
	f := rootCmd.Flags()
	f.StringVar(&configFile, "config", "", "Config file (default ./feedback.yaml)")
	f.StringVar(&logFile, "log-file", "feedback-bridge.log", "Log file path")
	f.String("log-level", "", "Log level: debug, info, warn, error")
	f.String("addr", "", "Listen address (default :8928)")
	f.String("name", "", "Bridge name advertised to hosts")
	f.Bool("advertise", false, "Advertise the bridge over mDNS")
	f.String("output", "", "Audio output backend: oto or null")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
