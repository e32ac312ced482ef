// ABOUTME: Host-side subcommands talking to a running bridge
// ABOUTME: emit sends one UI event, status prints the engine snapshot
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/app"
	"github.com/Resonate-Protocol/resonate-feedback/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const requestTimeout = 15 * time.Second

var (
	bridgeAddr string
	target     string
	text       string
	position   []float64
	verbose    bool
)

var emitCmd = &cobra.Command{
	Use:   "emit <type>",
	Short: "Send one UI event to the engine",
	Long: `Sends one UI event to a running bridge and reports whether the engine
handled it. Without --addr the bridge is discovered over mDNS.

Examples:
  feedback-engine emit success
  feedback-engine emit brain-region-select --target hippocampus --position 1,0,-2
  feedback-engine emit narrate --text "Dobrze, to jest hipokamp"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := app.EventJSON(args[0], target, text, position)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		c, err := app.Dial(ctx, bridgeAddr, cliLogger())
		if err != nil {
			return err
		}
		defer c.Close()

		if err := app.Emit(ctx, c, raw); err != nil {
			return err
		}
		fmt.Printf("%s handled\n", args[0])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the engine status snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		c, err := app.Dial(ctx, bridgeAddr, cliLogger())
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.Status(ctx)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		var out bytes.Buffer
		if err := json.Indent(&out, st, "", "  "); err != nil {
			return fmt.Errorf("format status: %w", err)
		}
		out.WriteByte('\n')
		_, err = out.WriteTo(os.Stdout)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(*cobra.Command, []string) {
		fmt.Println(version.String())
	},
}

func cliLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()
}

func init() {
	for _, c := range []*cobra.Command{emitCmd, statusCmd} {
		c.Flags().StringVar(&bridgeAddr, "addr", "", "Bridge address host:port (default: discover via mDNS)")
		c.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log connection details")
	}
	emitCmd.Flags().StringVar(&target, "target", "", "Target element id")
	emitCmd.Flags().StringVar(&text, "text", "", "Text for narrate, message or explanation")
	emitCmd.Flags().Float64SliceVar(&position, "position", nil, "World position x,y,z")
}
