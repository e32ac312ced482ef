// ABOUTME: Simulated host UI for exercising a feedback bridge
// ABOUTME: Prints vibrations and speech, forwards stdin lines as events
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/app"
	"github.com/Resonate-Protocol/resonate-feedback/internal/client"
	"github.com/Resonate-Protocol/resonate-feedback/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// words per minute at rate 1
const speakingRate = 150

var (
	bridgeAddr string
	hostName   string
	lang       string
)

var rootCmd = &cobra.Command{
	Use:   "feedback-host",
	Short: "Pretend to be a host UI connected to a feedback bridge",
	Long: `Connects to a bridge, declares vibration and speech support and prints
every command the engine sends. Speech is acknowledged after the time a
real voice would take.

Each stdin line is sent as an event: "<type> [target]".`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         run,
}

func run(cmd *cobra.Command, _ []string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr, err := app.FindBridge(ctx, bridgeAddr, log)
	if err != nil {
		return err
	}

	c := client.NewClient(client.Config{
		ServerAddr: addr,
		HostID:     uuid.NewString(),
		Name:       hostName,
		Vibration:  true,
		Speech:     true,
		Voices:     []protocol.Voice{{Name: "simulated", Lang: lang, Gender: "neutral"}},
		Logger:     log,
	})
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()
	log.Info().Str("bridge", addr).Msg("connected")

	go readEvents(ctx, c, log)
	render(ctx, c, log)
	return nil
}

// render prints engine commands until ctx ends or the bridge goes away
func render(ctx context.Context, c *client.Client, log zerolog.Logger) {
	var mu sync.Mutex
	speaking := make(map[string]context.CancelFunc)

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !c.IsConnected() {
				log.Warn().Msg("bridge closed the connection")
				return
			}
		case v := <-c.Vibrations:
			fmt.Printf("vibrate %v\n", v.PatternMS)
		case s := <-c.Speeches:
			fmt.Printf("speak [%s x%.2f] %q\n", s.Lang, s.Rate, s.Text)
			sctx, cancel := context.WithCancel(ctx)
			mu.Lock()
			speaking[s.ID] = cancel
			mu.Unlock()
			go func(s protocol.Speak) {
				defer func() {
					mu.Lock()
					delete(speaking, s.ID)
					mu.Unlock()
				}()
				select {
				case <-time.After(speechDuration(s.Text, s.Rate)):
					if err := c.SpeakEnded(s.ID, ""); err != nil {
						log.Warn().Err(err).Msg("speak ack")
					}
				case <-sctx.Done():
				}
			}(s)
		case id := <-c.Cancels:
			fmt.Printf("cancel %s\n", id)
			mu.Lock()
			if cancel, ok := speaking[id]; ok {
				cancel()
			}
			mu.Unlock()
		case e := <-c.Errors:
			log.Warn().Str("code", e.Error).Msg(e.Message)
		}
	}
}

func readEvents(ctx context.Context, c *client.Client, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var target string
		if len(fields) > 1 {
			target = fields[1]
		}
		raw, err := app.EventJSON(fields[0], target, "", nil)
		if err != nil {
			log.Warn().Err(err).Msg("bad event")
			continue
		}
		if err := c.SendEvent(raw); err != nil {
			log.Warn().Err(err).Msg("send event")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func speechDuration(text string, rate float64) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(text))
	return time.Duration(float64(words) / (speakingRate * rate) * float64(time.Minute))
}

func main() {
	f := rootCmd.Flags()
	f.StringVar(&bridgeAddr, "addr", "", "Bridge address host:port (default: discover via mDNS)")
	f.StringVar(&hostName, "name", "simulated-host", "Host name reported to the bridge")
	f.StringVar(&lang, "lang", "pl-PL", "Language of the simulated voice")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
