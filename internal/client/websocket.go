// ABOUTME: WebSocket host client for the feedback bridge
// ABOUTME: Handles connection, handshake and routing of engine commands
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config holds client configuration
type Config struct {
	ServerAddr string
	HostID     string
	Name       string
	Vibration  bool
	Speech     bool
	Voices     []protocol.Voice
	Logger     zerolog.Logger
}

// Client is a host connected to the bridge
type Client struct {
	config Config
	log    zerolog.Logger
	conn   *websocket.Conn
	mu     sync.Mutex

	// Engine commands
	Vibrations chan protocol.Vibrate
	Speeches   chan protocol.Speak
	Cancels    chan string
	Statuses   chan json.RawMessage
	Errors     chan protocol.EngineError

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new host client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:     config,
		log:        config.Logger.With().Str("component", "host").Logger(),
		Vibrations: make(chan protocol.Vibrate, 16),
		Speeches:   make(chan protocol.Speak, 16),
		Cancels:    make(chan string, 16),
		Statuses:   make(chan json.RawMessage, 4),
		Errors:     make(chan protocol.EngineError, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Connect dials the bridge and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/feedback"}
	c.log.Debug().Str("url", u.String()).Msg("connecting")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return nil
}

func (c *Client) handshake() error {
	hello := protocol.HostHello{
		HostID:    c.config.HostID,
		Name:      c.config.Name,
		Version:   protocol.Version,
		Vibration: c.config.Vibration,
		Speech:    c.config.Speech,
		Voices:    c.config.Voices,
	}
	if err := c.send(protocol.TypeHostHello, hello); err != nil {
		return fmt.Errorf("failed to send host/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env protocol.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("failed to read engine/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	switch env.Type {
	case protocol.TypeEngineHello:
	case protocol.TypeEngineError:
		var e protocol.EngineError
		_ = env.Decode(&e)
		return fmt.Errorf("rejected: %s: %s", e.Error, e.Message)
	default:
		return fmt.Errorf("expected engine/hello, got %s", env.Type)
	}

	c.log.Debug().Msg("handshake complete")
	return nil
}

func (c *Client) send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

func (c *Client) readMessages() {
	defer c.Close()

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}
		c.route(env)
	}
}

// route delivers engine commands to the matching channel
func (c *Client) route(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeVibrate:
		var v protocol.Vibrate
		if err := env.Decode(&v); err != nil {
			c.log.Warn().Err(err).Msg("bad vibrate payload")
			return
		}
		deliver(c.ctx, c.Vibrations, v)

	case protocol.TypeVibrateCancel:
		deliver(c.ctx, c.Cancels, "vibrate")

	case protocol.TypeSpeak:
		var s protocol.Speak
		if err := env.Decode(&s); err != nil {
			c.log.Warn().Err(err).Msg("bad speak payload")
			return
		}
		deliver(c.ctx, c.Speeches, s)

	case protocol.TypeSpeakCancel:
		var r protocol.SpeakReply
		_ = env.Decode(&r)
		deliver(c.ctx, c.Cancels, r.ID)

	case protocol.TypeStatus:
		deliver(c.ctx, c.Statuses, env.Payload)

	case protocol.TypeEngineError:
		var e protocol.EngineError
		_ = env.Decode(&e)
		deliver(c.ctx, c.Errors, e)

	default:
		c.log.Debug().Str("type", env.Type).Msg("unknown message type")
	}
}

func deliver[T any](ctx context.Context, ch chan T, v T) {
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}

// SendEvent forwards a UI event in its JSON wire form
func (c *Client) SendEvent(event json.RawMessage) error {
	return c.send(protocol.TypeEvent, event)
}

// SendTelemetry reports battery and network samples
func (c *Client) SendTelemetry(t protocol.Telemetry) error {
	return c.send(protocol.TypeTelemetry, t)
}

// SendListener moves the listener
func (c *Client) SendListener(p protocol.ListenerPose) error {
	return c.send(protocol.TypeListener, p)
}

// SendVisibility reports whether the UI is hidden
func (c *Client) SendVisibility(hidden bool) error {
	return c.send(protocol.TypeVisibility, protocol.Visibility{Hidden: hidden})
}

// SpeakEnded acknowledges a finished utterance. A non-empty errMsg
// reports failure instead.
func (c *Client) SpeakEnded(id, errMsg string) error {
	if errMsg != "" {
		return c.send(protocol.TypeSpeakError, protocol.SpeakReply{ID: id, Error: errMsg})
	}
	return c.send(protocol.TypeSpeakEnded, protocol.SpeakReply{ID: id})
}

// Status requests and waits for an engine status snapshot
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	if err := c.send(protocol.TypeStatusRequest, nil); err != nil {
		return nil, err
	}
	select {
	case st := <-c.Statuses:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.log.Debug().Msg("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
