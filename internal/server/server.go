// ABOUTME: Feedback bridge server exposing the engine to host UIs
// ABOUTME: Manages WebSocket hosts, message routing and the metrics endpoint
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/discovery"
	"github.com/Resonate-Protocol/resonate-feedback/internal/protocol"
	"github.com/Resonate-Protocol/resonate-feedback/internal/version"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/feedback"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	// Path is the WebSocket endpoint
	Path = "/feedback"

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	readLimit     = 64 << 10
	sendBuffer    = 64
)

// Engine is the part of the feedback engine driven by hosts
type Engine interface {
	EmitEvent(ctx context.Context, ev feedback.Event) error
	UpdateBattery(level float64)
	UpdateNetwork(downlinkMbps float64, effectiveType string)
	SetListenerPose(position, forward, up mgl64.Vec3)
	SetVisibility(hidden bool)
	RefreshVoices(ctx context.Context) error
	Status() feedback.Status
}

// Config holds server configuration
type Config struct {
	Addr      string
	Name      string
	Advertise bool
	// Gatherer backs /metrics when set
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server bridges host UIs to the engine
type Server struct {
	config   Config
	serverID string
	log      zerolog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	engineMu sync.RWMutex
	engine   Engine

	hosts   map[string]*Host
	hostsMu sync.RWMutex
	// order of connection; the newest capable host renders primitives
	seq int64

	speech *RemoteSynthesizer

	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Host is a connected host UI
type Host struct {
	ID        string
	Name      string
	Vibration bool
	Speech    bool
	Voices    []protocol.Voice

	conn     *websocket.Conn
	seq      int64
	sendChan chan any
	done     chan struct{}
	once     sync.Once
}

// New creates a bridge server. Attach an engine before hosts connect.
func New(config Config) *Server {
	s := &Server{
		config:   config,
		serverID: uuid.NewString(),
		log:      config.Logger.With().Str("component", "bridge").Logger(),
		mux:      http.NewServeMux(),
		hosts:    make(map[string]*Host),
		upgrader: websocket.Upgrader{
			// hosts are local UIs embedding the engine
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.speech = newRemoteSynthesizer(s)

	s.mux.HandleFunc(Path, s.handleWebSocket)
	s.mux.HandleFunc("/status", s.handleStatus)
	if config.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Attach sets the engine that receives host messages
func (s *Server) Attach(engine Engine) {
	s.engineMu.Lock()
	s.engine = engine
	s.engineMu.Unlock()
}

func (s *Server) currentEngine() Engine {
	s.engineMu.RLock()
	defer s.engineMu.RUnlock()
	return s.engine
}

// Handler serves the bridge endpoints
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Vibrator renders haptics on the newest host that supports them
func (s *Server) Vibrator() *RemoteVibrator {
	return &RemoteVibrator{server: s}
}

// Synthesizer renders narration on the newest host that supports it
func (s *Server) Synthesizer() *RemoteSynthesizer {
	return s.speech
}

// Hosts returns a snapshot of connected hosts
func (s *Server) Hosts() []*Host {
	s.hostsMu.RLock()
	defer s.hostsMu.RUnlock()
	out := make([]*Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, h)
	}
	return out
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Str("name", s.config.Name).Str("id", s.serverID).Msg("bridge starting")

	var mdns *discovery.Manager
	if s.config.Advertise {
		mdns = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Addr:        s.config.Addr,
			Logger:      s.config.Logger,
		})
		if err := mdns.Advertise(); err != nil {
			s.log.Warn().Err(err).Msg("mDNS advertisement failed")
		}
	}

	httpServer := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.config.Addr).Msg("bridge listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.log.Info().Msg("bridge shutting down")
	case serverErr = <-errChan:
		s.log.Error().Err(serverErr).Msg("HTTP server failed")
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if mdns != nil {
		mdns.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("HTTP shutdown error")
	}
	// hijacked connections are not closed by Shutdown
	for _, h := range s.Hosts() {
		h.conn.Close()
	}

	s.wg.Wait()
	s.log.Info().Msg("bridge stopped")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	engine := s.currentEngine()
	if engine == nil {
		http.Error(w, "engine not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(engine.Status()); err != nil {
		s.log.Debug().Err(err).Msg("write status")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shutdown := s.isShutdown
	s.shutdownMu.RUnlock()
	if shutdown {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new connection")

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(r.Context(), conn)
}

// handleConnection runs the handshake and then reads until the host leaves
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	conn.SetReadDeadline(time.Now().Add(writeDeadline))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		s.log.Warn().Err(err).Msg("read hello")
		return
	}
	conn.SetReadDeadline(time.Time{})

	if env.Type != protocol.TypeHostHello {
		s.rejectConn(conn, "expected_hello", fmt.Sprintf("expected %s, got %s", protocol.TypeHostHello, env.Type))
		return
	}
	var hello protocol.HostHello
	if err := env.Decode(&hello); err != nil || hello.HostID == "" || hello.Name == "" {
		s.rejectConn(conn, "invalid_hello", "host_id and name are required")
		return
	}

	host := &Host{
		ID:        hello.HostID,
		Name:      hello.Name,
		Vibration: hello.Vibration,
		Speech:    hello.Speech,
		Voices:    hello.Voices,
		conn:      conn,
		sendChan:  make(chan any, sendBuffer),
		done:      make(chan struct{}),
	}

	s.hostsMu.Lock()
	if existing, ok := s.hosts[host.ID]; ok {
		s.hostsMu.Unlock()
		s.log.Warn().Str("host", host.ID).Str("name", existing.Name).Msg("duplicate host id rejected")
		s.rejectConn(conn, "duplicate_host_id", "host id already connected")
		return
	}
	s.seq++
	host.seq = s.seq
	s.hosts[host.ID] = host
	s.hostsMu.Unlock()

	s.log.Info().
		Str("host", host.ID).
		Str("name", host.Name).
		Bool("vibration", host.Vibration).
		Bool("speech", host.Speech).
		Int("voices", len(host.Voices)).
		Msg("host connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.hostWriter(host)
	}()

	defer func() {
		s.hostsMu.Lock()
		delete(s.hosts, host.ID)
		s.hostsMu.Unlock()
		host.close()
		<-writerDone
		s.speech.hostGone(host.ID)
		s.log.Info().Str("host", host.ID).Msg("host disconnected")
	}()

	if err := host.send(protocol.TypeEngineHello, protocol.EngineHello{
		EngineID:        s.serverID,
		Name:            s.config.Name,
		Version:         protocol.Version,
		SoftwareVersion: version.Version,
	}); err != nil {
		s.log.Warn().Err(err).Msg("send engine hello")
		return
	}

	if host.Speech {
		if engine := s.currentEngine(); engine != nil {
			if err := engine.RefreshVoices(ctx); err != nil {
				s.log.Debug().Err(err).Msg("refresh voices")
			}
		}
	}

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Str("host", host.ID).Msg("read failed")
			}
			return
		}
		s.handleHostMessage(ctx, host, env)
	}
}

func (s *Server) rejectConn(conn *websocket.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeEngineError,
		Payload: protocol.EngineError{Error: code, Message: message},
	})
}

// hostWriter owns all writes to the connection
func (s *Server) hostWriter(host *Host) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-host.sendChan:
			host.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := host.conn.WriteJSON(msg); err != nil {
				s.log.Warn().Err(err).Str("host", host.ID).Msg("write failed")
				host.conn.Close()
				return
			}
		case <-ticker.C:
			if err := host.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				host.conn.Close()
				return
			}
		case <-host.done:
			return
		}
	}
}

// handleHostMessage routes one host message
func (s *Server) handleHostMessage(ctx context.Context, host *Host, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeSpeakStarted, protocol.TypeSpeakEnded, protocol.TypeSpeakError:
		var reply protocol.SpeakReply
		if err := env.Decode(&reply); err != nil {
			s.replyError(host, "invalid_payload", err)
			return
		}
		s.speech.handleReply(env.Type, reply)
		return
	}

	engine := s.currentEngine()
	if engine == nil {
		s.replyError(host, "not_ready", errors.New("engine not attached"))
		return
	}

	switch env.Type {
	case protocol.TypeEvent:
		ev, err := feedback.ParseEvent(env.Payload)
		if err != nil {
			s.replyError(host, "invalid_event", err)
			return
		}
		if err := engine.EmitEvent(ctx, ev); err != nil {
			s.log.Warn().Err(err).Str("event", ev.Kind()).Msg("event failed")
			s.replyError(host, "event_failed", err)
		}

	case protocol.TypeTelemetry:
		var tel protocol.Telemetry
		if err := env.Decode(&tel); err != nil {
			s.replyError(host, "invalid_payload", err)
			return
		}
		if tel.Battery != nil {
			engine.UpdateBattery(*tel.Battery)
		}
		if tel.DownlinkMbps != nil {
			engine.UpdateNetwork(*tel.DownlinkMbps, tel.EffectiveType)
		}

	case protocol.TypeListener:
		var pose protocol.ListenerPose
		if err := env.Decode(&pose); err != nil {
			s.replyError(host, "invalid_payload", err)
			return
		}
		engine.SetListenerPose(mgl64.Vec3(pose.Position), mgl64.Vec3(pose.Forward), mgl64.Vec3(pose.Up))

	case protocol.TypeVisibility:
		var v protocol.Visibility
		if err := env.Decode(&v); err != nil {
			s.replyError(host, "invalid_payload", err)
			return
		}
		engine.SetVisibility(v.Hidden)

	case protocol.TypeStatusRequest:
		if err := host.send(protocol.TypeStatus, engine.Status()); err != nil {
			s.log.Warn().Err(err).Msg("send status")
		}

	default:
		s.log.Debug().Str("type", env.Type).Msg("unknown message type")
		s.replyError(host, "unknown_type", fmt.Errorf("unknown message type %q", env.Type))
	}
}

func (s *Server) replyError(host *Host, code string, err error) {
	if sendErr := host.send(protocol.TypeEngineError, protocol.EngineError{Error: code, Message: err.Error()}); sendErr != nil {
		s.log.Debug().Err(sendErr).Msg("send error reply")
	}
}

// newestHost returns the most recently connected host accepted by keep
func (s *Server) newestHost(keep func(*Host) bool) *Host {
	s.hostsMu.RLock()
	defer s.hostsMu.RUnlock()
	var best *Host
	for _, h := range s.hosts {
		if keep(h) && (best == nil || h.seq > best.seq) {
			best = h
		}
	}
	return best
}

// send queues a message without blocking
func (h *Host) send(msgType string, payload any) error {
	select {
	case <-h.done:
		return ErrHostGone
	default:
	}
	select {
	case h.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("host %s send buffer full", h.ID)
	}
}

func (h *Host) close() {
	h.once.Do(func() { close(h.done) })
}
