// ABOUTME: mDNS service discovery for the feedback bridge
// ABOUTME: Handles advertisement by the engine and browsing by hosts
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

// ServiceType is the DNS-SD type of the bridge
const ServiceType = "_feedback._tcp"

const (
	defaultPath  = "/feedback"
	queryTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	// Addr is the bridge listen address; only its port is advertised
	Addr   string
	Logger zerolog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	bridges chan *BridgeInfo
}

// BridgeInfo describes a discovered bridge
type BridgeInfo struct {
	Name string
	Host string
	Port int
	// Path is the WebSocket endpoint announced in the TXT record
	Path string
}

// Address is host:port for dialing
func (b *BridgeInfo) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		log:     config.Logger.With().Str("component", "mdns").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		bridges: make(chan *BridgeInfo, 10),
	}
}

// Port extracts the port from a listen address such as ":8928"
func Port(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}

// Advertise announces the bridge until Stop
func (m *Manager) Advertise() error {
	port, err := Port(m.config.Addr)
	if err != nil {
		return err
	}
	ips, err := localIPv4()
	if err != nil {
		return fmt.Errorf("list local addresses: %w", err)
	}
	if len(ips) == 0 {
		return errors.New("no IPv4 address to advertise")
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		port,
		ips,
		[]string{"path=" + defaultPath},
	)
	if err != nil {
		return fmt.Errorf("mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("mdns server: %w", err)
	}

	m.log.Info().
		Str("name", m.config.ServiceName).
		Int("port", port).
		Str("type", ServiceType).
		Msg("advertising")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// Browse searches for bridges until Stop
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for m.ctx.Err() == nil {
		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for entry := range entries {
				bridge, ok := bridgeFromEntry(entry)
				if !ok {
					continue
				}
				m.log.Debug().Str("name", bridge.Name).Str("addr", bridge.Address()).Msg("discovered bridge")
				select {
				case m.bridges <- bridge:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = queryTimeout
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			m.log.Debug().Err(err).Msg("mdns query failed")
		}
		close(entries)
		<-done
	}
}

// bridgeFromEntry keeps IPv4 answers and reads the endpoint path from TXT
func bridgeFromEntry(e *mdns.ServiceEntry) (*BridgeInfo, bool) {
	if e == nil || e.AddrV4 == nil || e.Port <= 0 {
		return nil, false
	}
	b := &BridgeInfo{Name: e.Name, Host: e.AddrV4.String(), Port: e.Port, Path: defaultPath}
	for _, field := range e.InfoFields {
		if v, ok := strings.CutPrefix(field, "path="); ok && v != "" {
			b.Path = v
		}
	}
	return b, true
}

// Bridges returns the channel of discovered bridges
func (m *Manager) Bridges() <-chan *BridgeInfo {
	return m.bridges
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

func localIPv4() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var addrs []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if a, err := iface.Addrs(); err == nil {
			addrs = append(addrs, a...)
		}
	}
	return usableIPv4(addrs), nil
}

// usableIPv4 filters interface addresses down to routable IPv4
func usableIPv4(addrs []net.Addr) []net.IP {
	var ips []net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			ips = append(ips, v4)
		}
	}
	return ips
}
