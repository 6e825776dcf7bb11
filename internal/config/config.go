package config

import (
	"fmt"
	"log"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	DataPath     string `envconfig:"DATA_PATH" default:"./data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8090"`

	// Backend the session WebSockets and REST collaborators live on.
	// An empty host resolves to localhost.
	BackendHost string `envconfig:"BACKEND_HOST" default:""`
	BackendPort int    `envconfig:"BACKEND_PORT" default:"8080"`
	BackendTLS  bool   `envconfig:"BACKEND_TLS" default:"false"`
	Token       string `envconfig:"TOKEN" default:""`

	// "backend" resolves connections over REST, "local" uses the sqlite catalog.
	ConnectionSource string `envconfig:"CONNECTION_SOURCE" default:"backend"`

	// Connection lifecycle
	ConnectTimeout       time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`
	RDPConnectTimeout    time.Duration `envconfig:"RDP_CONNECT_TIMEOUT" default:"10s"`
	MaxReconnectAttempts int           `envconfig:"MAX_RECONNECT_ATTEMPTS" default:"3"`
	ReconnectBaseDelay   time.Duration `envconfig:"RECONNECT_BASE_DELAY" default:"1s"`
	HealthProbeTimeout   time.Duration `envconfig:"HEALTH_PROBE_TIMEOUT" default:"3s"`
	HealthSchedule       string        `envconfig:"HEALTH_SCHEDULE" default:"@every 30s"`

	// Outbound pointer events per second per session.
	InputRate  float64 `envconfig:"INPUT_RATE" default:"200"`
	InputBurst int     `envconfig:"INPUT_BURST" default:"200"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("WEBCONSOLE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg.applyDerived()
}

func (s *Settings) applyDerived() {
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataPath, "webconsole.db")
	}
	if s.LogPath == "" {
		s.LogPath = filepath.Join(s.DataPath, "webconsole.log")
	}
}

// Endpoint is the resolved backend location used to build session and REST URLs.
type Endpoint struct {
	Host string
	Port int
	TLS  bool
}

// Backend resolves the configured backend endpoint.
func (s Settings) Backend() Endpoint {
	host := s.BackendHost
	if host == "" {
		host = "localhost"
	}
	port := s.BackendPort
	if port == 0 {
		port = 8080
	}
	return Endpoint{Host: host, Port: port, TLS: s.BackendTLS}
}

// HostPort returns host:port, bracketing IPv6 literals.
func (e Endpoint) HostPort() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// HTTPBase returns the http(s) origin of the backend.
func (e Endpoint) HTTPBase() string {
	scheme := "http"
	if e.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, e.HostPort())
}

// WSBase returns the ws(s) origin of the backend.
func (e Endpoint) WSBase() string {
	scheme := "ws"
	if e.TLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, e.HostPort())
}
