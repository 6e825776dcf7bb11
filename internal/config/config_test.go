package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

func TestDefaults(t *testing.T) {
	var s Settings
	if err := envconfig.Process("WEBCONSOLE_TEST_UNSET", &s); err != nil {
		t.Fatalf("process: %v", err)
	}
	s.applyDerived()

	if s.BackendPort != 8080 {
		t.Errorf("BackendPort = %d, want 8080", s.BackendPort)
	}
	if s.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %s, want 5s", s.ConnectTimeout)
	}
	if s.RDPConnectTimeout != 10*time.Second {
		t.Errorf("RDPConnectTimeout = %s, want 10s", s.RDPConnectTimeout)
	}
	if s.MaxReconnectAttempts != 3 {
		t.Errorf("MaxReconnectAttempts = %d, want 3", s.MaxReconnectAttempts)
	}
	if s.ReconnectBaseDelay != time.Second {
		t.Errorf("ReconnectBaseDelay = %s, want 1s", s.ReconnectBaseDelay)
	}
	if want := filepath.Join("./data", "webconsole.db"); s.DatabasePath != want {
		t.Errorf("DatabasePath = %q, want %q", s.DatabasePath, want)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WEBCONSOLE_BACKEND_HOST", "console.example.com")
	t.Setenv("WEBCONSOLE_BACKEND_PORT", "9443")
	t.Setenv("WEBCONSOLE_BACKEND_TLS", "true")
	t.Setenv("WEBCONSOLE_DATA_PATH", os.TempDir())

	saved := Cfg
	defer func() { Cfg = saved }()
	Load()

	ep := Cfg.Backend()
	if got := ep.WSBase(); got != "wss://console.example.com:9443" {
		t.Errorf("WSBase() = %q", got)
	}
	if got := ep.HTTPBase(); got != "https://console.example.com:9443" {
		t.Errorf("HTTPBase() = %q", got)
	}
	if Cfg.LogPath != filepath.Join(os.TempDir(), "webconsole.log") {
		t.Errorf("LogPath = %q", Cfg.LogPath)
	}
}

func TestBackendFallbacks(t *testing.T) {
	ep := Settings{}.Backend()
	if ep.HostPort() != "localhost:8080" {
		t.Errorf("HostPort() = %q, want localhost:8080", ep.HostPort())
	}

	ep = Settings{BackendHost: "::1", BackendPort: 8081}.Backend()
	if ep.HostPort() != "[::1]:8081" {
		t.Errorf("HostPort() = %q, want [::1]:8081", ep.HostPort())
	}
}
