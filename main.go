package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/crypto"
	"github.com/gluk-w/claworc/webconsole/internal/database"
	"github.com/gluk-w/claworc/webconsole/internal/logging"
	"github.com/gluk-w/claworc/webconsole/internal/session"
)

var rootCmd = &cobra.Command{
	Use:           "webconsole",
	Short:         "Multi-tab remote console client for SSH, Telnet, RDP and VNC sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, opens logging and the database, and resolves the
// backend token. The returned func releases both.
func setup(console io.Writer) (func(), error) {
	config.Load()
	logging.Init(console)

	if err := database.Init(); err != nil {
		logging.Close()
		return nil, fmt.Errorf("database init: %w", err)
	}

	if config.Cfg.Token == "" {
		token, err := crypto.LoadToken()
		if err != nil {
			log.Printf("WARNING: cannot load stored backend token: %v", err)
		}
		config.Cfg.Token = token
	}

	return func() {
		database.Close()
		logging.Close()
	}, nil
}

// connectionSource picks the collaborator that resolves connections and
// mints session ids.
func connectionSource(client *backend.Client) (session.Backend, bool, error) {
	switch config.Cfg.ConnectionSource {
	case "", "backend":
		return client, false, nil
	case "local":
		return database.Catalog{}, true, nil
	default:
		return nil, false, fmt.Errorf("unknown connection source %q (want backend or local)", config.Cfg.ConnectionSource)
	}
}
