package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/handlers"
	"github.com/gluk-w/claworc/webconsole/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tab API and viewer WebSockets",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides WEBCONSOLE_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cleanup, err := setup(os.Stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		config.Cfg.ListenAddr = listen
	}

	client := backend.FromConfig()
	source, local, err := connectionSource(client)
	if err != nil {
		return err
	}
	log.Printf("Config: backend=%s source=%s listen=%s", config.Cfg.Backend().HostPort(), config.Cfg.ConnectionSource, config.Cfg.ListenAddr)
	if config.Cfg.Token == "" {
		log.Printf("WARNING: no backend token configured; sessions will fail to authenticate")
	}

	tabs := session.NewRegistry(session.OptionsFromConfig(config.Cfg, source, client))
	handlers.Tabs = tabs
	if lister, ok := source.(handlers.ConnectionLister); ok {
		handlers.Connections = lister
	}
	handlers.LocalCatalog = local

	monitor, err := handlers.NewHealthMonitor(client, config.Cfg.HealthSchedule, config.Cfg.HealthProbeTimeout)
	if err != nil {
		return err
	}
	handlers.Monitor = monitor
	monitor.Start()

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: handlers.NewRouter(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n := tabs.CloseAll(shutdownCtx)
	log.Printf("Closed %d tabs", n)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
	return nil
}
