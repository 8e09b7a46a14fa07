package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/synapse/internal/api"
	"github.com/dgallion1/synapse/internal/config"
	"github.com/dgallion1/synapse/internal/connections"
	"github.com/dgallion1/synapse/internal/library"
	"github.com/dgallion1/synapse/internal/session"
	"github.com/dgallion1/synapse/internal/stream"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the synapse HTTP server.

Endpoints:
  /health                      - liveness
  /api/config                  - viewer client id
  /api/documents               - upload, list, status, delete
  /api/sessions                - reading sessions, browser events, event stream
  /api/stats/connections       - backend latency

Examples:
  synapse serve
  synapse serve --port 9000
  synapse serve --config ./config.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}
	cfg := mgr.Get()
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	lib := library.New(cfg.LibraryConfig(), log)
	lib.Start(ctx)

	backend := connections.NewClient(cfg.BackendConfig(), log)
	hub := stream.NewHub(cfg.Stream.Heartbeat, log)

	bus, err := newBus(ctx, cfg, log)
	if err != nil {
		lib.Stop()
		return err
	}
	if err := bus.StartForwarder(ctx, hub.Broadcast); err != nil {
		lib.Stop()
		return fmt.Errorf("start stream forwarder: %w", err)
	}

	sessions := session.NewRegistry(lib, bus, backend, cfg.SessionConfig(), cfg.Session.IdleTTL, log)
	sessions.OnClose(hub.CloseChannel)
	sessions.Start(cfg.Session.CleanupInterval)

	mgr.OnChange(func(c config.Config) {
		sessions.SetConfig(c.SessionConfig())
		log.Info("configuration reloaded", "file", mgr.File())
	})
	if mgr.File() != "" {
		mgr.Watch(func(err error) {
			log.Warn("configuration reload rejected", "error", err)
		})
	}

	srv := api.NewServer(lib, sessions, hub, backend, log, cfg)
	httpServer := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// Event streams stay open for the whole session.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		<-ctx.Done()
		log.Info("shutting down...")

		sessions.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		lib.Stop()
		bus.Close()
		backend.Close()
	}()

	log.Info("starting synapse", "port", cfg.Server.Port, "backend", cfg.Backend.URL, "config", mgr.File())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		return err
	}
	return nil
}

// newBus picks the Redis bus when an address is configured and the in-process
// bus otherwise.
func newBus(ctx context.Context, cfg config.Config, log *slog.Logger) (stream.Bus, error) {
	if cfg.Redis.Addr == "" {
		return stream.NewLocalBus(), nil
	}
	bus, err := stream.NewRedisBus(ctx, cfg.RedisConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("connect stream bus: %w", err)
	}
	log.Info("using redis stream bus", "addr", cfg.Redis.Addr)
	return bus, nil
}
