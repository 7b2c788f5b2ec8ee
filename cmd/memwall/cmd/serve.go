package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/memwall/internal/api"
	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/service"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API and websocket server",
	Long: `Start the memwall server.

Clients connect to /ws/analysis and send a control message such as
{"scenario":"pmm","tier":"lite","offload_enabled":true}; the run's events
stream back on the same connection. The REST API under /api/v1 lists
scenarios and run history, and /api/v1/runs/stream mirrors every live run.

The config file and scenario file are watched; changes apply to runs
started afterwards.

Examples:
  # Start with configured defaults (127.0.0.1:8000)
  memwall serve

  # Listen on all interfaces
  memwall serve --host 0.0.0.0 --port 9000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host address to bind to (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	snap, err := loadSnapshot()
	if err != nil {
		return err
	}
	logger := newLogger(snap.Config)

	store, err := config.NewStore(newLoader(), logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := store.Current().Config

	sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("closing session store", "error", err)
		}
	}()

	bus := events.NewBus(256)
	defer bus.Close()

	launcher, err := service.NewLauncher(service.Deps{
		Configs:  store,
		Sampler:  telemetry.NewHostSampler(),
		Sessions: sessions,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(launcher, store, bus,
		api.WithLogger(logger),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithHTTPTimeouts(
			config.Duration(cfg.Server.ReadTimeout, 0),
			config.Duration(cfg.Server.IdleTimeout, 0),
		),
	)

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	shutdown := config.Duration(cfg.Server.ShutdownTimeout, 10*time.Second)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := store.Watch(gctx); err != nil {
			logger.Warn("config watch disabled", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		defer stop()
		return server.ListenAndServe(gctx, addr, shutdown)
	})

	err = g.Wait()
	logger.Info("shutting down, stopping active runs")
	launcher.StopAll()
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
