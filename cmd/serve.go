package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/transom-dev/transom/internal/log"
	"github.com/transom-dev/transom/internal/metrics"
	"github.com/transom-dev/transom/internal/registry"
	"github.com/transom-dev/transom/internal/router"
	"github.com/transom-dev/transom/internal/sandbox"
	"github.com/transom-dev/transom/internal/schemastore"
	"github.com/transom-dev/transom/internal/server"
	"github.com/transom-dev/transom/internal/tracing"
	"github.com/transom-dev/transom/internal/transform"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker daemon",
	Long: `Run the broker as a long-lived daemon exposing the JSON-RPC surface over
HTTP. Providers and Consumers register contracts against it; matched pairs can
then route live calls through the registered transformations.

Example:
  transom serve                       # Listen on the configured address
  transom serve --addr :9000          # Override the listen address
  transom serve --schema-dir ./spec   # Resolve schema paths against ./spec`,
	RunE: runServe,
}

var (
	serveAddr      string
	serveSchemaDir string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveSchemaDir, "schema-dir", "", "Schema base directory (overrides config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	if serveSchemaDir != "" {
		cfg.SchemaDir = serveSchemaDir
	}
	if debugFlag || os.Getenv("TRANSOM_DEBUG") != "" {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.LogFile != "" {
		cleanup, err := log.Init(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()
	} else {
		log.InitWithWriter(os.Stderr)
	}
	if !cfg.Debug {
		log.SetMinLevel(log.LevelInfo)
	}

	log.Info(log.CatConfig, "broker starting",
		"addr", cfg.ListenAddr, "schemaDir", cfg.SchemaDir, "debug", cfg.Debug)

	tracer, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	store := schemastore.NewFileStore(cfg.SchemaDir)

	var watcher *schemastore.Watcher
	if cfg.WatchSchemas {
		watcher, err = schemastore.NewWatcher(schemastore.DefaultWatcherConfig(store))
		if err != nil {
			return fmt.Errorf("creating schema watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			log.Warn(log.CatStore, "schema watching unavailable", "error", err)
			watcher = nil
		}
	}

	reg := registry.New(store)
	exec := sandbox.New(cfg.Sandbox.Timeout())
	engine := transform.NewEngine(reg, exec)
	recorder := metrics.NewRecorder()
	rt := router.New(router.Config{
		Registry:        reg,
		Engine:          engine,
		Recorder:        recorder,
		ProviderTimeout: cfg.Provider.Timeout(),
	})

	srv, err := server.New(server.Config{
		Addr:     cfg.ListenAddr,
		Registry: reg,
		Router:   rt,
		Recorder: recorder,
		Tracer:   tracer.Tracer(),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Printf("Transom broker listening on port %d\n", srv.Port())
	fmt.Println("Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error(log.CatRPC, "error stopping server", "error", err)
	}
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Error(log.CatStore, "error stopping schema watcher", "error", err)
		}
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Error(log.CatConfig, "error shutting down tracing", "error", err)
	}

	fmt.Println("Broker stopped")
	return nil
}
