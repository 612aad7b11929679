package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counseld/internal/alerts"
	"github.com/fyrsmithlabs/counseld/internal/config"
	"github.com/fyrsmithlabs/counseld/internal/conversation"
	"github.com/fyrsmithlabs/counseld/internal/crisis"
	"github.com/fyrsmithlabs/counseld/internal/httpapi"
	"github.com/fyrsmithlabs/counseld/internal/intake"
	"github.com/fyrsmithlabs/counseld/internal/logging"
	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the counseld server",
	Long: `Start the counseld HTTP server.

Configuration is loaded from the --config file (if given) and COUNSELD_*
environment variables. The server shuts down gracefully on SIGINT or
SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return runServe(ctx)
	},
}

// runServe initializes all dependencies and blocks until shutdown.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	classifier, err := crisis.NewClassifier(deps.taxonomySource)
	if err != nil {
		return fmt.Errorf("initialize classifier: %w", err)
	}

	svc, err := intake.NewService(deps.store, classifier, deps.publisher, logger)
	if err != nil {
		return fmt.Errorf("initialize intake service: %w", err)
	}
	defer svc.Close()

	srv, err := httpapi.NewServer(cfg.Server, svc, deps.store, classifier, logger)
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}

	logger.Info("counseld configured",
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("taxonomy_watch", cfg.Taxonomy.Watch),
		zap.Bool("alerts_enabled", cfg.Alerts.Enabled),
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
	)

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// dependencies holds infrastructure owned by serve.
type dependencies struct {
	store          conversation.Store
	taxonomySource taxonomy.Source
	watcher        *taxonomy.Watcher
	publisher      alerts.Publisher
	logger         *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn("taxonomy watcher stop failed", zap.Error(err))
		}
	}
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("store close failed", zap.Error(err))
		}
	}
}

// initDependencies builds the taxonomy source, conversation store, and
// alert publisher from config.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	switch {
	case cfg.Taxonomy.Path == "":
		deps.taxonomySource = taxonomy.NewStatic(taxonomy.Default())
	case cfg.Taxonomy.Watch:
		w, err := taxonomy.NewWatcher(cfg.Taxonomy.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("watch taxonomy %s: %w", cfg.Taxonomy.Path, err)
		}
		if err := w.Start(ctx); err != nil {
			return nil, fmt.Errorf("start taxonomy watcher: %w", err)
		}
		deps.watcher = w
		deps.taxonomySource = w
	default:
		tax, err := taxonomy.Load(cfg.Taxonomy.Path)
		if err != nil {
			return nil, fmt.Errorf("load taxonomy %s: %w", cfg.Taxonomy.Path, err)
		}
		deps.taxonomySource = taxonomy.NewStatic(tax)
	}

	switch cfg.Store.Backend {
	case "sqlite":
		store, err := conversation.NewSQLiteStore(cfg.Store.Path, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		deps.store = store
		logger.Info("sqlite store opened", zap.String("path", cfg.Store.Path))
	default:
		deps.store = conversation.NewMemoryStore(logger)
		logger.Info("in-memory store initialized")
	}

	if cfg.Alerts.Enabled {
		pub, err := alerts.NewNATSPublisher(cfg.Alerts.NATSURL, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connect alert publisher: %w", err)
		}
		deps.publisher = pub
	} else {
		deps.publisher = alerts.NopPublisher{}
	}

	return deps, nil
}
