package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hexwatch-backend/config"
	"hexwatch-backend/internal/api"
	"hexwatch-backend/internal/db"
	"hexwatch-backend/internal/history"
	"hexwatch-backend/internal/notification"
	"hexwatch-backend/internal/palette"
	"hexwatch-backend/internal/profile"
	"hexwatch-backend/internal/scraper"
	"hexwatch-backend/internal/store"
	"hexwatch-backend/pkg/logger"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the auction scanner, alert workers and HTTP API",
		Long: `Serve starts the auction scanner together with the notification workers and
the HTTP API. It runs until interrupted; SIGINT or SIGTERM stop the scanner
at its next sleep and shut the HTTP server down gracefully.

Examples:
  # Run with a config file
  hexwatchd serve --config config/config.yaml

  # Override single keys from the environment
  HEXWATCH_SCRAPER__CADENCE=30s hexwatchd serve`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired daemon.
type app struct {
	cfg     *config.Config
	store   store.Store
	pool    *notification.WorkerPool
	scanner *scraper.Service
	server  *http.Server
	log     logger.Logger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.Named("hexwatchd")

	catalog, err := palette.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	if missing := catalog.Missing(watchedSlots(cfg)); len(missing) > 0 {
		return nil, fmt.Errorf("catalog %s has no entries for slots %s (has %s)", cfg.Catalog.Path,
			strings.Join(missing, ", "), strings.Join(catalog.Categories(), ", "))
	}
	ranker := newRanker(cfg, catalog)
	log.Info(ctx, "catalog loaded", logger.String("path", cfg.Catalog.Path), logger.Int("entries", catalog.Len()))

	gormDB, err := db.Init(ctx, &cfg.Database, logger.Named("db"))
	if err != nil {
		return nil, err
	}
	st := store.NewGormStore(gormDB)

	var push *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		push = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		log.Warn(ctx, "VAPID keys are not configured, web push is disabled")
	}

	var histClient *history.Client
	if cfg.History.Enabled {
		histClient = history.NewClient(cfg.History, nil)
	}
	var histOpts []history.Option
	if cfg.Inventory.Enabled {
		histOpts = append(histOpts, history.WithInventory(history.NewInventoryClient(cfg.Inventory, nil)))
	}
	hist := history.NewResolver(histClient, st, cfg.Scraper.WatchedItems, logger.Named("history"), histOpts...)

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, notification.Deps{
		Store:         st,
		WebPush:       push,
		Webhook:       notification.NewWebhookClient(cfg.Webhook, nil),
		WebhookConfig: cfg.Webhook,
		Names:         profile.NewResolver(cfg.Profile, nil, logger.Named("profile")),
		History:       hist,
		Log:           logger.Named("notification"),
	})

	scanner := scraper.NewService(cfg, st, ranker,
		scraper.WithDispatcher(pool),
		scraper.WithLogger(logger.Named("scraper")))

	a := &app{cfg: cfg, store: st, pool: pool, scanner: scanner, log: log}
	if cfg.Server.Enabled {
		handler := api.NewHandler(cfg, api.Deps{
			Store:   st,
			Ranker:  ranker,
			WebPush: push,
			History: hist,
			Log:     logger.Named("api"),
		})
		a.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewRouter(&cfg.Server, handler),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return a, nil
}

func newRanker(cfg *config.Config, catalog *palette.Catalog) *palette.Ranker {
	return palette.NewRanker(catalog, palette.WithFamilies(palette.FamiliesFrom(cfg.Catalog.Families)...))
}

func watchedSlots(cfg *config.Config) []string {
	slots := make([]string, 0, len(cfg.Scraper.WatchedItems))
	for _, slot := range cfg.Scraper.WatchedItems {
		slots = append(slots, slot)
	}
	return slots
}

// run supervises the scanner and the HTTP server until ctx is cancelled or
// one of them fails.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.pool.Start(gctx)
	g.Go(func() error {
		return a.scanner.Run(gctx)
	})

	if a.server != nil {
		g.Go(func() error {
			a.log.Info(gctx, "HTTP server starting", logger.String("addr", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			a.log.Info(gctx, "shutdown signal received, stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("HTTP server shutdown: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		a.log.Error(ctx, "service stopped with error", logger.Error(err))
		return err
	}
	a.log.Info(ctx, "service gracefully stopped")
	return nil
}

func (a *app) close() {
	sqlDB, err := a.store.DB().DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		a.log.Warn(context.Background(), "failed to close database", logger.Error(err))
	}
}
