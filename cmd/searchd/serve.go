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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/app"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/config"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/impression"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/logging"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/notify"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/search"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search API",
	Long: `serve applies migrations, then runs the HTTP API together with the impression
batcher, the in-memory snapshot refresher (memory backend only) and the Redis
reload subscriber (when REDIS_URL is set).`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.WithName("searchd")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, st, seg, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	seed := rank.Params{
		ExplorationFactor: cfg.ExplorationFactor,
		StrengthWeight:    cfg.StrengthWeight,
		TotalDisplayCount: 1,
	}
	if err := st.EnsureRankingConfig(ctx, seed); err != nil {
		return err
	}
	params := rank.NewHolder(seed)
	if _, err := params.Reload(ctx, st); err != nil {
		return err
	}

	// The commit hook needs the app service, which needs the batcher.
	var service *app.Service
	batcher := impression.New(st, cfg.ImpressionFlushInterval,
		impression.WithLogger(logging.WithName("impression")),
		impression.WithOnCommit(func(ctx context.Context, total int64) {
			service.AfterImpressionCommit(ctx, total)
		}),
	)

	var (
		primary  search.Backend
		snapshot *search.Memory
	)
	switch cfg.SearchBackend {
	case config.BackendMemory:
		snapshot = search.NewMemory(st, seg, logging.WithName("memory"))
		if err := snapshot.Refresh(ctx); err != nil {
			return err
		}
		primary = snapshot
	default:
		primary = search.NewPgSearch(db)
	}

	searchOpts := []search.Option{
		search.WithLimits(cfg.DefaultLimit, cfg.MaxLimit),
		search.WithLogger(logging.WithName("search")),
	}
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		mirror := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, st, logging.WithName("meilisearch"))
		defer mirror.Close()
		searchOpts = append(searchOpts, search.WithMirror(mirror))
	}
	searchService := search.NewService(primary, st, seg, params, batcher, searchOpts...)

	appOpts := []app.Option{
		app.WithLogger(logging.WithName("app")),
		app.WithCheck("database", st),
	}
	var bus *notify.Bus
	if strings.TrimSpace(cfg.RedisURL) != "" {
		bus, err = notify.NewBus(cfg.RedisURL, logging.WithName("notify"))
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer bus.Close()
		appOpts = append(appOpts, app.WithBroadcaster(bus), app.WithCheck("redis", bus))
	}
	if snapshot != nil {
		appOpts = append(appOpts, app.WithCheck("snapshot", app.CheckFunc(func(context.Context) error {
			if !snapshot.Healthy() {
				return errors.New("snapshot not loaded")
			}
			return nil
		})))
	}
	service = app.New(searchService, st, st, params, appOpts...)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, logging.WithName("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("search API listening", "addr", cfg.Addr, "backend", primary.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return batcher.Run(gctx) })
	if snapshot != nil {
		g.Go(func() error { return snapshot.Run(gctx, cfg.SnapshotRefreshInterval) })
	}
	if bus != nil {
		g.Go(func() error { return bus.Run(gctx, service.ApplyReloadEvent) })
	}

	err = g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if flushErr := batcher.Close(flushCtx); flushErr != nil {
		err = errors.Join(err, flushErr)
	}
	log.Info("search API stopped")
	return err
}
