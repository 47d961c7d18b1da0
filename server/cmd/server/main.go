package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quizfunnel/quizfunnel/server/internal/alerts"
	"github.com/quizfunnel/quizfunnel/server/internal/api"
	"github.com/quizfunnel/quizfunnel/server/internal/auth"
	"github.com/quizfunnel/quizfunnel/server/internal/catalogue"
	"github.com/quizfunnel/quizfunnel/server/internal/config"
	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
	"github.com/quizfunnel/quizfunnel/server/internal/metrics"
	"github.com/quizfunnel/quizfunnel/server/internal/receiver"
	"github.com/quizfunnel/quizfunnel/server/internal/store"
	"github.com/quizfunnel/quizfunnel/server/internal/ws"
)

// alertInterval re-evaluates alert rules as report windows slide, even when
// no events arrive.
const alertInterval = time.Minute

func main() {
	configPath := flag.String("config", "", "path to config file; empty runs with built-in defaults")
	envFile := flag.String("env-file", ".env", "dotenv file with secrets referenced by *_env settings")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	slog.Info("quizfunnel-server starting", "config", *configPath)

	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	} else {
		cfg.Server.Experiments = []experiment.Experiment{experiment.Default()}
	}
	sc := cfg.Server
	if sc.Auth.Mode == "apikey" && sc.Auth.Key() == "" {
		slog.Error("auth mode is apikey but the key variable is empty", "key_env", sc.Auth.KeyEnv)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"storage", sc.Storage.Backend,
		"experiments", len(sc.Experiments),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, sc.Storage)
	if err != nil {
		slog.Error("failed to open store", "backend", sc.Storage.Backend, "err", err)
		os.Exit(1)
	}
	defer st.Close() //nolint:errcheck

	cat, err := loadCatalogue(sc.Quiz.CataloguePath)
	if err != nil {
		slog.Error("failed to load catalogue", "err", err)
		os.Exit(1)
	}

	alertEngine := alerts.New(sc.Alerts)
	rec := receiver.New(st, sc.Ingest)
	handler := api.New(api.Deps{
		Store:       st,
		Receiver:    rec,
		Alerts:      alertEngine,
		Counters:    &metrics.Counters{},
		Catalogue:   cat,
		Experiments: sc.Experiments,
		ReportRange: sc.WS.Range,
	})

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				handler.SetExperiments(next.Server.Experiments)
				alertEngine.Reload(next.Server.Alerts)
				rec.SetLimits(next.Server.Ingest)
				if next.Server.Quiz.CataloguePath != sc.Quiz.CataloguePath {
					slog.Warn("config: catalogue_path changes need a restart",
						"current", sc.Quiz.CataloguePath, "requested", next.Server.Quiz.CataloguePath)
				}
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}
	if path := sc.Quiz.CataloguePath; path != "" {
		go func() {
			err := config.WatchFile(ctx, path, func() error {
				next, err := catalogue.Load(path)
				if err != nil {
					return err
				}
				handler.SetCatalogue(next)
				return nil
			})
			if err != nil {
				slog.Error("catalogue watcher stopped", "err", err)
			}
		}()
	}

	go evaluateLoop(ctx, handler)

	hub := ws.New(ws.SourceFunc(func(ctx context.Context) ([]experiment.Report, error) {
		return handler.Reports(ctx, sc.WS.Range)
	}), sc.WS.Interval)
	go hub.Run(ctx)

	requireKey := auth.APIKeyMiddleware(sc.Auth.Mode, sc.Auth.EffectiveHeader(), sc.Auth.Key())

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", requireKey(handler))
	httpMux.Handle("/metrics", handler)
	httpMux.Handle("/ws/stream", requireKey(hub))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("quizfunnel-server shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// openStore builds the configured backend and starts its retention loop.
func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := store.OpenSQLite(cfg.DSN())
		if err != nil {
			return nil, err
		}
		go purgeLoop(ctx, s, cfg.Retention)
		return s, nil
	case config.BackendPostgres:
		s, err := store.OpenPostgres(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		go purgeLoop(ctx, s, cfg.Retention)
		return s, nil
	default:
		m := store.NewMemory(cfg.Retention)
		go m.Run(ctx)
		return m, nil
	}
}

// purgeLoop deletes events older than retention from a SQL store every hour.
func purgeLoop(ctx context.Context, s *store.SQL, retention time.Duration) {
	if retention <= 0 {
		return
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := s.DeleteEventsBefore(ctx, time.Now().Add(-retention))
		if err != nil && ctx.Err() == nil {
			slog.Error("store: purge failed", "err", err)
		} else if n > 0 {
			slog.Info("store: purged expired events", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func loadCatalogue(path string) (*catalogue.Catalogue, error) {
	if path == "" {
		return catalogue.Default(), nil
	}
	return catalogue.Load(path)
}

func evaluateLoop(ctx context.Context, h *api.Handler) {
	t := time.NewTicker(alertInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := h.EvaluateAlerts(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("alerts: periodic evaluation failed", "err", err)
			}
		}
	}
}
