// Command abreport evaluates one configured A/B experiment offline and
// prints the downloadable report JSON.
//
//	abreport -config cfg.yaml -events events.json -experiment NAME -range 7d [-out file]
//
// Events come from a JSON array file, or from the configured SQL store when
// -events is empty.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/quizfunnel/quizfunnel/pkg/types"
	"github.com/quizfunnel/quizfunnel/server/internal/config"
	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
	"github.com/quizfunnel/quizfunnel/server/internal/store"
)

type options struct {
	configPath string
	eventsPath string
	name       string
	rng        string
	out        string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to config file; empty uses built-in defaults")
	flag.StringVar(&o.eventsPath, "events", "", "JSON array of events; empty reads the configured SQL store")
	flag.StringVar(&o.name, "experiment", experiment.DefaultName, "experiment name")
	flag.StringVar(&o.rng, "range", string(experiment.DefaultRange), "time range: 24h, 7d, 30d or all")
	flag.StringVar(&o.out, "out", "", "write the report here; \"-\" or empty prints to stdout, a directory gets the default filename")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	_ = godotenv.Load()

	if err := run(context.Background(), o, os.Stdout, time.Now()); err != nil {
		slog.Error("abreport failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdout io.Writer, now time.Time) error {
	cfg := config.Defaults()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return err
		}
	} else {
		cfg.Server.Experiments = []experiment.Experiment{experiment.Default()}
	}

	exp, ok := cfg.Server.Experiment(o.name)
	if !ok {
		return fmt.Errorf("experiment %q is not configured", o.name)
	}
	rng, err := experiment.ParseTimeRange(o.rng)
	if err != nil {
		return err
	}

	events, err := loadEvents(ctx, o.eventsPath, cfg.Server.Storage, rng.Since(now))
	if err != nil {
		return err
	}

	ev := experiment.Evaluate(exp, events, experiment.Window{Range: rng, Now: now})
	rep := experiment.BuildReport(exp, ev, now)
	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	body = append(body, '\n')

	if o.out == "" || o.out == "-" {
		_, err = stdout.Write(body)
		return err
	}
	path := o.out
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, rep.Filename())
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintln(stdout, path)
	return nil
}

func loadEvents(ctx context.Context, path string, sc config.StorageConfig, since time.Time) ([]types.Event, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read events: %w", err)
		}
		var events []types.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parse events %q: %w", path, err)
		}
		return events, nil
	}

	var (
		s   *store.SQL
		err error
	)
	switch sc.Backend {
	case config.BackendSQLite:
		s, err = store.OpenSQLite(sc.DSN())
	case config.BackendPostgres:
		s, err = store.OpenPostgres(ctx, sc.DSN())
	default:
		return nil, errors.New("-events is required when storage.backend is memory")
	}
	if err != nil {
		return nil, err
	}
	defer s.Close() //nolint:errcheck
	return s.ListEvents(ctx, since)
}
