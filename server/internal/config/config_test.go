package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, "server: {}\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Storage.Backend != BackendMemory || s.Storage.Retention != DefaultRetention {
		t.Errorf("storage: got %+v", s.Storage)
	}
	if s.Ingest.Burst != DefaultIngestBurst || s.Ingest.MaxBatch != DefaultMaxBatch {
		t.Errorf("ingest: got %+v", s.Ingest)
	}
	if s.WS.Interval != DefaultWSInterval || s.WS.Range != experiment.Range7d {
		t.Errorf("ws: got %+v", s.WS)
	}
	if len(s.Experiments) != 1 || s.Experiments[0].Name != experiment.DefaultName {
		t.Fatalf("experiments: got %+v", s.Experiments)
	}
	if s.Experiments[0].VariantB.PixelID != "1038647624890676" {
		t.Errorf("default arm B pixel: got %q", s.Experiments[0].VariantB.PixelID)
	}
}

func TestLoad_FullServer(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://u:p@db/quiz?sslmode=disable")
	p := writeConfig(t, `server:
  http_port: 9091
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-quiz-key
  storage:
    backend: postgres
    dsn_env: TEST_PG_DSN
  ingest:
    rate_per_second: 5
    burst: 10
    max_batch: 50
  quiz:
    catalogue_path: /etc/quiz/catalogue.yaml
  experiments:
    - name: headline_test
      unit_price: 19.9
      traffic_split: 30
      variant_a: {route: /a, pixel_id: "111"}
      variant_b: {route: /b, pixel_id: "222"}
  alerts:
    rules:
      - name: winner-found
        experiment: headline_test
        condition: "significant == true"
        severity: info
        cooldown: 1h
    webhooks:
      - type: slack
        url_env: SLACK_URL
  ws:
    interval: 30s
    range: 24h
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", s.HTTPPort)
	}
	if s.Auth.Mode != "apikey" || s.Auth.EffectiveHeader() != "x-quiz-key" {
		t.Errorf("auth: got %+v", s.Auth)
	}
	if s.Storage.DSN() != "postgres://u:p@db/quiz?sslmode=disable" {
		t.Errorf("DSN: got %q", s.Storage.DSN())
	}
	if s.Ingest.RatePerSecond != 5 || s.Ingest.Burst != 10 || s.Ingest.MaxBatch != 50 {
		t.Errorf("ingest: got %+v", s.Ingest)
	}
	if s.Quiz.CataloguePath != "/etc/quiz/catalogue.yaml" {
		t.Errorf("catalogue_path: got %q", s.Quiz.CataloguePath)
	}
	e, ok := s.Experiment("headline_test")
	if !ok {
		t.Fatal("experiment headline_test not found")
	}
	if e.VariantA.ID != "A" || e.VariantB.ID != "B" {
		t.Errorf("arm ids not normalized: %q %q", e.VariantA.ID, e.VariantB.ID)
	}
	if e.UnitPrice != 19.9 || e.TrafficSplit != 30 {
		t.Errorf("experiment: got %+v", e)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Cooldown != time.Hour {
		t.Errorf("rules: got %+v", s.Alerts.Rules)
	}
	if s.WS.Interval != 30*time.Second || s.WS.Range != experiment.Range24h {
		t.Errorf("ws: got %+v", s.WS)
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n", "auth.mode"},
		{"apikey without env", "server:\n  auth:\n    mode: apikey\n", "key_env"},
		{"port out of range", "server:\n  http_port: 70000\n", "http_port"},
		{"unknown backend", "server:\n  storage:\n    backend: redis\n", "backend"},
		{"postgres without dsn", "server:\n  storage:\n    backend: postgres\n", "dsn_env"},
		{"negative retention", "server:\n  storage:\n    retention: -1h\n", "retention"},
		{"zero batch", "server:\n  ingest:\n    max_batch: 0\n", "max_batch"},
		{"bad ws range", "server:\n  ws:\n    range: 1y\n", "ws.range"},
		{
			name:    "duplicate experiments",
			yaml:    "server:\n  experiments:\n    - {name: x, variant_a: {route: /a}, variant_b: {route: /b}}\n    - {name: x, variant_a: {route: /a}, variant_b: {route: /b}}\n",
			wantErr: "duplicate",
		},
		{
			name:    "rule for unknown experiment",
			yaml:    "server:\n  alerts:\n    rules:\n      - {name: r, experiment: nope, condition: \"confidence > 1\"}\n",
			wantErr: "unknown experiment",
		},
		{
			name:    "unknown webhook type",
			yaml:    "server:\n  alerts:\n    webhooks:\n      - {type: pagerduty, url_env: X}\n",
			wantErr: "webhooks",
		},
		{"bad yaml", "server: [", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestStorageDSN(t *testing.T) {
	s := StorageConfig{Backend: BackendSQLite, Path: "/tmp/x.db"}
	if s.DSN() != "/tmp/x.db" {
		t.Errorf("sqlite DSN: got %q", s.DSN())
	}
	if (StorageConfig{Backend: BackendMemory}).DSN() != "" {
		t.Error("memory DSN should be empty")
	}
}

func TestWatch_ReloadsAfterInvalidWrite(t *testing.T) {
	p := writeConfig(t, "server:\n  http_port: 8081\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var port atomic.Int64
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p, func(c *Config) {
			port.Store(int64(c.Server.HTTPPort))
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(p, []byte("server: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(p, []byte("server:\n  http_port: 9099\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for port.Load() != 9099 {
		if time.Now().After(deadline) {
			t.Fatalf("port after reload: got %d, want 9099", port.Load())
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on cancel")
	}
}

func TestWatchFile_MissingPath(t *testing.T) {
	err := WatchFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), func() error { return nil })
	if err == nil {
		t.Fatal("expected error watching a missing file")
	}
}
