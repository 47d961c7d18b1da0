package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition over an experiment
// report.
type AlertRule struct {
	// Name is the human-readable alert identifier. Together with the
	// experiment name it forms the deduplication key.
	Name string `yaml:"name"`

	// Experiment limits the rule to one experiment. Empty matches all.
	Experiment string `yaml:"experiment"`

	// Condition is a simple expression: "confidence >= 95", "visitors_a < 30",
	// "lift > 20", "winner == B", "significant == true".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort     = 8080
	DefaultRetention    = 90 * 24 * time.Hour
	DefaultSQLitePath   = "quizfunnel.db"
	DefaultIngestRPS    = 50
	DefaultIngestBurst  = 200
	DefaultMaxBatch     = 1000
	DefaultWSInterval   = 5 * time.Second
	DefaultReportRange  = experiment.DefaultRange
	defaultAPIKeyHeader = "x-api-key"
)

// Config holds the server configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates REST and WebSocket clients.
	Auth AuthConfig `yaml:"auth"`

	// Storage selects where events and quiz results are kept.
	Storage StorageConfig `yaml:"storage"`

	// Ingest throttles the event intake endpoint.
	Ingest IngestConfig `yaml:"ingest"`

	// Quiz points at the question catalogue.
	Quiz QuizConfig `yaml:"quiz"`

	// Experiments lists the A/B tests to evaluate. Defaults to the landing
	// page conversion test when empty.
	Experiments []experiment.Experiment `yaml:"experiments"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// WS controls the live report stream.
	WS WSConfig `yaml:"ws"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return defaultAPIKeyHeader
}

// StorageConfig selects the event and result store.
type StorageConfig struct {
	// Backend is one of: memory | sqlite | postgres.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Used when Backend == "sqlite".
	Path string `yaml:"path"`

	// DSNEnv names the environment variable holding the Postgres DSN.
	DSNEnv string `yaml:"dsn_env"`

	// Retention is how long events are kept by the memory backend.
	// Default: 90 days.
	Retention time.Duration `yaml:"retention"`
}

// DSN returns the database connection string for the configured backend.
func (s StorageConfig) DSN() string {
	switch s.Backend {
	case BackendSQLite:
		return s.Path
	case BackendPostgres:
		if s.DSNEnv == "" {
			return ""
		}
		return os.Getenv(s.DSNEnv)
	}
	return ""
}

// IngestConfig throttles POST /api/v1/events.
type IngestConfig struct {
	// RatePerSecond is the sustained number of ingest requests allowed.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the token bucket size.
	Burst int `yaml:"burst"`

	// MaxBatch caps the events accepted per request.
	MaxBatch int `yaml:"max_batch"`
}

// QuizConfig locates the question catalogue.
type QuizConfig struct {
	// CataloguePath is a YAML catalogue file. Empty uses the built-in catalogue.
	CataloguePath string `yaml:"catalogue_path"`
}

// WSConfig controls the WebSocket report stream.
type WSConfig struct {
	// Interval is how often reports are pushed to connected clients.
	Interval time.Duration `yaml:"interval"`

	// Range is the window used for streamed reports.
	Range experiment.TimeRange `yaml:"range"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML config document, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if len(cfg.Server.Experiments) == 0 {
		cfg.Server.Experiments = []experiment.Experiment{experiment.Default()}
	}
	for i := range cfg.Server.Experiments {
		cfg.Server.Experiments[i].Normalize()
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. It is also
// what the server runs with when no config file is given.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Auth:     AuthConfig{Mode: "none"},
			Storage: StorageConfig{
				Backend:   BackendMemory,
				Path:      DefaultSQLitePath,
				Retention: DefaultRetention,
			},
			Ingest: IngestConfig{
				RatePerSecond: DefaultIngestRPS,
				Burst:         DefaultIngestBurst,
				MaxBatch:      DefaultMaxBatch,
			},
			WS: WSConfig{
				Interval: DefaultWSInterval,
				Range:    DefaultReportRange,
			},
		},
	}
}

// Experiment looks up a configured experiment by name.
func (s ServerConfig) Experiment(name string) (experiment.Experiment, bool) {
	for _, e := range s.Experiments {
		if e.Name == name {
			return e, true
		}
	}
	return experiment.Experiment{}, false
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey":
		if s.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required when mode is apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}

	switch s.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for sqlite")
		}
	case BackendPostgres:
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for postgres")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|sqlite|postgres", s.Storage.Backend)
	}
	if s.Storage.Retention < 0 {
		return fmt.Errorf("server.storage.retention must not be negative")
	}

	if s.Ingest.RatePerSecond < 0 || s.Ingest.Burst < 0 {
		return fmt.Errorf("server.ingest rate and burst must not be negative")
	}
	if s.Ingest.MaxBatch <= 0 {
		return fmt.Errorf("server.ingest.max_batch must be positive")
	}

	seen := make(map[string]bool, len(s.Experiments))
	for _, e := range s.Experiments {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("server.experiments: %w", err)
		}
		if seen[e.Name] {
			return fmt.Errorf("server.experiments: duplicate name %q", e.Name)
		}
		seen[e.Name] = true
	}

	for i, r := range s.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
		if r.Experiment != "" && !seen[r.Experiment] {
			return fmt.Errorf("server.alerts.rules[%d]: unknown experiment %q", i, r.Experiment)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: type %q unknown: want slack|teams|http", i, w.Type)
		}
	}

	if s.WS.Interval <= 0 {
		return fmt.Errorf("server.ws.interval must be positive")
	}
	if _, err := experiment.ParseTimeRange(string(s.WS.Range)); err != nil {
		return fmt.Errorf("server.ws.range: %w", err)
	}
	return nil
}
