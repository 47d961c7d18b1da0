// Package config loads the server configuration from the `server:` section
// of config.yaml.
//
// Config fields:
//   - HTTPPort            port for the REST API and WebSocket hub (default 8080)
//   - Auth.Mode           "apikey" or "none"
//   - Auth.KeyEnv         environment variable holding the expected API key
//   - Auth.Header         HTTP header name (default "x-api-key")
//   - Storage.Backend     memory | sqlite | postgres (default memory)
//   - Storage.Retention   how long the memory backend keeps events (default 90d)
//   - Ingest.*            event intake rate limit and batch cap
//   - Quiz.CataloguePath  YAML question catalogue; empty uses the built-in one
//   - Experiments         A/B tests; defaults to landing_page_conversion_test
//   - Alerts              rules over experiment reports and webhook targets
//   - WS.Interval         how often live reports are pushed (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch and WatchFile reload on file change and keep the previous version
// when a reload fails.
package config
