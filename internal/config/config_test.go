package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stack.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[[services]]
name = "api"
command = "sleep 1"
health_url = "http://127.0.0.1:8001/health"

[[services]]
name = "worker"
command = "sleep 1"
tier = 1

[frontend]
name = "web"
command = "sleep 1"
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(cfg.Backends))
	}
	if cfg.Backends[0].HealthURL != "http://127.0.0.1:8001/health" {
		t.Fatalf("health url lost: %+v", cfg.Backends[0])
	}
	if cfg.Frontend.Name != "web" {
		t.Fatalf("frontend missing: %+v", cfg.Frontend)
	}
	// Frontend tier is forced above every backend tier.
	if cfg.Frontend.Tier != 2 {
		t.Fatalf("expected frontend tier 2, got %d", cfg.Frontend.Tier)
	}
	if cfg.Stop.Grace != DefaultStopGrace || cfg.Stop.Ceiling != DefaultShutdownCeiling {
		t.Fatalf("stop defaults not applied: %+v", cfg.Stop)
	}
}

func TestLoadSectionsAndOverrides(t *testing.T) {
	body := `
[log]
level = "debug"
format = "json"
dir = "/tmp/logs"

[health]
interval = "100ms"
max_attempts = 5
request_timeout = "1s"

[stop]
grace = "3s"
ceiling = "12s"

[server]
enabled = true
listen = "127.0.0.1:9900"

[history]
enabled = true
dsn = ":memory:"

[[services]]
name = "api"
command = "sleep 1"
stop_grace = "7s"

  [services.log]
  dir = "/tmp/api-logs"

[frontend]
name = "web"
command = "sleep 1"
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Health.Interval != 100*time.Millisecond || cfg.Health.MaxAttempts != 5 {
		t.Fatalf("health section wrong: %+v", cfg.Health)
	}
	if cfg.Stop.Grace != 3*time.Second || cfg.Stop.Ceiling != 12*time.Second {
		t.Fatalf("stop section wrong: %+v", cfg.Stop)
	}
	if !cfg.Server.Enabled || cfg.Server.Listen != "127.0.0.1:9900" {
		t.Fatalf("server section wrong: %+v", cfg.Server)
	}
	if !cfg.History.Enabled || cfg.History.DSN != ":memory:" {
		t.Fatalf("history section wrong: %+v", cfg.History)
	}
	api := cfg.Backends[0]
	if api.StopGrace != 7*time.Second {
		t.Fatalf("per-service grace not applied: %v", api.StopGrace)
	}
	if api.Log.Dir != "/tmp/api-logs" {
		t.Fatalf("per-service log override not applied: %+v", api.Log)
	}
	// Frontend falls back to the global grace.
	if cfg.Frontend.StopGrace != 3*time.Second {
		t.Fatalf("frontend grace wrong: %v", cfg.Frontend.StopGrace)
	}
	if cfg.Logger.Slog.Level != "debug" || string(cfg.Logger.Slog.Format) != "json" {
		t.Fatalf("logger section wrong: %+v", cfg.Logger.Slog)
	}
}

func TestLoadEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "stack.env")
	if err := os.WriteFile(envFile, []byte("FROM_FILE=yes\nSHARED=file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	body := `
env = ["SHARED=toml", "ONLY_TOML=1"]
env_files = ["` + envFile + `"]

[[services]]
name = "api"
command = "sleep 1"

[frontend]
name = "web"
command = "sleep 1"
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := make(map[string]string)
	for _, kv := range cfg.Backends[0].Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			got[kv[:i]] = kv[i+1:]
		}
	}
	if got["FROM_FILE"] != "yes" {
		t.Fatalf("env file var missing: %v", got)
	}
	if got["SHARED"] != "toml" {
		t.Fatalf("top-level env must override env files, got %q", got["SHARED"])
	}
	if got["ONLY_TOML"] != "1" {
		t.Fatalf("top-level env var missing: %v", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no services": `
[frontend]
name = "web"
command = "sleep 1"
`,
		"no frontend": `
[[services]]
name = "api"
command = "sleep 1"
`,
		"missing command": `
[[services]]
name = "api"

[frontend]
name = "web"
command = "sleep 1"
`,
		"duplicate names": `
[[services]]
name = "api"
command = "sleep 1"

[[services]]
name = "api"
command = "sleep 1"

[frontend]
name = "web"
command = "sleep 1"
`,
		"frontend collides": `
[[services]]
name = "web"
command = "sleep 1"

[frontend]
name = "web"
command = "sleep 1"
`,
		"bad health url": `
[[services]]
name = "api"
command = "sleep 1"
health_url = "not-a-url"

[frontend]
name = "web"
command = "sleep 1"
`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
