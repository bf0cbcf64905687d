package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "stackboot") {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestCheckCommandValidConfig(t *testing.T) {
	body := `
[[services]]
name = "api"
command = "sleep 1"
health_url = "http://127.0.0.1:8001/health"

[frontend]
name = "web"
command = "sleep 1"
`
	path := filepath.Join(t.TempDir(), "stack.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := runCommand(t, "check", "--config", path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "config ok") || !strings.Contains(out, "api") {
		t.Fatalf("unexpected check output: %q", out)
	}
}

func TestCheckCommandProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	body := `
[[services]]
name = "api"
command = "sleep 1"
health_url = "` + srv.URL + `/health"

[frontend]
name = "web"
command = "sleep 1"
`
	path := filepath.Join(t.TempDir(), "stack.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := runCommand(t, "check", "--config", path, "--probe")
	if err != nil {
		t.Fatalf("check --probe: %v\n%s", err, out)
	}
	if !strings.Contains(out, "healthy") {
		t.Fatalf("probe result missing: %q", out)
	}
}

func TestCheckCommandProbeUnhealthy(t *testing.T) {
	body := `
[[services]]
name = "api"
command = "sleep 1"
health_url = "http://127.0.0.1:1/health"

[frontend]
name = "web"
command = "sleep 1"
`
	path := filepath.Join(t.TempDir(), "stack.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := runCommand(t, "check", "--config", path, "--probe"); err == nil {
		t.Fatalf("expected error for unreachable endpoint")
	}
}

func TestCheckCommandMissingFile(t *testing.T) {
	_, err := runCommand(t, "check", "--config", filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestCheckCommandInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.toml")
	if err := os.WriteFile(path, []byte("[[services]]\nname='x'\ncommand='sleep 1'\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := runCommand(t, "check", "--config", path)
	if err == nil {
		t.Fatalf("expected error for config without frontend")
	}
}
