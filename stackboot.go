// Package stackboot launches a multi-process service stack: backends first,
// health-gated, then the frontend, with ordered reverse shutdown.
package stackboot

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/ptdang/stackboot/internal/config"
	"github.com/ptdang/stackboot/internal/health"
	"github.com/ptdang/stackboot/internal/history"
	"github.com/ptdang/stackboot/internal/history/factory"
	"github.com/ptdang/stackboot/internal/metrics"
	"github.com/ptdang/stackboot/internal/process"
	iapi "github.com/ptdang/stackboot/internal/server"
	"github.com/ptdang/stackboot/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

type Config = cfg.Config

type HealthReport = health.Report

type HistorySink = history.Sink

type Phase = supervisor.Phase

// Stack is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.
type Stack struct{ inner *supervisor.Supervisor }

// New builds a Stack from resolved configuration. logger may be nil; sink may
// be nil when history export is not wanted.
func New(c *Config, logger *slog.Logger, sink HistorySink) *Stack {
	return &Stack{inner: supervisor.New(c, logger, sink)}
}

// Run launches the stack and blocks until it has terminated. Cancel ctx to
// request an ordered shutdown. A nil return means a clean shutdown.
func (s *Stack) Run(ctx context.Context) error { return s.inner.Run(ctx) }

func (s *Stack) Phase() Phase               { return s.inner.Phase() }
func (s *Stack) Statuses() []Status         { return s.inner.Statuses() }
func (s *Stack) HealthReport() HealthReport { return s.inner.HealthReport() }

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySink creates a sink from a DSN (sqlite path or postgres URL).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// ProbeOnce issues a single probe attempt against every backend health
// endpoint in c and reports the outcome. Used by `stackboot check --probe`.
func ProbeOnce(ctx context.Context, c *Config) HealthReport {
	var endpoints []health.Endpoint
	for _, b := range c.Backends {
		if b.HealthURL != "" {
			endpoints = append(endpoints, health.Endpoint{Name: b.Name, URL: b.HealthURL})
		}
	}
	p := health.NewProber(health.Config{
		MaxAttempts:    1,
		RequestTimeout: c.Health.RequestTimeout,
	})
	return p.WaitUntilHealthy(ctx, endpoints)
}

// RegisterMetrics registers the Prometheus collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// MetricsHandler serves the Prometheus exposition for the default gatherer.
func MetricsHandler() http.Handler { return metrics.Handler() }

// APIHandler returns the status/healthz/shutdown HTTP handler for embedding
// in any mux. requestStop is invoked when POST {basePath}/shutdown is hit.
func (s *Stack) APIHandler(requestStop func(), basePath string, enableMetrics bool) http.Handler {
	return iapi.NewRouter(s.inner, requestStop, basePath, enableMetrics).Handler()
}
