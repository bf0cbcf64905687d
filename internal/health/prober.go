package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
)

// Design defaults; tests and callers override via Config.
const (
	DefaultInterval       = 2 * time.Second
	DefaultMaxAttempts    = 30
	DefaultRequestTimeout = 5 * time.Second
)

// Endpoint names one HTTP health URL to be gated on.
type Endpoint struct {
	Name string
	URL  string
}

// Result is the per-endpoint outcome of a probing run.
type Result struct {
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	Healthy          bool      `json:"healthy"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	LastChecked      time.Time `json:"last_checked"`
	LastError        string    `json:"last_error,omitempty"`
}

// Report summarizes a WaitUntilHealthy run over a set of endpoints.
type Report struct {
	AllHealthy bool          `json:"all_healthy"`
	Canceled   bool          `json:"canceled"`
	Attempts   int           `json:"attempts"`
	Elapsed    time.Duration `json:"elapsed"`
	Results    []Result      `json:"results"`
}

// Unhealthy returns the endpoints that did not pass in the final attempt.
func (r Report) Unhealthy() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Healthy {
			out = append(out, res)
		}
	}
	return out
}

// Config parameterizes the prober so tests can use small values instead of
// the production defaults.
type Config struct {
	Interval       time.Duration
	MaxAttempts    int
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Prober polls a set of HTTP health endpoints until all respond successfully
// within the same attempt or the attempt budget is exhausted. It has no side
// effects beyond the network calls.
type Prober struct {
	cfg    Config
	client *retryablehttp.Client
	logger *slog.Logger
}

func NewProber(cfg Config) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Attempt pacing is owned by the prober; the client must not retry on
	// its own or a hung endpoint would eat into the interval budget.
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	return &Prober{cfg: cfg, client: client, logger: logger}
}

// WaitUntilHealthy probes every endpoint concurrently within each attempt and
// returns as soon as all endpoints are healthy in the same attempt. When the
// attempt budget runs out the report flags the endpoints that never passed;
// that is a degraded-readiness outcome, not an error. A canceled context ends
// polling immediately and marks the report canceled.
func (p *Prober) WaitUntilHealthy(ctx context.Context, endpoints []Endpoint) Report {
	start := time.Now()
	report := Report{Results: make([]Result, len(endpoints))}
	for i, ep := range endpoints {
		report.Results[i] = Result{Name: ep.Name, URL: ep.URL}
	}
	if len(endpoints) == 0 {
		report.AllHealthy = true
		report.Elapsed = time.Since(start)
		return report
	}

	pace := backoff.NewConstantBackOff(p.cfg.Interval)
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			report.Canceled = true
			break
		}
		report.Attempts = attempt
		if p.probeAll(ctx, report.Results) {
			report.AllHealthy = true
			break
		}
		if ctx.Err() != nil {
			report.Canceled = true
			break
		}
		if attempt < p.cfg.MaxAttempts {
			if !sleepWithContext(ctx, pace.NextBackOff()) {
				report.Canceled = true
				break
			}
		}
	}
	report.Elapsed = time.Since(start)
	if !report.AllHealthy && !report.Canceled {
		for _, res := range report.Unhealthy() {
			p.logger.Warn("endpoint never became healthy",
				"name", res.Name, "url", res.URL, "attempts", report.Attempts)
		}
	}
	return report
}

// probeAll issues one concurrent probe per endpoint and reports whether every
// endpoint was healthy in this attempt.
func (p *Prober) probeAll(ctx context.Context, results []Result) bool {
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(res *Result) {
			defer wg.Done()
			err := p.probeOnce(ctx, res.URL)
			res.LastChecked = time.Now()
			if err != nil {
				res.Healthy = false
				res.ConsecutiveFails++
				res.LastError = err.Error()
			} else {
				res.Healthy = true
				res.ConsecutiveFails = 0
				res.LastError = ""
			}
		}(&results[i])
	}
	wg.Wait()
	for i := range results {
		if !results[i].Healthy {
			return false
		}
	}
	return true
}

func (p *Prober) probeOnce(ctx context.Context, url string) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("unhealthy status: %s", resp.Status)
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
