package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ptdang/stackboot/internal/health"
	"github.com/ptdang/stackboot/internal/process"
	"github.com/ptdang/stackboot/internal/supervisor"
)

type fakeView struct {
	phase    supervisor.Phase
	statuses []process.Status
	report   health.Report
}

func (f *fakeView) Phase() supervisor.Phase     { return f.phase }
func (f *fakeView) Statuses() []process.Status  { return f.statuses }
func (f *fakeView) HealthReport() health.Report { return f.report }

func TestStatusEndpoint(t *testing.T) {
	view := &fakeView{
		phase: supervisor.PhaseRunning,
		statuses: []process.Status{
			{Name: "api", State: "running", Running: true, PID: 42, Healthy: true},
			{Name: "web", State: "running", Running: true, PID: 43},
		},
		report: health.Report{AllHealthy: true, Attempts: 1},
	}
	r := NewRouter(view, nil, "", false)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code: %d", resp.StatusCode)
	}
	var body struct {
		Phase     string           `json:"phase"`
		Processes []process.Status `json:"processes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Phase != "running" || len(body.Processes) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStatusByName(t *testing.T) {
	view := &fakeView{
		phase: supervisor.PhaseRunning,
		statuses: []process.Status{
			{Name: "api", State: "running", Running: true, PID: 42},
		},
	}
	r := NewRouter(view, nil, "", false)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status?name=api")
	if err != nil {
		t.Fatalf("GET /status?name=api: %v", err)
	}
	var st process.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	_ = resp.Body.Close()
	if st.Name != "api" || st.PID != 42 {
		t.Fatalf("unexpected status: %+v", st)
	}

	resp, err = http.Get(srv.URL + "/status?name=ghost")
	if err != nil {
		t.Fatalf("GET /status?name=ghost: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown name, got %d", resp.StatusCode)
	}
}

func TestHealthzReflectsPhase(t *testing.T) {
	view := &fakeView{phase: supervisor.PhaseAwaitingHealth}
	r := NewRouter(view, nil, "", false)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before running, got %d", resp.StatusCode)
	}

	view.phase = supervisor.PhaseRunning
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 while running, got %d", resp.StatusCode)
	}
}

func TestShutdownEndpoint(t *testing.T) {
	called := make(chan struct{}, 1)
	view := &fakeView{phase: supervisor.PhaseRunning}
	r := NewRouter(view, func() { called <- struct{}{} }, "/api", false)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/shutdown", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /shutdown: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	select {
	case <-called:
	default:
		t.Fatalf("requestStop was not invoked")
	}
}

func TestShutdownEndpointUnwired(t *testing.T) {
	r := NewRouter(&fakeView{}, nil, "", false)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/shutdown", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /shutdown: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when unwired, got %d", resp.StatusCode)
	}
}

func TestMetricsRouteToggle(t *testing.T) {
	r := NewRouter(&fakeView{}, nil, "", true)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics route, got %d", resp.StatusCode)
	}

	off := NewRouter(&fakeView{}, nil, "", false)
	srvOff := httptest.NewServer(off.Handler())
	defer srvOff.Close()
	resp, err = http.Get(srvOff.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when metrics disabled, got %d", resp.StatusCode)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/":     "",
		"api":   "/api",
		"/api":  "/api",
		"/api/": "/api",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Errorf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
