package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ptdang/stackboot/internal/config"
	"github.com/ptdang/stackboot/internal/health"
	"github.com/ptdang/stackboot/internal/history"
	"github.com/ptdang/stackboot/internal/metrics"
	"github.com/ptdang/stackboot/internal/process"
)

// Phase is the supervisor's coarse lifecycle state, exposed for status
// reporting. Transitions are strictly forward.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseLaunchingBackends Phase = "launching_backends"
	PhaseAwaitingHealth    Phase = "awaiting_health"
	PhaseLaunchingFrontend Phase = "launching_frontend"
	PhaseRunning           Phase = "running"
	PhaseShuttingDown      Phase = "shutting_down"
	PhaseTerminated        Phase = "terminated"
)

// Supervisor owns the full stack lifecycle: backend launch, health gating,
// frontend launch, steady-state watch, and ordered shutdown.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger
	prober *health.Prober
	sink   history.Sink // optional

	mu       sync.Mutex
	phase    Phase
	children map[string]*process.Child
	frontend *process.Child
	report   health.Report

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a supervisor from resolved configuration. sink may be nil when
// history export is disabled.
func New(cfg *config.Config, lg *slog.Logger, sink history.Sink) *Supervisor {
	if lg == nil {
		lg = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		logger: lg,
		sink:   sink,
		prober: health.NewProber(health.Config{
			Interval:       cfg.Health.Interval,
			MaxAttempts:    cfg.Health.MaxAttempts,
			RequestTimeout: cfg.Health.RequestTimeout,
			Logger:         lg,
		}),
		phase:    PhaseIdle,
		children: make(map[string]*process.Child),
	}
}

// Run drives the stack from launch to termination. It returns nil only for a
// clean shutdown: every other outcome (frontend refused to start, frontend
// exited with an error, shutdown ceiling overrun) is an error the caller maps
// to a non-zero exit code. Cancel ctx to request shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setPhase(PhaseLaunchingBackends)
	s.launchBackends()

	s.setPhase(PhaseAwaitingHealth)
	proceed := s.awaitHealth(ctx)
	if !proceed {
		// Canceled while polling; tear down whatever started.
		s.shutdown()
		s.setPhase(PhaseTerminated)
		return s.shutdownErr
	}

	s.setPhase(PhaseLaunchingFrontend)
	front, err := s.launchFrontend()
	if err != nil {
		s.logger.Error("frontend failed to launch", "name", s.cfg.Frontend.Name, "error", err)
		s.shutdown()
		s.setPhase(PhaseTerminated)
		if s.shutdownErr != nil {
			return s.shutdownErr
		}
		return err
	}

	s.setPhase(PhaseRunning)
	s.logger.Info("stack is up", "frontend", front.Spec().Name, "backends", len(s.cfg.Backends))

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case <-front.WaitDone():
		st := front.Snapshot()
		if st.ExitErr != nil {
			s.logger.Error("frontend exited", "name", st.Name, "error", st.ExitErr)
			runErr = fmt.Errorf("frontend %s exited: %w", st.Name, st.ExitErr)
		} else {
			s.logger.Info("frontend exited cleanly", "name", st.Name)
		}
	}

	s.shutdown()
	s.setPhase(PhaseTerminated)
	if s.shutdownErr != nil {
		return s.shutdownErr
	}
	return runErr
}

// launchBackends starts every backend concurrently. A refused launch is
// recorded as a failed handle and logged; it does not abort startup, the
// health gate will surface the gap.
func (s *Supervisor) launchBackends() {
	var wg sync.WaitGroup
	for _, spec := range s.cfg.Backends {
		wg.Add(1)
		go func(spec process.Spec) {
			defer wg.Done()
			tier := fmt.Sprintf("%d", spec.Tier)
			child, err := process.Launch(spec)
			if err != nil {
				s.logger.Error("backend failed to launch", "name", spec.Name, "error", err)
				metrics.IncLaunchFailure(spec.Name, tier)
				s.record(history.EventLaunchFailed, history.Record{
					Name: spec.Name, Tier: tier, State: process.StateFailed.String(), Detail: err.Error(),
				})
				child = process.NewFailed(spec, err)
			} else {
				s.logger.Info("backend launched", "name", spec.Name, "pid", child.PID())
				metrics.IncLaunch(spec.Name, tier)
				s.record(history.EventLaunch, history.Record{
					Name: spec.Name, Tier: tier, PID: child.PID(), State: process.StateStarting.String(),
				})
			}
			s.mu.Lock()
			s.children[spec.Name] = child
			s.mu.Unlock()
		}(spec)
	}
	wg.Wait()
	s.updateRunningGauge()
}

// awaitHealth polls every launched backend that declares a health URL. A
// degraded outcome (budget exhausted with failures remaining) is logged and
// startup proceeds anyway. Returns false only when ctx was canceled.
func (s *Supervisor) awaitHealth(ctx context.Context) bool {
	var endpoints []health.Endpoint
	s.mu.Lock()
	for name, child := range s.children {
		spec := child.Spec()
		if spec.HealthURL == "" || child.State() == process.StateFailed {
			continue
		}
		endpoints = append(endpoints, health.Endpoint{Name: name, URL: spec.HealthURL})
	}
	s.mu.Unlock()
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Name < endpoints[j].Name })

	report := s.prober.WaitUntilHealthy(ctx, endpoints)
	s.mu.Lock()
	s.report = report
	s.mu.Unlock()
	metrics.ObserveHealthWait(report.Elapsed.Seconds())

	for _, res := range report.Results {
		metrics.SetEndpointHealthy(res.Name, res.Healthy)
		metrics.IncHealthProbe(res.Name, res.Healthy)
		s.mu.Lock()
		child := s.children[res.Name]
		s.mu.Unlock()
		if child != nil {
			child.SetHealthy(res.Healthy)
		}
	}
	if report.Canceled {
		return false
	}

	if report.AllHealthy {
		s.logger.Info("all backends healthy", "attempts", report.Attempts, "elapsed", report.Elapsed)
		for _, res := range report.Results {
			s.record(history.EventHealthPass, history.Record{Name: res.Name, State: process.StateRunning.String()})
		}
	} else {
		for _, res := range report.Unhealthy() {
			s.logger.Warn("starting degraded: backend not healthy",
				"name", res.Name, "url", res.URL, "last_error", res.LastError)
			s.record(history.EventHealthDegraded, history.Record{
				Name: res.Name, State: process.StateStarting.String(), Detail: res.LastError,
			})
		}
	}

	// Every live backend is promoted to running, healthy or not; the stack
	// starts degraded rather than not at all.
	s.mu.Lock()
	for _, child := range s.children {
		child.MarkRunning()
	}
	s.mu.Unlock()
	return true
}

func (s *Supervisor) launchFrontend() (*process.Child, error) {
	spec := s.cfg.Frontend
	tier := fmt.Sprintf("%d", spec.Tier)
	child, err := process.Launch(spec)
	if err != nil {
		metrics.IncLaunchFailure(spec.Name, tier)
		s.record(history.EventLaunchFailed, history.Record{
			Name: spec.Name, Tier: tier, State: process.StateFailed.String(), Detail: err.Error(),
		})
		return nil, err
	}
	child.MarkRunning()
	metrics.IncLaunch(spec.Name, tier)
	s.record(history.EventLaunch, history.Record{
		Name: spec.Name, Tier: tier, PID: child.PID(), State: process.StateRunning.String(),
	})
	s.logger.Info("frontend launched", "name", spec.Name, "pid", child.PID())

	s.mu.Lock()
	s.children[spec.Name] = child
	s.frontend = child
	s.mu.Unlock()
	s.updateRunningGauge()
	return child, nil
}

// Phase returns the current lifecycle phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Statuses returns a snapshot of every tracked process, frontend included,
// ordered by tier then name.
func (s *Supervisor) Statuses() []process.Status {
	s.mu.Lock()
	children := make([]*process.Child, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	s.mu.Unlock()
	sort.Slice(children, func(i, j int) bool {
		si, sj := children[i].Spec(), children[j].Spec()
		if si.Tier != sj.Tier {
			return si.Tier < sj.Tier
		}
		return si.Name < sj.Name
	})
	out := make([]process.Status, 0, len(children))
	for _, c := range children {
		out = append(out, c.Snapshot())
	}
	return out
}

// HealthReport returns the most recent readiness report.
func (s *Supervisor) HealthReport() health.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	old := s.phase
	s.phase = p
	s.mu.Unlock()
	metrics.SetPhase(string(old), false)
	metrics.SetPhase(string(p), true)
	s.logger.Debug("phase change", "from", string(old), "to", string(p))
}

func (s *Supervisor) updateRunningGauge() {
	n := 0
	s.mu.Lock()
	for _, c := range s.children {
		if c.Snapshot().Running {
			n++
		}
	}
	s.mu.Unlock()
	metrics.SetRunning(n)
}

// record exports one history event; failures are logged, never propagated.
func (s *Supervisor) record(t history.EventType, rec history.Record) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.sink.Send(ctx, history.Event{Type: t, OccurredAt: time.Now(), Record: rec}); err != nil {
		s.logger.Warn("history sink send failed", "event", string(t), "name", rec.Name, "error", err)
	}
}
