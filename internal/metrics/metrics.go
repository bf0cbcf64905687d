package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackboot",
			Subsystem: "process",
			Name:      "launches_total",
			Help:      "Number of successful process launches.",
		}, []string{"name", "tier"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackboot",
			Subsystem: "process",
			Name:      "launch_failures_total",
			Help:      "Number of launches that were refused by the OS.",
		}, []string{"name", "tier"},
	)
	stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackboot",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or kill).",
		}, []string{"name"},
	)
	kills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackboot",
			Subsystem: "process",
			Name:      "kills_total",
			Help:      "Number of SIGKILL escalations.",
		}, []string{"name"},
	)
	runningProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stackboot",
			Subsystem: "process",
			Name:      "running",
			Help:      "Current number of running supervised processes.",
		},
	)

	healthProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackboot",
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Number of health probes issued, by outcome.",
		}, []string{"name", "outcome"},
	)
	healthWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stackboot",
			Subsystem: "health",
			Name:      "wait_duration_seconds",
			Help:      "Total time spent waiting for backends to become healthy.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
	endpointHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackboot",
			Subsystem: "health",
			Name:      "endpoint_healthy",
			Help:      "Last observed health per endpoint (1 healthy, 0 not).",
		}, []string{"name"},
	)

	phase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackboot",
			Subsystem: "supervisor",
			Name:      "phase",
			Help:      "Current supervisor phase (1 = active phase, 0 = inactive).",
		}, []string{"phase"},
	)
	shutdownDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stackboot",
			Subsystem: "supervisor",
			Name:      "shutdown_duration_seconds",
			Help:      "Observed duration of the full shutdown sequence.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, launchFailures, stops, kills, runningProcesses,
		healthProbes, healthWaitDuration, endpointHealthy, phase, shutdownDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(name, tier string) {
	if regOK.Load() {
		launches.WithLabelValues(name, tier).Inc()
	}
}

func IncLaunchFailure(name, tier string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(name, tier).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		stops.WithLabelValues(name).Inc()
	}
}

func IncKill(name string) {
	if regOK.Load() {
		kills.WithLabelValues(name).Inc()
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		runningProcesses.Set(float64(n))
	}
}

func IncHealthProbe(name string, healthy bool) {
	if regOK.Load() {
		outcome := "fail"
		if healthy {
			outcome = "ok"
		}
		healthProbes.WithLabelValues(name, outcome).Inc()
	}
}

func ObserveHealthWait(seconds float64) {
	if regOK.Load() {
		healthWaitDuration.Observe(seconds)
	}
}

func SetEndpointHealthy(name string, healthy bool) {
	if regOK.Load() {
		var v float64
		if healthy {
			v = 1
		}
		endpointHealthy.WithLabelValues(name).Set(v)
	}
}

func SetPhase(name string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		phase.WithLabelValues(name).Set(v)
	}
}

func ObserveShutdownDuration(seconds float64) {
	if regOK.Load() {
		shutdownDuration.Observe(seconds)
	}
}
