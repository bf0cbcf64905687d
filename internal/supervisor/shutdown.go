package supervisor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ptdang/stackboot/internal/history"
	"github.com/ptdang/stackboot/internal/metrics"
	"github.com/ptdang/stackboot/internal/process"
)

// ErrShutdownCeiling reports that the stack did not come down within the
// configured ceiling and remaining processes were force-killed.
var ErrShutdownCeiling = errors.New("shutdown ceiling exceeded; remaining processes killed")

// shutdown tears the stack down in reverse tier order: the frontend tier
// first, then backends from highest tier to lowest. Each tier is stopped
// concurrently with its per-process grace. One ceiling bounds the whole
// sequence; when it fires every process still up is SIGKILLed and
// shutdownErr is set. Idempotent.
func (s *Supervisor) shutdown() {
	s.shutdownOnce.Do(func() {
		s.setPhase(PhaseShuttingDown)
		start := time.Now()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for _, tier := range s.tiersDescending() {
				s.stopTier(tier)
			}
		}()

		select {
		case <-done:
		case <-time.After(s.cfg.Stop.Ceiling):
			s.logger.Error("shutdown ceiling exceeded, killing remaining processes",
				"ceiling", s.cfg.Stop.Ceiling)
			s.killRemaining()
			s.shutdownErr = ErrShutdownCeiling
		}

		metrics.ObserveShutdownDuration(time.Since(start).Seconds())
		metrics.SetRunning(0)
		s.logger.Info("shutdown complete", "elapsed", time.Since(start), "forced", s.shutdownErr != nil)
	})
}

// tiersDescending groups the tracked children by tier, highest first.
func (s *Supervisor) tiersDescending() [][]*process.Child {
	s.mu.Lock()
	byTier := make(map[int][]*process.Child)
	for _, c := range s.children {
		t := c.Spec().Tier
		byTier[t] = append(byTier[t], c)
	}
	s.mu.Unlock()

	tiers := make([]int, 0, len(byTier))
	for t := range byTier {
		tiers = append(tiers, t)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(tiers)))

	out := make([][]*process.Child, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, byTier[t])
	}
	return out
}

func (s *Supervisor) stopTier(children []*process.Child) {
	var wg sync.WaitGroup
	for _, c := range children {
		wg.Add(1)
		go func(c *process.Child) {
			defer wg.Done()
			spec := c.Spec()
			st := c.Snapshot()
			if !st.Running {
				return
			}
			s.logger.Info("stopping", "name", spec.Name, "pid", st.PID, "grace", spec.StopGrace)
			_ = c.Stop(spec.StopGrace)
			metrics.IncStop(spec.Name)
			s.record(history.EventStop, history.Record{
				Name: spec.Name, Tier: fmt.Sprintf("%d", spec.Tier), PID: st.PID,
				State: process.StateStopped.String(),
			})
		}(c)
	}
	wg.Wait()
}

func (s *Supervisor) killRemaining() {
	s.mu.Lock()
	children := make([]*process.Child, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	s.mu.Unlock()
	for _, c := range children {
		st := c.Snapshot()
		if !st.Running {
			continue
		}
		spec := c.Spec()
		s.logger.Warn("force killing", "name", spec.Name, "pid", st.PID)
		_ = c.Kill()
		metrics.IncKill(spec.Name)
		s.record(history.EventKill, history.Record{
			Name: spec.Name, Tier: fmt.Sprintf("%d", spec.Tier), PID: st.PID,
			State: process.StateStopped.String(),
		})
	}
}
