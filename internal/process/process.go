package process

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Child wraps one launched OS process. Exactly one Child exists per launched
// service; no two handles ever reference the same process id.
type Child struct {
	mu       sync.Mutex
	spec     Spec
	cmd      *exec.Cmd
	state    State
	status   Status
	stopping bool
	waitDone chan struct{} // closed by the reaper when Wait returns
	outW     io.WriteCloser
	errW     io.WriteCloser
}

// Launch starts the external program described by spec in its own process
// group, detached from the supervisor's foreground, and begins reaping it in
// the background. It returns a *LaunchError when the program cannot start.
func Launch(spec Spec) (*Child, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	configureSysProcAttr(cmd)

	c := &Child{spec: spec, state: StateStarting}

	// Redirect child output; never inherit the supervisor's stdio and never
	// block on a pipe the child may fill.
	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Name)
		c.outW, c.errW = outW, errW
		if outW != nil {
			cmd.Stdout = outW
		} else {
			cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
		if errW != nil {
			cmd.Stderr = errW
		} else {
			cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}

	if err := cmd.Start(); err != nil {
		c.closeWriters()
		return nil, &LaunchError{Name: spec.Name, Err: err}
	}

	c.cmd = cmd
	c.waitDone = make(chan struct{})
	c.status = Status{
		Name:      spec.Name,
		State:     StateStarting.String(),
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	go c.reap()
	return c, nil
}

// NewFailed returns a handle in state failed for a service whose launch was
// attempted and refused. It keeps the one-handle-per-service invariant so the
// supervisor can report every configured service.
func NewFailed(spec Spec, err error) *Child {
	return &Child{
		spec:  spec,
		state: StateFailed,
		status: Status{
			Name:    spec.Name,
			State:   StateFailed.String(),
			ExitErr: err,
		},
	}
}

// reap waits for the process to exit, records the outcome, and releases the
// output writers. It is the only goroutine that calls Wait.
func (c *Child) reap() {
	err := c.cmd.Wait()
	c.mu.Lock()
	c.status.Running = false
	c.status.StoppedAt = time.Now()
	c.status.ExitErr = err
	if c.state != StateStopping {
		c.state = StateStopped
	}
	c.status.State = c.state.String()
	wd := c.waitDone
	c.mu.Unlock()
	c.closeWriters()
	close(wd)
}

func (c *Child) closeWriters() {
	c.mu.Lock()
	outW, errW := c.outW, c.errW
	c.outW, c.errW = nil, nil
	c.mu.Unlock()
	if outW != nil {
		_ = outW.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}

// Spec returns a copy of the service spec this handle was launched from.
func (c *Child) Spec() Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// PID returns the tracked process id, or 0 for a failed launch.
func (c *Child) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.PID
}

// State returns the current lifecycle state.
func (c *Child) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MarkRunning transitions starting -> running. Called by the supervisor once
// readiness has been established (health passed, or degraded startup chose to
// proceed). No-op in any other state.
func (c *Child) MarkRunning() {
	c.mu.Lock()
	if c.state == StateStarting {
		c.state = StateRunning
		c.status.State = c.state.String()
	}
	c.mu.Unlock()
}

// SetHealthy records the latest health probe outcome for status reporting.
func (c *Child) SetHealthy(v bool) {
	c.mu.Lock()
	c.status.Healthy = v
	c.mu.Unlock()
}

// DetectAlive probes liveness of the tracked process without blocking. It
// never errors for an already-exited process; it just reports false.
func (c *Child) DetectAlive() bool {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return false
	}
	// A quickly-exiting child can linger as a zombie until reaped; that is
	// not alive for supervision purposes.
	if isZombie(pid) {
		return false
	}
	return processAlive(pid)
}

// Snapshot returns a copy of the current status.
func (c *Child) Snapshot() Status {
	c.mu.Lock()
	s := c.status
	s.State = c.state.String()
	c.mu.Unlock()
	return s
}

// WaitDone returns a channel closed once the process has exited and been
// reaped, or nil for a handle that never started.
func (c *Child) WaitDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitDone
}

// Stop asks the process to terminate: SIGTERM to the process group, then
// SIGKILL if it has not exited within grace. Idempotent; calling Stop on an
// already-stopped or failed handle is a no-op.
func (c *Child) Stop(grace time.Duration) error {
	c.mu.Lock()
	if c.stopping || c.state == StateStopped || c.state == StateFailed {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	if c.cmd == nil || !c.status.Running {
		c.state = StateStopped
		c.status.State = c.state.String()
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	c.status.State = c.state.String()
	pid := c.status.PID
	wd := c.waitDone
	c.mu.Unlock()

	_ = signalGroup(pid, sigTerm)
	select {
	case <-wd:
	case <-time.After(grace):
		_ = signalGroup(pid, sigKill)
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
			// best-effort; the reaper will finish eventually
		}
	}

	c.mu.Lock()
	c.state = StateStopped
	c.status.State = c.state.String()
	c.mu.Unlock()
	return nil
}

// Kill force-terminates the process group immediately. Used when the overall
// shutdown ceiling has been exhausted.
func (c *Child) Kill() error {
	c.mu.Lock()
	if c.cmd == nil || c.state == StateStopped || c.state == StateFailed {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	c.state = StateStopping
	pid := c.status.PID
	wd := c.waitDone
	c.mu.Unlock()

	_ = signalGroup(pid, sigKill)
	if wd != nil {
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
		}
	}
	c.mu.Lock()
	c.state = StateStopped
	c.status.State = c.state.String()
	c.mu.Unlock()
	return nil
}

// StopRequested reports whether Stop or Kill has been invoked on this handle.
func (c *Child) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}
