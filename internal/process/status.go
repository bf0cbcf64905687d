package process

import "time"

// State is the lifecycle state of a supervised child.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is an externally consumable snapshot of one child.
type Status struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"exit_error,omitempty"`
	Healthy   bool      `json:"healthy"`
}
