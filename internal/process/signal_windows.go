//go:build windows

package process

import (
	"os"
	"syscall"
)

const (
	sigTerm = syscall.SIGTERM
	sigKill = syscall.SIGKILL
)

// signalGroup approximates Unix group signaling on Windows: both signals map
// to terminating the process handle.
func signalGroup(pid int, _ syscall.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal(0) is not supported on Windows; FindProcess succeeding plus a
	// benign Release is the best available approximation.
	defer func() { _ = p.Release() }()
	return true
}

func isZombie(int) bool { return false }
