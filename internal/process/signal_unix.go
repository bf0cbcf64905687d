//go:build !windows

package process

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
)

const (
	sigTerm = syscall.SIGTERM
	sigKill = syscall.SIGKILL
)

// signalGroup delivers sig to the whole process group so shell-wrapped
// children and their descendants are signaled together.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// processAlive checks liveness with the null signal.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// isZombie returns true if /proc/<pid>/status reports a zombie state (Z).
// On systems without procfs the check degrades to false.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
