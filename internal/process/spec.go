package process

import (
	"os/exec"
	"strings"
	"time"

	"github.com/ptdang/stackboot/internal/logger"
)

// Spec describes one service to be supervised. It is immutable once the
// supervisor has been constructed.
type Spec struct {
	Name      string            `json:"name" mapstructure:"name"`
	Command   string            `json:"command" mapstructure:"command"`       // command to start the process (shell allowed)
	WorkDir   string            `json:"work_dir" mapstructure:"workdir"`      // optional working dir
	Env       []string          `json:"env" mapstructure:"env"`               // optional extra env (KEY=VALUE)
	HealthURL string            `json:"health_url" mapstructure:"health_url"` // optional HTTP health endpoint; backends set this
	Tier      int               `json:"tier" mapstructure:"tier"`             // launch ordering; lower tiers start first, shutdown runs in reverse
	StopGrace time.Duration     `json:"stop_grace" mapstructure:"stop_grace"` // per-process grace before SIGKILL escalation
	Log       logger.FileConfig `json:"log" mapstructure:"log"`               // child stdout/stderr destinations
}

// BuildCommand constructs an *exec.Cmd for the given spec.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// ok: intentional execution, input is validated and safe
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair so that
			// we pass the actual script to the shell (the outer quotes would otherwise
			// inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
