package process

import (
	"strings"
	"testing"
)

func TestBuildCommandPlain(t *testing.T) {
	s := Spec{Name: "a", Command: "sleep 1"}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 2 || cmd.Args[1] != "1" {
		t.Fatalf("unexpected args: %#v", cmd.Args)
	}
	if strings.Contains(cmd.Path, "sh") {
		t.Fatalf("plain command must not be shell-wrapped: %q", cmd.Path)
	}
}

func TestBuildCommandMetachars(t *testing.T) {
	s := Spec{Name: "a", Command: "echo hi | cat"}
	cmd := s.BuildCommand()
	if cmd.Path != "/bin/sh" || len(cmd.Args) != 3 || cmd.Args[1] != "-c" {
		t.Fatalf("expected sh -c wrapping: %#v", cmd.Args)
	}
}

func TestBuildCommandExplicitShellNotDoubleWrapped(t *testing.T) {
	s := Spec{Name: "a", Command: "sh -c 'echo out; sleep 0.05'"}
	cmd := s.BuildCommand()
	if cmd.Path != "/bin/sh" || len(cmd.Args) != 3 {
		t.Fatalf("unexpected wrapping: %#v", cmd.Args)
	}
	if cmd.Args[2] != "echo out; sleep 0.05" {
		t.Fatalf("outer quotes not stripped: %q", cmd.Args[2])
	}
}

func TestBuildCommandEmpty(t *testing.T) {
	s := Spec{Name: "a"}
	cmd := s.BuildCommand()
	if cmd == nil || len(cmd.Args) == 0 {
		t.Fatalf("empty command must still produce a runnable cmd")
	}
}
