package main

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"agentdock/internal/logging"
	"agentdock/internal/panel"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var coder cli.ExitCoder
	if !errors.As(err, &coder) {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	return coder.ExitCode()
}

func TestRunExec_SuccessStreamsOutputInOrder(t *testing.T) {
	skipWithoutShell(t)
	var out bytes.Buffer
	err := runExec(context.Background(), &out, `sh -c 'printf one; printf " two"; printf " three"'`, logging.Discard())
	if err != nil {
		t.Fatalf("runExec failed: %v", err)
	}
	if got := out.String(); got != "one two three" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestRunExec_MirrorsChildExitCode(t *testing.T) {
	skipWithoutShell(t)
	var out bytes.Buffer
	err := runExec(context.Background(), &out, `sh -c 'echo partial; exit 3'`, logging.Discard())
	if code := exitCode(t, err); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	if err.Error() != "Process exited with code 3" {
		t.Fatalf("unexpected message: %v", err)
	}
	if out.String() != "partial\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRunExec_BadCommandLineExitsTwo(t *testing.T) {
	var out bytes.Buffer
	err := runExec(context.Background(), &out, `echo "unclosed`, logging.Discard())
	if code := exitCode(t, err); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should run, got %q", out.String())
	}
}

func TestRunExec_SpawnFailureExitsOne(t *testing.T) {
	var out bytes.Buffer
	err := runExec(context.Background(), &out, "agentdock-missing-binary --flag", logging.Discard())
	if code := exitCode(t, err); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRunExec_CanceledContextExits130(t *testing.T) {
	skipWithoutShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runExec(ctx, &out, "sleep 5", logging.Discard())
	if code := exitCode(t, err); code != 130 {
		t.Fatalf("expected exit code 130, got %d", code)
	}
	if err.Error() != panel.MessageCanceled {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestExitCodeOf(t *testing.T) {
	cases := map[string]int{
		"Process exited with code 7": 7,
		"Process exited with code 0": 1,
		"signal: killed":             1,
	}
	for msg, want := range cases {
		if got := exitCodeOf(msg); got != want {
			t.Fatalf("exitCodeOf(%q) = %d, want %d", msg, got, want)
		}
	}
}

func TestRunPanels_ListsCatalog(t *testing.T) {
	var out bytes.Buffer
	if err := runPanels(&out); err != nil {
		t.Fatalf("runPanels failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(panel.Catalog())+1 {
		t.Fatalf("unexpected listing:\n%s", out.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("missing header: %q", lines[0])
	}
	for i, info := range panel.Catalog() {
		if !strings.HasPrefix(lines[i+1], info.ID) || !strings.Contains(lines[i+1], info.Title) {
			t.Fatalf("line %d = %q, want %s %s", i+1, lines[i+1], info.ID, info.Title)
		}
	}
}
