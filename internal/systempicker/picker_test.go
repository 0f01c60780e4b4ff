package systempicker

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestBuildPickCommand_Darwin(t *testing.T) {
	cmd, args := buildPickCommand("darwin", Request{Title: "Select output folder", Directory: true})
	if cmd != "osascript" {
		t.Fatalf("unexpected cmd: %s", cmd)
	}
	if len(args) != 2 || !strings.Contains(args[1], `choose folder with prompt "Select output folder"`) {
		t.Fatalf("unexpected osascript args: %v", args)
	}
}

func TestBuildPickCommand_DarwinFileTypes(t *testing.T) {
	_, args := buildPickCommand("darwin", Request{Extensions: []string{"py", ".go"}})
	if !strings.Contains(args[1], `choose file with prompt "Select file" of type {"py", "go"})`) {
		t.Fatalf("unexpected osascript script: %s", args[1])
	}
}

func TestBuildPickCommand_Linux(t *testing.T) {
	cmd, args := buildPickCommand("linux", Request{Title: "Select source directory", Directory: true})
	if cmd != "zenity" {
		t.Fatalf("unexpected cmd: %s", cmd)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--directory") || !strings.Contains(joined, "--title=Select source directory") {
		t.Fatalf("unexpected zenity args: %v", args)
	}
}

func TestBuildPickCommand_LinuxFileFilter(t *testing.T) {
	_, args := buildPickCommand("linux", Request{Extensions: []string{"py", "go"}})
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "--directory") {
		t.Fatalf("file dialog must not be a directory dialog: %v", args)
	}
	if !strings.Contains(joined, "--file-filter=Code Files | *.py *.go") {
		t.Fatalf("missing filter: %v", args)
	}
}

func TestBuildPickCommand_Unsupported(t *testing.T) {
	if cmd, _ := buildPickCommand("plan9", Request{Directory: true}); cmd != "" {
		t.Fatalf("expected no command, got %s", cmd)
	}
	n := &Native{goos: "plan9", run: runCommand}
	if _, err := n.PickDirectory(context.Background(), ""); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestNative_EmptyOutputIsCanceled(t *testing.T) {
	n := &Native{goos: "linux", run: func(context.Context, string, ...string) ([]byte, error) {
		return []byte("\n"), nil
	}}
	if _, err := n.PickFile(context.Background(), "", nil); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestNative_ExitOneIsCanceled(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	n := &Native{goos: "linux", run: func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		return exec.CommandContext(ctx, sh, "-c", "exit 1").Output()
	}}
	if _, err := n.PickDirectory(context.Background(), ""); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestNative_ReturnsTrimmedPath(t *testing.T) {
	var gotName string
	n := &Native{goos: "linux", run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
		gotName = name
		return []byte("/home/u/project\n"), nil
	}}
	path, err := n.PickDirectory(context.Background(), "Select folder")
	if err != nil {
		t.Fatalf("pick failed: %v", err)
	}
	if path != "/home/u/project" || gotName != "zenity" {
		t.Fatalf("unexpected result: path=%q cmd=%q", path, gotName)
	}
}
