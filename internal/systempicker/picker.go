package systempicker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

var (
	ErrCanceled    = errors.New("selection canceled")
	ErrUnsupported = errors.New("picker unsupported on this platform")
)

// Request describes one dialog. Extensions only apply to file dialogs.
type Request struct {
	Title      string
	Directory  bool
	Extensions []string
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Native shows the desktop's own dialog via osascript, zenity or powershell.
type Native struct {
	goos string
	run  runFunc
}

func New() *Native {
	return &Native{goos: runtime.GOOS, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (n *Native) PickDirectory(ctx context.Context, title string) (string, error) {
	return n.pick(ctx, Request{Title: title, Directory: true})
}

func (n *Native) PickFile(ctx context.Context, title string, extensions []string) (string, error) {
	return n.pick(ctx, Request{Title: title, Extensions: extensions})
}

func (n *Native) pick(ctx context.Context, req Request) (string, error) {
	cmd, args := buildPickCommand(n.goos, req)
	if cmd == "" {
		return "", ErrUnsupported
	}
	out, err := n.run(ctx, cmd, args...)
	if err != nil {
		// Every supported dialog exits 1 when the user dismisses it.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", ErrCanceled
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("run %s: %w", cmd, err)
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", ErrCanceled
	}
	return path, nil
}

func buildPickCommand(goos string, req Request) (string, []string) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		if req.Directory {
			title = "Select folder"
		} else {
			title = "Select file"
		}
	}
	switch goos {
	case "darwin":
		if req.Directory {
			return "osascript", []string{"-e", fmt.Sprintf(`POSIX path of (choose folder with prompt %q)`, title)}
		}
		script := fmt.Sprintf(`POSIX path of (choose file with prompt %q`, title)
		if types := appleTypes(req.Extensions); types != "" {
			script += " of type {" + types + "}"
		}
		return "osascript", []string{"-e", script + ")"}
	case "linux":
		args := []string{"--file-selection", "--title=" + title}
		if req.Directory {
			return "zenity", append(args, "--directory")
		}
		if pattern := globPattern(req.Extensions, " "); pattern != "" {
			args = append(args, "--file-filter=Code Files | "+pattern, "--file-filter=All Files | *")
		}
		return "zenity", args
	case "windows":
		if req.Directory {
			return "powershell", []string{
				"-NoProfile",
				"-Command",
				fmt.Sprintf("Add-Type -AssemblyName System.Windows.Forms; $d=New-Object System.Windows.Forms.FolderBrowserDialog; $d.Description='%s'; if($d.ShowDialog() -eq 'OK'){Write-Output $d.SelectedPath}", psQuote(title)),
			}
		}
		filter := "All Files|*.*"
		if pattern := globPattern(req.Extensions, ";"); pattern != "" {
			filter = "Code Files|" + pattern + "|" + filter
		}
		return "powershell", []string{
			"-NoProfile",
			"-Command",
			fmt.Sprintf("Add-Type -AssemblyName System.Windows.Forms; $d=New-Object System.Windows.Forms.OpenFileDialog; $d.Title='%s'; $d.Filter='%s'; if($d.ShowDialog() -eq 'OK'){Write-Output $d.FileName}", psQuote(title), psQuote(filter)),
		}
	default:
		return "", nil
	}
}

func globPattern(exts []string, sep string) string {
	parts := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimPrefix(strings.TrimSpace(e), ".")
		if e == "" || e == "*" {
			continue
		}
		parts = append(parts, "*."+e)
	}
	return strings.Join(parts, sep)
}

func appleTypes(exts []string) string {
	parts := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimPrefix(strings.TrimSpace(e), ".")
		if e == "" || e == "*" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%q", e))
	}
	return strings.Join(parts, ", ")
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
