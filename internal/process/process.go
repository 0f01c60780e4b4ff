package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Spec describes one process launch.
type Spec struct {
	Argv []string
	Dir  string
	// Env entries are appended to the current environment.
	Env []string
}

// CommandLine renders argv for logs and run history. Arguments containing
// whitespace or quotes are double-quoted.
func (s Spec) CommandLine() string {
	parts := make([]string, 0, len(s.Argv))
	for _, a := range s.Argv {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// ExitError reports a process that ran but did not exit cleanly.
type ExitError struct {
	Code   int
	Signal string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return "process terminated by signal: " + e.Signal
	}
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// ExitCode returns the exit code, or -1 when the process was signaled.
func (e *ExitError) ExitCode() int {
	if e.Signal != "" {
		return -1
	}
	return e.Code
}

// Cmd is a started OS process.
type Cmd struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	waitOnce sync.Once
	waitErr  error
}

// Start launches spec. The returned Cmd must be waited on.
func Start(spec Spec) (*Cmd, error) {
	if len(spec.Argv) == 0 || strings.TrimSpace(spec.Argv[0]) == "" {
		return nil, errors.New("empty command")
	}
	c := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	c.Dir = spec.Dir
	if len(spec.Env) > 0 {
		c.Env = append(os.Environ(), spec.Env...)
	}
	c.SysProcAttr = sysProcAttr()

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	return &Cmd{cmd: c, stdout: stdout, stderr: stderr}, nil
}

// StartCommandLine parses line and launches it.
func StartCommandLine(line string) (*Cmd, error) {
	argv, err := ParseCommandLine(line)
	if err != nil {
		return nil, err
	}
	return Start(Spec{Argv: argv})
}

func (c *Cmd) Stdout() io.Reader { return c.stdout }
func (c *Cmd) Stderr() io.Reader { return c.stderr }

func (c *Cmd) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Wait must only be called after both output streams hit EOF.
func (c *Cmd) Wait() error {
	c.waitOnce.Do(func() {
		err := c.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.waitErr = exitErrorFrom(exitErr)
			return
		}
		c.waitErr = err
	})
	return c.waitErr
}

// Kill does not wait for the process to exit.
func (c *Cmd) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return killTree(c.cmd.Process)
}

// Failed stands in for a process that never started so the failure flows
// through the same status path as a runtime error.
func Failed(err error) *FailedProcess {
	return &FailedProcess{err: err}
}

type FailedProcess struct {
	err error
}

func (f *FailedProcess) Stdout() io.Reader { return nil }
func (f *FailedProcess) Stderr() io.Reader { return nil }
func (f *FailedProcess) Wait() error       { return f.err }
func (f *FailedProcess) Kill() error       { return nil }
