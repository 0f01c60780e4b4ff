package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"agentdock/internal/application"
	"agentdock/internal/command"
	"agentdock/internal/config"
	"agentdock/internal/db"
	"agentdock/internal/global"
	"agentdock/internal/logging"
	"agentdock/internal/panel"
	"agentdock/internal/process"
	"agentdock/internal/supervisor"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig: config.LoadConfig,
		RunServe: func(ctx context.Context, cfg config.Config) error {
			return runServe(ctx, os.Stdout, cfg, newLogger(cfg, os.Stderr))
		},
		RunExec: func(ctx context.Context, cfg config.Config, line string) error {
			return runExec(ctx, os.Stdout, line, newLogger(cfg, os.Stderr))
		},
		RunPanels: func(_ context.Context, _ config.Config) error {
			return runPanels(os.Stdout)
		},
		RunMigrateUp: runMigrateUp,
	})
	app.Version = version
	if err := app.RunContext(rootCtx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("agentdock failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return logging.NewLogger(logging.Options{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Writer:    w,
		Component: "agentdock",
	})
}

func resolveConfigDir(cfg config.Config) (string, error) {
	if dir := strings.TrimSpace(cfg.ConfigDir); dir != "" {
		return dir, nil
	}
	return global.DefaultConfigDir()
}

func runServe(ctx context.Context, out io.Writer, cfg config.Config, logger *slog.Logger) error {
	configDir, err := resolveConfigDir(cfg)
	if err != nil {
		return err
	}
	port := 0
	if cfg.LocalPortSet {
		port = cfg.LocalPort
	}
	app, err := application.StartApplication(ctx, application.StartOptions{
		ConfigDir:  configDir,
		DBDSN:      cfg.DBDSN,
		LocalHost:  cfg.LocalHost,
		LocalPort:  port,
		Python:     cfg.Python,
		ScriptsDir: cfg.ScriptsDir,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "agentdock %s (built %s)\n", version, buildTime)
	_, _ = fmt.Fprintf(out, "visit_url=%s/\n", app.LocalAPIBaseURL())
	logger.Info("runtime config", "config_dir", configDir, "db", app.DBDSN())
	return app.Run(ctx)
}

// runExec runs one command line under a supervisor, streams its output and
// mirrors its exit status.
func runExec(ctx context.Context, out io.Writer, line string, logger *slog.Logger) error {
	argv, err := process.ParseCommandLine(line)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if len(argv) == 0 {
		return cli.Exit("command line is required", 2)
	}
	sup := supervisor.New(logger)
	done := make(chan supervisor.Status, 1)
	_ = sup.Run(process.Spec{Argv: argv}, func(st supervisor.Status) {
		if st.Terminal() {
			done <- st
			return
		}
		if chunk, ok := st.Data.(string); ok {
			_, _ = fmt.Fprint(out, chunk)
		}
	})

	select {
	case st := <-done:
		if st.Status == supervisor.StateSuccess {
			return nil
		}
		return cli.Exit(st.Message, exitCodeOf(st.Message))
	case <-ctx.Done():
		sup.Detach()
		return cli.Exit(panel.MessageCanceled, 130)
	}
}

func exitCodeOf(message string) int {
	var code int
	if _, err := fmt.Sscanf(message, "Process exited with code %d", &code); err == nil && code > 0 {
		return code
	}
	return 1
}

func runPanels(w io.Writer) error {
	out := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(out, "ID\tTITLE")
	for _, info := range panel.Catalog() {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", info.ID, info.Title)
	}
	return out.Flush()
}

func runMigrateUp(_ context.Context, cfg config.Config) error {
	dsn := strings.TrimSpace(cfg.DBDSN)
	if dsn == "" {
		configDir, err := resolveConfigDir(cfg)
		if err != nil {
			return err
		}
		dsn = filepath.Join(configDir, "agentdock.db")
	}
	gdb, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Close(gdb)
}
