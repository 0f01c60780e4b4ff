package command

import (
	"context"
	"errors"
	"strings"

	"github.com/urfave/cli/v2"

	"agentdock/internal/config"
)

type Deps struct {
	LoadConfig   func() config.Config
	RunServe     func(context.Context, config.Config) error
	RunExec      func(context.Context, config.Config, string) error
	RunPanels    func(context.Context, config.Config) error
	RunMigrateUp func(context.Context, config.Config) error
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "agentdock",
		Usage: "local agent panels for story, code and build automation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "override AGENTDOCK_LOG_LEVEL"},
			&cli.StringFlag{Name: "config-dir", Usage: "override AGENTDOCK_CONFIG_DIR"},
		},
		Action: func(ctx *cli.Context) error {
			return runServe(ctx.Context, deps, loadConfig(ctx, deps))
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the local panel server",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "listen port"},
				},
				Action: func(ctx *cli.Context) error {
					cfg := loadConfig(ctx, deps)
					if ctx.IsSet("port") {
						if p := ctx.Int("port"); p > 0 {
							cfg.LocalPort = p
							cfg.LocalPortSet = true
						}
					}
					return runServe(ctx.Context, deps, cfg)
				},
			},
			{
				Name:      "exec",
				Usage:     "run one command line under the process supervisor",
				ArgsUsage: "<command line>",
				Action: func(ctx *cli.Context) error {
					line := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
					if line == "" {
						return cli.Exit("command line is required", 2)
					}
					return runExec(ctx.Context, deps, loadConfig(ctx, deps), line)
				},
			},
			{
				Name:  "panels",
				Usage: "list the registered panels",
				Action: func(ctx *cli.Context) error {
					return runPanels(ctx.Context, deps, loadConfig(ctx, deps))
				},
			},
			{
				Name:  "migrate",
				Usage: "run database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: func(ctx *cli.Context) error {
							return runMigrateUp(ctx.Context, deps, loadConfig(ctx, deps))
						},
					},
				},
			},
		},
	}
}

func loadConfig(ctx *cli.Context, deps Deps) config.Config {
	var cfg config.Config
	if deps.LoadConfig != nil {
		cfg = deps.LoadConfig()
	} else {
		cfg = config.LoadConfig()
	}
	if v := strings.TrimSpace(ctx.String("log-level")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(ctx.String("config-dir")); v != "" {
		cfg.ConfigDir = v
	}
	return cfg
}

func runServe(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunServe == nil {
		return errors.New("serve runner is not configured")
	}
	return deps.RunServe(ctx, cfg)
}

func runExec(ctx context.Context, deps Deps, cfg config.Config, line string) error {
	if deps.RunExec == nil {
		return errors.New("exec runner is not configured")
	}
	return deps.RunExec(ctx, cfg, line)
}

func runPanels(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunPanels == nil {
		return errors.New("panels runner is not configured")
	}
	return deps.RunPanels(ctx, cfg)
}

func runMigrateUp(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunMigrateUp == nil {
		return errors.New("migrate up runner is not configured")
	}
	return deps.RunMigrateUp(ctx, cfg)
}
