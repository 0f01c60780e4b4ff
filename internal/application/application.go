package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"agentdock/internal/appserver"
	"agentdock/internal/db"
	"agentdock/internal/events"
	"agentdock/internal/fsbrowser"
	"agentdock/internal/global"
	"agentdock/internal/historydb"
	"agentdock/internal/jenkins"
	"agentdock/internal/lifecycle"
	"agentdock/internal/localapi"
	"agentdock/internal/metrics"
	"agentdock/internal/panel"
	"agentdock/internal/settings"
	"agentdock/internal/systempicker"
)

const (
	defaultHost     = "127.0.0.1"
	defaultDBName   = "agentdock.db"
	secretFileName  = ".agentdock-secret"
	shutdownTimeout = 3 * time.Second
)

type Application struct {
	localAPIBaseURL string
	dbDSN           string
	runFn           func(context.Context) error
	shutdownFn      func(context.Context) error
}

// StartApplication wires the stores, panels and servers of the local
// runtime. Nothing listens until Run is called.
func StartApplication(_ context.Context, opts StartOptions) (*Application, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	configDir := strings.TrimSpace(opts.ConfigDir)
	if configDir == "" {
		return nil, errors.New("config dir is required")
	}
	cfgStore := global.NewConfigStore(configDir)
	cfg, err := cfgStore.LoadOrInit()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var current atomic.Pointer[global.GlobalConfig]
	current.Store(&cfg)

	dsn := strings.TrimSpace(opts.DBDSN)
	if dsn == "" {
		dsn = filepath.Join(configDir, defaultDBName)
	}
	gdb, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	settingsStore, err := settings.NewStore(gdb, filepath.Join(configDir, secretFileName))
	if err != nil {
		_ = db.Close(gdb)
		return nil, err
	}
	historyStore, err := historydb.NewStore(gdb)
	if err != nil {
		_ = db.Close(gdb)
		return nil, err
	}
	runStore, err := historydb.NewRunStore(gdb, logger)
	if err != nil {
		_ = db.Close(gdb)
		return nil, err
	}

	bus := events.New()
	m := metrics.New()
	unsubscribe := []func(){m.Subscribe(bus), runStore.Subscribe(bus)}

	picker := systempicker.New()
	browser := fsbrowser.NewService()
	registry, err := panel.NewDefaultRegistry(panel.Deps{
		Bus:      bus,
		Settings: settingsStore,
		Picker:   picker,
		History:  historyStore,
		Browser:  browser,
		Scripts: func() panel.Scripts {
			return resolveScripts(*current.Load(), opts)
		},
		Jenkins: func(js settings.Jenkins) (panel.JenkinsClient, error) {
			c := current.Load().Jenkins
			client, err := jenkins.New(jenkins.Options{
				BaseURL:            js.URL,
				User:               js.User,
				Token:              js.Token,
				Timeout:            time.Duration(c.TimeoutSeconds) * time.Second,
				InsecureSkipVerify: c.InsecureSkipVerify,
				Observer:           m,
			})
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Logger: logger,
	})
	if err != nil {
		_ = db.Close(gdb)
		return nil, err
	}

	localServer := localapi.NewServer(localapi.Deps{
		ConfigStore:   cfgStore,
		Settings:      settingsStore,
		Panels:        registry,
		Runs:          runStore,
		FSBrowser:     browser,
		PathHistory:   historyStore,
		PickDirectory: picker.PickDirectory,
		Bus:           bus,
		Logger:        logger,
	})
	var metricsHandler http.Handler
	if !opts.DisableMetrics {
		metricsHandler = m.Handler()
	}
	server, err := appserver.NewServer(appserver.Deps{
		LocalAPIHandle: localServer.Handler(),
		Panels:         registry,
		Metrics:        metricsHandler,
		Logger:         logger,
	})
	if err != nil {
		localServer.Close()
		registry.Dispose()
		_ = db.Close(gdb)
		return nil, err
	}

	watcher := global.NewWatcher(cfgStore.Path(), logger)
	watcher.OnReload(func(next global.GlobalConfig) {
		current.Store(&next)
	})

	host := strings.TrimSpace(opts.LocalHost)
	if host == "" {
		host = defaultHost
	}
	port := opts.LocalPort
	if port <= 0 {
		port = cfg.LocalPort
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Panels are disposed and their last run events recorded before the
	// stores they publish into are closed.
	release := sync.OnceValue(func() error {
		localServer.Close()
		registry.Dispose()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := bus.DrainRuns(drainCtx); err != nil {
			logger.Warn("run events not drained", "err", err)
		}
		cancel()
		for _, fn := range unsubscribe {
			fn()
		}
		return errors.Join(settingsStore.Close(), historyStore.Close(), db.Close(gdb))
	})

	mgr := lifecycle.NewManager(logger)
	mgr.AddRun("http-server", func(runCtx context.Context) error {
		go func() {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		logger.Info("local server listening", "addr", addr, "panels", len(registry.List()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	mgr.AddRun("config-watcher", func(runCtx context.Context) error {
		if err := watcher.Run(runCtx); err != nil {
			logger.Warn("config watcher stopped", "err", err)
		}
		return nil
	})
	mgr.AddShutdown("release-runtime", func(context.Context) error {
		return release()
	})

	return &Application{
		localAPIBaseURL: "http://" + addr,
		dbDSN:           dsn,
		runFn: func(ctx context.Context) error {
			return mgr.StartAndWait(ctx)
		},
		shutdownFn: func(context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return release()
		},
	}, nil
}

// resolveScripts lets an explicit interpreter override config.toml, while a
// scripts dir set in config.toml overrides the process default.
func resolveScripts(cfg global.GlobalConfig, opts StartOptions) panel.Scripts {
	out := panel.Scripts{Python: cfg.Scripts.Python, Dir: cfg.Scripts.Dir}
	if v := strings.TrimSpace(opts.Python); v != "" {
		out.Python = v
	}
	if v := strings.TrimSpace(opts.ScriptsDir); v != "" && strings.TrimSpace(cfg.Scripts.Dir) == "" {
		out.Dir = v
	}
	if out.Python == "" {
		out.Python = global.DefaultPython
	}
	return out
}

func (a *Application) LocalAPIBaseURL() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.localAPIBaseURL)
}

func (a *Application) DBDSN() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.dbDSN)
}

func (a *Application) Run(ctx context.Context) error {
	if a == nil || a.runFn == nil {
		return nil
	}
	return a.runFn(ctx)
}

func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil || a.shutdownFn == nil {
		return nil
	}
	return a.shutdownFn(ctx)
}
