package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"agentdock/internal/jenkins"
	"agentdock/internal/protocol"
	"agentdock/internal/settings"
)

type JenkinsClient interface {
	TestConnection(ctx context.Context) (jenkins.Connection, error)
	ListJobs(ctx context.Context) ([]jenkins.Job, error)
	BuildStatus(ctx context.Context, job, build string) (jenkins.Build, error)
	ConsoleLog(ctx context.Context, job, build string) (string, error)
}

// JenkinsFactory builds a client from the stored credentials.
type JenkinsFactory func(cfg settings.Jenkins) (JenkinsClient, error)

// Jenkins proxies the Jenkins JSON API for the view. Requests are not
// processes, but they report through the same processUpdate stream and can
// be canceled the same way.
type Jenkins struct {
	base

	reqMu    sync.Mutex
	inflight *request
}

type request struct {
	cancel context.CancelFunc
}

func NewJenkins(deps Deps) *Jenkins {
	return &Jenkins{base: newBase(IDJenkins, TitleJenkins, deps,
		settings.KeyJenkinsURL, settings.KeyJenkinsUser, settings.KeyJenkinsToken)}
}

type jenkinsBuildMessage struct {
	Job   string `json:"job"`
	Build string `json:"build"`
}

func (p *Jenkins) HandleMessage(ctx context.Context, msg protocol.Inbound) error {
	if msg.Command == protocol.CmdCancel {
		p.cancelRequest()
	}
	if handled, err := p.handleShared(msg); handled {
		return err
	}
	switch msg.Command {
	case protocol.CmdJenkinsTestConnection:
		p.testConnection(ctx)
		return nil
	case protocol.CmdJenkinsListJobs:
		p.listJobs(ctx)
		return nil
	case protocol.CmdJenkinsBuildStatus, protocol.CmdJenkinsBuildLog:
		var m jenkinsBuildMessage
		if err := msg.Decode(&m); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Command, err)
		}
		if strings.TrimSpace(m.Job) == "" {
			p.fail("Job name is required")
			return nil
		}
		if msg.Command == protocol.CmdJenkinsBuildStatus {
			p.buildStatus(ctx, m)
		} else {
			p.buildLog(ctx, m)
		}
		return nil
	}
	return unknownCommand(msg.Command)
}

func (p *Jenkins) Dispose() {
	p.cancelRequest()
	p.base.Dispose()
}

func (p *Jenkins) testConnection(ctx context.Context) {
	p.running("Connecting to Jenkins...")
	p.do(ctx, func(ctx context.Context, c JenkinsClient) error {
		conn, err := c.TestConnection(ctx)
		if err != nil {
			return err
		}
		p.post(protocol.NewOutbound(protocol.CmdJenkinsConnection, map[string]any{
			"ok":        true,
			"version":   conn.Version,
			"user":      conn.User,
			"job_count": conn.JobCount,
			"message":   "Connected",
		}))
		msg := "Connected to Jenkins"
		if conn.Version != "" {
			msg += " " + conn.Version
		}
		p.succeed(msg)
		return nil
	}, func(err error) {
		p.post(protocol.NewOutbound(protocol.CmdJenkinsConnection, map[string]any{
			"ok":      false,
			"message": err.Error(),
		}))
	})
}

func (p *Jenkins) listJobs(ctx context.Context) {
	p.running("Loading Jenkins jobs...")
	p.do(ctx, func(ctx context.Context, c JenkinsClient) error {
		jobs, err := c.ListJobs(ctx)
		if err != nil {
			return err
		}
		p.post(protocol.NewOutbound(protocol.CmdJenkinsJobs, map[string]any{"jobs": jobs}))
		p.succeed(fmt.Sprintf("Loaded %d jobs", len(jobs)))
		return nil
	}, nil)
}

func (p *Jenkins) buildStatus(ctx context.Context, m jenkinsBuildMessage) {
	p.running("Loading build status...")
	p.do(ctx, func(ctx context.Context, c JenkinsClient) error {
		b, err := c.BuildStatus(ctx, m.Job, m.Build)
		if err != nil {
			return err
		}
		p.post(protocol.NewOutbound(protocol.CmdJenkinsBuild, map[string]any{
			"job":       b.Job,
			"number":    b.Number,
			"result":    b.Result,
			"building":  b.Building,
			"duration":  b.Duration,
			"timestamp": b.Timestamp,
			"url":       b.URL,
		}))
		state := b.Result
		if b.Building {
			state = "BUILDING"
		}
		p.succeed(fmt.Sprintf("Build #%d: %s", b.Number, state))
		return nil
	}, nil)
}

func (p *Jenkins) buildLog(ctx context.Context, m jenkinsBuildMessage) {
	p.running("Loading console log...")
	p.do(ctx, func(ctx context.Context, c JenkinsClient) error {
		text, err := c.ConsoleLog(ctx, m.Job, m.Build)
		if err != nil {
			return err
		}
		build := strings.TrimSpace(m.Build)
		if build == "" {
			build = "lastBuild"
		}
		p.post(protocol.NewOutbound(protocol.CmdJenkinsLog, map[string]any{
			"job":   m.Job,
			"build": build,
			"text":  text,
		}))
		p.succeed("Console log loaded")
		return nil
	}, nil)
}

// do builds a client from the stored settings and runs fn with a context
// that cancel can abort. Failures end as an error processUpdate; onErr runs
// first when set.
func (p *Jenkins) do(ctx context.Context, fn func(context.Context, JenkinsClient) error, onErr func(error)) {
	reportErr := func(err error) {
		if onErr != nil {
			onErr(err)
		}
		p.fail(err.Error())
	}
	client, err := p.client()
	if err != nil {
		reportErr(err)
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req := &request{cancel: cancel}
	p.reqMu.Lock()
	if p.inflight != nil {
		p.inflight.cancel()
	}
	p.inflight = req
	p.reqMu.Unlock()
	defer func() {
		cancel()
		p.reqMu.Lock()
		if p.inflight == req {
			p.inflight = nil
		}
		p.reqMu.Unlock()
	}()

	if err := fn(reqCtx, client); err != nil {
		if errors.Is(err, context.Canceled) {
			p.logger.Debug("jenkins request canceled")
			return
		}
		p.logger.Warn("jenkins request failed", "err", err)
		reportErr(err)
	}
}

func (p *Jenkins) client() (JenkinsClient, error) {
	if p.deps.Settings == nil {
		return nil, errors.New("settings store is not configured")
	}
	cfg, err := p.deps.Settings.LoadJenkins()
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, jenkins.ErrNotConfigured
	}
	if p.deps.Jenkins == nil {
		return nil, errors.New("jenkins client is not configured")
	}
	return p.deps.Jenkins(cfg)
}

// cancelRequest aborts an in-flight request and reports it like a
// canceled process.
func (p *Jenkins) cancelRequest() {
	p.reqMu.Lock()
	req := p.inflight
	p.inflight = nil
	p.reqMu.Unlock()
	if req == nil {
		return
	}
	req.cancel()
	p.fail(MessageCanceled)
}
