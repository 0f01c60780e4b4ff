package panel

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdock/internal/jenkins"
	"agentdock/internal/protocol"
	"agentdock/internal/settings"
)

type fakeJenkins struct {
	cfg   settings.Jenkins
	err   error
	block chan struct{}
}

func (f *fakeJenkins) TestConnection(ctx context.Context) (jenkins.Connection, error) {
	if f.err != nil {
		return jenkins.Connection{}, f.err
	}
	return jenkins.Connection{Version: "2.440.1", User: f.cfg.User, JobCount: 2}, nil
}

func (f *fakeJenkins) ListJobs(ctx context.Context) ([]jenkins.Job, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []jenkins.Job{{Name: "api", Color: "blue", Status: "success"}, {Name: "web", Color: "red", Status: "failed"}}, nil
}

func (f *fakeJenkins) BuildStatus(ctx context.Context, job, build string) (jenkins.Build, error) {
	if f.err != nil {
		return jenkins.Build{}, f.err
	}
	return jenkins.Build{Job: job, Number: 42, Result: "SUCCESS", Duration: 1000}, nil
}

func (f *fakeJenkins) ConsoleLog(ctx context.Context, job, build string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Finished: SUCCESS\n", nil
}

func newJenkinsEnv(t *testing.T, client *fakeJenkins, kv ...string) (*Jenkins, *collector) {
	t.Helper()
	env := newTestEnv(t)
	env.settings = newFakeSettings(kv...)
	deps := env.deps()
	deps.Jenkins = func(cfg settings.Jenkins) (JenkinsClient, error) {
		client.cfg = cfg
		return client, nil
	}
	p := NewJenkins(deps)
	return p, collect(t, env.bus, IDJenkins)
}

func TestJenkins_NotConfigured(t *testing.T) {
	p, msgs := newJenkinsEnv(t, &fakeJenkins{})
	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdJenkinsListJobs, nil)))
	msgs.waitUpdate(t, "error", "Jenkins URL is not configured")
}

func TestJenkins_ListJobs(t *testing.T) {
	client := &fakeJenkins{}
	p, msgs := newJenkinsEnv(t, client, settings.KeyJenkinsURL, "https://ci", settings.KeyJenkinsUser, "bot", settings.KeyJenkinsToken, "tok")

	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdJenkinsListJobs, nil)))
	msgs.waitUpdate(t, "success", "Loaded 2 jobs")
	jobs := msgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdJenkinsJobs })
	require.Len(t, jobs["jobs"], 2)
	assert.Equal(t, "tok", client.cfg.Token)

	updates := msgs.updates()
	assert.Equal(t, [2]string{"running", "Loading Jenkins jobs..."}, updates[0])
}

func TestJenkins_HTTPErrorRendersStatus(t *testing.T) {
	client := &fakeJenkins{err: &jenkins.HTTPError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}}
	p, msgs := newJenkinsEnv(t, client, settings.KeyJenkinsURL, "https://ci")

	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdJenkinsTestConnection, nil)))
	msgs.waitUpdate(t, "error", "Jenkins request failed: 401 Unauthorized")
	conn := msgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdJenkinsConnection })
	assert.Equal(t, false, conn["ok"])
}

func TestJenkins_TestConnection(t *testing.T) {
	p, msgs := newJenkinsEnv(t, &fakeJenkins{}, settings.KeyJenkinsURL, "https://ci", settings.KeyJenkinsUser, "bot")

	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdJenkinsTestConnection, nil)))
	conn := msgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdJenkinsConnection })
	assert.Equal(t, true, conn["ok"])
	assert.Equal(t, "2.440.1", conn["version"])
	assert.Equal(t, "bot", conn["user"])
	msgs.waitUpdate(t, "success", "Connected to Jenkins 2.440.1")
}

func TestJenkins_BuildStatusAndLog(t *testing.T) {
	p, msgs := newJenkinsEnv(t, &fakeJenkins{}, settings.KeyJenkinsURL, "https://ci")
	ctx := context.Background()

	require.NoError(t, p.HandleMessage(ctx, inbound(protocol.CmdJenkinsBuildStatus, map[string]any{"job": "api"})))
	b := msgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdJenkinsBuild })
	assert.Equal(t, int64(42), b["number"])
	msgs.waitUpdate(t, "success", "Build #42: SUCCESS")

	require.NoError(t, p.HandleMessage(ctx, inbound(protocol.CmdJenkinsBuildLog, map[string]any{"job": "api"})))
	l := msgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdJenkinsLog })
	assert.Equal(t, "lastBuild", l["build"])
	assert.Equal(t, "Finished: SUCCESS\n", l["text"])

	require.NoError(t, p.HandleMessage(ctx, inbound(protocol.CmdJenkinsBuildLog, map[string]any{"job": " "})))
	msgs.waitUpdate(t, "error", "Job name is required")
}

func TestJenkins_CancelAbortsRequest(t *testing.T) {
	client := &fakeJenkins{block: make(chan struct{})}
	p, msgs := newJenkinsEnv(t, client, settings.KeyJenkinsURL, "https://ci")

	done := make(chan error, 1)
	go func() { done <- p.HandleMessage(context.Background(), inbound(protocol.CmdJenkinsListJobs, nil)) }()
	msgs.waitUpdate(t, "running", "Loading Jenkins jobs...")

	require.Eventually(t, func() bool {
		p.reqMu.Lock()
		defer p.reqMu.Unlock()
		return p.inflight != nil
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdCancel, nil)))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request was not canceled")
	}
	msgs.waitUpdate(t, "error", MessageCanceled)
	for _, m := range msgs.all() {
		assert.NotEqual(t, protocol.CmdJenkinsJobs, m.Command())
	}
}
