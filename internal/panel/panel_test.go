package panel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdock/internal/events"
	"agentdock/internal/protocol"
	"agentdock/internal/settings"
)

func TestOpenSettings_ReportsOwnKeysOnly(t *testing.T) {
	env := newTestEnv(t)
	env.settings = newFakeSettings(
		settings.KeyJiraScriptPath, "/opt/jira.py",
		settings.KeyJenkinsURL, "https://ci",
		settings.KeyJenkinsToken, "secret",
	)
	ctx := context.Background()

	jira := NewJira(env.deps())
	jiraMsgs := collect(t, env.bus, IDJira)
	require.NoError(t, jira.HandleMessage(ctx, inbound(protocol.CmdOpenSettings, nil)))
	cfg := jiraMsgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdConfigUpdate })
	assert.Equal(t, map[string]any{settings.KeyJiraScriptPath: "/opt/jira.py"}, cfg["settings"])

	jk := NewJenkins(env.deps())
	jkMsgs := collect(t, env.bus, IDJenkins)
	require.NoError(t, jk.HandleMessage(ctx, inbound(protocol.CmdOpenSettings, nil)))
	cfg = jkMsgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdConfigUpdate })
	got := cfg["settings"].(map[string]any)
	assert.Equal(t, "https://ci", got[settings.KeyJenkinsURL])
	assert.Equal(t, true, got[settings.KeyJenkinsToken+"_set"])
	assert.NotContains(t, got, settings.KeyJenkinsToken)
}

func TestSaveSettings_WritesOwnedKeys(t *testing.T) {
	env := newTestEnv(t)
	env.settings = newFakeSettings(settings.KeyJenkinsToken, "keep")
	p := NewJenkins(env.deps())
	msgs := collect(t, env.bus, IDJenkins)

	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdSaveSettings, map[string]any{
		"settings": map[string]any{
			settings.KeyJenkinsURL:     "https://ci.example.com",
			settings.KeyJenkinsToken:   "",
			settings.KeyJiraScriptPath: "/not/mine.py",
		},
	})))
	msgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdConfigUpdate })

	v, ok, _ := env.settings.Get(settings.KeyJenkinsURL)
	assert.True(t, ok)
	assert.Equal(t, "https://ci.example.com", v)
	tok, _, _ := env.settings.Get(settings.KeyJenkinsToken)
	assert.Equal(t, "keep", tok)
	_, ok, _ = env.settings.Get(settings.KeyJiraScriptPath)
	assert.False(t, ok)
}

func TestCancel_StopsRunningProcess(t *testing.T) {
	requireShell(t)
	env := newTestEnv(t)
	writeScript(t, env.scriptsDir, jiraScriptName, "echo started\nsleep 30\n")
	env.picker.dir = t.TempDir()
	p := NewJira(env.deps())
	msgs := collect(t, env.bus, IDJira)

	finished := make(chan events.RunFinishedEvent, 2)
	stop := env.bus.SubscribeRunFinished(func(e events.RunFinishedEvent) { finished <- e })
	defer stop()

	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdExecuteCommand, map[string]any{"text": "x"})))
	msgs.waitFor(t, func(m protocol.Outbound) bool { return m["data"] == "started\n" })
	require.True(t, p.IsRunning())

	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdCancel, nil)))
	msgs.waitUpdate(t, "error", MessageCanceled)
	assert.False(t, p.IsRunning())

	select {
	case e := <-finished:
		assert.Equal(t, "error", e.Status)
		assert.Equal(t, MessageCanceled, e.Message)
		assert.Equal(t, -1, e.ExitCode)
	case <-time.After(2 * time.Second):
		t.Fatal("no run finished event")
	}

	time.Sleep(100 * time.Millisecond)
	for _, u := range msgs.updates() {
		assert.NotEqual(t, "Failed to generate story details", u[1])
		assert.NotContains(t, u[1], "Process exited")
	}
}

func TestCancel_IdleIsSilent(t *testing.T) {
	env := newTestEnv(t)
	p := NewCoder(env.deps())
	msgs := collect(t, env.bus, IDCoder)

	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdCancel, nil)))
	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdOpenSettings, nil)))
	msgs.waitFor(t, func(m protocol.Outbound) bool { return m.Command() == protocol.CmdConfigUpdate })
	assert.Empty(t, msgs.updates())
}

func TestDispose_DropsViewSink(t *testing.T) {
	env := newTestEnv(t)
	p := NewJira(env.deps())
	msgs := collect(t, env.bus, IDJira)

	p.Dispose()
	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdExecuteCommand, map[string]any{"text": ""})))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, msgs.all())
}

func TestRunStartedCarriesCommandLine(t *testing.T) {
	requireShell(t)
	env := newTestEnv(t)
	script := writeScript(t, env.scriptsDir, jiraScriptName, "true\n")
	out := t.TempDir()
	env.picker.dir = out
	p := NewJira(env.deps())

	started := make(chan events.RunStartedEvent, 1)
	stop := env.bus.SubscribeRunStarted(func(e events.RunStartedEvent) { started <- e })
	defer stop()

	require.NoError(t, p.HandleMessage(context.Background(), inbound(protocol.CmdExecuteCommand, map[string]any{"text": "two words"})))
	select {
	case e := <-started:
		assert.Equal(t, IDJira, e.PanelID)
		assert.NotEmpty(t, e.RunID)
		assert.Contains(t, e.CommandLine, "sh "+script+` "two words" `)
	case <-time.After(2 * time.Second):
		t.Fatal("no run started event")
	}
}

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, 0, exitCodeOf(statusOf("success", "Process completed successfully.")))
	assert.Equal(t, 7, exitCodeOf(statusOf("error", "Process exited with code 7")))
	assert.Equal(t, -1, exitCodeOf(statusOf("error", "exec: \"python\": executable file not found in $PATH")))
}

func TestRegistry(t *testing.T) {
	env := newTestEnv(t)
	r, err := NewDefaultRegistry(env.deps())
	require.NoError(t, err)

	infos := r.Infos()
	require.Len(t, infos, 3)
	assert.Equal(t, Info{ID: IDJira, Title: "Jira Story Bot"}, infos[0])
	assert.Equal(t, IDCoder, infos[1].ID)
	assert.Equal(t, IDJenkins, infos[2].ID)

	p, ok := r.Get(IDCoder)
	require.True(t, ok)
	assert.Equal(t, "Dev Bot", p.Title())
	_, ok = r.Get("nope")
	assert.False(t, ok)

	require.Error(t, r.Register(NewJira(env.deps())))

	doc, err := p.Render()
	require.NoError(t, err)
	assert.Contains(t, string(doc.HTML), "Dev Bot")
	r.Dispose()
}
