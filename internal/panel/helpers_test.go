package panel

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentdock/internal/events"
	"agentdock/internal/protocol"
	"agentdock/internal/settings"
	"agentdock/internal/supervisor"
)

var fixedNow = time.UnixMilli(1_700_000_000_123)

type collector struct {
	mu   sync.Mutex
	msgs []protocol.Outbound
}

func collect(t *testing.T, bus *events.Bus, panelID string) *collector {
	t.Helper()
	c := &collector{}
	stop := bus.SubscribePanelMessages(func(e events.PanelMessageEvent) {
		if e.PanelID != panelID {
			return
		}
		c.mu.Lock()
		c.msgs = append(c.msgs, e.Message)
		c.mu.Unlock()
	})
	t.Cleanup(stop)
	return c
}

func (c *collector) all() []protocol.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Outbound(nil), c.msgs...)
}

// waitFor returns the first message matching pred.
func (c *collector) waitFor(t *testing.T, pred func(protocol.Outbound) bool) protocol.Outbound {
	t.Helper()
	var found protocol.Outbound
	require.Eventually(t, func() bool {
		for _, m := range c.all() {
			if pred(m) {
				found = m
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	return found
}

func (c *collector) waitUpdate(t *testing.T, status, message string) protocol.Outbound {
	t.Helper()
	return c.waitFor(t, func(m protocol.Outbound) bool {
		return m.Command() == protocol.CmdProcessUpdate && m["status"] == status && m["message"] == message
	})
}

// updates returns the status/message pairs of processUpdate messages.
func (c *collector) updates() [][2]string {
	var out [][2]string
	for _, m := range c.all() {
		if m.Command() != protocol.CmdProcessUpdate {
			continue
		}
		msg, _ := m["message"].(string)
		out = append(out, [2]string{m["status"].(string), msg})
	}
	return out
}

type fakePicker struct {
	mu      sync.Mutex
	dir     string
	file    string
	err     error
	calls   int
	titles  []string
	lastExt []string
}

func (f *fakePicker) PickDirectory(_ context.Context, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.titles = append(f.titles, title)
	if f.err != nil {
		return "", f.err
	}
	return f.dir, nil
}

func (f *fakePicker) PickFile(_ context.Context, title string, extensions []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.titles = append(f.titles, title)
	f.lastExt = extensions
	if f.err != nil {
		return "", f.err
	}
	return f.file, nil
}

var _ Picker = (*fakePicker)(nil)

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings(kv ...string) *fakeSettings {
	s := &fakeSettings{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		s.values[kv[i]] = kv[i+1]
	}
	return s
}

func (f *fakeSettings) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeSettings) SetMany(values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range values {
		if v == "" {
			delete(f.values, k)
			continue
		}
		f.values[k] = v
	}
	return nil
}

func (f *fakeSettings) Snapshot() (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]any{}
	for _, k := range []string{settings.KeyJiraScriptPath, settings.KeyCoderScriptPath, settings.KeyJenkinsURL, settings.KeyJenkinsUser} {
		out[k] = f.values[k]
	}
	_, ok := f.values[settings.KeyJenkinsToken]
	out[settings.KeyJenkinsToken+"_set"] = ok
	return out, nil
}

func (f *fakeSettings) LoadJenkins() (settings.Jenkins, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.values[settings.KeyJenkinsToken]
	return settings.Jenkins{
		URL:      f.values[settings.KeyJenkinsURL],
		User:     f.values[settings.KeyJenkinsUser],
		Token:    tok,
		TokenSet: ok,
	}, nil
}

type fakeHistory struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeHistory) Upsert(path, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, kind+":"+path)
	return nil
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// writeScript writes a shell script named name into dir; panels run it with
// sh standing in for the interpreter.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

type testEnv struct {
	bus        *events.Bus
	picker     *fakePicker
	settings   *fakeSettings
	history    *fakeHistory
	scriptsDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		bus:        events.New(),
		picker:     &fakePicker{},
		settings:   newFakeSettings(),
		history:    &fakeHistory{},
		scriptsDir: t.TempDir(),
	}
}

func (e *testEnv) deps() Deps {
	return Deps{
		Bus:      e.bus,
		Settings: e.settings,
		Picker:   e.picker,
		History:  e.history,
		Scripts:  func() Scripts { return Scripts{Python: "sh", Dir: e.scriptsDir} },
		Now:      func() time.Time { return fixedNow },
	}
}

func inbound(cmd string, fields map[string]any) protocol.Inbound {
	return protocol.NewInbound(cmd, fields)
}

func statusOf(status, message string) supervisor.Status {
	return supervisor.Status{Status: supervisor.State(status), Message: message}
}
