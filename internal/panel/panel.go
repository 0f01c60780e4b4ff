// Package panel implements the agent panels. A panel turns inbound view
// messages into work (a supervised script run, a picker dialog, a Jenkins
// call) and reports back through outbound messages on the event bus.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentdock/internal/events"
	"agentdock/internal/fsbrowser"
	"agentdock/internal/historydb"
	"agentdock/internal/process"
	"agentdock/internal/protocol"
	"agentdock/internal/settings"
	"agentdock/internal/supervisor"
	"agentdock/internal/systempicker"
	"agentdock/internal/webview"
)

const (
	IDJira    = "jira"
	IDCoder   = "coder"
	IDJenkins = "jenkins"

	TitleJira    = "Jira Story Bot"
	TitleCoder   = "Dev Bot"
	TitleJenkins = "Jenkins Agent"

	MessageCanceled = "Process canceled"
)

var ErrUnknownCommand = errors.New("unknown command")

type Panel interface {
	ID() string
	Title() string
	Render() (webview.Document, error)
	HandleMessage(ctx context.Context, msg protocol.Inbound) error
	IsRunning() bool
	Dispose()
}

type Picker interface {
	PickDirectory(ctx context.Context, title string) (string, error)
	PickFile(ctx context.Context, title string, extensions []string) (string, error)
}

type SettingsStore interface {
	Get(key string) (string, bool, error)
	SetMany(values map[string]string) error
	Snapshot() (map[string]any, error)
	LoadJenkins() (settings.Jenkins, error)
}

type PathRecorder interface {
	Upsert(path, kind string) error
}

// Scripts is the interpreter and the directory holding the bundled scripts.
type Scripts struct {
	Python string
	Dir    string
}

type Deps struct {
	Bus      *events.Bus
	Settings SettingsStore
	Picker   Picker
	History  PathRecorder
	Browser  *fsbrowser.Service
	// Scripts is read on every run so config reloads apply to the next run.
	Scripts func() Scripts
	Jenkins JenkinsFactory
	Logger  *slog.Logger
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Browser == nil {
		d.Browser = fsbrowser.NewService()
	}
	if d.Scripts == nil {
		d.Scripts = func() Scripts { return Scripts{Python: "python"} }
	}
	return d
}

// activeRun is the run record for the process a panel currently supervises.
type activeRun struct {
	id        string
	startedAt time.Time
	once      sync.Once
}

// base carries what every panel shares: identity, the view sink, the
// supervisor and settings handling.
type base struct {
	id     string
	title  string
	deps   Deps
	logger *slog.Logger
	sup    *supervisor.Supervisor
	// keys are the settings this panel reads and writes.
	keys []string

	mu       sync.Mutex
	disposed bool
	run      *activeRun
}

func newBase(id, title string, deps Deps, keys ...string) base {
	deps = deps.withDefaults()
	logger := deps.Logger.With("module", "panel", "panel", id)
	return base{
		id:     id,
		title:  title,
		deps:   deps,
		logger: logger,
		sup:    supervisor.New(logger),
		keys:   keys,
	}
}

func (b *base) ID() string    { return b.id }
func (b *base) Title() string { return b.title }

func (b *base) IsRunning() bool { return b.sup.IsRunning() }

func (b *base) Render() (webview.Document, error) {
	return webview.Render(webview.Page{ID: b.id, Title: b.title})
}

func (b *base) Dispose() {
	b.mu.Lock()
	b.disposed = true
	b.mu.Unlock()
	if b.sup.Detach() {
		b.finishRun(supervisor.Status{Status: supervisor.StateError, Message: MessageCanceled}, 0)
	}
}

func (b *base) post(msg protocol.Outbound) {
	b.mu.Lock()
	disposed := b.disposed
	b.mu.Unlock()
	if disposed || b.deps.Bus == nil {
		return
	}
	b.deps.Bus.PublishPanelMessage(events.PanelMessageEvent{PanelID: b.id, Message: msg})
}

func (b *base) update(st supervisor.Status) {
	fields := map[string]any{"status": string(st.Status)}
	if st.Message != "" {
		fields["message"] = st.Message
	}
	if st.Data != nil {
		fields["data"] = st.Data
	}
	b.post(protocol.NewOutbound(protocol.CmdProcessUpdate, fields))
}

func (b *base) running(message string) {
	b.update(supervisor.Status{Status: supervisor.StateRunning, Message: message})
}

func (b *base) fail(message string) {
	b.update(supervisor.Status{Status: supervisor.StateError, Message: message})
}

func (b *base) succeed(message string) {
	b.update(supervisor.Status{Status: supervisor.StateSuccess, Message: message})
}

func (b *base) notify(level, message string) {
	b.post(protocol.NewOutbound(protocol.CmdNotification, map[string]any{
		"level":   level,
		"message": message,
	}))
}

// runScript hands argv to the supervisor. Every status is forwarded to the
// view; onTerminal runs after the terminal status has been forwarded.
func (b *base) runScript(argv []string, onTerminal func(supervisor.Status)) {
	spec := process.Spec{Argv: argv}
	run := &activeRun{id: uuid.NewString(), startedAt: b.deps.Now()}

	b.mu.Lock()
	prev := b.run
	b.run = run
	b.mu.Unlock()
	if prev != nil {
		b.finishRunRecord(prev, supervisor.Status{Status: supervisor.StateError, Message: "Process replaced"}, 0)
	}

	if b.deps.Bus != nil {
		b.deps.Bus.PublishRunStarted(events.RunStartedEvent{
			RunID:       run.id,
			PanelID:     b.id,
			CommandLine: spec.CommandLine(),
			StartedAt:   run.startedAt,
		})
	}

	_ = b.sup.Run(spec, func(st supervisor.Status) {
		b.update(st)
		if !st.Terminal() {
			return
		}
		out, _ := st.Data.(string)
		b.finishRunRecord(run, st, len(out))
		b.mu.Lock()
		if b.run == run {
			b.run = nil
		}
		b.mu.Unlock()
		if onTerminal != nil {
			onTerminal(st)
		}
	})
}

// finishRun closes the record of the current run, if any.
func (b *base) finishRun(st supervisor.Status, outputBytes int) {
	b.mu.Lock()
	run := b.run
	b.run = nil
	b.mu.Unlock()
	if run != nil {
		b.finishRunRecord(run, st, outputBytes)
	}
}

func (b *base) finishRunRecord(run *activeRun, st supervisor.Status, outputBytes int) {
	run.once.Do(func() {
		if b.deps.Bus == nil {
			return
		}
		b.deps.Bus.PublishRunFinished(events.RunFinishedEvent{
			RunID:       run.id,
			PanelID:     b.id,
			Status:      string(st.Status),
			Message:     st.Message,
			ExitCode:    exitCodeOf(st),
			OutputBytes: outputBytes,
			StartedAt:   run.startedAt,
			FinishedAt:  b.deps.Now(),
		})
	})
}

func exitCodeOf(st supervisor.Status) int {
	if st.Status == supervisor.StateSuccess {
		return 0
	}
	var code int
	if _, err := fmt.Sscanf(st.Message, "Process exited with code %d", &code); err == nil {
		return code
	}
	return -1
}

// cancel detaches the supervisor and tells the view when something was
// actually running.
func (b *base) cancel() {
	if !b.sup.Detach() {
		return
	}
	st := supervisor.Status{Status: supervisor.StateError, Message: MessageCanceled}
	b.finishRun(st, len(b.sup.Output()))
	b.logger.Info("process canceled")
	b.update(st)
}

// scriptPath returns the settings override for key, or name inside the
// scripts directory.
func (b *base) scriptPath(key, name string) (string, error) {
	if b.deps.Settings != nil {
		v, ok, err := b.deps.Settings.Get(key)
		if err != nil {
			return "", err
		}
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	dir := b.deps.Scripts().Dir
	if dir == "" {
		return name, nil
	}
	return filepath.Join(dir, name), nil
}

func (b *base) python() string {
	if p := strings.TrimSpace(b.deps.Scripts().Python); p != "" {
		return p
	}
	return "python"
}

// chooseDirectory uses path when the view supplied one and the native
// picker otherwise.
func (b *base) chooseDirectory(ctx context.Context, path, title string) (string, error) {
	if strings.TrimSpace(path) != "" {
		resolved, err := b.deps.Browser.Resolve(path)
		if err != nil {
			return "", err
		}
		b.remember(resolved, historydb.KindDir)
		return resolved, nil
	}
	if b.deps.Picker == nil {
		return "", systempicker.ErrUnsupported
	}
	picked, err := b.deps.Picker.PickDirectory(ctx, title)
	if err != nil {
		return "", err
	}
	b.remember(picked, historydb.KindDir)
	return picked, nil
}

func (b *base) chooseFile(ctx context.Context, path, title string, extensions []string) (string, error) {
	if strings.TrimSpace(path) != "" {
		resolved, err := b.deps.Browser.ResolveFile(path)
		if err != nil {
			return "", err
		}
		b.remember(resolved, historydb.KindFile)
		return resolved, nil
	}
	if b.deps.Picker == nil {
		return "", systempicker.ErrUnsupported
	}
	picked, err := b.deps.Picker.PickFile(ctx, title, extensions)
	if err != nil {
		return "", err
	}
	b.remember(picked, historydb.KindFile)
	return picked, nil
}

func (b *base) remember(path, kind string) {
	if b.deps.History == nil {
		return
	}
	if err := b.deps.History.Upsert(path, kind); err != nil {
		b.logger.Warn("record path history failed", "path", path, "err", err)
	}
}

func (b *base) sendConfig() error {
	if b.deps.Settings == nil {
		return errors.New("settings store is not configured")
	}
	snap, err := b.deps.Settings.Snapshot()
	if err != nil {
		return err
	}
	own := make(map[string]any, len(b.keys))
	for _, k := range b.keys {
		if v, ok := snap[k]; ok {
			own[k] = v
		}
		if v, ok := snap[k+"_set"]; ok {
			own[k+"_set"] = v
		}
	}
	b.post(protocol.NewOutbound(protocol.CmdConfigUpdate, map[string]any{"settings": own}))
	return nil
}

type saveSettingsMessage struct {
	Settings map[string]string `json:"settings"`
}

// saveSettings writes the panel's own keys from msg and ignores the rest.
// Blank secrets keep the stored value.
func (b *base) saveSettings(msg protocol.Inbound) error {
	var m saveSettingsMessage
	if err := msg.Decode(&m); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if b.deps.Settings == nil {
		return errors.New("settings store is not configured")
	}
	values := make(map[string]string, len(b.keys))
	for _, k := range b.keys {
		v, ok := m.Settings[k]
		if !ok {
			continue
		}
		if settings.IsSecret(k) && strings.TrimSpace(v) == "" {
			continue
		}
		values[k] = v
	}
	if len(values) > 0 {
		if err := b.deps.Settings.SetMany(values); err != nil {
			return err
		}
		b.logger.Info("settings saved", "keys", len(values))
	}
	return b.sendConfig()
}

// handleShared covers the commands every panel answers the same way.
func (b *base) handleShared(msg protocol.Inbound) (bool, error) {
	switch msg.Command {
	case protocol.CmdOpenSettings:
		return true, b.sendConfig()
	case protocol.CmdSaveSettings:
		return true, b.saveSettings(msg)
	case protocol.CmdCancel:
		b.cancel()
		return true, nil
	}
	return false, nil
}

func unknownCommand(cmd string) error {
	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

// pickerFailure renders a picker error that is not a cancellation.
func pickerFailure(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return "Selected path does not exist"
	}
	if errors.Is(err, systempicker.ErrUnsupported) {
		return "No native picker available; enter a path instead"
	}
	return "Selection failed: " + err.Error()
}
