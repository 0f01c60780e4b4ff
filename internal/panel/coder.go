package panel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"agentdock/internal/fsbrowser"
	"agentdock/internal/protocol"
	"agentdock/internal/settings"
	"agentdock/internal/supervisor"
	"agentdock/internal/systempicker"
)

const (
	coderScriptName = "coder_script.py"

	SectionSourceDir      = "sourceDir"
	SectionDestinationDir = "destinationDir"

	ActionCodeGen      = "codeGen"
	ActionDocsAndTests = "docsAndTests"
)

// Coder generates code, documentation and unit tests with the coder script.
// It remembers the last selected file and directories between messages.
type Coder struct {
	base

	selMu          sync.Mutex
	codeFile       string
	sourceDir      string
	destinationDir string
}

func NewCoder(deps Deps) *Coder {
	return &Coder{base: newBase(IDCoder, TitleCoder, deps, settings.KeyCoderScriptPath)}
}

type selectMessage struct {
	Section string `json:"section"`
	Path    string `json:"path"`
}

type coderOptions struct {
	ActionType string `json:"actionType"`
	Docs       bool   `json:"docs"`
	UnitTest   bool   `json:"unitTest"`
}

type coderExecuteMessage struct {
	Options coderOptions `json:"options"`
}

func (p *Coder) HandleMessage(ctx context.Context, msg protocol.Inbound) error {
	if handled, err := p.handleShared(msg); handled {
		return err
	}
	switch msg.Command {
	case protocol.CmdSelectFile:
		var m selectMessage
		if err := msg.Decode(&m); err != nil {
			return fmt.Errorf("decode selectFile: %w", err)
		}
		p.selectFile(ctx, m)
		return nil
	case protocol.CmdSelectDirectory:
		var m selectMessage
		if err := msg.Decode(&m); err != nil {
			return fmt.Errorf("decode selectDirectory: %w", err)
		}
		p.selectDirectory(ctx, m)
		return nil
	case protocol.CmdExecuteCommand:
		var m coderExecuteMessage
		if err := msg.Decode(&m); err != nil {
			return fmt.Errorf("decode executeCommand: %w", err)
		}
		return p.execute(m.Options)
	}
	return unknownCommand(msg.Command)
}

func (p *Coder) selectFile(ctx context.Context, m selectMessage) {
	path, err := p.chooseFile(ctx, m.Path, "Select a file for code generation", fsbrowser.CodeExtensions)
	if err != nil {
		if !errors.Is(err, systempicker.ErrCanceled) {
			p.fail(pickerFailure(err))
		}
		p.sendSelected(protocol.CmdFileSelected, m.Section, "")
		return
	}
	p.selMu.Lock()
	p.codeFile = path
	p.selMu.Unlock()
	p.sendSelected(protocol.CmdFileSelected, m.Section, path)
}

func (p *Coder) selectDirectory(ctx context.Context, m selectMessage) {
	title := "Select destination directory"
	if m.Section == SectionSourceDir {
		title = "Select source directory"
	}
	path, err := p.chooseDirectory(ctx, m.Path, title)
	if err != nil {
		if !errors.Is(err, systempicker.ErrCanceled) {
			p.fail(pickerFailure(err))
		}
		p.sendSelected(protocol.CmdDirectorySelected, m.Section, "")
		return
	}
	p.selMu.Lock()
	switch m.Section {
	case SectionSourceDir:
		p.sourceDir = path
	case SectionDestinationDir:
		p.destinationDir = path
	}
	p.selMu.Unlock()
	p.sendSelected(protocol.CmdDirectorySelected, m.Section, path)
}

func (p *Coder) sendSelected(cmd, section, path string) {
	p.post(protocol.NewOutbound(cmd, map[string]any{"section": section, "path": path}))
}

func (p *Coder) execute(opts coderOptions) error {
	p.selMu.Lock()
	codeFile, sourceDir, destinationDir := p.codeFile, p.sourceDir, p.destinationDir
	p.selMu.Unlock()

	switch opts.ActionType {
	case ActionCodeGen:
		if codeFile == "" {
			p.fail("No file selected for code generation")
			return nil
		}
		outDir := destinationDir
		if outDir == "" {
			outDir = filepath.Dir(codeFile)
		}
		prefix := p.outputPrefix(outDir)
		p.running("Generating code...")
		return p.runCoder(codeFile, prefix, []string{"--code-gen"})
	case ActionDocsAndTests:
		if sourceDir == "" || destinationDir == "" {
			p.fail("Source and destination directories must be selected")
			return nil
		}
		if !opts.Docs && !opts.UnitTest {
			p.fail("At least one option (Documentation or Unit Tests) must be selected")
			return nil
		}
		var flags []string
		if opts.UnitTest {
			flags = append(flags, "--unit-test")
		}
		if opts.Docs {
			flags = append(flags, "--docs")
		}
		prefix := p.outputPrefix(destinationDir)
		p.running(generatingMessage(opts.Docs, opts.UnitTest))
		return p.runCoder(sourceDir, prefix, flags)
	default:
		p.fail("Unknown action type: " + opts.ActionType)
		return nil
	}
}

func (p *Coder) outputPrefix(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("coder_output_%d", p.deps.Now().UnixMilli()))
}

func (p *Coder) runCoder(input, prefix string, flags []string) error {
	script, err := p.scriptPath(settings.KeyCoderScriptPath, coderScriptName)
	if err != nil {
		return err
	}
	argv := append([]string{p.python(), script, input, prefix}, flags...)
	p.runScript(argv, func(st supervisor.Status) {
		switch st.Status {
		case supervisor.StateSuccess:
			msg := "Generation completed and saved with prefix: " + prefix
			p.succeed(msg)
			p.notify("info", msg)
		case supervisor.StateError:
			msg := "Failed to generate outputs: " + st.Message
			p.fail(msg)
			p.notify("error", msg)
		}
	})
	return nil
}

func generatingMessage(docs, unitTest bool) string {
	var parts []string
	if docs {
		parts = append(parts, "documentation")
	}
	if unitTest {
		parts = append(parts, "unit tests")
	}
	return "Generating " + strings.Join(parts, " and ") + "..."
}
