package panel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"agentdock/internal/protocol"
	"agentdock/internal/settings"
	"agentdock/internal/supervisor"
	"agentdock/internal/systempicker"
)

const jiraScriptName = "dummy_script.py"

// Jira turns requirement text into story details by running the story
// script into a file in a chosen folder.
type Jira struct {
	base
}

func NewJira(deps Deps) *Jira {
	return &Jira{base: newBase(IDJira, TitleJira, deps, settings.KeyJiraScriptPath)}
}

type jiraExecuteMessage struct {
	Text string `json:"text"`
	Path string `json:"path"`
}

func (p *Jira) HandleMessage(ctx context.Context, msg protocol.Inbound) error {
	if handled, err := p.handleShared(msg); handled {
		return err
	}
	switch msg.Command {
	case protocol.CmdExecuteCommand:
		var m jiraExecuteMessage
		if err := msg.Decode(&m); err != nil {
			return fmt.Errorf("decode executeCommand: %w", err)
		}
		return p.execute(ctx, m)
	}
	return unknownCommand(msg.Command)
}

func (p *Jira) execute(ctx context.Context, m jiraExecuteMessage) error {
	if strings.TrimSpace(m.Text) == "" {
		p.fail("Requirements text is required")
		return nil
	}
	folder, err := p.chooseDirectory(ctx, m.Path, "Select folder where story details will be saved")
	if errors.Is(err, systempicker.ErrCanceled) {
		p.fail("Folder selection canceled")
		return nil
	}
	if err != nil {
		p.fail(pickerFailure(err))
		return nil
	}

	outputFile := filepath.Join(folder, fmt.Sprintf("jira_story_%d.txt", p.deps.Now().UnixMilli()))
	p.running("Generating story details...")

	script, err := p.scriptPath(settings.KeyJiraScriptPath, jiraScriptName)
	if err != nil {
		return err
	}
	p.runScript([]string{p.python(), script, m.Text, outputFile}, func(st supervisor.Status) {
		switch st.Status {
		case supervisor.StateSuccess:
			p.succeed("Story details generated and saved in the file: " + outputFile)
			p.notify("info", "Story details generated and saved at: "+outputFile)
		case supervisor.StateError:
			p.notify("error", "Failed to generate story details: "+st.Message)
		}
	})
	return nil
}
