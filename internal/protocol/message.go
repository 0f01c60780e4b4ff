package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Inbound commands sent by a panel view.
const (
	CmdExecuteCommand        = "executeCommand"
	CmdSelectFile            = "selectFile"
	CmdSelectDirectory       = "selectDirectory"
	CmdOpenSettings          = "openSettings"
	CmdSaveSettings          = "saveSettings"
	CmdCancel                = "cancel"
	CmdJenkinsListJobs       = "jenkinsListJobs"
	CmdJenkinsBuildStatus    = "jenkinsBuildStatus"
	CmdJenkinsBuildLog       = "jenkinsBuildLog"
	CmdJenkinsTestConnection = "jenkinsTestConnection"
)

// Outbound commands sent to a panel view.
const (
	CmdProcessUpdate     = "processUpdate"
	CmdFileSelected      = "fileSelected"
	CmdDirectorySelected = "directorySelected"
	CmdConfigUpdate      = "configUpdate"
	CmdNotification      = "notification"
	CmdJenkinsJobs       = "jenkinsJobs"
	CmdJenkinsBuild      = "jenkinsBuild"
	CmdJenkinsLog        = "jenkinsLog"
	CmdJenkinsConnection = "jenkinsConnection"
)

// Inbound is a message from a view. The command is decoded eagerly and the
// rest of the object is kept for the panel to decode into its own shape.
type Inbound struct {
	Command string
	raw     json.RawMessage
}

func (m *Inbound) UnmarshalJSON(b []byte) error {
	var head struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	m.Command = strings.TrimSpace(head.Command)
	m.raw = append(m.raw[:0], b...)
	return nil
}

func (m Inbound) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(map[string]string{"command": m.Command})
}

// Decode unmarshals the full message into v.
func (m Inbound) Decode(v any) error {
	if len(m.raw) == 0 {
		return nil
	}
	return json.Unmarshal(m.raw, v)
}

// ParseInbound decodes a raw frame and requires a command.
func ParseInbound(b []byte) (Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(b, &m); err != nil {
		return Inbound{}, err
	}
	if m.Command == "" {
		return Inbound{}, errors.New("command is required")
	}
	return m, nil
}

// NewInbound builds an inbound message from a command and its fields.
func NewInbound(command string, fields map[string]any) Inbound {
	out := map[string]any{}
	for k, v := range fields {
		out[k] = v
	}
	out["command"] = command
	return Inbound{Command: command, raw: MustRaw(out)}
}

// Outbound is a message to a view: a command plus flat fields.
type Outbound map[string]any

func NewOutbound(command string, fields map[string]any) Outbound {
	out := make(Outbound, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["command"] = command
	return out
}

func (m Outbound) Command() string {
	s, _ := m["command"].(string)
	return s
}

type ErrPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func MustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
