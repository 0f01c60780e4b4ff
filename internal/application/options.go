package application

import "log/slog"

// StartOptions are the process-level inputs of the local runtime. Values
// left empty fall back to config.toml and then to built-in defaults.
type StartOptions struct {
	ConfigDir  string
	DBDSN      string
	LocalHost  string
	LocalPort  int
	Python     string
	ScriptsDir string
	// DisableMetrics drops the /metrics route; collectors still run.
	DisableMetrics bool
	Logger         *slog.Logger
}
