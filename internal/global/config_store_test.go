package global

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigStore_LoadOrInit_CreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	store := NewConfigStore(dir)

	cfg, err := store.LoadOrInit()
	if err != nil {
		t.Fatalf("LoadOrInit failed: %v", err)
	}
	if cfg.LocalPort != DefaultLocalPort {
		t.Fatalf("expected default local port %d, got %d", DefaultLocalPort, cfg.LocalPort)
	}
	if cfg.Scripts.Python != "python" {
		t.Fatalf("expected default python, got %q", cfg.Scripts.Python)
	}
	if cfg.Jenkins.TimeoutSeconds != DefaultJenkinsTimeout {
		t.Fatalf("expected default jenkins timeout, got %d", cfg.Jenkins.TimeoutSeconds)
	}

	b, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("read config.toml failed: %v", err)
	}
	text := string(b)
	if !strings.Contains(text, "local_port = 4631") {
		t.Fatalf("expected local_port in toml, got: %s", text)
	}
	if !strings.Contains(text, "[scripts]") || !strings.Contains(text, "[jenkins]") {
		t.Fatalf("expected scripts and jenkins tables in toml, got: %s", text)
	}
	if !strings.Contains(text, "python = 'python'") && !strings.Contains(text, "python = \"python\"") {
		t.Fatalf("expected scripts.python in toml, got: %s", text)
	}
}

func TestConfigStore_SaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewConfigStore(dir)

	in := GlobalConfig{
		LocalPort: 4700,
		Scripts:   ScriptsConfig{Python: " python3 ", Dir: "/opt/agentdock/scripts"},
		Jenkins:   JenkinsConfig{TimeoutSeconds: 30, InsecureSkipVerify: true},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.LoadOrInit()
	if err != nil {
		t.Fatalf("LoadOrInit failed: %v", err)
	}
	if got.LocalPort != 4700 || got.Scripts.Python != "python3" || got.Scripts.Dir != "/opt/agentdock/scripts" {
		t.Fatalf("unexpected config: %+v", got)
	}
	if got.Jenkins.TimeoutSeconds != 30 || !got.Jenkins.InsecureSkipVerify {
		t.Fatalf("unexpected jenkins config: %+v", got.Jenkins)
	}
}

func TestConfigStore_LoadOrInit_NormalizesInvalidValues(t *testing.T) {
	dir := t.TempDir()
	raw := "local_port = -1\n[scripts]\npython = '  '\n[jenkins]\ntimeout_seconds = 0\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := NewConfigStore(dir).LoadOrInit()
	if err != nil {
		t.Fatalf("LoadOrInit failed: %v", err)
	}
	if cfg.LocalPort != DefaultLocalPort || cfg.Scripts.Python != DefaultPython || cfg.Jenkins.TimeoutSeconds != DefaultJenkinsTimeout {
		t.Fatalf("expected normalized defaults, got %+v", cfg)
	}
}

func TestConfigStore_LoadOrInit_RejectsBrokenTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("local_port = [\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewConfigStore(dir).LoadOrInit(); err == nil {
		t.Fatal("expected parse error")
	}
}
