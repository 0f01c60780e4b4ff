package global

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	configTOMLFileName = "config.toml"

	DefaultLocalPort      = 4631
	DefaultPython         = "python"
	DefaultJenkinsTimeout = 15
)

type ScriptsConfig struct {
	Python string `json:"python" toml:"python"`
	Dir    string `json:"dir" toml:"dir"`
}

type JenkinsConfig struct {
	TimeoutSeconds     int  `json:"timeout_seconds" toml:"timeout_seconds"`
	InsecureSkipVerify bool `json:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

type GlobalConfig struct {
	LocalPort int           `json:"local_port" toml:"local_port"`
	Scripts   ScriptsConfig `json:"scripts" toml:"scripts"`
	Jenkins   JenkinsConfig `json:"jenkins" toml:"jenkins"`
}

type ConfigStore struct {
	dir string
}

func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{dir: dir}
}

// Path returns the location of config.toml.
func (s *ConfigStore) Path() string {
	return filepath.Join(s.dir, configTOMLFileName)
}

func (s *ConfigStore) LoadOrInit() (GlobalConfig, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return GlobalConfig{}, err
	}

	path := s.Path()
	if _, err := os.Stat(path); err == nil {
		return LoadConfigFile(path)
	} else if !os.IsNotExist(err) {
		return GlobalConfig{}, err
	}

	cfg := normalizeConfig(GlobalConfig{})
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigStore) Save(cfg GlobalConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(s.Path(), normalizeConfig(cfg))
}

// LoadConfigFile reads and normalizes a config.toml. It is also the loader
// handed to the config watcher.
func LoadConfigFile(path string) (GlobalConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return GlobalConfig{}, err
	}
	var cfg GlobalConfig
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return GlobalConfig{}, err
	}
	return normalizeConfig(cfg), nil
}

func normalizeConfig(cfg GlobalConfig) GlobalConfig {
	if cfg.LocalPort <= 0 {
		cfg.LocalPort = DefaultLocalPort
	}
	cfg.Scripts.Python = strings.TrimSpace(cfg.Scripts.Python)
	if cfg.Scripts.Python == "" {
		cfg.Scripts.Python = DefaultPython
	}
	cfg.Scripts.Dir = strings.TrimSpace(cfg.Scripts.Dir)
	if cfg.Jenkins.TimeoutSeconds <= 0 {
		cfg.Jenkins.TimeoutSeconds = DefaultJenkinsTimeout
	}
	return cfg
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
