package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config is the environment-derived runtime configuration. File-backed
// settings live in internal/global.
type Config struct {
	LogLevel  string
	LogFormat string
	LocalHost string
	LocalPort int
	// LocalPortSet reports that LocalPort came from the environment or a
	// flag and overrides local_port in config.toml.
	LocalPortSet bool
	ConfigDir    string
	DBDSN        string
	Python       string
	ScriptsDir   string
	WebUIDir     string
}

var (
	cacheTTL         = 10 * time.Second
	nowFunc          = time.Now
	cacheMu          sync.RWMutex
	cachedCfg        Config
	cachedAt         time.Time
	cacheValid       bool
	defaultLocalPort = "4631"
)

// DefaultLocalPort is the port used when AGENTDOCK_LOCAL_PORT is unset or
// malformed. It can be replaced at build time through defaultLocalPort.
func DefaultLocalPort() int {
	return atoiOrDefault(defaultLocalPort, 4631)
}

func LoadConfig() Config {
	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = nowFunc()
	cacheValid = true
	cacheMu.Unlock()
	return cfg
}

func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	valid := cacheValid && now.Sub(cachedAt) < cacheTTL
	if valid {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = now
	cacheValid = true
	cacheMu.Unlock()

	out := cfg
	return &out
}

func loadFromEnv() Config {
	level := envOr("AGENTDOCK_LOG_LEVEL", "info")
	format := envOr("AGENTDOCK_LOG_FORMAT", "json")
	localHost := envOr("AGENTDOCK_LOCAL_HOST", "127.0.0.1")

	fallbackPort := DefaultLocalPort()
	localPort := fallbackPort
	portSet := false
	if p := strings.TrimSpace(os.Getenv("AGENTDOCK_LOCAL_PORT")); p != "" {
		// Malformed values fall back to the default rather than failing startup.
		localPort = atoiOrDefault(p, 0)
		portSet = localPort > 0
		if !portSet {
			localPort = fallbackPort
		}
	}

	return Config{
		LogLevel:     level,
		LogFormat:    format,
		LocalHost:    localHost,
		LocalPort:    localPort,
		LocalPortSet: portSet,
		ConfigDir:    strings.TrimSpace(os.Getenv("AGENTDOCK_CONFIG_DIR")),
		DBDSN:        strings.TrimSpace(os.Getenv("AGENTDOCK_DB_DSN")),
		Python:       strings.TrimSpace(os.Getenv("AGENTDOCK_PYTHON")),
		ScriptsDir:   envOr("AGENTDOCK_SCRIPTS_DIR", defaultScriptsDir()),
		WebUIDir:     strings.TrimSpace(os.Getenv("AGENTDOCK_WEBUI_DIR")),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// defaultScriptsDir resolves the bundled scripts next to the installed binary.
func defaultScriptsDir() string {
	execPath, err := os.Executable()
	if err != nil || execPath == "" {
		return filepath.Clean("scripts")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(execPath), "..", "share", "agentdock", "scripts"))
}

func atoiOrDefault(v string, fallback int) int {
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return fallback
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
