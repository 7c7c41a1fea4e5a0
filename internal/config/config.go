package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all jinn configuration.
type Config struct {
	// Core settings
	Name string `yaml:"name" toml:"name"`

	// Synthesis collaborator
	LLM LLMConfig `yaml:"llm" toml:"llm"`

	// SQLite store
	Store StoreConfig `yaml:"store" toml:"store"`

	// HTTP API and sessions
	Server ServerConfig `yaml:"server" toml:"server"`

	// Artifact interpreter
	Sandbox SandboxConfig `yaml:"sandbox" toml:"sandbox"`

	// Transcription and voice synthesis
	Speech SpeechConfig `yaml:"speech" toml:"speech"`

	// Logging
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Administrator provisioning
	Bootstrap BootstrapConfig `yaml:"bootstrap" toml:"bootstrap"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "jinn",

		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-2.5-flash",
			Timeout:           "120s",
			RequestsPerSecond: 2,
			Burst:             4,
			Gemini: GeminiProviderConfig{
				Backend:        "gemini",
				ThinkingBudget: -1,
			},
		},

		Store: StoreConfig{
			Driver: "sqlite3",
			Path:   "data/db.sqlite3",
		},

		Server: ServerConfig{
			Addr:            ":8080",
			SessionTTL:      "24h",
			ShutdownTimeout: "10s",
			MaxUploadBytes:  10 << 20,
		},

		Sandbox: SandboxConfig{
			ExecuteTimeout:  "10s",
			AllowedPackages: append([]string(nil), DefaultAllowedPackages...),
			CacheSize:       256,
		},

		Speech: SpeechConfig{
			Enabled:         true,
			TranscribeModel: "gemini-2.5-flash",
			VoiceModel:      "gemini-2.5-flash-preview-tts",
			Voice:           "Kore",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},

		Bootstrap: BootstrapConfig{
			AdminMoniker:  "alladin",
			AdminPassword: "open_sesame",
		},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// A missing file yields the defaults. Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Save saves configuration to a YAML or TOML file, chosen by extension.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = []byte(sb.String())
	} else {
		var err error
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (GEMINI_API_KEY wins)
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	// Data directory holds the database and the log file
	if dir := os.Getenv("JINN_DATA_PATH"); dir != "" {
		c.Store.Path = filepath.Join(dir, "db.sqlite3")
		c.Logging.File = filepath.Join(dir, "log.txt")
	}
	if path := os.Getenv("JINN_DB"); path != "" {
		c.Store.Path = path
	}
	if driver := os.Getenv("JINN_DB_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}

	if addr := os.Getenv("JINN_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if secret := os.Getenv("JINN_SESSION_SECRET"); secret != "" {
		c.Server.SessionSecret = secret
	}

	if moniker := os.Getenv("JINN_ADMIN_MONIKER"); moniker != "" {
		c.Bootstrap.AdminMoniker = moniker
	}
	if password := os.Getenv("JINN_ADMIN_PASSWORD"); password != "" {
		c.Bootstrap.AdminPassword = password
	}
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini"}

// ValidDrivers lists the supported SQLite drivers.
var ValidDrivers = []string{"sqlite3", "sqlite"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" && c.LLM.Gemini.Backend != "vertex" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or GOOGLE_API_KEY)")
	}
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if !contains(ValidDrivers, c.Store.Driver) {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidDrivers)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path not configured")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
