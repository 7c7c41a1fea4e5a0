package config

import "time"

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr" toml:"addr"`
	SessionSecret   string `yaml:"session_secret" toml:"session_secret"`
	SessionTTL      string `yaml:"session_ttl" toml:"session_ttl"`
	ShutdownTimeout string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite3 (cgo), sqlite (pure Go)
	Path   string `yaml:"path" toml:"path"`
}

// BootstrapConfig provisions the administrator on startup.
type BootstrapConfig struct {
	AdminMoniker  string `yaml:"admin_moniker" toml:"admin_moniker"`
	AdminPassword string `yaml:"admin_password" toml:"admin_password"`
}

// GetSessionTTL returns the session TTL as a duration.
func (c *Config) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Server.SessionTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
