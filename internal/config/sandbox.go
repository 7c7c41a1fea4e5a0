package config

import "time"

// SandboxConfig configures the artifact interpreter.
type SandboxConfig struct {
	// Default timeout for one artifact call
	ExecuteTimeout string `yaml:"execute_timeout" toml:"execute_timeout"`

	// Standard library packages an artifact may import
	AllowedPackages []string `yaml:"allowed_packages" toml:"allowed_packages"`

	// Number of analysed signatures kept in memory
	CacheSize int `yaml:"cache_size" toml:"cache_size"`
}

// DefaultAllowedPackages is the standard library surface exposed to artifacts.
var DefaultAllowedPackages = []string{
	"strings", "strconv", "fmt", "math", "math/rand", "sort", "regexp",
	"unicode", "unicode/utf8", "bytes", "time", "errors",
	"encoding/json", "encoding/base64", "encoding/hex", "encoding/csv",
	"path", "crypto/sha256", "crypto/md5", "hash/crc32",
}

// GetExecuteTimeout returns the artifact call timeout as a duration.
func (c *Config) GetExecuteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Sandbox.ExecuteTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
