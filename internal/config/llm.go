package config

import "time"

// LLMConfig configures the synthesis collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider" toml:"provider"` // gemini
	APIKey   string `yaml:"api_key" toml:"api_key"`
	// Model is the fallback model identifier. The store's "model" config key
	// wins when it is set, and is read on every call.
	Model   string `yaml:"model" toml:"model"`
	Timeout string `yaml:"timeout" toml:"timeout"`

	// Client-side rate limiting. Zero RequestsPerSecond disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`

	Gemini GeminiProviderConfig `yaml:"gemini" toml:"gemini"`
}

// GeminiProviderConfig holds Gemini-specific configuration.
type GeminiProviderConfig struct {
	// Backend selects the Gemini Developer API ("gemini") or Vertex AI ("vertex").
	Backend  string `yaml:"backend" toml:"backend"`
	Project  string `yaml:"project" toml:"project"`
	Location string `yaml:"location" toml:"location"`

	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// ThinkingBudget caps thinking tokens: -1 dynamic, 0 off.
	ThinkingBudget int `yaml:"thinking_budget" toml:"thinking_budget"`
}

// SpeechConfig configures transcription and voice synthesis.
type SpeechConfig struct {
	Enabled         bool   `yaml:"enabled" toml:"enabled"`
	TranscribeModel string `yaml:"transcribe_model" toml:"transcribe_model"`
	VoiceModel      string `yaml:"voice_model" toml:"voice_model"`
	Voice           string `yaml:"voice" toml:"voice"`
}

// GetLLMTimeout returns the per-call LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}
