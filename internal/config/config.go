// Package config holds storyNERD configuration, loaded from
// <workspace>/storynerd.yaml with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the config file name inside a workspace.
const ConfigFileName = "storynerd.yaml"

// Per-provider defaults applied when an env API key switches the
// provider without the config file naming a model.
const (
	defaultGeminiModel   = "gemini-2.5-flash"
	defaultNvidiaModel   = "meta/llama-3.1-405b-instruct"
	defaultNvidiaBaseURL = "https://integrate.api.nvidia.com/v1"
)

// Config holds all storyNERD configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Context window budgeting
	Context ContextConfig `yaml:"context"`

	// Memory tiers
	Memory MemoryConfig `yaml:"memory"`

	// Agent loop settings
	Agent AgentConfig `yaml:"agent"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion backend.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // openai, gemini, nvidia
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// ContextConfig configures the context assembler budget.
type ContextConfig struct {
	// MaxChars is the total assembled-context budget B, in characters.
	MaxChars int `yaml:"max_chars"`

	// CanonPercent is the sub-budget share for world/characters/outline.
	CanonPercent int `yaml:"canon_percent"`

	// SummaryReservePercent reserves part of the remainder for recent
	// chapter summaries so the global digest cannot starve them.
	SummaryReservePercent int `yaml:"summary_reserve_percent"`

	// RecentChapterWindow is how many finalized chapters to recall.
	RecentChapterWindow int `yaml:"recent_chapter_window"`
}

// MemoryConfig configures the memory manager.
type MemoryConfig struct {
	// CompactThreshold is the global memory size (chars) above which
	// compaction merges the oldest non-pivotal entries.
	CompactThreshold int `yaml:"compact_threshold"`

	// CompactKeep is how many newest entries compaction always leaves
	// untouched.
	CompactKeep int `yaml:"compact_keep"`

	// SummaryMaxChars bounds a chapter summary produced by finalization.
	SummaryMaxChars int `yaml:"summary_max_chars"`
}

// AgentConfig configures the agent loop.
type AgentConfig struct {
	// MaxToolRounds bounds tool-calling rounds per user turn.
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "storyNERD",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4o",
			BaseURL:    "https://api.openai.com/v1",
			Timeout:    "120s",
			MaxRetries: 3,
		},

		Context: ContextConfig{
			MaxChars:              48000,
			CanonPercent:          40,
			SummaryReservePercent: 35,
			RecentChapterWindow:   3,
		},

		Memory: MemoryConfig{
			CompactThreshold: 16000,
			CompactKeep:      20,
			SummaryMaxChars:  2000,
		},

		Agent: AgentConfig{
			MaxToolRounds: 8,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration for a workspace. Missing file returns defaults.
func Load(workspace string) (*Config, error) {
	return LoadFile(filepath.Join(workspace, ConfigFileName))
}

// LoadFile loads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// API keys are checked in priority order; the last match wins.
func (c *Config) applyEnvOverrides() {
	// Model and base URL only follow an env-driven provider switch when
	// the config file did not set them explicitly.
	defaults := DefaultConfig()
	modelFromFile := c.LLM.Model != defaults.LLM.Model
	baseFromFile := c.LLM.BaseURL != defaults.LLM.BaseURL

	if key := os.Getenv("NVIDIA_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "nvidia"
		if !modelFromFile {
			c.LLM.Model = defaultNvidiaModel
		}
		if !baseFromFile {
			c.LLM.BaseURL = defaultNvidiaBaseURL
		}
		if base := os.Getenv("NVIDIA_BASE_URL"); base != "" {
			c.LLM.BaseURL = base
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
		if !modelFromFile {
			c.LLM.Model = defaultGeminiModel
		}
		if !baseFromFile {
			c.LLM.BaseURL = ""
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
		if !modelFromFile {
			c.LLM.Model = defaults.LLM.Model
		}
		if !baseFromFile {
			c.LLM.BaseURL = defaults.LLM.BaseURL
		}
	}

	if model := os.Getenv("STORYNERD_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if base := os.Getenv("STORYNERD_BASE_URL"); base != "" {
		c.LLM.BaseURL = base
	}
	if os.Getenv("STORYNERD_DEBUG") == "1" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}
