// Package config provides configuration loading and management for ADW.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ADW configuration
type Config struct {
	Agent AgentConfig `yaml:"agent"`
	Repo  RepoConfig  `yaml:"repo"`
	Bot   BotConfig   `yaml:"bot"`
}

// AgentConfig configures the external coding-agent invocation
type AgentConfig struct {
	// ClaudePath is the path to the Claude Code binary.
	// Defaults to $CLAUDE_CODE_PATH, then "claude".
	ClaudePath string `yaml:"claude_path"`
	// DefaultModel is used for slash commands without a routing entry
	DefaultModel string `yaml:"default_model"`
}

// RepoConfig configures the repository settings
type RepoConfig struct {
	// Path is the repository root path (auto-detected from git if empty)
	Path string `yaml:"path"`
	// AgentsDir is the directory holding per-run state, prompts and logs,
	// relative to the repo root
	AgentsDir string `yaml:"agents_dir"`
	// SpecsDir is the directory where plan documents are written,
	// relative to the repo root
	SpecsDir string `yaml:"specs_dir"`
}

// BotConfig configures issue-tracker reporting
type BotConfig struct {
	// Identifier prefixes every automated issue comment so bot comments
	// are distinguishable from human ones
	Identifier string `yaml:"identifier"`
}

// RequiredEnv lists the environment variables every phase needs at startup.
var RequiredEnv = []string{"ANTHROPIC_API_KEY", "CLAUDE_CODE_PATH"}

// MissingEnv returns the subset of RequiredEnv that is not set.
func MissingEnv() []string {
	var missing []string
	for _, v := range RequiredEnv {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	claudePath := os.Getenv("CLAUDE_CODE_PATH")
	if claudePath == "" {
		claudePath = "claude"
	}
	return &Config{
		Agent: AgentConfig{
			ClaudePath:   claudePath,
			DefaultModel: "sonnet",
		},
		Repo: RepoConfig{
			Path:      "", // Auto-detect
			AgentsDir: "agents",
			SpecsDir:  "specs",
		},
		Bot: BotConfig{
			Identifier: "[ADW-BOT]",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Agent.ClaudePath == "" {
		return fmt.Errorf("agent.claude_path is required")
	}
	if c.Agent.DefaultModel == "" {
		return fmt.Errorf("agent.default_model is required")
	}
	if c.Repo.AgentsDir == "" {
		return fmt.Errorf("repo.agents_dir is required")
	}
	if c.Repo.SpecsDir == "" {
		return fmt.Errorf("repo.specs_dir is required")
	}
	if c.Bot.Identifier == "" {
		return fmt.Errorf("bot.identifier is required")
	}
	return nil
}

// Merge overlays non-zero fields from other onto c
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Agent.ClaudePath != "" {
		c.Agent.ClaudePath = other.Agent.ClaudePath
	}
	if other.Agent.DefaultModel != "" {
		c.Agent.DefaultModel = other.Agent.DefaultModel
	}
	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}
	if other.Repo.AgentsDir != "" {
		c.Repo.AgentsDir = other.Repo.AgentsDir
	}
	if other.Repo.SpecsDir != "" {
		c.Repo.SpecsDir = other.Repo.SpecsDir
	}
	if other.Bot.Identifier != "" {
		c.Bot.Identifier = other.Bot.Identifier
	}
}

// AgentsPath returns the absolute path of the agents directory.
func (c *Config) AgentsPath() string {
	return filepath.Join(c.Repo.Path, c.Repo.AgentsDir)
}

// SpecsPath returns the absolute path of the specs directory.
func (c *Config) SpecsPath() string {
	return filepath.Join(c.Repo.Path, c.Repo.SpecsDir)
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
