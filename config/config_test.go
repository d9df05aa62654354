package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.DefaultModel != "sonnet" {
		t.Errorf("expected default model sonnet, got %s", cfg.Agent.DefaultModel)
	}
	if cfg.Repo.AgentsDir != "agents" {
		t.Errorf("expected agents dir 'agents', got %s", cfg.Repo.AgentsDir)
	}
	if cfg.Repo.SpecsDir != "specs" {
		t.Errorf("expected specs dir 'specs', got %s", cfg.Repo.SpecsDir)
	}
	if cfg.Bot.Identifier != "[ADW-BOT]" {
		t.Errorf("expected bot identifier [ADW-BOT], got %s", cfg.Bot.Identifier)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing claude path",
			modify:  func(c *Config) { c.Agent.ClaudePath = "" },
			wantErr: true,
		},
		{
			name:    "missing default model",
			modify:  func(c *Config) { c.Agent.DefaultModel = "" },
			wantErr: true,
		},
		{
			name:    "missing agents dir",
			modify:  func(c *Config) { c.Repo.AgentsDir = "" },
			wantErr: true,
		},
		{
			name:    "missing bot identifier",
			modify:  func(c *Config) { c.Bot.Identifier = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	other := &Config{}
	other.Agent.DefaultModel = "opus"
	other.Repo.SpecsDir = "plans"

	base.Merge(other)

	if base.Agent.DefaultModel != "opus" {
		t.Errorf("expected merged model opus, got %s", base.Agent.DefaultModel)
	}
	if base.Repo.SpecsDir != "plans" {
		t.Errorf("expected merged specs dir plans, got %s", base.Repo.SpecsDir)
	}
	// Unset fields keep base values.
	if base.Repo.AgentsDir != "agents" {
		t.Errorf("merge clobbered agents dir: %s", base.Repo.AgentsDir)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
agent:
  default_model: "opus"
repo:
  specs_dir: "plans"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.Agent.DefaultModel != "opus" {
		t.Errorf("expected model opus, got %s", cfg.Agent.DefaultModel)
	}
	if cfg.Repo.SpecsDir != "plans" {
		t.Errorf("expected specs dir plans, got %s", cfg.Repo.SpecsDir)
	}
}

func TestAgentsPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repo.Path = "/work/repo"

	if got := cfg.AgentsPath(); got != filepath.Join("/work/repo", "agents") {
		t.Errorf("unexpected agents path: %s", got)
	}
	if got := cfg.SpecsPath(); got != filepath.Join("/work/repo", "specs") {
		t.Errorf("unexpected specs path: %s", got)
	}
}

func TestMissingEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "key")
	t.Setenv("CLAUDE_CODE_PATH", "claude")
	if missing := MissingEnv(); len(missing) != 0 {
		t.Errorf("expected no missing vars, got %v", missing)
	}

	os.Unsetenv("ANTHROPIC_API_KEY")
	missing := MissingEnv()
	if len(missing) != 1 || missing[0] != "ANTHROPIC_API_KEY" {
		t.Errorf("expected ANTHROPIC_API_KEY missing, got %v", missing)
	}
}
