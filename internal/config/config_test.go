package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
anthropic:
  model: claude-sonnet-4-20250514
  max_tokens: 4096
executor:
  max_parallel: 2
  step_timeout: 5m
compactor:
  max_size: 1500
planner:
  llm_planning: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Anthropic.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q", cfg.Anthropic.Model)
	}
	if cfg.Anthropic.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d", cfg.Anthropic.MaxTokens)
	}
	if cfg.Executor.MaxParallel != 2 {
		t.Errorf("max_parallel = %d", cfg.Executor.MaxParallel)
	}
	if cfg.Executor.StepTimeout != 5*time.Minute {
		t.Errorf("step_timeout = %s", cfg.Executor.StepTimeout)
	}
	if cfg.Compactor.MaxSize != 1500 {
		t.Errorf("compactor.max_size = %d", cfg.Compactor.MaxSize)
	}
	if !cfg.Planner.LLMPlanning {
		t.Error("planner.llm_planning not set")
	}

	// Unset keys keep defaults.
	if cfg.Compactor.MinSummary != 120 {
		t.Errorf("compactor.min_summary default = %d", cfg.Compactor.MinSummary)
	}
}

func TestLoadFromPathExpandsAPIKeyEnv(t *testing.T) {
	t.Setenv("TEST_FLUME_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "anthropic:\n  api_key: ${TEST_FLUME_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-test-123" {
		t.Errorf("api_key not expanded: %q", cfg.Anthropic.APIKey)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Executor.MaxParallel != 4 {
		t.Errorf("default max_parallel = %d", cfg.Executor.MaxParallel)
	}
	if cfg.Compactor.MaxSize != 2000 {
		t.Errorf("default compactor max_size = %d", cfg.Compactor.MaxSize)
	}
	if cfg.Anthropic.MaxTokens != 8192 {
		t.Errorf("default max_tokens = %d", cfg.Anthropic.MaxTokens)
	}
}

func TestStatePathFallsBackToXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	cfg := Default()
	want := filepath.Join("/tmp/xdg-data", "flume", "flume.db")
	if got := cfg.StatePath(); got != want {
		t.Errorf("StatePath() = %q, want %q", got, want)
	}

	cfg.State.Path = "/custom/flume.db"
	if got := cfg.StatePath(); got != "/custom/flume.db" {
		t.Errorf("explicit StatePath() = %q", got)
	}
}
