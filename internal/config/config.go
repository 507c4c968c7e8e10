// Package config handles configuration loading and management for flume.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for flume.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Compactor CompactorConfig `mapstructure:"compactor"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	State     StateConfig     `mapstructure:"state"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// MaxTokens caps each completion response.
	MaxTokens int `mapstructure:"max_tokens"`
	// UseAWSBedrock routes calls through AWS Bedrock instead of the API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// ExecutorConfig holds step scheduling settings.
type ExecutorConfig struct {
	// MaxParallel is the ceiling on concurrently running steps.
	MaxParallel int `mapstructure:"max_parallel"`
	// StepTimeout bounds a single backend call.
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

// CompactorConfig holds context compaction budgets.
type CompactorConfig struct {
	// MaxSize is the forwarded context budget in characters.
	MaxSize int `mapstructure:"max_size"`
	// MinSummary is the floor the summary is never truncated below.
	MinSummary int `mapstructure:"min_summary"`
	MaxFiles    int `mapstructure:"max_files"`
	MaxFindings int `mapstructure:"max_findings"`
}

// PlannerConfig holds workflow planning settings.
type PlannerConfig struct {
	// TemplatesPath points to a YAML file of role template overrides.
	TemplatesPath string `mapstructure:"templates_path"`
	// LLMPlanning enables model-proposed graphs for custom tasks.
	LLMPlanning bool `mapstructure:"llm_planning"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Path is the SQLite database location. Empty selects the XDG data dir.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.flume.yaml in current directory or parent)
// 3. User config (~/.config/flume/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "FLUME_MODEL")
	v.BindEnv("anthropic.use_aws_bedrock", "CLAUDE_CODE_USE_BEDROCK")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("executor.max_parallel", cfg.Executor.MaxParallel)
	v.Set("executor.step_timeout", cfg.Executor.StepTimeout.String())
	v.Set("compactor.max_size", cfg.Compactor.MaxSize)
	v.Set("compactor.min_summary", cfg.Compactor.MinSummary)
	v.Set("compactor.max_files", cfg.Compactor.MaxFiles)
	v.Set("compactor.max_findings", cfg.Compactor.MaxFindings)
	v.Set("planner.templates_path", cfg.Planner.TemplatesPath)
	v.Set("planner.llm_planning", cfg.Planner.LLMPlanning)
	v.Set("state.path", cfg.State.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// StatePath returns the configured database path, or the XDG data
// location when unset.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return os.ExpandEnv(c.State.Path)
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "flume", "flume.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".flume", "flume.db")
	}
	return filepath.Join(home, ".local", "share", "flume", "flume.db")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("executor.max_parallel", 4)
	v.SetDefault("executor.step_timeout", "15m")

	v.SetDefault("compactor.max_size", 2000)
	v.SetDefault("compactor.min_summary", 120)
	v.SetDefault("compactor.max_files", 20)
	v.SetDefault("compactor.max_findings", 10)

	v.SetDefault("planner.templates_path", "")
	v.SetDefault("planner.llm_planning", false)

	v.SetDefault("state.path", "")
}

// getUserConfigDir returns the XDG config directory for flume.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "flume")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "flume")
	}
	return filepath.Join(home, ".config", "flume")
}

// findProjectConfig searches for .flume.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".flume.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			MaxTokens: 8192,
		},
		Executor: ExecutorConfig{
			MaxParallel: 4,
			StepTimeout: 15 * time.Minute,
		},
		Compactor: CompactorConfig{
			MaxSize:     2000,
			MinSummary:  120,
			MaxFiles:    20,
			MaxFindings: 10,
		},
	}
}
