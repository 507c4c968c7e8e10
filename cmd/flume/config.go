package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkoval/flume/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify flume configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/flume/config.yaml
Project-specific overrides can be placed in .flume.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.max_tokens: %d\n", cfg.Anthropic.MaxTokens)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("executor.max_parallel: %d\n", cfg.Executor.MaxParallel)
	fmt.Printf("executor.step_timeout: %s\n", cfg.Executor.StepTimeout)
	fmt.Printf("compactor.max_size: %d\n", cfg.Compactor.MaxSize)
	fmt.Printf("compactor.min_summary: %d\n", cfg.Compactor.MinSummary)
	fmt.Printf("compactor.max_files: %d\n", cfg.Compactor.MaxFiles)
	fmt.Printf("compactor.max_findings: %d\n", cfg.Compactor.MaxFindings)
	fmt.Printf("planner.templates_path: %s\n", cfg.Planner.TemplatesPath)
	fmt.Printf("planner.llm_planning: %t\n", cfg.Planner.LLMPlanning)
	fmt.Printf("state.path: %s\n", cfg.StatePath())
}

// displayConfigKey prints one configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	switch key {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey != "" {
			fmt.Println("****")
		} else {
			fmt.Println("(not set)")
		}
	case "anthropic.model":
		fmt.Println(cfg.Anthropic.Model)
	case "anthropic.max_tokens":
		fmt.Println(cfg.Anthropic.MaxTokens)
	case "anthropic.use_aws_bedrock":
		fmt.Println(cfg.Anthropic.UseAWSBedrock)
	case "executor.max_parallel":
		fmt.Println(cfg.Executor.MaxParallel)
	case "executor.step_timeout":
		fmt.Println(cfg.Executor.StepTimeout)
	case "compactor.max_size":
		fmt.Println(cfg.Compactor.MaxSize)
	case "compactor.min_summary":
		fmt.Println(cfg.Compactor.MinSummary)
	case "compactor.max_files":
		fmt.Println(cfg.Compactor.MaxFiles)
	case "compactor.max_findings":
		fmt.Println(cfg.Compactor.MaxFindings)
	case "planner.templates_path":
		fmt.Println(cfg.Planner.TemplatesPath)
	case "planner.llm_planning":
		fmt.Println(cfg.Planner.LLMPlanning)
	case "state.path":
		fmt.Println(cfg.StatePath())
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}
}

// setConfigKey updates one configuration value and saves the user config.
func setConfigKey(cfg *config.Config, key, value string) {
	var err error
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.max_tokens":
		cfg.Anthropic.MaxTokens, err = strconv.Atoi(value)
	case "anthropic.use_aws_bedrock":
		cfg.Anthropic.UseAWSBedrock, err = strconv.ParseBool(value)
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "executor.max_parallel":
		cfg.Executor.MaxParallel, err = strconv.Atoi(value)
	case "executor.step_timeout":
		cfg.Executor.StepTimeout, err = time.ParseDuration(value)
	case "compactor.max_size":
		cfg.Compactor.MaxSize, err = strconv.Atoi(value)
	case "compactor.min_summary":
		cfg.Compactor.MinSummary, err = strconv.Atoi(value)
	case "compactor.max_files":
		cfg.Compactor.MaxFiles, err = strconv.Atoi(value)
	case "compactor.max_findings":
		cfg.Compactor.MaxFindings, err = strconv.Atoi(value)
	case "planner.templates_path":
		cfg.Planner.TemplatesPath = value
	case "planner.llm_planning":
		cfg.Planner.LLMPlanning, err = strconv.ParseBool(value)
	case "state.path":
		cfg.State.Path = value
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid value for %s: %v\n", key, err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Set %s\n", key)
}
