package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/rkoval/flume/pkg/models"
)

// ClientConfig contains configuration for creating an AnthropicRunner.
type ClientConfig struct {
	// Model is the Claude model to use.
	Model string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// MaxTokens caps the completion length per call.
	MaxTokens int
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// AnthropicRunner executes steps against the Anthropic Messages API.
type AnthropicRunner struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicRunner creates a Runner backed by the Anthropic API.
func NewAnthropicRunner(cfg ClientConfig) (*AnthropicRunner, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &AnthropicRunner{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:  "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:  "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219: "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:  "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// rolePrompts maps each role to its system prompt.
var rolePrompts = map[models.Role]string{
	models.RoleResearcher: "You are a codebase researcher. Investigate the task without making changes and report what you learned as short bullet points.",
	models.RolePlanner:    "You are a planning assistant. Break work into discrete steps and return only the requested structured output.",
	models.RoleBuilder:    "You are a software builder. Implement exactly what the instruction asks, nothing more.",
	models.RoleTester:     "You are a test engineer. Verify the work described by the instruction and report results as bullet points.",
	models.RoleReviewer:   "You are a code reviewer. List concrete concerns as bullet points; do not rewrite the work.",
	models.RoleDocumenter: "You are a technical writer. Produce the documentation the instruction asks for.",
	models.RoleCustom:     "Follow the instruction precisely.",
}

const outputFormatHint = `End your response with:
Summary: one or two sentences describing the outcome.
Files:
- each file you read or changed, one per line (omit the section if none).`

// Execute implements Runner.
func (r *AnthropicRunner) Execute(ctx context.Context, req Request) (*Result, error) {
	system := rolePrompts[req.Role]
	if system == "" {
		system = rolePrompts[models.RoleCustom]
	}
	if len(req.Constraints) > 0 {
		system += "\nConstraints:\n- " + strings.Join(req.Constraints, "\n- ")
	}
	system += "\n\n" + outputFormatHint

	var user strings.Builder
	if !req.Context.Empty() {
		user.WriteString("Context from earlier steps:\n")
		user.WriteString(req.Context.Summary)
		if len(req.Context.Files) > 0 {
			user.WriteString("\nRelevant files: " + strings.Join(req.Context.Files, ", "))
		}
		for _, f := range req.Context.Findings {
			user.WriteString("\n- " + f)
		}
		user.WriteString("\n\n")
	}
	user.WriteString(req.Instruction)

	resp, err := r.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user.String())),
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	var output strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			output.WriteString(variant.Text)
		}
	}

	usage := models.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CacheTokens:  resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens,
	}
	usage.Cost = estimateCost(string(r.model), usage)

	return &Result{
		Output:       output.String(),
		Usage:        usage,
		TouchedFiles: parseTouchedFiles(output.String()),
	}, nil
}

// classify wraps an Anthropic SDK error with a transient/fatal distinction.
// Rate limits, timeouts, and server errors are transient; everything else
// (auth, bad request) is fatal. Plain transport errors are transient.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 408 || apierr.StatusCode == 429:
			return &Error{Transient: true, Err: err}
		case apierr.StatusCode >= 500:
			return &Error{Transient: true, Err: err}
		default:
			return &Error{Transient: false, Err: err}
		}
	}
	return &Error{Transient: true, Err: err}
}

// parseTouchedFiles extracts the paths listed under a trailing "Files:"
// section of the output. Missing or malformed sections yield nil.
func parseTouchedFiles(output string) []string {
	idx := strings.LastIndex(output, "\nFiles:")
	if idx == -1 {
		if !strings.HasPrefix(output, "Files:") {
			return nil
		}
		idx = -1
	}
	section := output[idx+1:]
	seen := make(map[string]bool)
	var files []string
	for _, line := range strings.Split(section, "\n")[1:] {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if trimmed == "" {
			break
		}
		if seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		files = append(files, trimmed)
	}
	return files
}
