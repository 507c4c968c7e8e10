// Package compactor condenses raw step output into a bounded StepContext
// so downstream steps receive a summary instead of full transcripts.
package compactor

import (
	"regexp"
	"strings"

	"github.com/rkoval/flume/pkg/models"
)

// Config bounds the shape of produced contexts.
type Config struct {
	// MaxSize is the maximum serialized context size in characters.
	MaxSize int
	// MinSummary is the floor below which the summary is never truncated.
	MinSummary int
	// MaxFindings caps the number of extracted key findings.
	MaxFindings int
	// MaxFiles caps the number of extracted file paths.
	MaxFiles int
}

// DefaultConfig returns the default compaction bounds.
func DefaultConfig() Config {
	return Config{
		MaxSize:     2000,
		MinSummary:  120,
		MaxFindings: 10,
		MaxFiles:    20,
	}
}

// Compactor extracts bounded structured summaries from raw step output.
type Compactor struct {
	cfg Config
}

// New creates a Compactor. Zero or negative config fields fall back to defaults.
func New(cfg Config) *Compactor {
	def := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MinSummary <= 0 || cfg.MinSummary > cfg.MaxSize {
		cfg.MinSummary = min(def.MinSummary, cfg.MaxSize)
	}
	if cfg.MaxFindings <= 0 {
		cfg.MaxFindings = def.MaxFindings
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	return &Compactor{cfg: cfg}
}

// MaxSize returns the configured context size ceiling.
func (c *Compactor) MaxSize() int {
	return c.cfg.MaxSize
}

var (
	// summaryMarker matches an explicit summary declaration at line start,
	// either "Summary:" or a "## Summary" heading.
	summaryMarker = regexp.MustCompile(`(?mi)^(?:#{1,3}\s*summary\s*$|summary:\s*)`)
	// bulletItem matches "-", "*", or "1." style list items.
	bulletItem = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s+(.+)$`)
	// pathToken matches file-path-like tokens with a directory separator
	// and an extension, e.g. internal/foo/bar.go or ./a/b.yaml.
	pathToken = regexp.MustCompile(`(?:\./)?[\w.-]+(?:/[\w.-]+)+\.\w{1,8}`)
	// sentenceEnd splits on sentence-terminating punctuation.
	sentenceEnd = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)
	// filesHeading matches a "Files changed"-style section heading.
	filesHeading = regexp.MustCompile(`(?mi)^(?:#{1,3}\s*)?files(?:\s+(?:changed|touched|modified))?:?\s*$`)
)

// Compact produces a StepContext from raw step output.
// The result never exceeds the configured MaxSize: findings are truncated
// first, then the file manifest, and the summary last — never below
// MinSummary. Empty input yields an empty, valid context. Malformed list
// markup degrades to "no findings extracted", never an error.
func (c *Compactor) Compact(raw, sourceStepID string) models.StepContext {
	ctx := models.StepContext{SourceStepID: sourceStepID}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ctx
	}

	ctx.Summary = c.extractSummary(raw)
	ctx.Files = c.extractFiles(raw)
	ctx.Findings = c.extractFindings(raw)

	c.enforceBudget(&ctx)
	return ctx
}

// extractSummary prefers an explicit summary marker, then the first few
// sentences, then a plain prefix of the text.
func (c *Compactor) extractSummary(raw string) string {
	budget := c.cfg.MaxSize

	if loc := summaryMarker.FindStringIndex(raw); loc != nil {
		rest := raw[loc[1]:]
		// The marked summary runs to the first blank line or next heading.
		if end := strings.Index(rest, "\n\n"); end != -1 {
			rest = rest[:end]
		}
		if end := strings.Index(rest, "\n#"); end != -1 {
			rest = rest[:end]
		}
		if s := collapseWhitespace(rest); s != "" {
			return truncate(s, budget)
		}
	}

	// Heuristic: first sentences up to roughly a quarter of the budget,
	// leaving room for files and findings.
	limit := budget / 4
	if limit < c.cfg.MinSummary {
		limit = min(c.cfg.MinSummary, budget)
	}
	flat := collapseWhitespace(raw)
	var sb strings.Builder
	for _, m := range sentenceEnd.FindAllStringSubmatch(flat, -1) {
		sentence := strings.TrimSpace(m[1])
		if sentence == "" {
			continue
		}
		if sb.Len() > 0 && sb.Len()+len(sentence)+1 > limit {
			break
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(sentence)
		if sb.Len() >= limit {
			break
		}
	}
	if sb.Len() > 0 {
		return truncate(sb.String(), limit)
	}

	// No recognizable sentence structure: truncated prefix of the raw text.
	return truncate(flat, limit)
}

// extractFiles returns the ordered, de-duplicated file paths mentioned in
// the output, preferring an explicit files section when one exists.
func (c *Compactor) extractFiles(raw string) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		path = strings.TrimPrefix(path, "./")
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		files = append(files, path)
	}

	// Explicit "Files changed" section: one path per list item or line.
	if loc := filesHeading.FindStringIndex(raw); loc != nil {
		for _, line := range strings.Split(raw[loc[1]:], "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				break
			}
			if m := bulletItem.FindStringSubmatch(line); m != nil {
				trimmed = strings.TrimSpace(m[1])
			}
			if p := pathToken.FindString(trimmed); p != "" {
				add(p)
			}
		}
	}

	for _, p := range pathToken.FindAllString(raw, -1) {
		if len(files) >= c.cfg.MaxFiles {
			break
		}
		add(p)
	}

	if len(files) > c.cfg.MaxFiles {
		files = files[:c.cfg.MaxFiles]
	}
	return files
}

// extractFindings collects bullet and numbered list items as key findings.
func (c *Compactor) extractFindings(raw string) []string {
	var findings []string
	for _, line := range strings.Split(raw, "\n") {
		m := bulletItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := collapseWhitespace(m[1])
		if item == "" {
			continue
		}
		findings = append(findings, item)
		if len(findings) >= c.cfg.MaxFindings {
			break
		}
	}
	return findings
}

// enforceBudget shrinks the context until its serialized size fits MaxSize.
// Findings are dropped from the tail first, then files, then the summary
// is shortened but never below MinSummary.
func (c *Compactor) enforceBudget(ctx *models.StepContext) {
	for ctx.Size() > c.cfg.MaxSize && len(ctx.Findings) > 0 {
		ctx.Findings = ctx.Findings[:len(ctx.Findings)-1]
	}
	if len(ctx.Findings) == 0 {
		ctx.Findings = nil
	}

	for ctx.Size() > c.cfg.MaxSize && len(ctx.Files) > 0 {
		ctx.Files = ctx.Files[:len(ctx.Files)-1]
	}
	if len(ctx.Files) == 0 {
		ctx.Files = nil
	}

	if ctx.Size() > c.cfg.MaxSize {
		keep := c.cfg.MaxSize
		if keep < c.cfg.MinSummary {
			keep = c.cfg.MinSummary
		}
		ctx.Summary = truncate(ctx.Summary, keep)
	}
}

// Merge concatenates upstream contexts into a single forwarded context,
// in the order given, re-compacted to the configured ceiling. Nil and
// empty contexts are skipped, so a failed optional dependency simply
// contributes nothing.
func (c *Compactor) Merge(sourceStepID string, contexts ...*models.StepContext) models.StepContext {
	var sb strings.Builder
	for _, ctx := range contexts {
		if ctx.Empty() {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(ctx.Summary)
		if len(ctx.Files) > 0 {
			sb.WriteString("\nFiles:\n")
			for _, f := range ctx.Files {
				sb.WriteString("- " + f + "\n")
			}
		}
		for _, f := range ctx.Findings {
			sb.WriteString("\n- " + f)
		}
	}
	return c.Compact(sb.String(), sourceStepID)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
