package compactor

import (
	"fmt"
	"strings"
	"testing"
)

func TestCompactEmptyInput(t *testing.T) {
	c := New(DefaultConfig())

	ctx := c.Compact("", "step-1")
	if !ctx.Empty() {
		t.Fatalf("expected empty context, got %+v", ctx)
	}
	if ctx.SourceStepID != "step-1" {
		t.Fatalf("expected source step id preserved, got %q", ctx.SourceStepID)
	}

	ctx = c.Compact("   \n\t  ", "step-1")
	if !ctx.Empty() {
		t.Fatalf("expected empty context for whitespace input, got %+v", ctx)
	}
}

func TestCompactNeverExceedsMaxSize(t *testing.T) {
	c := New(DefaultConfig())

	var sb strings.Builder
	sb.WriteString("Summary: this run touched a very large number of subsystems. ")
	for i := 0; i < 500; i++ {
		sb.WriteString(fmt.Sprintf("Finding number %d concerns module internal/mod%d/file%d.go and is quite verbose. ", i, i, i))
		sb.WriteString(fmt.Sprintf("\n- bullet finding %d with plenty of padding text to inflate the output\n", i))
	}
	raw := sb.String()
	if len(raw) < 50000 {
		t.Fatalf("test input too small: %d", len(raw))
	}

	ctx := c.Compact(raw, "step-1")
	if got := ctx.Size(); got > c.MaxSize() {
		t.Fatalf("context size %d exceeds ceiling %d", got, c.MaxSize())
	}
	if ctx.Summary == "" {
		t.Fatal("expected non-empty summary")
	}
}

func TestCompactTinyBudgetKeepsSummary(t *testing.T) {
	c := New(Config{MaxSize: 150, MinSummary: 120})

	raw := strings.Repeat("An important sentence about the build. ", 100) +
		"\n- finding one\n- finding two\nsee internal/executor/executor.go\n"
	ctx := c.Compact(raw, "step-1")

	// Findings and files are dropped before the summary is touched.
	if len(ctx.Findings) > 0 && ctx.Size() > 150 {
		t.Fatalf("findings kept past budget: %+v", ctx)
	}
	if len(ctx.Summary) < 1 {
		t.Fatal("summary dropped entirely")
	}
	if ctx.Size() > 150 && len(ctx.Summary) > 120 {
		t.Fatalf("summary not truncated toward floor: size=%d len=%d", ctx.Size(), len(ctx.Summary))
	}
}

func TestCompactExtractsMarkedSummary(t *testing.T) {
	c := New(DefaultConfig())

	raw := "lots of preamble text here\n\nSummary: implemented the retry logic in two places.\n\nMore trailing detail."
	ctx := c.Compact(raw, "step-1")
	if !strings.HasPrefix(ctx.Summary, "implemented the retry logic") {
		t.Fatalf("expected marked summary extracted, got %q", ctx.Summary)
	}
}

func TestCompactExtractsFilesAndFindings(t *testing.T) {
	c := New(DefaultConfig())

	raw := `Did the work.

Files:
- internal/graph/graph.go
- pkg/models/step.go

- the scheduler now retries transient failures
- usage totals come from a single aggregator
`
	ctx := c.Compact(raw, "step-1")

	if len(ctx.Files) != 2 || ctx.Files[0] != "internal/graph/graph.go" || ctx.Files[1] != "pkg/models/step.go" {
		t.Fatalf("unexpected files: %v", ctx.Files)
	}
	found := false
	for _, f := range ctx.Findings {
		if strings.Contains(f, "single aggregator") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected findings to include bullet items, got %v", ctx.Findings)
	}
}

func TestCompactDeduplicatesFiles(t *testing.T) {
	c := New(DefaultConfig())

	raw := "touched internal/a/b.go then internal/a/b.go again and ./internal/a/b.go once more"
	ctx := c.Compact(raw, "step-1")
	if len(ctx.Files) != 1 {
		t.Fatalf("expected one deduplicated file, got %v", ctx.Files)
	}
}

func TestCompactIdempotent(t *testing.T) {
	c := New(DefaultConfig())

	raw := `Summary: reworked the planner templates.

Files:
- internal/planner/templates.go

- templates now merge over defaults
- stage numbers assign dependency groups
`
	first := c.Compact(raw, "step-1")
	second := c.Compact(first.Summary, "step-1")

	if second.Size() > c.MaxSize() {
		t.Fatalf("re-compacted context exceeds ceiling: %d", second.Size())
	}
	if second.Summary != first.Summary {
		t.Fatalf("re-compacting a compacted summary changed it:\nfirst:  %q\nsecond: %q", first.Summary, second.Summary)
	}
}

func TestMergeSkipsEmptyContexts(t *testing.T) {
	c := New(DefaultConfig())

	a := c.Compact("Summary: step a output.\n- finding from a", "a")
	b := c.Compact("Summary: step b output covering internal/state/db.go.", "b")

	merged := c.Merge("c", &a, nil, &b)
	if merged.SourceStepID != "c" {
		t.Fatalf("expected merged source c, got %q", merged.SourceStepID)
	}
	if merged.Size() > c.MaxSize() {
		t.Fatalf("merged context exceeds ceiling: %d", merged.Size())
	}
	if !strings.Contains(merged.Summary, "step a output") {
		t.Fatalf("merged summary lost first context: %q", merged.Summary)
	}

	onlyNil := c.Merge("c", nil, nil)
	if !onlyNil.Empty() {
		t.Fatalf("expected empty merge of nil contexts, got %+v", onlyNil)
	}
}
