package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/rkoval/flume/pkg/models"
)

func TestIsTransient(t *testing.T) {
	transient := &Error{Transient: true, Err: errors.New("overloaded")}
	fatal := &Error{Transient: false, Err: errors.New("bad key")}

	if !IsTransient(transient) {
		t.Error("transient error not detected")
	}
	if IsTransient(fatal) {
		t.Error("fatal error reported transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain error reported transient")
	}
	if !IsTransient(&Error{Transient: true, Err: errors.New("wrapped")}) {
		t.Error("wrapped transient error not detected")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Transient: true, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Error should unwrap to inner error")
	}
}

func TestParseTouchedFiles(t *testing.T) {
	output := `Implemented the change.

Summary: done.

Files:
- internal/a/one.go
- internal/b/two.go
- internal/a/one.go
`
	files := parseTouchedFiles(output)
	if len(files) != 2 {
		t.Fatalf("expected 2 deduplicated files, got %v", files)
	}
	if files[0] != "internal/a/one.go" || files[1] != "internal/b/two.go" {
		t.Fatalf("unexpected files: %v", files)
	}

	if got := parseTouchedFiles("no files section here"); got != nil {
		t.Fatalf("expected nil for missing section, got %v", got)
	}
}

func TestEstimateCost(t *testing.T) {
	usage := models.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	if got := estimateCost("claude-sonnet-4-20250514", usage); got != 18.00 {
		t.Errorf("sonnet cost = %f, want 18.00", got)
	}

	// Bedrock inference profile IDs embed the model name.
	if got := estimateCost("us.anthropic.claude-sonnet-4-20250514-v1:0", usage); got != 18.00 {
		t.Errorf("bedrock sonnet cost = %f, want 18.00", got)
	}

	if got := estimateCost("mystery-model", usage); got != 0 {
		t.Errorf("unknown model cost = %f, want 0", got)
	}
}

func TestMockRunnerScripting(t *testing.T) {
	m := NewMockRunner()
	m.Script("build it", MockResponse{Output: "built", Usage: models.Usage{InputTokens: 1}})
	m.Default = MockResponse{Output: "default"}

	res, err := m.Execute(context.Background(), Request{Role: models.RoleBuilder, Instruction: "build it"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "built" {
		t.Fatalf("scripted response not returned: %q", res.Output)
	}

	res, err = m.Execute(context.Background(), Request{Role: models.RoleTester, Instruction: "other"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "default" {
		t.Fatalf("default response not returned: %q", res.Output)
	}
	if m.CallCount() != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", m.CallCount())
	}
}

func TestMockRunnerCancelledContext(t *testing.T) {
	m := NewMockRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Execute(ctx, Request{Instruction: "x"})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if IsTransient(err) {
		t.Error("cancellation should be fatal, not transient")
	}
}
