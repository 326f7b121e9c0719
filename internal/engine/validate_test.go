package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/Maestro/internal/action"
	"github.com/shaiso/Maestro/internal/domain"
)

// --- Validator Tests ---

func testRegistry() *action.Registry {
	r := action.NewRegistry()
	r.Register("noop", action.Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, nil
	}))
	return r
}

func TestValidate_ValidDefinition(t *testing.T) {
	v := NewValidator(testRegistry(), nil)

	def := &domain.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Steps: []domain.StepNode{
			domain.Leaf(domain.StepDescriptor{ID: "a", ActionRef: "noop"}),
			domain.Parallel(
				domain.Leaf(domain.StepDescriptor{ID: "b", ActionRef: "noop", Guard: `env == "prod"`}),
				domain.Leaf(domain.StepDescriptor{ID: "c", ActionRef: "noop", Compensation: "noop"}),
			),
		},
	}

	if err := v.Validate(def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	v := NewValidator(testRegistry(), nil)

	def := &domain.WorkflowDefinition{
		ID:      "", // violation: empty id
		Version: 0,  // violation: version < 1
		Steps: []domain.StepNode{
			domain.Leaf(domain.StepDescriptor{ID: "", ActionRef: ""}),           // empty id + empty action
			domain.Leaf(domain.StepDescriptor{ID: "dup", ActionRef: "noop"}),    //
			domain.Leaf(domain.StepDescriptor{ID: "dup", ActionRef: "missing"}), // duplicate id + unknown action
			domain.Parallel(), // no children
			domain.Leaf(domain.StepDescriptor{ID: "g", ActionRef: "noop", Guard: "a &&"}), // bad guard
		},
	}

	err := v.Validate(def)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected *DefinitionError, got %T", err)
	}

	// All violations reported in one pass, not just the first
	if len(defErr.Violations) < 7 {
		t.Errorf("expected at least 7 violations, got %d: %v", len(defErr.Violations), defErr.Violations)
	}

	msg := defErr.Error()
	for _, want := range []string{"duplicate step id", "unknown action", "at least one child"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message should mention %q:\n%s", want, msg)
		}
	}
}

func TestValidate_LeafWithoutDescriptor(t *testing.T) {
	v := NewValidator(testRegistry(), nil)

	def := &domain.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Steps:   []domain.StepNode{{Kind: domain.NodeLeaf}},
	}

	err := v.Validate(def)
	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected *DefinitionError, got %v", err)
	}
	if len(defErr.Violations) != 1 {
		t.Errorf("expected 1 violation, got %d", len(defErr.Violations))
	}
}

func TestValidate_UnknownCompensation(t *testing.T) {
	v := NewValidator(testRegistry(), nil)

	def := &domain.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Steps: []domain.StepNode{
			domain.Leaf(domain.StepDescriptor{ID: "a", ActionRef: "noop", Compensation: "ghost"}),
		},
	}

	err := v.Validate(def)
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Errorf("expected unknown compensation violation, got %v", err)
	}
}

func TestValidate_NegativeRetryAndTimeout(t *testing.T) {
	v := NewValidator(testRegistry(), nil)

	def := &domain.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Steps: []domain.StepNode{
			domain.Leaf(domain.StepDescriptor{
				ID:        "a",
				ActionRef: "noop",
				Retry:     domain.RetryPolicy{MaxAttempts: -1, DelayMs: -100},
				TimeoutMs: -5,
			}),
		},
	}

	err := v.Validate(def)
	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected *DefinitionError, got %v", err)
	}
	if len(defErr.Violations) != 3 {
		t.Errorf("expected 3 violations, got %d: %v", len(defErr.Violations), defErr.Violations)
	}
}
