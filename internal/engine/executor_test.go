package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Maestro/internal/action"
	"github.com/shaiso/Maestro/internal/domain"
)

// --- StepExecutor Tests ---

// newTestExecutor returns an executor whose backoff sleeps are instant.
func newTestExecutor(r *action.Registry) *StepExecutor {
	e := NewStepExecutor(r, nil, nil)
	e.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

func TestExecutor_Success_FirstAttempt(t *testing.T) {
	r := action.NewRegistry()
	r.Register("ok", action.Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"out": 42}, nil
	}))
	e := newTestExecutor(r)

	step := &domain.StepDescriptor{ID: "s", ActionRef: "ok"}
	result, err := e.Execute(context.Background(), step, NewScope(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != domain.StepSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Outcome)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if result.Delta["out"] != 42 {
		t.Errorf("delta should carry action output: %v", result.Delta)
	}
}

func TestExecutor_RetriesUntilExhausted(t *testing.T) {
	var calls int
	r := action.NewRegistry()
	r.Register("flaky", action.Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		calls++
		return nil, errors.New("connection refused")
	}))
	e := newTestExecutor(r)

	step := &domain.StepDescriptor{
		ID:        "s",
		ActionRef: "flaky",
		Retry:     domain.RetryPolicy{MaxAttempts: 3, DelayMs: 1},
	}
	result, err := e.Execute(context.Background(), step, NewScope(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	if result.Outcome != domain.StepFailed {
		t.Errorf("expected FAILED, got %s", result.Outcome)
	}
	if result.Attempts != 3 {
		t.Errorf("result should record 3 attempts, got %d", result.Attempts)
	}
	// Last error is surfaced, not swallowed
	if !strings.Contains(result.Error, "connection refused") {
		t.Errorf("last error should be preserved: %q", result.Error)
	}
}

func TestExecutor_SucceedsAfterRetry(t *testing.T) {
	var calls int
	r := action.NewRegistry()
	r.Register("eventually", action.Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("not yet")
		}
		return map[string]any{"done": true}, nil
	}))
	e := newTestExecutor(r)

	step := &domain.StepDescriptor{
		ID:        "s",
		ActionRef: "eventually",
		Retry:     domain.RetryPolicy{MaxAttempts: 5, DelayMs: 1},
	}
	result, err := e.Execute(context.Background(), step, NewScope(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != domain.StepSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Outcome)
	}
	if result.Attempts != 3 {
		t.Errorf("expected success on attempt 3, got %d", result.Attempts)
	}
}

func TestExecutor_GuardSkips(t *testing.T) {
	var calls int
	r := action.NewRegistry()
	r.Register("never", action.Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		calls++
		return nil, nil
	}))
	e := newTestExecutor(r)

	step := &domain.StepDescriptor{ID: "s", ActionRef: "never", Guard: `env == "prod"`}
	scope := NewScope(map[string]any{"env": "staging"})

	result, err := e.Execute(context.Background(), step, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != domain.StepSkipped {
		t.Errorf("expected SKIPPED, got %s", result.Outcome)
	}
	if calls != 0 {
		t.Error("action must not run when guard is false")
	}
	if result.Attempts != 0 {
		t.Errorf("skipped step should record 0 attempts, got %d", result.Attempts)
	}
}

func TestExecutor_GuardErrorFailsWithoutRetry(t *testing.T) {
	var calls int
	r := action.NewRegistry()
	r.Register("never", action.Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		calls++
		return nil, nil
	}))
	e := newTestExecutor(r)

	step := &domain.StepDescriptor{
		ID:        "s",
		ActionRef: "never",
		Guard:     `1 + 2`, // non-boolean
		Retry:     domain.RetryPolicy{MaxAttempts: 5},
	}
	result, err := e.Execute(context.Background(), step, NewScope(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != domain.StepFailed {
		t.Errorf("expected FAILED, got %s", result.Outcome)
	}
	if calls != 0 {
		t.Error("action must not run when guard evaluation fails")
	}
	if !strings.Contains(result.Error, "guard evaluation failed") {
		t.Errorf("error should mention the guard: %q", result.Error)
	}
}

func TestExecutor_UnknownAction(t *testing.T) {
	e := newTestExecutor(action.NewRegistry())

	step := &domain.StepDescriptor{ID: "s", ActionRef: "ghost"}
	result, err := e.Execute(context.Background(), step, NewScope(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != domain.StepFailed {
		t.Errorf("expected FAILED, got %s", result.Outcome)
	}
}

func TestExecutor_AttemptTimeout(t *testing.T) {
	r := action.NewRegistry()
	r.Register("slow", action.Func(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	}))
	e := newTestExecutor(r)

	step := &domain.StepDescriptor{
		ID:        "s",
		ActionRef: "slow",
		TimeoutMs: 10,
		Retry:     domain.RetryPolicy{MaxAttempts: 2, DelayMs: 1},
	}
	result, err := e.Execute(context.Background(), step, NewScope(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Timeout is an ordinary attempt failure: retried, then FAILED
	if result.Outcome != domain.StepFailed {
		t.Errorf("expected FAILED, got %s", result.Outcome)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("error should mention the timeout: %q", result.Error)
	}
}

func TestExecutor_CancelledContextAborts(t *testing.T) {
	r := action.NewRegistry()
	r.Register("fail", action.Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	}))
	e := newTestExecutor(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := &domain.StepDescriptor{
		ID:        "s",
		ActionRef: "fail",
		Retry:     domain.RetryPolicy{MaxAttempts: 10, DelayMs: 1},
	}
	_, err := e.Execute(ctx, step, NewScope(nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
