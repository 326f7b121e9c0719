package action

import (
	"context"
	"errors"
	"testing"
)

// --- Registry Tests ---

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("notify", Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"sent": true}, nil
	}))

	act, err := r.Resolve("notify")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	delta, err := act.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if delta["sent"] != true {
		t.Errorf("unexpected delta: %v", delta)
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("ghost"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestRegistry_Has(t *testing.T) {
	r := NewRegistry()
	r.Register("present", Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, nil
	}))

	if !r.Has("present") {
		t.Error("expected Has to report registered action")
	}
	if r.Has("absent") {
		t.Error("Has should be false for unknown ref")
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register("job", Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"impl": "old"}, nil
	}))
	r.Register("job", Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"impl": "new"}, nil
	}))

	act, _ := r.Resolve("job")
	delta, _ := act.Execute(context.Background(), nil)
	if delta["impl"] != "new" {
		t.Errorf("re-registration should replace the action, got %v", delta)
	}
}

func TestCompensateFunc_ImplementsBothInterfaces(t *testing.T) {
	var called bool
	f := CompensateFunc(func(_ context.Context, _ map[string]any) error {
		called = true
		return nil
	})

	var act Action = f
	delta, err := act.Execute(context.Background(), nil)
	if err != nil || delta != nil {
		t.Errorf("compensation Execute should return empty delta, got %v, %v", delta, err)
	}
	if !called {
		t.Error("Execute should invoke the wrapped function")
	}

	var comp Compensator = f
	if err := comp.Compensate(context.Background(), nil); err != nil {
		t.Errorf("compensate: %v", err)
	}
}
