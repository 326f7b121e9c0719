package engine

import "testing"

// --- Scope Tests ---

func TestScope_ViewIsCopy(t *testing.T) {
	scope := NewScope(map[string]any{"a": 1})

	view := scope.View()
	view["a"] = 99
	view["b"] = 2

	if scope.View()["a"] != 1 {
		t.Error("mutating a view must not affect the scope")
	}
	if _, ok := scope.View()["b"]; ok {
		t.Error("new keys in a view must not leak into the scope")
	}
}

func TestScope_Apply(t *testing.T) {
	scope := NewScope(map[string]any{"a": 1, "b": 1})

	scope.Apply(map[string]any{"b": 2, "c": 3})

	got := scope.Snapshot()
	if got["a"] != 1 || got["b"] != 2 || got["c"] != 3 {
		t.Errorf("unexpected scope after apply: %v", got)
	}
}

func TestScope_BranchIsolation(t *testing.T) {
	parent := NewScope(map[string]any{"shared": "base"})

	left := parent.Branch()
	right := parent.Branch()

	left.Apply(map[string]any{"left": 1, "shared": "left"})
	right.Apply(map[string]any{"right": 2})

	// Branches see the base data
	if left.View()["shared"] != "left" {
		t.Error("branch should see its own writes")
	}
	if right.View()["shared"] != "base" {
		t.Error("sibling writes must not be visible before the join")
	}
	if _, ok := right.View()["left"]; ok {
		t.Error("sibling keys must not leak")
	}

	// Parent is untouched until deltas are merged explicitly
	if parent.View()["shared"] != "base" {
		t.Error("parent must not see branch writes")
	}
}
