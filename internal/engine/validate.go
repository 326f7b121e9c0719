package engine

import (
	"fmt"
	"strings"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/guard"
)

// ActionResolver проверяет, зарегистрирован ли action по ссылке.
type ActionResolver interface {
	Has(ref string) bool
}

// Violation — одно нарушение, найденное при валидации определения.
type Violation struct {
	StepID  string // пустой для нарушений уровня определения
	Field   string
	Message string
}

// String возвращает человекочитаемое описание нарушения.
func (v Violation) String() string {
	if v.StepID == "" {
		return fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return fmt.Sprintf("step %q, %s: %s", v.StepID, v.Field, v.Message)
}

// DefinitionError — ошибка валидации со списком всех нарушений.
//
// Валидация не останавливается на первом нарушении: автору
// определения возвращается полный список проблем за один проход.
type DefinitionError struct {
	WorkflowID string
	Violations []Violation
}

// Error реализует интерфейс error.
func (e *DefinitionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid workflow definition %q: %d violation(s)", e.WorkflowID, len(e.Violations))
	for _, v := range e.Violations {
		sb.WriteString("\n  - ")
		sb.WriteString(v.String())
	}
	return sb.String()
}

// Validator проверяет workflow-определения перед публикацией.
type Validator struct {
	resolver ActionResolver
	guards   *guard.Evaluator
}

// NewValidator создаёт Validator.
// При nil resolver проверка ссылок на actions пропускается.
func NewValidator(resolver ActionResolver, guards *guard.Evaluator) *Validator {
	if guards == nil {
		guards = guard.NewEvaluator()
	}
	return &Validator{resolver: resolver, guards: guards}
}

// Validate проверяет определение и возвращает *DefinitionError
// со всеми найденными нарушениями либо nil.
func (v *Validator) Validate(def *domain.WorkflowDefinition) error {
	var violations []Violation

	if def.ID == "" {
		violations = append(violations, Violation{Field: "id", Message: "must not be empty"})
	}
	if def.Version < 1 {
		violations = append(violations, Violation{Field: "version", Message: "must be >= 1"})
	}
	if len(def.Steps) == 0 {
		violations = append(violations, Violation{Field: "steps", Message: "must contain at least one step"})
	}

	seen := make(map[string]bool)
	for i := range def.Steps {
		violations = append(violations, v.validateNode(&def.Steps[i], seen)...)
	}

	if len(violations) > 0 {
		return &DefinitionError{WorkflowID: def.ID, Violations: violations}
	}
	return nil
}

// validateNode рекурсивно проверяет узел дерева шагов.
func (v *Validator) validateNode(node *domain.StepNode, seen map[string]bool) []Violation {
	var violations []Violation

	switch node.Kind {
	case domain.NodeLeaf:
		if node.Step == nil {
			violations = append(violations, Violation{Field: "step", Message: "leaf node must carry a step descriptor"})
			return violations
		}
		violations = append(violations, v.validateStep(node.Step, seen)...)

	case domain.NodeSequential, domain.NodeParallel:
		if len(node.Children) == 0 {
			violations = append(violations, Violation{
				Field:   "children",
				Message: fmt.Sprintf("%s node must have at least one child", node.Kind),
			})
		}
		for i := range node.Children {
			violations = append(violations, v.validateNode(&node.Children[i], seen)...)
		}

	default:
		violations = append(violations, Violation{
			Field:   "kind",
			Message: fmt.Sprintf("unknown node kind %q", node.Kind),
		})
	}

	return violations
}

// validateStep проверяет дескриптор листового шага.
func (v *Validator) validateStep(step *domain.StepDescriptor, seen map[string]bool) []Violation {
	var violations []Violation

	if step.ID == "" {
		violations = append(violations, Violation{Field: "id", Message: "must not be empty"})
	} else if seen[step.ID] {
		violations = append(violations, Violation{StepID: step.ID, Field: "id", Message: "duplicate step id"})
	} else {
		seen[step.ID] = true
	}

	if step.ActionRef == "" {
		violations = append(violations, Violation{StepID: step.ID, Field: "action", Message: "must not be empty"})
	} else if v.resolver != nil && !v.resolver.Has(step.ActionRef) {
		violations = append(violations, Violation{
			StepID:  step.ID,
			Field:   "action",
			Message: fmt.Sprintf("unknown action %q", step.ActionRef),
		})
	}

	if step.Compensation != "" && v.resolver != nil && !v.resolver.Has(step.Compensation) {
		violations = append(violations, Violation{
			StepID:  step.ID,
			Field:   "compensation",
			Message: fmt.Sprintf("unknown compensation action %q", step.Compensation),
		})
	}

	if step.Guard != "" {
		if err := v.guards.CheckSyntax(step.Guard); err != nil {
			violations = append(violations, Violation{
				StepID:  step.ID,
				Field:   "guard",
				Message: err.Error(),
			})
		}
	}

	if step.Retry.MaxAttempts < 0 {
		violations = append(violations, Violation{StepID: step.ID, Field: "retry.max_attempts", Message: "must not be negative"})
	}
	if step.Retry.DelayMs < 0 {
		violations = append(violations, Violation{StepID: step.ID, Field: "retry.delay_ms", Message: "must not be negative"})
	}
	if step.TimeoutMs < 0 {
		violations = append(violations, Violation{StepID: step.ID, Field: "timeout_ms", Message: "must not be negative"})
	}

	return violations
}
