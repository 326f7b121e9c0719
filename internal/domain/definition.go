package domain

import "fmt"

// WorkflowDefinition — определение рабочего процесса.
//
// WorkflowDefinition — это "рецепт" автоматизации: дерево шагов
// с последовательной и параллельной композицией. После публикации
// определение неизменяемо; любое изменение — это новая версия,
// старые версии никогда не мутируются.
type WorkflowDefinition struct {
	// ID — стабильный идентификатор workflow (например, "deploy-service").
	ID string `json:"id"`

	// Version — номер версии (1, 2, 3, ...).
	Version int `json:"version"`

	// Steps — корневые шаги. Выполняются последовательно,
	// как неявный Sequential-узел.
	Steps []StepNode `json:"steps"`
}

// NodeKind — вид узла в дереве шагов.
type NodeKind string

const (
	// NodeSequential — дети выполняются по порядку, остановка на первой ошибке.
	NodeSequential NodeKind = "sequential"

	// NodeParallel — дети выполняются конкурентно, join перед продолжением.
	NodeParallel NodeKind = "parallel"

	// NodeLeaf — один исполняемый шаг (StepDescriptor).
	NodeLeaf NodeKind = "leaf"
)

// StepNode — узел дерева шагов: Sequential, Parallel или Leaf.
//
// Дерево конечно по построению (это дерево, не граф указателей),
// поэтому циклы невозможны.
type StepNode struct {
	// Kind — вид узла.
	Kind NodeKind `json:"kind"`

	// Step — дескриптор шага. Заполнен только для Leaf.
	Step *StepDescriptor `json:"step,omitempty"`

	// Children — дочерние узлы. Заполнены только для Sequential/Parallel.
	Children []StepNode `json:"children,omitempty"`
}

// Sequential создаёт последовательный узел.
func Sequential(children ...StepNode) StepNode {
	return StepNode{Kind: NodeSequential, Children: children}
}

// Parallel создаёт параллельный узел.
func Parallel(children ...StepNode) StepNode {
	return StepNode{Kind: NodeParallel, Children: children}
}

// Leaf создаёт листовой узел из дескриптора шага.
func Leaf(step StepDescriptor) StepNode {
	s := step
	return StepNode{Kind: NodeLeaf, Step: &s}
}

// StepDescriptor — неизменяемое определение одной единицы работы.
type StepDescriptor struct {
	// ID — уникальный идентификатор шага в рамках definition.
	ID string `json:"id"`

	// ActionRef — непрозрачная ссылка на действие.
	// Резолвится через внешний реестр действий; движок внутрь не заглядывает.
	ActionRef string `json:"action_ref"`

	// Guard — предикат над контекстом (expr-выражение).
	// Если вычисляется в false, шаг пропускается (SKIPPED).
	// Пустая строка — шаг выполняется всегда.
	Guard string `json:"guard,omitempty"`

	// Retry — политика повторных попыток.
	Retry RetryPolicy `json:"retry"`

	// Compensation — ссылка на компенсирующее действие для rollback.
	// Пустая строка — компенсации нет.
	Compensation string `json:"compensation,omitempty"`

	// TimeoutMs — таймаут одной попытки в миллисекундах.
	// Превышение трактуется как обычная ошибка действия (подлежит retry).
	// 0 — без таймаута.
	TimeoutMs int `json:"timeout_ms,omitempty"`
}

// Walk обходит дерево шагов в документированном порядке
// (дети sequential/parallel — в объявленном порядке) и вызывает fn
// для каждого узла. Если fn возвращает false, обход прекращается.
func (d *WorkflowDefinition) Walk(fn func(node *StepNode) bool) {
	walkNodes(d.Steps, fn)
}

func walkNodes(nodes []StepNode, fn func(node *StepNode) bool) bool {
	for i := range nodes {
		node := &nodes[i]
		if !fn(node) {
			return false
		}
		if len(node.Children) > 0 {
			if !walkNodes(node.Children, fn) {
				return false
			}
		}
	}
	return true
}

// Walk обходит поддерево узла, включая сам узел, в объявленном порядке.
func (n *StepNode) Walk(fn func(node *StepNode) bool) {
	if !fn(n) {
		return
	}
	walkNodes(n.Children, fn)
}

// FindStep возвращает дескриптор шага по ID или nil, если не найден.
func (d *WorkflowDefinition) FindStep(stepID string) *StepDescriptor {
	var found *StepDescriptor
	d.Walk(func(node *StepNode) bool {
		if node.Kind == NodeLeaf && node.Step != nil && node.Step.ID == stepID {
			found = node.Step
			return false
		}
		return true
	})
	return found
}

// Leaves возвращает все листовые шаги в порядке обхода дерева.
func (d *WorkflowDefinition) Leaves() []*StepDescriptor {
	var leaves []*StepDescriptor
	d.Walk(func(node *StepNode) bool {
		if node.Kind == NodeLeaf && node.Step != nil {
			leaves = append(leaves, node.Step)
		}
		return true
	})
	return leaves
}

// Key возвращает строковый ключ "id@vN" для логов и метрик.
func (d *WorkflowDefinition) Key() string {
	return fmt.Sprintf("%s@v%d", d.ID, d.Version)
}
