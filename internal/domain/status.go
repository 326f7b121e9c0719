package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED → ROLLING_BACK → ROLLED_BACK
//	(любой нетерминальный) → CANCELLED
type RunStatus string

const (
	// RunStatusPending — run создан и ожидает в очереди.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — всё дерево шагов выполнено успешно.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run завершился с невосстановимой ошибкой.
	// Если у завершённых шагов есть компенсации, дальше следует ROLLING_BACK.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusRollingBack — выполняются компенсации завершённых шагов.
	RunStatusRollingBack RunStatus = "ROLLING_BACK"

	// RunStatusRolledBack — rollback завершён (полностью или частично).
	RunStatusRolledBack RunStatus = "ROLLED_BACK"

	// RunStatusCancelled — run отменён внешним запросом.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// validTransitions — допустимые рёбра конечного автомата run.
// Никакие другие переходы невозможны.
var validTransitions = map[RunStatus][]RunStatus{
	RunStatusPending:     {RunStatusRunning, RunStatusCancelled},
	RunStatusRunning:     {RunStatusSucceeded, RunStatusFailed, RunStatusCancelled},
	RunStatusFailed:      {RunStatusRollingBack},
	RunStatusRollingBack: {RunStatusRolledBack, RunStatusCancelled},
}

// CanTransition проверяет, допустим ли переход в next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true, если статус финальный.
// Терминальные runs хранятся для аудита и никогда не возобновляются.
// FAILED терминален, если rollback не последовал (нет компенсаций).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusRolledBack, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive возвращает true, если run прямо сейчас исполняется движком.
// Используется для инварианта "не более одного активного run на instance".
func (s RunStatus) IsActive() bool {
	return s == RunStatusRunning || s == RunStatusRollingBack
}
