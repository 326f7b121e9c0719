package domain

// StepOutcome — исход выполнения одного шага.
type StepOutcome string

const (
	// StepSucceeded — действие выполнено, delta применена к контексту.
	StepSucceeded StepOutcome = "SUCCEEDED"

	// StepFailed — действие упало после исчерпания всех попыток.
	StepFailed StepOutcome = "FAILED"

	// StepSkipped — guard вернул false: действие не вызывалось,
	// шаг считается завершённым, в rollback не участвует.
	StepSkipped StepOutcome = "SKIPPED"
)

// StepResult — результат выполнения шага.
//
// История StepResult у run неизменяема: каждый переход добавляет
// новую запись, существующие записи никогда не мутируются.
type StepResult struct {
	// StepID — ID шага из StepDescriptor.
	StepID string `json:"step_id"`

	// Outcome — исход: SUCCEEDED, FAILED или SKIPPED.
	Outcome StepOutcome `json:"outcome"`

	// Delta — изменения контекста при успехе.
	Delta map[string]any `json:"delta,omitempty"`

	// Error — текст последней ошибки при неудаче (не проглатывается).
	Error string `json:"error,omitempty"`

	// Attempts — сколько раз действие было вызвано.
	Attempts int `json:"attempts"`

	// DurationMs — суммарная продолжительность всех попыток.
	DurationMs int64 `json:"duration_ms"`
}

// Succeeded возвращает true для успешного исхода.
func (r StepResult) Succeeded() bool {
	return r.Outcome == StepSucceeded
}
