package domain

import "time"

// BackoffKind — стратегия задержки между попытками.
type BackoffKind string

const (
	// BackoffFixed — постоянная задержка между попытками.
	BackoffFixed BackoffKind = "fixed"

	// BackoffExponential — задержка удваивается с каждой попыткой,
	// ограничена MaxDelayMs.
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy — ограниченная стратегия повторного вызова шага.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	// MaxAttempts = 1 означает отсутствие retry. Значения < 1 нормализуются в 1.
	MaxAttempts int `json:"max_attempts"`

	// Backoff — стратегия задержки: fixed или exponential.
	Backoff BackoffKind `json:"backoff,omitempty"`

	// DelayMs — задержка для fixed либо базовая задержка для exponential,
	// в миллисекундах.
	DelayMs int `json:"delay_ms,omitempty"`

	// MaxDelayMs — потолок задержки для exponential, в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// Attempts возвращает нормализованное количество попыток.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay вычисляет задержку перед попыткой attempt+1
// (attempt — номер только что завершившейся попытки, начиная с 1).
//
// Чистая функция от номера попытки и политики:
//   - fixed:       DelayMs
//   - exponential: min(DelayMs * 2^(attempt-1), MaxDelayMs)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := time.Duration(p.DelayMs) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}

	if p.Backoff != BackoffExponential {
		return base
	}

	cap := time.Duration(p.MaxDelayMs) * time.Millisecond
	if cap <= 0 {
		cap = 30 * time.Second
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
