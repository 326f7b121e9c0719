package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Встроенные ссылки действий, регистрируемые RegisterBuiltins.
const (
	RefHTTP  = "core.http"
	RefDelay = "core.delay"
	RefLog   = "core.log"
)

// RegisterBuiltins регистрирует встроенные действия в реестре.
func RegisterBuiltins(r *Registry, logger *slog.Logger) {
	r.Register(RefHTTP, NewHTTPAction())
	r.Register(RefDelay, &DelayAction{})
	r.Register(RefLog, &LogAction{Logger: logger})
}

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// HTTPAction — действие HTTP-запроса.
//
// Конфигурация читается из view:
//
//	{
//	    "http.method": "POST",
//	    "http.url":    "https://api.example.com/data",
//	    "http.body":   {...}
//	}
//
// Delta:
//
//	{
//	    "http.status_code": 200,
//	    "http.body":        {...}  // parsed JSON или строка
//	}
type HTTPAction struct {
	client *http.Client
}

// NewHTTPAction создаёт HTTPAction с клиентом по умолчанию.
func NewHTTPAction() *HTTPAction {
	return &HTTPAction{
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Execute выполняет HTTP-запрос.
func (a *HTTPAction) Execute(ctx context.Context, view map[string]any) (map[string]any, error) {
	url, _ := view["http.url"].(string)
	if url == "" {
		return nil, fmt.Errorf("%w: http.url is required", ErrInvalidConfig)
	}

	method, _ := view["http.method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	var bodyReader io.Reader
	if body, ok := view["http.body"]; ok && body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	delta := map[string]any{"http.status_code": resp.StatusCode}

	// Пробуем распарсить как JSON, иначе отдаём строкой
	var parsed any
	if json.Unmarshal(raw, &parsed) == nil {
		delta["http.body"] = parsed
	} else {
		delta["http.body"] = string(raw)
	}

	if resp.StatusCode >= 400 {
		return delta, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return delta, nil
}

// DelayAction — действие паузы.
//
// Конфигурация: "delay.duration_ms" (число миллисекунд).
// Уважает отмену ctx — прерывается немедленно.
type DelayAction struct{}

// Execute ждёт указанную длительность или отмену ctx.
func (a *DelayAction) Execute(ctx context.Context, view map[string]any) (map[string]any, error) {
	ms := toInt(view["delay.duration_ms"])
	if ms <= 0 {
		return nil, fmt.Errorf("%w: delay.duration_ms must be positive", ErrInvalidConfig)
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return map[string]any{"delay.elapsed_ms": ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LogAction — действие записи сообщения в лог.
//
// Конфигурация: "log.message" (строка).
type LogAction struct {
	Logger *slog.Logger
}

// Execute пишет сообщение в лог.
func (a *LogAction) Execute(_ context.Context, view map[string]any) (map[string]any, error) {
	msg, _ := view["log.message"].(string)
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("log action", "message", msg)
	return nil, nil
}

// toInt приводит значение из JSON-контекста к int.
// JSON-числа приходят как float64.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
