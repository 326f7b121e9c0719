// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - sink.go — поток событий переходов (run и step)
//   - metrics.go — Prometheus метрики и success-rate агрегат
//
// Все компоненты используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
