// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//   - sink.go       — публикация событий переходов (telemetry.Sink)
//
// Типы сообщений:
//   - trigger.event — внешнее событие, запускающее event-schedules
//   - run.event     — переход статуса run или шага
//
// Exchanges:
//   - maestro.triggers — входящие события триггеров (topic)
//   - maestro.events   — исходящие события переходов (topic)
//   - maestro.dlq      — dead letter queue
package mq
