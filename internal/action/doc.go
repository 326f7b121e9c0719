// Package action определяет границу между движком и конкретными
// побочными эффектами шагов.
//
// Движок никогда не заглядывает внутрь действия: шаг ссылается на
// действие непрозрачным ActionRef, который резолвится через Registry.
// Это позволяет тестировать движок с фейковыми действиями и подменять
// реализацию без изменения definitions.
//
// Структура:
//   - action.go  — интерфейсы Action/Compensator, функциональные адаптеры
//   - registry.go — реестр действий (ActionRef → Action)
//   - builtin.go — встроенные действия: http, delay, log
package action
