// Package guard вычисляет предикаты шагов над контекстом выполнения.
//
// Guard — это expr-выражение (github.com/expr-lang/expr), возвращающее
// bool. Вычисление чистое и без побочных эффектов: предикат получает
// read-копию контекста. Скомпилированные программы кэшируются по
// исходному тексту — один и тот же guard вычисляется многими runs.
//
// Примеры выражений:
//
//	validated == true
//	env == "production" && replicas > 1
//	attempt_limit >= 3 || dry_run
package guard
