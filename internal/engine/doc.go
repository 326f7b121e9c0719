// Package engine реализует исполнение workflow-определений.
//
// Engine — центральный компонент системы, который:
//   - Валидирует определения перед публикацией
//   - Исполняет дерево шагов (sequential / parallel / leaf)
//   - Проверяет guard-предикаты и пропускает шаги
//   - Повторяет упавшие шаги согласно retry-политике
//   - Откатывает завершённые шаги в обратном порядке при провале
//   - Сохраняет состояние run после каждого перехода (checkpoint)
//
// Состояние run хранится в RunStore с оптимистичной версией: при
// конфликте версий engine перечитывает run и повторяет сохранение
// ограниченное число раз, после чего прерывает исполнение.
package engine
