// Package engine содержит движок категорий для викитекста.
//
// Включает:
//   - wikitext.go — разбор викитекста в последовательность неизменяемых сегментов
//   - category.go — CategoryInfo, распознавание ссылок на категории и операции над ними
//
// Engine ничего не знает о батчах и командах: это чистые функции
// (text, CategoryInfo) → text. Варианты действий (domain.Action)
// собираются из этих операций.
//
// Документ никогда не изменяется на месте. Удаление или вставка ссылки
// возвращает новую последовательность сегментов, поэтому индексы,
// полученные из исходного документа, остаются валидными до конца вызова.
package engine
