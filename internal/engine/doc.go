// Package engine проверяет структуру task до постановки в очередь.
//
// Включает:
//   - validate.go  — валидация шагов и графа skip_on_failure
//   - skipgraph.go — неизменяемый индекс шагов и рёбер пропуска
//
// Граф строится один раз при отправке task; цикл выполнения шагов
// только читает его и не перепроверяет ссылки.
package engine
