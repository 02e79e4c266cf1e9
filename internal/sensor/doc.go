// Package sensor описывает контракт клиента биосенсора.
//
// Acquirer получает валидное измерение для кровати; свой цикл ожидания
// и повторов он ведёт сам. Recorder сохраняет попытку измерения, в том
// числе пропущенную или прерванную, чтобы она была видна в отчётах.
//
// Реализация Recorder поверх Postgres живёт в пакете repo.
package sensor
