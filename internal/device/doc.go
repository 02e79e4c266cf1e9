// Package device описывает контракт моста команд робота.
//
// Robot — команды и запросы к одному роботу. Команды возвращают
// CommandResult: OK=false с кодом ошибки означает логическую неудачу,
// которую робот сообщил сам. Ошибка Go (обычно gRPC-статус) означает
// сбой транспорта и классифицируется пакетом retry.
//
// Simulator — реализация в памяти для локального запуска и тестов.
package device
