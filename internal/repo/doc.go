// Package repo хранит архив патрульных task и журнал измерений в PostgreSQL.
//
// Активные task живут в памяти (пакет registry); сюда попадают
// завершённые task и каждая попытка измерения, включая неудачные.
//
// Схема создаётся Migrate и повторно применяется без ошибок.
package repo
