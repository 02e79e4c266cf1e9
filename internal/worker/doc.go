// Package worker выполняет патрульные task на роботах.
//
// # Обзор
//
// На каждого робота приходится один Worker и один Engine. Worker
// забирает task из очереди робота (registry.Lane) по одной, Engine
// проходит шаги task по порядку и доводит её до конечного статуса.
//
//	eng := worker.NewEngine(worker.EngineConfig{
//	    RobotID:  "kachaka",
//	    Robot:    robot,
//	    Sensor:   sensorClient,
//	    Notifier: notifier,
//	    Store:    reg,
//	})
//	w := worker.New(worker.Config{Lane: lane, Engine: eng, Store: reg})
//	go w.Run(ctx)
//
// # Цикл шагов
//
// Перед каждым шагом Engine проверяет отмену task и флаг падения полки.
// Шаг, попавший в skip_on_failure ранее упавшего шага, помечается SKIPPED
// без выполнения. Неудача шага обрабатывается так:
//
//   - есть skip_on_failure — цели запоминаются, выполнение продолжается
//   - действие некритичное (bio_scan, wait, speak, return_shelf) — продолжается
//   - иначе task получает FAILED и цикл останавливается
//
// Ошибка или паника executor'а превращается в неудачный результат
// с кодом -1 и проходит ту же политику.
//
// # Executor
//
// Каждое действие выполняет свой Executor из Registry. Команды
// перемещения полки и робота оборачиваются в retry с exponential backoff
// (пакет retry); повторяются только временные сбои транспорта.
//
// # Монитор полки
//
// После первого успешного move_shelf запускается опрос get_moving_shelf.
// Пустой ответ означает падение полки: текущий шаг прерывается, роботу
// отправляется cancel_command, task завершается со статусом SHELF_DROPPED,
// а необслуженные кровати записываются в Metadata и журнал измерений.
//
// # Побочные действия
//
// Уведомления, запись измерений, метрики опроса и возврат полки после
// отмены выполняются best-effort со своим таймаутом и не меняют статус task.
package worker
