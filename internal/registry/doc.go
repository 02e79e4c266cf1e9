// Package registry хранит состояние процесса: что и где выполняется.
//
// Registry объединяет три таблицы:
//   - task_id → Task
//   - robot_id → Lane (FIFO очередь робота)
//   - robot_id → task_id текущей task
//
// Все изменения task, видимые другим горутинам, выполняются под
// одним мьютексом через Update. Наружу (Get, List) отдаются только копии.
//
// Инвариант: у робота не больше одной текущей task; MarkBusy
// отказывает с ErrRobotBusy, если слот уже занят.
package registry
