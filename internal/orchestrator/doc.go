// Package orchestrator принимает патрульные task и раздаёт их роботам.
//
// Orchestrator отвечает за:
//   - Валидацию task и построение графа пропусков при отправке
//   - Выбор робота и постановку task в его очередь (lane)
//   - Запуск Worker для каждого зарегистрированного робота
//   - Кооперативную отмену, чтение и удаление task
//   - Архивирование завершённых task и публикацию task.finished
//
// Команды task.submit и task.cancel могут приходить из RabbitMQ;
// тогда Orchestrator поднимает для них consumers.
package orchestrator
