// Package worker — единственный фоновый цикл выполнения команд.
//
// Worker забирает из хранилища следующую запись среди всех батчей с
// активным фоновым выполнением (store.ClaimNextGlobalPlan), выполняет её
// через orchestrator.Executor и сохраняет результат.
//
// # Повторы
//
// Пока классифицированная ошибка разрешает немедленный повтор
// (edit conflict), команда выполняется заново, всего не больше
// MaxAttempts раз. Результат сохраняется один раз, после последней попытки.
//
// # Продолжение
//
// По Continuation ошибки фоновое выполнение батча продолжается,
// приостанавливается до указанного момента или останавливается.
// Неклассифицированная ошибка возвращает запись в PLAN и останавливает
// фоновое выполнение батча. Нарушение инварианта хранилища
// (store.ErrInvariantViolation) завершает Run с ошибкой.
//
// # Пробуждение
//
// Без работы worker ждёт PollInterval либо сообщения из очереди
// background.wakeup, если задано соединение с RabbitMQ.
package worker
