// Package scheduler откатывает зависшие захваты команд.
//
// Запись остаётся в PENDING, если процесс, захвативший её, упал между
// MakePlansPending/ClaimNextGlobalPlan и StoreFinish. Sweeper по расписанию
// находит такие записи старше StaleAfter и возвращает их в PLAN.
//
// Структура:
//   - scheduler.go — Sweeper (Tick, Start, Stop)
//   - cron.go      — разбор расписания и адаптер логгера для robfig/cron
//
// Использование:
//
//	sw, err := scheduler.New(scheduler.Config{
//	    Store:      st,
//	    StaleAfter: time.Hour,
//	    Schedule:   "@every 5m",
//	    Leader:     repo.NewAdvisoryLock(pool, scheduler.LockKey),
//	    Logger:     logger,
//	})
//	sw.Start(ctx)
//	defer sw.Stop()
//
// Leader Election:
//
// При нескольких экземплярах Tick выполняет только держатель Leader.
// Без Leader экземпляр считает себя единственным.
package scheduler
