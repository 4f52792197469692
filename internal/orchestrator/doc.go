// Package orchestrator выполняет команды батчей.
//
// Service — фасад для API: создание батчей, просмотр, синхронный запуск
// части батча (RunSlice) и управление фоновым выполнением.
//
// Executor — общая для синхронного и фонового путей логика одной команды:
// чтение страницы, применение действий, no-op или правка, классификация
// ошибки вики в domain.Failure. Фоновый цикл живёт в пакете worker.
//
// Ошибки вики, которые не удалось классифицировать, не записываются
// как результат команды: захваченные записи возвращаются в PLAN,
// а ошибка поднимается к вызывающему.
package orchestrator
