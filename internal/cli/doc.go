// Package cli реализует инструмент командной строки QuickCategories.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с QuickCategories API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
// Изменяющие команды отправляют OAuth-токен вики и домен вики.
//
//	client := cli.NewClient(cli.ClientConfig{BaseURL: "http://localhost:8080"})
//	batches, err := client.ListBatches(10)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) с цветными статусами — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Warn/Error) — в stderr.
//
// ## Commands
//
//   - batch: submit, list, show, commands, run
//   - background: start, stop, suspend
package cli
