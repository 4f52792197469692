// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go       — Handler с DI (сервис батчей, клиент вики, logger)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery, metrics, auth)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - batch_handler.go — обработчики для /batches
//
// Изменяющие запросы выполняются от имени пользователя вики: клиент передаёт
// OAuth-токен в Authorization: Bearer и домен вики в X-Wiki-Domain, а
// пользователь определяется запросом userinfo к самой вики.
package api
