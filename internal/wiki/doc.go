// Package wiki — клиент MediaWiki Action API.
//
// Через него ядро получает текст страниц, сохраняет правки, узнаёт
// сведения о пространстве категорий и определяет текущего пользователя.
// Ошибки вики возвращаются как *Error с кодом MediaWiki; их классификация
// в domain.Failure выполняется в orchestrator.
//
// Сведения о пространстве категорий кэшируются клиентом по домену вики
// (LRU с TTL), одновременные промахи по одному домену объединяются.
package wiki
