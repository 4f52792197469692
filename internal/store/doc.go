// Package store описывает контракт хранилища батчей и его эталонную
// реализацию в памяти процесса.
//
// Контракт (Store) гарантирует:
//   - атомарное создание батча: видны либо все команды, либо ни одной
//   - эксклюзивный захват записей PLAN → PENDING
//   - возможность отката захвата (PENDING → PLAN) после падения
//   - не более одного активного фонового запуска на батч
//   - автоматическое закрытие батча, когда не осталось PLAN и PENDING
//
// Memory хранит всё в map под одним мьютексом и подходит для тестов
// и однопроцессного запуска. Долговременная реализация на Postgres
// находится в пакете repo. Обе проходят общий набор тестов из storetest.
package store
