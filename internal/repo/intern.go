package repo

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier — общее между *pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// interner выдаёт ID строковых значений из таблицы-справочника
// (domains, titles, action_lists).
//
// Значения никогда не удаляются, поэтому однажды закоммиченный ID
// можно держать в кэше до истечения TTL.
type interner struct {
	table string
	cache *expirable.LRU[[sha256.Size]byte, int64]
}

func newInterner(table string, size int, ttl time.Duration) *interner {
	return &interner{
		table: table,
		cache: expirable.NewLRU[[sha256.Size]byte, int64](size, nil, ttl),
	}
}

// acquire возвращает ID значения, создавая строку при необходимости.
//
// Конкурентные вставки одного значения упираются в уникальный индекс по hash:
// вторая транзакция ждёт первую, после чего ON CONFLICT DO NOTHING ничего не
// возвращает и ID читается повторным SELECT.
//
// inserted == true означает, что строка создана текущей транзакцией и
// её ID можно кэшировать только после коммита (см. remember).
func (in *interner) acquire(ctx context.Context, q querier, value string) (id int64, inserted bool, err error) {
	hash := sha256.Sum256([]byte(value))
	if id, ok := in.cache.Get(hash); ok {
		return id, false, nil
	}

	err = q.QueryRow(ctx,
		`INSERT INTO `+in.table+` (hash, value) VALUES ($1, $2) ON CONFLICT (hash) DO NOTHING RETURNING id`,
		hash[:], value,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("insert into %s: %w", in.table, err)
	}

	err = q.QueryRow(ctx, `SELECT id FROM `+in.table+` WHERE hash = $1`, hash[:]).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("select from %s: %w", in.table, err)
	}
	in.cache.Add(hash, id)
	return id, false, nil
}

// remember кэширует ID значения, созданного закоммиченной транзакцией.
func (in *interner) remember(value string, id int64) {
	in.cache.Add(sha256.Sum256([]byte(value)), id)
}

// internSession собирает ID в рамках одной транзакции: повторные значения
// не запрашиваются из БД, а новые строки попадают в кэш только после коммита.
type internSession struct {
	in    *interner
	ids   map[string]int64
	fresh map[string]int64
}

func (in *interner) session() *internSession {
	return &internSession{in: in, ids: make(map[string]int64), fresh: make(map[string]int64)}
}

func (s *internSession) acquire(ctx context.Context, q querier, value string) (int64, error) {
	if id, ok := s.ids[value]; ok {
		return id, nil
	}
	id, inserted, err := s.in.acquire(ctx, q, value)
	if err != nil {
		return 0, err
	}
	s.ids[value] = id
	if inserted {
		s.fresh[value] = id
	}
	return id, nil
}

// commit вызывается после успешного коммита транзакции.
func (s *internSession) commit() {
	for value, id := range s.fresh {
		s.in.remember(value, id)
	}
}
