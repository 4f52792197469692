package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — DDL хранилища. Все операторы идемпотентны.
//
// Строковые значения (домены, названия страниц, сериализованные списки
// действий) хранятся один раз в таблицах-справочниках с уникальным
// SHA-256 хэшем значения.
const schema = `
CREATE TABLE IF NOT EXISTS domains (
	id    BIGSERIAL PRIMARY KEY,
	hash  BYTEA NOT NULL UNIQUE,
	value TEXT  NOT NULL
);

CREATE TABLE IF NOT EXISTS titles (
	id    BIGSERIAL PRIMARY KEY,
	hash  BYTEA NOT NULL UNIQUE,
	value TEXT  NOT NULL
);

CREATE TABLE IF NOT EXISTS action_lists (
	id    BIGSERIAL PRIMARY KEY,
	hash  BYTEA NOT NULL UNIQUE,
	value TEXT  NOT NULL
);

CREATE TABLE IF NOT EXISTS batches (
	id                   BIGSERIAL PRIMARY KEY,
	domain_id            BIGINT      NOT NULL REFERENCES domains (id),
	title                TEXT,
	status               TEXT        NOT NULL DEFAULT 'OPEN',
	owner_local_user_id  BIGINT      NOT NULL,
	owner_global_user_id BIGINT      NOT NULL,
	owner_user_name      TEXT        NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	last_updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS batches_open_last_updated_idx
	ON batches (last_updated_at) WHERE status = 'OPEN';

CREATE TABLE IF NOT EXISTS commands (
	id                BIGSERIAL PRIMARY KEY,
	batch_id          BIGINT   NOT NULL REFERENCES batches (id),
	title_id          BIGINT   NOT NULL REFERENCES titles (id),
	resolve_redirects SMALLINT NOT NULL DEFAULT 0,
	actions_id        BIGINT   NOT NULL REFERENCES action_lists (id),
	status            TEXT     NOT NULL DEFAULT 'PLAN',
	outcome           JSONB,
	pending_since     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS commands_batch_idx ON commands (batch_id, id);
CREATE INDEX IF NOT EXISTS commands_plan_idx ON commands (batch_id, id) WHERE status = 'PLAN';
CREATE INDEX IF NOT EXISTS commands_pending_idx ON commands (pending_since) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS background_runs (
	id                        UUID PRIMARY KEY,
	batch_id                  BIGINT      NOT NULL REFERENCES batches (id),
	started_at                TIMESTAMPTZ NOT NULL,
	started_by_local_user_id  BIGINT      NOT NULL,
	started_by_global_user_id BIGINT      NOT NULL,
	started_by_user_name      TEXT        NOT NULL,
	access_token              TEXT        NOT NULL,
	stopped_at                TIMESTAMPTZ,
	stopped_by_local_user_id  BIGINT,
	stopped_by_global_user_id BIGINT,
	stopped_by_user_name      TEXT,
	suspended_until           TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS background_runs_active_idx
	ON background_runs (batch_id) WHERE stopped_at IS NULL;
`

// Migrate создаёт таблицы и индексы, если их ещё нет.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
