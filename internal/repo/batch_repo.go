package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/store"
)

// BatchRepoConfig — настройки BatchRepo.
type BatchRepoConfig struct {
	// Pool — пул соединений с Postgres.
	Pool *pgxpool.Pool

	// Now — источник времени (по умолчанию time.Now).
	Now func() time.Time

	// InternCacheSize — размер LRU-кэша каждой таблицы-справочника (по умолчанию 4096).
	InternCacheSize int

	// InternCacheTTL — время жизни записи кэша (по умолчанию 1 час).
	InternCacheTTL time.Duration
}

// BatchRepo — долговременное хранилище батчей на Postgres.
//
// Все захваты выполняются в транзакциях с построчными блокировками:
//   - записи команд захватываются через SELECT ... FOR UPDATE SKIP LOCKED
//   - StoreFinish, StartBackground и StopBackground блокируют строку батча
//   - не более одного активного запуска гарантирует частичный уникальный индекс
type BatchRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time

	domains *interner
	titles  *interner
	actions *interner
}

// NewBatchRepo создаёт новый BatchRepo.
func NewBatchRepo(cfg BatchRepoConfig) *BatchRepo {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.InternCacheSize <= 0 {
		cfg.InternCacheSize = 4096
	}
	if cfg.InternCacheTTL <= 0 {
		cfg.InternCacheTTL = time.Hour
	}

	return &BatchRepo{
		pool:    cfg.Pool,
		now:     cfg.Now,
		domains: newInterner("domains", cfg.InternCacheSize, cfg.InternCacheTTL),
		titles:  newInterner("titles", cfg.InternCacheSize, cfg.InternCacheTTL),
		actions: newInterner("action_lists", cfg.InternCacheSize, cfg.InternCacheTTL),
	}
}

var _ store.Store = (*BatchRepo)(nil)

const batchColumns = `
	b.id, d.value, b.title, b.status,
	b.owner_local_user_id, b.owner_global_user_id, b.owner_user_name,
	b.created_at, b.last_updated_at`

const commandColumns = `
	c.id, t.value, c.resolve_redirects, a.value, c.status, c.outcome`

const commandJoins = `
	JOIN titles t ON t.id = c.title_id
	JOIN action_lists a ON a.id = c.actions_id`

const runColumns = `
	id, batch_id, started_at,
	started_by_local_user_id, started_by_global_user_id, started_by_user_name,
	stopped_at, stopped_by_local_user_id, stopped_by_global_user_id, stopped_by_user_name,
	suspended_until`

// StoreBatch сохраняет батч и его команды в одной транзакции.
func (r *BatchRepo) StoreBatch(ctx context.Context, nb domain.NewBatch, owner domain.LocalUser) (*domain.StoredBatch, error) {
	if len(nb.Commands) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	now := r.now()
	domains, titles, actions := r.domains.session(), r.titles.session(), r.actions.session()

	titleIDs := make([]int64, len(nb.Commands))
	resolves := make([]int16, len(nb.Commands))
	actionIDs := make([]int64, len(nb.Commands))

	batch := domain.StoredBatch{
		Owner:         owner,
		Domain:        owner.Domain,
		Title:         nb.Title,
		Status:        domain.BatchStatusOpen,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		domainID, err := domains.acquire(ctx, tx, owner.Domain)
		if err != nil {
			return err
		}

		for i, cmd := range nb.Commands {
			if titleIDs[i], err = titles.acquire(ctx, tx, cmd.Page.Title); err != nil {
				return err
			}
			encoded, err := domain.MarshalActions(cmd.Actions)
			if err != nil {
				return fmt.Errorf("marshal actions of command %d: %w", i, err)
			}
			if actionIDs[i], err = actions.acquire(ctx, tx, string(encoded)); err != nil {
				return err
			}
			resolves[i] = int16(cmd.Page.ResolveRedirects)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO batches (domain_id, title, status, owner_local_user_id, owner_global_user_id,
			                     owner_user_name, created_at, last_updated_at)
			VALUES ($1, $2, 'OPEN', $3, $4, $5, $6, $6)
			RETURNING id
		`, domainID, nullString(nb.Title), owner.LocalUserID, owner.GlobalUserID, owner.UserName, now).Scan(&batch.ID)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO commands (batch_id, title_id, resolve_redirects, actions_id, status)
			SELECT $1, u.title_id, u.resolve_redirects, u.actions_id, 'PLAN'
			FROM unnest($2::bigint[], $3::smallint[], $4::bigint[])
			     WITH ORDINALITY AS u(title_id, resolve_redirects, actions_id, ord)
			ORDER BY u.ord
		`, batch.ID, titleIDs, resolves, actionIDs)
		if err != nil {
			return fmt.Errorf("insert commands: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	domains.commit()
	titles.commit()
	actions.commit()
	return &batch, nil
}

// GetBatch возвращает батч по ID.
func (r *BatchRepo) GetBatch(ctx context.Context, id int64) (*domain.StoredBatch, error) {
	return r.getBatch(ctx, r.pool, id)
}

func (r *BatchRepo) getBatch(ctx context.Context, q querier, id int64) (*domain.StoredBatch, error) {
	query := `SELECT` + batchColumns + `
		FROM batches b
		JOIN domains d ON d.id = b.domain_id
		WHERE b.id = $1
	`
	return scanBatch(q.QueryRow(ctx, query, id))
}

// GetLatestBatches возвращает последние батчи.
func (r *BatchRepo) GetLatestBatches(ctx context.Context, limit int) ([]domain.StoredBatch, error) {
	query := `SELECT` + batchColumns + `
		FROM batches b
		JOIN domains d ON d.id = b.domain_id
		ORDER BY b.id DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, store.ClampLatestLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.StoredBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// Slice возвращает окно записей батча.
func (r *BatchRepo) Slice(ctx context.Context, batchID int64, offset, limit int) ([]domain.CommandRecord, error) {
	if err := r.ensureBatch(ctx, r.pool, batchID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT` + commandColumns + `
		FROM commands c` + commandJoins + `
		WHERE c.batch_id = $1
		ORDER BY c.id
		OFFSET $2 LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, batchID, max(offset, 0), limit)
	if err != nil {
		return nil, fmt.Errorf("slice commands: %w", err)
	}
	return collectRecords(rows)
}

// CountByStatus возвращает число записей батча по статусам.
func (r *BatchRepo) CountByStatus(ctx context.Context, batchID int64) (map[domain.StatusKind]int, error) {
	if err := r.ensureBatch(ctx, r.pool, batchID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM commands WHERE batch_id = $1 GROUP BY status
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("count commands: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.StatusKind]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.StatusKind(status)] = n
	}
	return counts, rows.Err()
}

// BackgroundRuns возвращает историю фоновых запусков батча.
func (r *BatchRepo) BackgroundRuns(ctx context.Context, batchID int64) ([]domain.BackgroundRun, error) {
	batch, err := r.getBatch(ctx, r.pool, batchID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT`+runColumns+`
		FROM background_runs
		WHERE batch_id = $1
		ORDER BY started_at, id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list background runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.BackgroundRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		run.StartedBy.Domain = batch.Domain
		if run.StoppedBy != nil {
			run.StoppedBy.Domain = batch.Domain
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MakePlansPending захватывает записи PLAN в окне.
func (r *BatchRepo) MakePlansPending(ctx context.Context, batchID int64, offset, limit int) ([]domain.CommandRecord, error) {
	if err := r.ensureBatch(ctx, r.pool, batchID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	var claimed []domain.CommandRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id FROM commands
			WHERE status = 'PLAN'
			  AND id IN (
			      SELECT id FROM commands WHERE batch_id = $1 ORDER BY id OFFSET $2 LIMIT $3
			  )
			ORDER BY id
			FOR UPDATE SKIP LOCKED
		`, batchID, max(offset, 0), limit)
		if err != nil {
			return fmt.Errorf("lock plans: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("collect plan ids: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		claimed, err = r.markPending(ctx, tx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// markPending переводит заблокированные записи в PENDING и возвращает их.
func (r *BatchRepo) markPending(ctx context.Context, tx pgx.Tx, ids []int64) ([]domain.CommandRecord, error) {
	_, err := tx.Exec(ctx, `
		UPDATE commands SET status = 'PENDING', pending_since = $2 WHERE id = ANY($1)
	`, ids, r.now())
	if err != nil {
		return nil, fmt.Errorf("mark pending: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT`+commandColumns+`
		FROM commands c`+commandJoins+`
		WHERE c.id = ANY($1)
		ORDER BY c.id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("read pending: %w", err)
	}
	return collectRecords(rows)
}

// MakePendingsPlanned откатывает захват записей.
func (r *BatchRepo) MakePendingsPlanned(ctx context.Context, batchID int64, ids []int64) error {
	if err := r.ensureBatch(ctx, r.pool, batchID); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE commands SET status = 'PLAN', pending_since = NULL
		WHERE batch_id = $1 AND id = ANY($2) AND status = 'PENDING'
	`, batchID, ids)
	if err != nil {
		return fmt.Errorf("revert pending: %w", err)
	}
	return nil
}

// StoreFinish сохраняет результат выполнения записи.
func (r *BatchRepo) StoreFinish(ctx context.Context, batchID int64, finish domain.CommandFinish) error {
	if finish.Finish == nil {
		return fmt.Errorf("%w: empty finish", store.ErrInvalidState)
	}
	kind, outcome, err := domain.EncodeStatus(finish.Finish)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := r.lockBatch(ctx, tx, batchID); err != nil {
			return err
		}

		var (
			status           string
			titleID          int64
			resolveRedirects int16
			actionsID        int64
		)
		err := tx.QueryRow(ctx, `
			SELECT status, title_id, resolve_redirects, actions_id
			FROM commands
			WHERE id = $1 AND batch_id = $2
			FOR UPDATE
		`, finish.ID, batchID).Scan(&status, &titleID, &resolveRedirects, &actionsID)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock command: %w", err)
		}
		if domain.StatusKind(status) != domain.StatusPending {
			return fmt.Errorf("%w: command %d is %s", store.ErrInvalidState, finish.ID, status)
		}

		now := r.now()
		_, err = tx.Exec(ctx, `
			UPDATE commands SET status = $2, outcome = $3, pending_since = NULL WHERE id = $1
		`, finish.ID, string(kind), outcome)
		if err != nil {
			return fmt.Errorf("update command: %w", err)
		}

		if f, ok := finish.Finish.(domain.Failure); ok && f.RetryLater() {
			_, err = tx.Exec(ctx, `
				INSERT INTO commands (batch_id, title_id, resolve_redirects, actions_id, status)
				VALUES ($1, $2, $3, $4, 'PLAN')
			`, batchID, titleID, resolveRedirects, actionsID)
			if err != nil {
				return fmt.Errorf("requeue command: %w", err)
			}
		}

		var open bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM commands WHERE batch_id = $1 AND status IN ('PLAN', 'PENDING'))
		`, batchID).Scan(&open)
		if err != nil {
			return fmt.Errorf("check open commands: %w", err)
		}

		status = string(domain.BatchStatusOpen)
		if !open {
			status = string(domain.BatchStatusClosed)
		}
		_, err = tx.Exec(ctx, `
			UPDATE batches SET last_updated_at = $2, status = $3 WHERE id = $1
		`, batchID, now, status)
		if err != nil {
			return fmt.Errorf("update batch: %w", err)
		}

		if !open {
			return stopRuns(ctx, tx, batchID, now, nil)
		}
		return nil
	})
}

// StartBackground запускает фоновое выполнение батча.
func (r *BatchRepo) StartBackground(ctx context.Context, batchID int64, user domain.LocalUser, creds domain.Credentials) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		status, err := r.lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if status == domain.BatchStatusClosed {
			return store.ErrBatchClosed
		}

		var active bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM background_runs WHERE batch_id = $1 AND stopped_at IS NULL)
		`, batchID).Scan(&active)
		if err != nil {
			return fmt.Errorf("check active run: %w", err)
		}
		if active {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO background_runs (id, batch_id, started_at, started_by_local_user_id,
			                             started_by_global_user_id, started_by_user_name, access_token)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), batchID, r.now(), user.LocalUserID, user.GlobalUserID, user.UserName, creds.AccessToken)
		if err != nil {
			return fmt.Errorf("insert background run: %w", err)
		}
		return nil
	})
}

// StopBackground останавливает фоновое выполнение батча.
func (r *BatchRepo) StopBackground(ctx context.Context, batchID int64, user *domain.LocalUser) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := r.lockBatch(ctx, tx, batchID); err != nil {
			return err
		}
		return stopRuns(ctx, tx, batchID, r.now(), user)
	})
}

// SuspendBackground приостанавливает активный запуск.
func (r *BatchRepo) SuspendBackground(ctx context.Context, batchID int64, until time.Time) error {
	if err := r.ensureBatch(ctx, r.pool, batchID); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE background_runs SET suspended_until = $2 WHERE batch_id = $1 AND stopped_at IS NULL
	`, batchID, until)
	if err != nil {
		return fmt.Errorf("suspend background run: %w", err)
	}
	return nil
}

// ClaimNextGlobalPlan захватывает следующую запись для фонового выполнения.
func (r *BatchRepo) ClaimNextGlobalPlan(ctx context.Context) (*store.Claim, error) {
	var claim *store.Claim

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		now := r.now()

		var commandID, batchID int64
		var accessToken string
		err := tx.QueryRow(ctx, `
			SELECT c.id, b.id, br.access_token
			FROM commands c
			JOIN batches b ON b.id = c.batch_id
			JOIN background_runs br ON br.batch_id = b.id AND br.stopped_at IS NULL
			WHERE c.status = 'PLAN'
			  AND b.status = 'OPEN'
			  AND (br.suspended_until IS NULL OR br.suspended_until <= $1)
			ORDER BY b.last_updated_at, c.id
			LIMIT 1
			FOR UPDATE OF c SKIP LOCKED
		`, now).Scan(&commandID, &batchID, &accessToken)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select next plan: %w", err)
		}

		records, err := r.markPending(ctx, tx, []int64{commandID})
		if err != nil {
			return err
		}
		if len(records) != 1 {
			return fmt.Errorf("claimed command %d disappeared", commandID)
		}

		batch, err := r.getBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}

		claim = &store.Claim{
			Batch:       *batch,
			Record:      records[0],
			Credentials: domain.Credentials{AccessToken: accessToken},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// StalePendings возвращает давно захваченные записи.
func (r *BatchRepo) StalePendings(ctx context.Context, olderThan time.Time, limit int) ([]store.PendingRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT batch_id, id, pending_since
		FROM commands
		WHERE status = 'PENDING' AND pending_since < $1
		ORDER BY pending_since, id
		LIMIT NULLIF($2, 0)
	`, olderThan, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("list stale pendings: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.PendingRef, error) {
		var ref store.PendingRef
		err := row.Scan(&ref.BatchID, &ref.CommandID, &ref.Since)
		return ref, err
	})
}

// --- Helpers ---

// ensureBatch возвращает store.ErrNotFound, если батча нет.
func (r *BatchRepo) ensureBatch(ctx context.Context, q querier, batchID int64) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batches WHERE id = $1)`, batchID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check batch: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

// lockBatch блокирует строку батча до конца транзакции и возвращает его статус.
func (r *BatchRepo) lockBatch(ctx context.Context, tx pgx.Tx, batchID int64) (domain.BatchStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM batches WHERE id = $1 FOR UPDATE`, batchID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lock batch: %w", err)
	}
	return domain.BatchStatus(status), nil
}

// stopRuns останавливает активный запуск батча. Если затронуто больше одной
// строки, возвращает store.ErrInvariantViolation и транзакция откатывается.
func stopRuns(ctx context.Context, tx pgx.Tx, batchID int64, now time.Time, user *domain.LocalUser) error {
	var localID, globalID *int64
	var userName *string
	if user != nil {
		localID, globalID, userName = &user.LocalUserID, &user.GlobalUserID, &user.UserName
	}

	tag, err := tx.Exec(ctx, `
		UPDATE background_runs
		SET stopped_at = $2,
		    stopped_by_local_user_id = $3,
		    stopped_by_global_user_id = $4,
		    stopped_by_user_name = $5,
		    suspended_until = NULL
		WHERE batch_id = $1 AND stopped_at IS NULL
	`, batchID, now, localID, globalID, userName)
	if err != nil {
		return fmt.Errorf("stop background run: %w", err)
	}
	if n := tag.RowsAffected(); n > 1 {
		return fmt.Errorf("%w: stopped %d background runs of batch %d", store.ErrInvariantViolation, n, batchID)
	}
	return nil
}

func scanBatch(row pgx.Row) (*domain.StoredBatch, error) {
	var b domain.StoredBatch
	var title *string
	var status string

	err := row.Scan(
		&b.ID,
		&b.Domain,
		&title,
		&status,
		&b.Owner.LocalUserID,
		&b.Owner.GlobalUserID,
		&b.Owner.UserName,
		&b.CreatedAt,
		&b.LastUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	if title != nil {
		b.Title = *title
	}
	b.Status = domain.BatchStatus(status)
	b.Owner.Domain = b.Domain
	return &b, nil
}

func scanRecord(row pgx.Row) (domain.CommandRecord, error) {
	var (
		rec              domain.CommandRecord
		resolveRedirects int16
		actionsJSON      string
		status           string
		outcome          []byte
	)

	err := row.Scan(&rec.ID, &rec.Command.Page.Title, &resolveRedirects, &actionsJSON, &status, &outcome)
	if err != nil {
		return rec, fmt.Errorf("scan command: %w", err)
	}
	rec.Command.Page.ResolveRedirects = domain.ResolveRedirects(resolveRedirects)

	if rec.Command.Actions, err = domain.UnmarshalActions([]byte(actionsJSON)); err != nil {
		return rec, fmt.Errorf("command %d: %w", rec.ID, err)
	}
	if rec.Status, err = domain.DecodeStatus(domain.StatusKind(status), outcome); err != nil {
		return rec, fmt.Errorf("command %d: %w", rec.ID, err)
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]domain.CommandRecord, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CommandRecord, error) {
		return scanRecord(row)
	})
}

func scanRun(row pgx.Row) (domain.BackgroundRun, error) {
	var run domain.BackgroundRun
	var stoppedLocal, stoppedGlobal *int64
	var stoppedName *string

	err := row.Scan(
		&run.ID,
		&run.BatchID,
		&run.StartedAt,
		&run.StartedBy.LocalUserID,
		&run.StartedBy.GlobalUserID,
		&run.StartedBy.UserName,
		&run.StoppedAt,
		&stoppedLocal,
		&stoppedGlobal,
		&stoppedName,
		&run.SuspendedUntil,
	)
	if err != nil {
		return run, fmt.Errorf("scan background run: %w", err)
	}

	if stoppedLocal != nil && stoppedGlobal != nil {
		run.StoppedBy = &domain.LocalUser{LocalUserID: *stoppedLocal, GlobalUserID: *stoppedGlobal}
		if stoppedName != nil {
			run.StoppedBy.UserName = *stoppedName
		}
	}
	return run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
