package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chesskite/chesskite-relay/internal/intent"
)

var ErrInvalidConfig = errors.New("intent/postgres: invalid config")

const intentColumns = `id, kind, player_sui_address, game_id, player_id, status, payload, error, retries, created_at, updated_at, processed_at`

// Store persists the transaction queue in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("intent/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Enqueue(ctx context.Context, it intent.Intent) (intent.Intent, bool, error) {
	if s == nil || s.pool == nil {
		return intent.Intent{}, false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := it.Validate(); err != nil {
		return intent.Intent{}, false, err
	}
	if it.Status == "" {
		it.Status = intent.StatusPending
	}

	payload, err := it.Payload.Encode(it.Kind)
	if err != nil {
		return intent.Intent{}, false, err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO transaction_queue (id, kind, player_sui_address, game_id, player_id, status, payload, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),NULLIF($5,''),$6,$7,now(),now())
		ON CONFLICT (id) DO NOTHING
	`, it.ID, string(it.Kind), it.Actor, it.GameRef, it.PlayerRef, string(it.Status), payload)
	if err != nil {
		return intent.Intent{}, false, fmt.Errorf("intent/postgres: enqueue: %w", err)
	}
	if tag.RowsAffected() == 1 {
		got, err := s.Get(ctx, it.ID)
		if err != nil {
			return intent.Intent{}, false, err
		}
		return got, true, nil
	}

	existing, err := s.Get(ctx, it.ID)
	if err != nil {
		return intent.Intent{}, false, err
	}
	return existing, false, nil
}

func (s *Store) Get(ctx context.Context, id string) (intent.Intent, error) {
	if s == nil || s.pool == nil {
		return intent.Intent{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	row := s.pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM transaction_queue WHERE id = $1`, id)
	it, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return intent.Intent{}, intent.ErrNotFound
		}
		return intent.Intent{}, err
	}
	return it, nil
}

// ClaimNext atomically claims the oldest pending row for actor. Rows locked by
// other dispatcher processes are skipped, and an existing processing row for
// the actor blocks the claim entirely.
func (s *Store) ClaimNext(ctx context.Context, actor string) (intent.Intent, bool, error) {
	if s == nil || s.pool == nil {
		return intent.Intent{}, false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if actor == "" {
		return intent.Intent{}, false, fmt.Errorf("%w: missing actor", intent.ErrInvalidIntent)
	}

	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM transaction_queue
			WHERE player_sui_address = $1
				AND status = 'pending'
				AND NOT EXISTS (
					SELECT 1 FROM transaction_queue p
					WHERE p.player_sui_address = $1 AND p.status = 'processing'
				)
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE transaction_queue q
		SET status = 'processing', updated_at = now()
		FROM next
		WHERE q.id = next.id
		RETURNING `+qualifiedIntentColumns("q"), actor)

	it, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return intent.Intent{}, false, nil
		}
		return intent.Intent{}, false, err
	}
	return it, true, nil
}

func (s *Store) ListActiveActors(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be > 0", intent.ErrInvalidIntent)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT player_sui_address
		FROM transaction_queue
		WHERE status = 'pending' AND player_sui_address IS NOT NULL
		GROUP BY player_sui_address
		ORDER BY MIN(created_at) ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("intent/postgres: list active actors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			return nil, fmt.Errorf("intent/postgres: scan actor: %w", err)
		}
		out = append(out, actor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("intent/postgres: active actors rows: %w", err)
	}
	return out, nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, intent.StatusCompleted, "", true)
}

func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	return s.setStatus(ctx, id, intent.StatusFailed, errMsg, true)
}

func (s *Store) RequeuePending(ctx context.Context, id, errMsg string) error {
	return s.setStatus(ctx, id, intent.StatusPending, errMsg, false)
}

func (s *Store) setStatus(ctx context.Context, id string, status intent.Status, errMsg string, stampProcessed bool) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	q := `UPDATE transaction_queue SET status = $2, error = NULLIF($3,''), updated_at = now() WHERE id = $1`
	if stampProcessed {
		q = `UPDATE transaction_queue SET status = $2, error = NULLIF($3,''), updated_at = now(), processed_at = now() WHERE id = $1`
	}
	tag, err := s.pool.Exec(ctx, q, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("intent/postgres: set status %s: %w", status, err)
	}
	if tag.RowsAffected() != 1 {
		return intent.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementRetries(ctx context.Context, id string) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var retries int
	err := s.pool.QueryRow(ctx, `
		UPDATE transaction_queue
		SET retries = retries + 1, updated_at = now()
		WHERE id = $1
		RETURNING retries
	`, id).Scan(&retries)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, intent.ErrNotFound
		}
		return 0, fmt.Errorf("intent/postgres: increment retries: %w", err)
	}
	return retries, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM transaction_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("intent/postgres: delete: %w", err)
	}
	return nil
}

func (s *Store) ListWaitingForGame(ctx context.Context, gameRef string) ([]intent.Intent, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if gameRef == "" {
		return nil, fmt.Errorf("%w: missing game ref", intent.ErrInvalidIntent)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+intentColumns+`
		FROM transaction_queue
		WHERE status = 'waiting_for_object_id' AND game_id = $1
		ORDER BY created_at ASC, id ASC
	`, gameRef)
	if err != nil {
		return nil, fmt.Errorf("intent/postgres: list waiting: %w", err)
	}
	defer rows.Close()

	var out []intent.Intent
	for rows.Next() {
		it, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("intent/postgres: waiting rows: %w", err)
	}
	return out, nil
}

func (s *Store) UnblockWaiting(ctx context.Context, id, objectID string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if objectID == "" {
		return fmt.Errorf("%w: missing object id", intent.ErrInvalidIntent)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE transaction_queue
		SET status = 'pending',
			payload = jsonb_set(payload, '{game_object_id}', to_jsonb($2::text)),
			updated_at = now()
		WHERE id = $1 AND status = 'waiting_for_object_id'
	`, id, objectID)
	if err != nil {
		return fmt.Errorf("intent/postgres: unblock waiting: %w", err)
	}
	if tag.RowsAffected() != 1 {
		if _, gerr := s.Get(ctx, id); errors.Is(gerr, intent.ErrNotFound) {
			return intent.ErrNotFound
		}
		return intent.ErrNotWaiting
	}
	return nil
}

func (s *Store) ExistsReward(ctx context.Context, actor, playerRef, badgeType string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transaction_queue
			WHERE kind = 'mint_badge'
				AND status IN ('pending','processing','completed')
				AND player_sui_address = $1
				AND player_id = $2
				AND payload->>'badge_type' = $3
		)
	`, actor, playerRef, badgeType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("intent/postgres: exists reward: %w", err)
	}
	return exists, nil
}

func (s *Store) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: olderThan must be > 0", intent.ErrInvalidIntent)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE transaction_queue
		SET status = 'pending', updated_at = now()
		WHERE status = 'processing'
			AND updated_at < now() - ($1::bigint * interval '1 millisecond')
	`, olderThan.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("intent/postgres: reclaim stuck: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GCOld(ctx context.Context, olderThan time.Duration) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if olderThan <= 0 {
		olderThan = intent.DefaultGCAge
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM transaction_queue
		WHERE status IN ('completed','failed')
			AND updated_at < now() - ($1::bigint * interval '1 millisecond')
	`, olderThan.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("intent/postgres: gc old: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func qualifiedIntentColumns(alias string) string {
	return alias + ".id, " + alias + ".kind, " + alias + ".player_sui_address, " + alias + ".game_id, " +
		alias + ".player_id, " + alias + ".status, " + alias + ".payload, " + alias + ".error, " +
		alias + ".retries, " + alias + ".created_at, " + alias + ".updated_at, " + alias + ".processed_at"
}

func scanIntent(row pgx.Row) (intent.Intent, error) {
	var (
		it          intent.Intent
		kind        string
		actor       *string
		gameRef     *string
		playerRef   *string
		status      string
		payload     []byte
		errMsg      *string
		processedAt *time.Time
	)
	err := row.Scan(&it.ID, &kind, &actor, &gameRef, &playerRef, &status, &payload, &errMsg, &it.Retries, &it.CreatedAt, &it.UpdatedAt, &processedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return intent.Intent{}, pgx.ErrNoRows
		}
		return intent.Intent{}, fmt.Errorf("intent/postgres: scan row: %w", err)
	}

	it.Kind = intent.Kind(kind)
	it.Status = intent.Status(status)
	if actor != nil {
		it.Actor = *actor
	}
	if gameRef != nil {
		it.GameRef = *gameRef
	}
	if playerRef != nil {
		it.PlayerRef = *playerRef
	}
	if errMsg != nil {
		it.Error = *errMsg
	}
	if processedAt != nil {
		it.ProcessedAt = *processedAt
	}

	p, err := intent.DecodePayload(it.Kind, payload)
	if err != nil {
		return intent.Intent{}, err
	}
	it.Payload = p
	return it, nil
}

var _ intent.Store = (*Store)(nil)
