package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chesskite/chesskite-relay/internal/gamestore"
)

var ErrInvalidConfig = errors.New("gamestore/postgres: invalid config")

// Store reads and writes the game backend's existing tables. The games,
// players and rewards tables plus the vw_users_* views are owned by the game
// backend and are consumed as-is; no schema management happens here.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) PlayerByAddress(ctx context.Context, address string) (gamestore.Player, error) {
	if s == nil || s.pool == nil {
		return gamestore.Player{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if address == "" {
		return gamestore.Player{}, gamestore.ErrInvalidInput
	}

	var p gamestore.Player
	err := s.pool.QueryRow(ctx, `
		SELECT id, sui_address FROM players WHERE sui_address = $1
	`, address).Scan(&p.ID, &p.SuiAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return gamestore.Player{}, gamestore.ErrNotFound
		}
		return gamestore.Player{}, fmt.Errorf("gamestore/postgres: player by address: %w", err)
	}
	return p, nil
}

func (s *Store) SetGameObjectID(ctx context.Context, gameRef, objectID string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if gameRef == "" || objectID == "" {
		return gamestore.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE games
		SET object_id = $2, updated_at = now()
		WHERE id = $1 AND (object_id IS NULL OR object_id = $2)
	`, gameRef, objectID)
	if err != nil {
		return fmt.Errorf("gamestore/postgres: set game object id: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Idempotent when the same id is already recorded; anything else is a
	// lookup miss or a conflicting id.
	var existing *string
	err = s.pool.QueryRow(ctx, `SELECT object_id FROM games WHERE id = $1`, gameRef).Scan(&existing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return gamestore.ErrNotFound
		}
		return fmt.Errorf("gamestore/postgres: get game: %w", err)
	}
	if existing != nil && *existing == objectID {
		return nil
	}
	return fmt.Errorf("gamestore/postgres: game %s already has object id", gameRef)
}

func (s *Store) UpsertReward(ctx context.Context, playerRef, badgeType, objectID string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if playerRef == "" || badgeType == "" {
		return gamestore.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rewards (player_id, badge_type, object_id, created_at, updated_at)
		VALUES ($1,$2,$3,now(),now())
		ON CONFLICT (player_id, badge_type) DO UPDATE
		SET object_id = EXCLUDED.object_id,
			updated_at = now()
	`, playerRef, badgeType, objectID)
	if err != nil {
		return fmt.Errorf("gamestore/postgres: upsert reward: %w", err)
	}
	return nil
}

func (s *Store) HasReward(ctx context.Context, playerRef, badgeType string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM rewards WHERE player_id = $1 AND badge_type = $2)
	`, playerRef, badgeType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("gamestore/postgres: has reward: %w", err)
	}
	return exists, nil
}

func (s *Store) RewardTypes(ctx context.Context, playerRef string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT badge_type FROM rewards WHERE player_id = $1 ORDER BY badge_type ASC
	`, playerRef)
	if err != nil {
		return nil, fmt.Errorf("gamestore/postgres: reward types: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("gamestore/postgres: scan reward type: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gamestore/postgres: reward type rows: %w", err)
	}
	return out, nil
}

func (s *Store) InNoFirstGame(ctx context.Context, playerRef string) (bool, error) {
	return s.inView(ctx, "vw_users_no_first_game", playerRef)
}

func (s *Store) InNoFirstGameCreated(ctx context.Context, playerRef string) (bool, error) {
	return s.inView(ctx, "vw_users_no_first_game_created", playerRef)
}

func (s *Store) inView(ctx context.Context, view, playerRef string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+view+` WHERE player_id = $1)`, playerRef).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("gamestore/postgres: query %s: %w", view, err)
	}
	return exists, nil
}

func (s *Store) Victories(ctx context.Context, playerRef string) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(victories, 0) FROM vw_users_victories WHERE player_id = $1
	`, playerRef).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("gamestore/postgres: victories: %w", err)
	}
	return n, nil
}

var _ gamestore.Store = (*Store)(nil)
