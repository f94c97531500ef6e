package gamestore

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("gamestore: not found")
	ErrInvalidInput = errors.New("gamestore: invalid input")
)

// Player is the relational player record a queue actor resolves to.
type Player struct {
	ID         string
	SuiAddress string
}

// Reward is one granted badge for a player.
type Reward struct {
	PlayerID  string
	BadgeType string
	ObjectID  string
}

// Store is the read/write surface over the existing games, players and
// rewards tables plus the eligibility views. The tables and views are owned
// by the game backend; this service only reconciles object ids and grants.
type Store interface {
	PlayerByAddress(ctx context.Context, address string) (Player, error)

	// SetGameObjectID records the on-chain object id of a game. Idempotent.
	SetGameObjectID(ctx context.Context, gameRef, objectID string) error

	// UpsertReward inserts the reward row or refreshes its object id.
	UpsertReward(ctx context.Context, playerRef, badgeType, objectID string) error
	HasReward(ctx context.Context, playerRef, badgeType string) (bool, error)
	RewardTypes(ctx context.Context, playerRef string) ([]string, error)

	// View-backed eligibility reads.
	InNoFirstGame(ctx context.Context, playerRef string) (bool, error)
	InNoFirstGameCreated(ctx context.Context, playerRef string) (bool, error)
	Victories(ctx context.Context, playerRef string) (int, error)
}
