package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/chesskite/chesskite-relay/internal/gamestore"
)

var (
	ErrInvalidConfig = errors.New("rewards: invalid config")
	ErrUnknownKind   = errors.New("rewards: unknown reward kind")
)

// Engine decides whether a reward intent should be materialized for an actor.
// It is read-only; deduplication against the queue is the intake's job.
type Engine struct {
	store gamestore.Store
}

func NewEngine(store gamestore.Store) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return &Engine{store: store}, nil
}

// Decide resolves the actor to a player and picks the badge the actor has
// earned for the requested kind, or reports none. For the tiered "wins"
// family the first unearned catalog entry whose threshold is met wins.
func (e *Engine) Decide(ctx context.Context, actor string, kind Check) (CatalogEntry, bool, error) {
	if e == nil || e.store == nil {
		return CatalogEntry{}, false, fmt.Errorf("%w: nil engine", ErrInvalidConfig)
	}

	player, err := e.store.PlayerByAddress(ctx, actor)
	if err != nil {
		if errors.Is(err, gamestore.ErrNotFound) {
			return CatalogEntry{}, false, nil
		}
		return CatalogEntry{}, false, err
	}

	switch kind {
	case CheckFirstGame, CheckFirstGameCreated:
		return e.decideSingle(ctx, player.ID, kind)
	case CheckWins:
		return e.decideWins(ctx, player.ID)
	default:
		return CatalogEntry{}, false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func (e *Engine) decideSingle(ctx context.Context, playerRef string, kind Check) (CatalogEntry, bool, error) {
	var entry CatalogEntry
	found := false
	for _, c := range Catalog {
		if c.Check == kind {
			entry = c
			found = true
			break
		}
	}
	if !found {
		return CatalogEntry{}, false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var inView bool
	var err error
	switch kind {
	case CheckFirstGame:
		inView, err = e.store.InNoFirstGame(ctx, playerRef)
	case CheckFirstGameCreated:
		inView, err = e.store.InNoFirstGameCreated(ctx, playerRef)
	}
	if err != nil {
		return CatalogEntry{}, false, err
	}
	if !inView {
		return CatalogEntry{}, false, nil
	}

	has, err := e.store.HasReward(ctx, playerRef, entry.BadgeType)
	if err != nil {
		return CatalogEntry{}, false, err
	}
	if has {
		return CatalogEntry{}, false, nil
	}
	return entry, true, nil
}

func (e *Engine) decideWins(ctx context.Context, playerRef string) (CatalogEntry, bool, error) {
	wins, err := e.store.Victories(ctx, playerRef)
	if err != nil {
		return CatalogEntry{}, false, err
	}

	granted, err := e.store.RewardTypes(ctx, playerRef)
	if err != nil {
		return CatalogEntry{}, false, err
	}
	owned := make(map[string]struct{}, len(granted))
	for _, t := range granted {
		owned[t] = struct{}{}
	}

	for _, c := range Catalog {
		if c.Check != CheckWins {
			continue
		}
		if _, ok := owned[c.BadgeType]; ok {
			continue
		}
		// First unearned tier in catalog order decides, earned or not.
		if wins >= c.Threshold {
			return c, true, nil
		}
		return CatalogEntry{}, false, nil
	}
	return CatalogEntry{}, false, nil
}
