package intent

import (
	"context"
	"time"
)

// DefaultGCAge is how long Completed/Failed rows are retained before GC.
const DefaultGCAge = 24 * time.Hour

// Store is the durable queue.
//
// Semantics:
//   - Enqueue is idempotent on id; a MintBadge row additionally must not
//     duplicate an existing (actor, player_ref, badge_type) row in
//     {Pending, Processing, Completed} (checked by callers via ExistsReward).
//   - ClaimNext atomically moves the oldest Pending row of an actor to
//     Processing, skipping rows locked by other dispatcher processes.
//   - GCOld only ever touches Completed/Failed rows older than the cutoff.
type Store interface {
	Enqueue(ctx context.Context, it Intent) (Intent, bool, error)
	Get(ctx context.Context, id string) (Intent, error)

	ClaimNext(ctx context.Context, actor string) (Intent, bool, error)
	ListActiveActors(ctx context.Context, limit int) ([]string, error)

	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	RequeuePending(ctx context.Context, id, errMsg string) error
	IncrementRetries(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error

	ListWaitingForGame(ctx context.Context, gameRef string) ([]Intent, error)
	UnblockWaiting(ctx context.Context, id, objectID string) error

	ExistsReward(ctx context.Context, actor, playerRef, badgeType string) (bool, error)

	ReclaimStuck(ctx context.Context, olderThan time.Duration) (int, error)
	GCOld(ctx context.Context, olderThan time.Duration) (int, error)
}
