package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chesskite/chesskite-relay/internal/events"
	"github.com/chesskite/chesskite-relay/internal/gamestore"
	"github.com/chesskite/chesskite-relay/internal/intent"
	"github.com/chesskite/chesskite-relay/internal/rewards"
)

var (
	ErrInvalidConfig = errors.New("intake: invalid config")
	ErrValidation    = errors.New("intake: validation failed")
)

// StatusWaitingForObjectID is the client-side indicator that the parent game
// has not been created on-chain yet.
const StatusWaitingForObjectID = "waiting_for_object_id"

// Request is one client intent submission after transport decoding.
type Request struct {
	// TransactionID is the client-chosen id; generated when empty.
	TransactionID string

	Kind      intent.Kind
	Actor     string
	GameRef   string
	PlayerRef string

	// Status may carry the waiting-for-parent indicator for MakeMove.
	Status string

	Payload intent.Payload
}

// Intake validates, deduplicates and persists incoming intents.
type Intake struct {
	queue  intent.Store
	games  gamestore.Store
	engine *rewards.Engine
	bus    events.Bus

	log *slog.Logger
	now func() time.Time
}

func New(queue intent.Store, games gamestore.Store, engine *rewards.Engine, bus events.Bus, log *slog.Logger) (*Intake, error) {
	if queue == nil || games == nil || engine == nil || bus == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Intake{
		queue:  queue,
		games:  games,
		engine: engine,
		bus:    bus,
		log:    log,
		now:    time.Now,
	}, nil
}

// WithNow overrides the clock.
func (i *Intake) WithNow(now func() time.Time) *Intake {
	if now != nil {
		i.now = now
	}
	return i
}

// Accept validates and persists one intent. The returned bool reports
// whether a row was created: duplicate MintBadge submissions are dropped
// silently with accepted=false and no event. Validation failures are pushed
// back to the client as an error event and returned wrapped in
// ErrValidation.
func (i *Intake) Accept(ctx context.Context, req Request) (intent.Intent, bool, error) {
	id := req.TransactionID
	if id == "" {
		id = uuid.NewString()
	}

	it := intent.Intent{
		ID:        id,
		Kind:      req.Kind,
		Actor:     req.Actor,
		GameRef:   req.GameRef,
		PlayerRef: req.PlayerRef,
		Status:    intent.StatusPending,
		Payload:   req.Payload,
	}

	// Insert directly in the terminal intended status: a Pending window
	// before flipping to waiting would let the dispatcher claim the row.
	if req.Kind == intent.KindMakeMove && req.Status == StatusWaitingForObjectID {
		if req.GameRef == "" {
			return i.reject(ctx, req, fmt.Errorf("%w: waiting intent requires a game ref", intent.ErrInvalidIntent))
		}
		it.Status = intent.StatusWaitingForParentID
	}

	if err := it.Validate(); err != nil {
		return i.reject(ctx, req, err)
	}

	if req.Kind == intent.KindMintBadge {
		exists, err := i.queue.ExistsReward(ctx, it.Actor, it.PlayerRef, it.Payload.MintBadge.BadgeType)
		if err != nil {
			return intent.Intent{}, false, err
		}
		if exists {
			i.log.Info("duplicate reward intent dropped",
				"actor", it.Actor, "player", it.PlayerRef, "badge", it.Payload.MintBadge.BadgeType)
			return it, false, nil
		}
	}

	stored, created, err := i.queue.Enqueue(ctx, it)
	if err != nil {
		return intent.Intent{}, false, err
	}

	status := events.StatusQueued
	if stored.Status == intent.StatusWaitingForParentID {
		status = events.StatusWaitingForObjectID
	}
	i.emit(ctx, stored.Actor, events.EventQueued, events.QueuedPayload{
		ID:        stored.ID,
		Status:    status,
		Timestamp: i.now().UTC(),
	})
	return stored, created, nil
}

func (i *Intake) reject(ctx context.Context, req Request, cause error) (intent.Intent, bool, error) {
	i.emit(ctx, req.Actor, events.EventError, events.ErrorPayload{
		Error:         cause.Error(),
		TransactionID: req.TransactionID,
	})
	return intent.Intent{}, false, fmt.Errorf("%w: %v", ErrValidation, cause)
}

// RequestReward is the server-side reward intake path: resolve the player,
// ask the eligibility engine for the earned badge, make sure no equivalent
// mint is already queued, then enqueue a MintBadge intent synthesized from
// the catalog entry.
func (i *Intake) RequestReward(ctx context.Context, actor string, kind rewards.Check) (intent.Intent, bool, error) {
	player, err := i.games.PlayerByAddress(ctx, actor)
	if err != nil {
		if errors.Is(err, gamestore.ErrNotFound) {
			i.log.Info("reward request for unknown player", "actor", actor)
			return intent.Intent{}, false, nil
		}
		return intent.Intent{}, false, err
	}

	entry, ok, err := i.engine.Decide(ctx, actor, kind)
	if err != nil {
		return intent.Intent{}, false, err
	}
	if !ok {
		return intent.Intent{}, false, nil
	}

	queued, err := i.queue.ExistsReward(ctx, actor, player.ID, entry.BadgeType)
	if err != nil {
		return intent.Intent{}, false, err
	}
	if queued {
		return intent.Intent{}, false, nil
	}

	it, created, err := i.Accept(ctx, Request{
		Kind:      intent.KindMintBadge,
		Actor:     actor,
		PlayerRef: player.ID,
		Payload: intent.Payload{
			MintBadge: &intent.MintBadgePayload{
				RecipientAddress: actor,
				BadgeType:        entry.BadgeType,
				Name:             entry.Name,
				Description:      entry.Description,
				SourceURL:        entry.SourceURL,
			},
		},
	})
	if err != nil || !created {
		return it, false, err
	}

	// The queued badge may differ from the literally requested kind; the
	// event carries what was actually selected.
	i.emit(ctx, actor, events.EventMintTaskQueued, events.MintTaskQueuedPayload{
		TaskID:           it.ID,
		RewardType:       entry.BadgeType,
		PlayerID:         player.ID,
		PlayerSuiAddress: actor,
	})
	return it, true, nil
}

func (i *Intake) emit(ctx context.Context, actor, event string, payload any) {
	if actor == "" {
		return
	}
	if err := i.bus.Emit(ctx, events.Room(actor), event, payload); err != nil {
		i.log.Error("emit event", "event", event, "actor", actor, "err", err)
	}
}
