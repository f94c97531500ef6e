package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chesskite/chesskite-relay/internal/blobstore"
	"github.com/chesskite/chesskite-relay/internal/events"
	"github.com/chesskite/chesskite-relay/internal/gamestore"
	"github.com/chesskite/chesskite-relay/internal/intent"
)

var ErrInvalidConfig = errors.New("dispatch: invalid config")

// Created-object type patterns handed to the gateway's extractor.
const (
	gameTypePattern  = "::game::Game"
	badgeTypePattern = "badge::Badge"
)

// ChainGateway is the chain surface the processor needs.
type ChainGateway interface {
	Submit(ctx context.Context, it intent.Intent) (string, error)
	WaitAndExtract(ctx context.Context, digest, typePattern string) (string, error)
}

// Processor runs one claimed intent through its lifecycle: submit, extract,
// reconcile, notify.
type Processor struct {
	queue intent.Store
	games gamestore.Store
	chain ChainGateway
	bus   events.Bus

	// blobs optionally archives a submission record per digest.
	blobs blobstore.Store

	log *slog.Logger
	now func() time.Time
}

func NewProcessor(queue intent.Store, games gamestore.Store, chain ChainGateway, bus events.Bus, log *slog.Logger) (*Processor, error) {
	if queue == nil || games == nil || chain == nil || bus == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Processor{
		queue: queue,
		games: games,
		chain: chain,
		bus:   bus,
		log:   log,
		now:   time.Now,
	}, nil
}

// WithBlobStore configures optional submission-record archiving.
func (p *Processor) WithBlobStore(store blobstore.Store) *Processor {
	p.blobs = store
	return p
}

// WithNow overrides the clock.
func (p *Processor) WithNow(now func() time.Time) *Processor {
	if now != nil {
		p.now = now
	}
	return p
}

// Process submits the intent and reconciles its effects. A returned error
// means the attempt failed and the dispatcher decides retry/fail policy;
// reconciliation problems after a durable on-chain effect are logged only.
func (p *Processor) Process(ctx context.Context, it intent.Intent) error {
	digest, err := p.chain.Submit(ctx, it)
	if err != nil {
		return err
	}

	result := events.ResultPayload{
		ID:        it.ID,
		Status:    events.StatusSuccess,
		Digest:    digest,
		Timestamp: p.now().UTC(),
	}

	switch it.Kind {
	case intent.KindCreateGame:
		objectID, err := p.chain.WaitAndExtract(ctx, digest, gameTypePattern)
		if err != nil {
			return err
		}
		result.ObjectID = objectID
		if objectID != "" && it.GameRef != "" {
			p.reconcileCreateGame(ctx, it, objectID)
		}

	case intent.KindMintBadge:
		objectID, err := p.chain.WaitAndExtract(ctx, digest, badgeTypePattern)
		if err != nil {
			return err
		}
		result.ObjectID = objectID
		if mb := it.Payload.MintBadge; mb != nil {
			result.RewardName = mb.Name
			result.BadgeType = mb.BadgeType
			if objectID != "" && it.PlayerRef != "" {
				// The mint is already durable on-chain; a reward-table miss
				// must not fail the intent.
				if err := p.games.UpsertReward(ctx, it.PlayerRef, mb.BadgeType, objectID); err != nil {
					p.log.Error("upsert reward", "intent", it.ID, "player", it.PlayerRef, "badge", mb.BadgeType, "err", err)
				}
			}
		}

	case intent.KindMakeMove, intent.KindEndGame:
		// No store reconciliation.
	}

	p.archive(ctx, it, digest, result.ObjectID)

	if it.Actor != "" {
		if err := p.bus.Emit(ctx, events.Room(it.Actor), events.EventResult, result); err != nil {
			p.log.Error("emit result", "intent", it.ID, "err", err)
		}
	}
	return nil
}

// reconcileCreateGame records the game's object id and unblocks every intent
// parked on it. Store failures here are logged only: the game exists on-chain
// and waiting rows can still be repaired out of band.
func (p *Processor) reconcileCreateGame(ctx context.Context, it intent.Intent, objectID string) {
	if err := p.games.SetGameObjectID(ctx, it.GameRef, objectID); err != nil {
		p.log.Error("set game object id", "intent", it.ID, "game", it.GameRef, "err", err)
	}

	waiting, err := p.queue.ListWaitingForGame(ctx, it.GameRef)
	if err != nil {
		p.log.Error("list waiting intents", "game", it.GameRef, "err", err)
		return
	}
	for _, w := range waiting {
		if err := p.queue.UnblockWaiting(ctx, w.ID, objectID); err != nil {
			p.log.Error("unblock waiting intent", "intent", w.ID, "game", it.GameRef, "err", err)
		}
	}
}

type submissionRecord struct {
	IntentID    string    `json:"intent_id"`
	Kind        string    `json:"kind"`
	Actor       string    `json:"actor,omitempty"`
	Digest      string    `json:"digest"`
	ObjectID    string    `json:"object_id,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (p *Processor) archive(ctx context.Context, it intent.Intent, digest, objectID string) {
	if p.blobs == nil {
		return
	}

	rec, err := json.Marshal(submissionRecord{
		IntentID:    it.ID,
		Kind:        string(it.Kind),
		Actor:       it.Actor,
		Digest:      digest,
		ObjectID:    objectID,
		ProcessedAt: p.now().UTC(),
	})
	if err != nil {
		p.log.Error("marshal submission record", "intent", it.ID, "err", err)
		return
	}
	key := "transactions/" + digest + "/record.json"
	if err := p.blobs.Put(ctx, key, rec, blobstore.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"intent-id": it.ID,
			"kind":      string(it.Kind),
		},
	}); err != nil {
		p.log.Error("archive submission record", "intent", it.ID, "digest", digest, "err", err)
	}
}
