package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chesskite/chesskite-relay/internal/events"
	"github.com/chesskite/chesskite-relay/internal/gamestore"
	"github.com/chesskite/chesskite-relay/internal/intent"
	"github.com/chesskite/chesskite-relay/internal/rewards"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func newTestIntake(t *testing.T) (*Intake, *intent.MemoryStore, *gamestore.MemoryStore, *events.MemoryBus) {
	t.Helper()

	queue := intent.NewMemoryStore(fixedNow)
	games := gamestore.NewMemoryStore()
	engine, err := rewards.NewEngine(games)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	bus := events.NewMemoryBus()

	in, err := New(queue, games, engine, bus, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in.WithNow(fixedNow)
	return in, queue, games, bus
}

func TestAccept_ValidIntentQueuesAndEmits(t *testing.T) {
	t.Parallel()

	in, queue, _, bus := newTestIntake(t)
	ctx := context.Background()

	it, created, err := in.Accept(ctx, Request{
		TransactionID: "t1",
		Kind:          intent.KindCreateGame,
		Actor:         "0xA",
		GameRef:       "g1",
		Payload:       intent.Payload{CreateGame: &intent.CreateGamePayload{Mode: 0, Difficulty: 1}},
	})
	if err != nil || !created {
		t.Fatalf("Accept: created=%v err=%v", created, err)
	}
	if it.Status != intent.StatusPending {
		t.Fatalf("status: got %s want pending", it.Status)
	}

	stored, err := queue.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.GameRef != "g1" || stored.Actor != "0xA" {
		t.Fatalf("stored row: %+v", stored)
	}

	queued := bus.ByEvent(events.EventQueued)
	if len(queued) != 1 {
		t.Fatalf("queued events: got %d want 1", len(queued))
	}
	qp := queued[0].Payload.(events.QueuedPayload)
	if qp.ID != "t1" || qp.Status != events.StatusQueued {
		t.Fatalf("queued payload: %+v", qp)
	}
}

func TestAccept_GeneratesIDWhenMissing(t *testing.T) {
	t.Parallel()

	in, _, _, _ := newTestIntake(t)

	it, created, err := in.Accept(context.Background(), Request{
		Kind:    intent.KindCreateGame,
		Actor:   "0xA",
		Payload: intent.Payload{CreateGame: &intent.CreateGamePayload{}},
	})
	if err != nil || !created {
		t.Fatalf("Accept: created=%v err=%v", created, err)
	}
	if it.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestAccept_ValidationFailureRejectsWithErrorEvent(t *testing.T) {
	t.Parallel()

	in, queue, _, bus := newTestIntake(t)
	ctx := context.Background()

	_, _, err := in.Accept(ctx, Request{
		TransactionID: "t1",
		Kind:          intent.KindCreateGame,
		Actor:         "0xA",
		Payload:       intent.Payload{CreateGame: &intent.CreateGamePayload{Mode: 7}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	// Never enqueued.
	if _, err := queue.Get(ctx, "t1"); !errors.Is(err, intent.ErrNotFound) {
		t.Fatalf("invalid intent must not be enqueued")
	}

	errs := bus.ByEvent(events.EventError)
	if len(errs) != 1 {
		t.Fatalf("error events: got %d want 1", len(errs))
	}
	ep := errs[0].Payload.(events.ErrorPayload)
	if ep.TransactionID != "t1" || ep.Error == "" {
		t.Fatalf("error payload: %+v", ep)
	}
	if len(bus.ByEvent(events.EventQueued)) != 0 {
		t.Fatalf("no queued event expected")
	}
}

func TestAccept_WaitingMoveInsertsDirectlyAsWaiting(t *testing.T) {
	t.Parallel()

	in, queue, _, bus := newTestIntake(t)
	ctx := context.Background()

	it, created, err := in.Accept(ctx, Request{
		TransactionID: "t2",
		Kind:          intent.KindMakeMove,
		Actor:         "0xA",
		GameRef:       "g1",
		Status:        StatusWaitingForObjectID,
		Payload: intent.Payload{MakeMove: &intent.MakeMovePayload{
			SAN: "e4", FEN: "fen", MoveHash: "h",
		}},
	})
	if err != nil || !created {
		t.Fatalf("Accept: created=%v err=%v", created, err)
	}
	if it.Status != intent.StatusWaitingForParentID {
		t.Fatalf("status: got %s want waiting", it.Status)
	}

	// No pending window: the stored row is already waiting.
	stored, _ := queue.Get(ctx, "t2")
	if stored.Status != intent.StatusWaitingForParentID {
		t.Fatalf("stored status: got %s", stored.Status)
	}

	queued := bus.ByEvent(events.EventQueued)
	if len(queued) != 1 {
		t.Fatalf("queued events: got %d", len(queued))
	}
	if qp := queued[0].Payload.(events.QueuedPayload); qp.Status != events.StatusWaitingForObjectID {
		t.Fatalf("queued status: got %q", qp.Status)
	}

	// A waiting request without a game ref is invalid.
	_, _, err = in.Accept(ctx, Request{
		Kind:   intent.KindMakeMove,
		Actor:  "0xA",
		Status: StatusWaitingForObjectID,
		Payload: intent.Payload{MakeMove: &intent.MakeMovePayload{
			SAN: "e4", FEN: "fen", MoveHash: "h",
		}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func mintRequest(id string) Request {
	return Request{
		TransactionID: id,
		Kind:          intent.KindMintBadge,
		Actor:         "0xA",
		PlayerRef:     "p1",
		Payload: intent.Payload{MintBadge: &intent.MintBadgePayload{
			RecipientAddress: "0xA",
			BadgeType:        "first_win",
			Name:             "First Win",
			Description:      "d",
			SourceURL:        "https://badges.example.com/first_win.png",
		}},
	}
}

func TestAccept_DuplicateMintBadgeDropsSilently(t *testing.T) {
	t.Parallel()

	in, queue, _, bus := newTestIntake(t)
	ctx := context.Background()

	_, created, err := in.Accept(ctx, mintRequest("m1"))
	if err != nil || !created {
		t.Fatalf("first mint: created=%v err=%v", created, err)
	}

	_, created, err = in.Accept(ctx, mintRequest("m2"))
	if err != nil {
		t.Fatalf("duplicate mint: %v", err)
	}
	if created {
		t.Fatalf("duplicate mint must be dropped")
	}

	if _, err := queue.Get(ctx, "m2"); !errors.Is(err, intent.ErrNotFound) {
		t.Fatalf("duplicate row must not exist")
	}
	// One queued event total, none for the drop.
	if got := len(bus.ByEvent(events.EventQueued)); got != 1 {
		t.Fatalf("queued events: got %d want 1", got)
	}
	if got := len(bus.ByEvent(events.EventError)); got != 0 {
		t.Fatalf("error events: got %d want 0", got)
	}
}

func TestRequestReward_QueuesOnceAndEmits(t *testing.T) {
	t.Parallel()

	in, queue, games, bus := newTestIntake(t)
	ctx := context.Background()

	games.AddPlayer(gamestore.Player{ID: "p1", SuiAddress: "0xA"})
	games.SetHistory("p1", true, true, 1)

	it, queued, err := in.RequestReward(ctx, "0xA", rewards.CheckWins)
	if err != nil || !queued {
		t.Fatalf("RequestReward: queued=%v err=%v", queued, err)
	}

	stored, err := queue.Get(ctx, it.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	mb := stored.Payload.MintBadge
	if mb == nil || mb.BadgeType != "first_win" || mb.RecipientAddress != "0xA" {
		t.Fatalf("stored payload: %+v", mb)
	}
	if stored.PlayerRef != "p1" {
		t.Fatalf("player ref: got %q", stored.PlayerRef)
	}

	tasks := bus.ByEvent(events.EventMintTaskQueued)
	if len(tasks) != 1 {
		t.Fatalf("mint-task-queued events: got %d want 1", len(tasks))
	}
	tp := tasks[0].Payload.(events.MintTaskQueuedPayload)
	if tp.RewardType != "first_win" || tp.PlayerID != "p1" || tp.PlayerSuiAddress != "0xA" {
		t.Fatalf("task payload: %+v", tp)
	}

	// A second identical request finds the queued mint and stays silent.
	_, queued, err = in.RequestReward(ctx, "0xA", rewards.CheckWins)
	if err != nil {
		t.Fatalf("second RequestReward: %v", err)
	}
	if queued {
		t.Fatalf("second request must not queue")
	}
	if got := len(bus.ByEvent(events.EventMintTaskQueued)); got != 1 {
		t.Fatalf("mint-task-queued events after dup: got %d want 1", got)
	}
}

func TestRequestReward_UnknownPlayerOrIneligible(t *testing.T) {
	t.Parallel()

	in, _, games, bus := newTestIntake(t)
	ctx := context.Background()

	if _, queued, err := in.RequestReward(ctx, "0xGHOST", rewards.CheckWins); err != nil || queued {
		t.Fatalf("unknown player: queued=%v err=%v", queued, err)
	}

	games.AddPlayer(gamestore.Player{ID: "p1", SuiAddress: "0xA"})
	games.SetHistory("p1", false, false, 0)
	if _, queued, err := in.RequestReward(ctx, "0xA", rewards.CheckWins); err != nil || queued {
		t.Fatalf("ineligible player: queued=%v err=%v", queued, err)
	}

	if got := len(bus.Emissions()); got != 0 {
		t.Fatalf("no events expected, got %d", got)
	}
}
