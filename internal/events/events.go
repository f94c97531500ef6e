package events

import (
	"context"
	"time"
)

// Server -> client event names.
const (
	EventQueued         = "transaction:queued"
	EventProcessing     = "transaction:processing"
	EventResult         = "transaction:result"
	EventMintTaskQueued = "mint-task-queued"
	EventError          = "error"
)

// Client -> server event names, consumed by the intake bridge.
const (
	EventCreateGame = "transaction:create_game"
	EventMakeMove   = "transaction:make_move"
	EventEndGame    = "transaction:end_game"
	EventMintNFT    = "transaction:mint_nft"
	EventNFTMint    = "nftMint"

	EventJoinPlayerRoom  = "join-player-room"
	EventLeavePlayerRoom = "leave-player-room"
)

// Statuses carried by queue lifecycle events.
const (
	StatusQueued             = "queued"
	StatusWaitingForObjectID = "waiting_for_object_id"
	StatusProcessing         = "processing"
	StatusSuccess            = "success"
	StatusError              = "error"
)

// Room names the per-actor subscriber group.
func Room(actor string) string {
	return "player:" + actor
}

type QueuedPayload struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"ts"`
}

type ProcessingPayload struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"ts"`
}

type ResultPayload struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Digest     string    `json:"digest,omitempty"`
	ObjectID   string    `json:"object_id,omitempty"`
	RewardName string    `json:"reward_name,omitempty"`
	BadgeType  string    `json:"badge_type,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"ts"`
}

type MintTaskQueuedPayload struct {
	TaskID           string `json:"task_id"`
	RewardType       string `json:"reward_type"`
	PlayerID         string `json:"player_id"`
	PlayerSuiAddress string `json:"player_sui_address"`
}

type ErrorPayload struct {
	Error         string `json:"error"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Bus publishes server events into per-actor rooms. The realtime socket
// layer consuming these is external; delivery is at-least-once and clients
// tolerate duplicates.
type Bus interface {
	Emit(ctx context.Context, room, event string, payload any) error
}
