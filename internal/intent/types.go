package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidIntent   = errors.New("intent: invalid intent")
	ErrInvalidPayload  = errors.New("intent: invalid payload")
	ErrNotFound        = errors.New("intent: not found")
	ErrDuplicateID     = errors.New("intent: duplicate id")
	ErrDuplicateReward = errors.New("intent: duplicate reward")
	ErrNotWaiting      = errors.New("intent: not waiting for parent id")
)

// Kind identifies the on-chain operation an intent requests.
type Kind string

const (
	KindCreateGame Kind = "create_game"
	KindMakeMove   Kind = "make_move"
	KindEndGame    Kind = "end_game"
	KindMintBadge  Kind = "mint_badge"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCreateGame, KindMakeMove, KindEndGame, KindMintBadge:
		return true
	default:
		return false
	}
}

// Status is the queue lifecycle state of an intent.
type Status string

const (
	StatusPending            Status = "pending"
	StatusProcessing         Status = "processing"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusWaitingForParentID Status = "waiting_for_object_id"
)

// Intent is one durable queue row: a transaction to be submitted on behalf of
// an actor, processed strictly after every earlier intent of the same actor.
type Intent struct {
	ID string

	Kind Kind

	// Actor is the originator's address. Empty only for system-generated intents.
	Actor string

	// GameRef / PlayerRef are logical ids in the relational store, "" when absent.
	GameRef   string
	PlayerRef string

	Status  Status
	Error   string
	Retries int

	Payload Payload

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt time.Time
}

func (it Intent) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidIntent)
	}
	if !it.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, it.Kind)
	}
	return it.Payload.Validate(it.Kind)
}

// GameResults are the accepted terminal results of a game.
var GameResults = []string{"1-0", "0-1", "1/2-1/2"}

type CreateGamePayload struct {
	Mode       uint8 `json:"mode"`
	Difficulty uint8 `json:"difficulty"`
}

type MakeMovePayload struct {
	GameObjectID string `json:"game_object_id"`
	IsComputer   bool   `json:"is_computer"`
	SAN          string `json:"san"`
	FEN          string `json:"fen"`
	MoveHash     string `json:"move_hash"`

	// GameID carries the logical game id while the on-chain object is unknown.
	GameID string `json:"game_id,omitempty"`
}

type EndGamePayload struct {
	GameObjectID string `json:"game_object_id"`
	// Winner is an address or "" for a draw.
	Winner   string `json:"winner,omitempty"`
	Result   string `json:"result"`
	FinalFEN string `json:"final_fen"`
}

type MintBadgePayload struct {
	RecipientAddress string `json:"recipient_address"`
	BadgeType        string `json:"badge_type"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	SourceURL        string `json:"source_url"`

	RegistryObjectID string `json:"registry_object_id,omitempty"`
}

// Payload is the kind-tagged variant carried by a queue row. Exactly one field
// is non-nil, matching the intent's Kind.
type Payload struct {
	CreateGame *CreateGamePayload `json:"create_game,omitempty"`
	MakeMove   *MakeMovePayload   `json:"make_move,omitempty"`
	EndGame    *EndGamePayload    `json:"end_game,omitempty"`
	MintBadge  *MintBadgePayload  `json:"mint_badge,omitempty"`
}

func (p Payload) Validate(kind Kind) error {
	if err := p.checkArity(kind); err != nil {
		return err
	}
	switch kind {
	case KindCreateGame:
		if p.CreateGame.Mode > 1 {
			return fmt.Errorf("%w: mode must be 0 or 1", ErrInvalidPayload)
		}
		if p.CreateGame.Difficulty > 2 {
			return fmt.Errorf("%w: difficulty must be 0, 1 or 2", ErrInvalidPayload)
		}
	case KindMakeMove:
		mv := p.MakeMove
		if mv.SAN == "" || mv.FEN == "" || mv.MoveHash == "" {
			return fmt.Errorf("%w: san, fen and move_hash are required", ErrInvalidPayload)
		}
	case KindEndGame:
		eg := p.EndGame
		if eg.FinalFEN == "" {
			return fmt.Errorf("%w: final_fen is required", ErrInvalidPayload)
		}
		valid := false
		for _, r := range GameResults {
			if eg.Result == r {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("%w: result must be one of %s", ErrInvalidPayload, strings.Join(GameResults, ", "))
		}
	case KindMintBadge:
		mb := p.MintBadge
		if mb.RecipientAddress == "" || mb.BadgeType == "" || mb.Name == "" {
			return fmt.Errorf("%w: recipient_address, badge_type and name are required", ErrInvalidPayload)
		}
		u, err := url.Parse(mb.SourceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: source_url must be a URL", ErrInvalidPayload)
		}
	}
	return nil
}

func (p Payload) checkArity(kind Kind) error {
	set := 0
	for _, ok := range []bool{p.CreateGame != nil, p.MakeMove != nil, p.EndGame != nil, p.MintBadge != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one variant must be set, got %d", ErrInvalidPayload, set)
	}
	var match bool
	switch kind {
	case KindCreateGame:
		match = p.CreateGame != nil
	case KindMakeMove:
		match = p.MakeMove != nil
	case KindEndGame:
		match = p.EndGame != nil
	case KindMintBadge:
		match = p.MintBadge != nil
	}
	if !match {
		return fmt.Errorf("%w: variant does not match kind %q", ErrInvalidPayload, kind)
	}
	return nil
}

// GameObjectID returns the parent game object id for kinds that reference one.
func (p Payload) GameObjectID() (string, bool) {
	switch {
	case p.MakeMove != nil:
		return p.MakeMove.GameObjectID, true
	case p.EndGame != nil:
		return p.EndGame.GameObjectID, true
	default:
		return "", false
	}
}

// SetGameObjectID writes the parent game object id into the active variant.
func (p *Payload) SetGameObjectID(objectID string) bool {
	switch {
	case p.MakeMove != nil:
		p.MakeMove.GameObjectID = objectID
		return true
	case p.EndGame != nil:
		p.EndGame.GameObjectID = objectID
		return true
	default:
		return false
	}
}

// Encode serializes the variant matching kind for durable storage.
func (p Payload) Encode(kind Kind) ([]byte, error) {
	if err := p.checkArity(kind); err != nil {
		return nil, err
	}
	var v any
	switch kind {
	case KindCreateGame:
		v = p.CreateGame
	case KindMakeMove:
		v = p.MakeMove
	case KindEndGame:
		v = p.EndGame
	case KindMintBadge:
		v = p.MintBadge
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, kind)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("intent: encode payload: %w", err)
	}
	return b, nil
}

// DecodePayload parses a stored payload back into its kind's variant and
// validates the shape. Enum and URL checks are intentionally not re-applied on
// read: rows enqueued before a rule change must stay processable.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	var p Payload
	var err error
	switch kind {
	case KindCreateGame:
		var v CreateGamePayload
		err = json.Unmarshal(raw, &v)
		p.CreateGame = &v
	case KindMakeMove:
		var v MakeMovePayload
		err = json.Unmarshal(raw, &v)
		p.MakeMove = &v
	case KindEndGame:
		var v EndGamePayload
		err = json.Unmarshal(raw, &v)
		p.EndGame = &v
	case KindMintBadge:
		var v MintBadgePayload
		err = json.Unmarshal(raw, &v)
		p.MintBadge = &v
	default:
		return Payload{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, kind)
	}
	if err != nil {
		return Payload{}, fmt.Errorf("%w: decode %s payload: %v", ErrInvalidPayload, kind, err)
	}
	return p, nil
}

func clonePayload(p Payload) Payload {
	var out Payload
	if p.CreateGame != nil {
		v := *p.CreateGame
		out.CreateGame = &v
	}
	if p.MakeMove != nil {
		v := *p.MakeMove
		out.MakeMove = &v
	}
	if p.EndGame != nil {
		v := *p.EndGame
		out.EndGame = &v
	}
	if p.MintBadge != nil {
		v := *p.MintBadge
		out.MintBadge = &v
	}
	return out
}

// Clone returns a deep copy safe to mutate.
func (it Intent) Clone() Intent {
	it.Payload = clonePayload(it.Payload)
	return it
}
