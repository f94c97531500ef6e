package intent

import (
	"errors"
	"testing"
)

func validMintPayload() Payload {
	return Payload{MintBadge: &MintBadgePayload{
		RecipientAddress: "0xA",
		BadgeType:        "first_win",
		Name:             "First Win",
		Description:      "Won a first game.",
		SourceURL:        "https://badges.example.com/first_win.png",
	}}
}

func TestPayloadValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    Kind
		payload Payload
		wantErr bool
	}{
		{
			name:    "create game ok",
			kind:    KindCreateGame,
			payload: Payload{CreateGame: &CreateGamePayload{Mode: 1, Difficulty: 2}},
		},
		{
			name:    "create game bad mode",
			kind:    KindCreateGame,
			payload: Payload{CreateGame: &CreateGamePayload{Mode: 2}},
			wantErr: true,
		},
		{
			name:    "create game bad difficulty",
			kind:    KindCreateGame,
			payload: Payload{CreateGame: &CreateGamePayload{Difficulty: 3}},
			wantErr: true,
		},
		{
			name: "make move ok",
			kind: KindMakeMove,
			payload: Payload{MakeMove: &MakeMovePayload{
				GameObjectID: "0xg", SAN: "e4", FEN: "fen", MoveHash: "h",
			}},
		},
		{
			name:    "make move missing san",
			kind:    KindMakeMove,
			payload: Payload{MakeMove: &MakeMovePayload{FEN: "fen", MoveHash: "h"}},
			wantErr: true,
		},
		{
			name: "end game ok",
			kind: KindEndGame,
			payload: Payload{EndGame: &EndGamePayload{
				GameObjectID: "0xg", Winner: "0xA", Result: "1-0", FinalFEN: "fen",
			}},
		},
		{
			name: "end game draw without winner",
			kind: KindEndGame,
			payload: Payload{EndGame: &EndGamePayload{
				GameObjectID: "0xg", Result: "1/2-1/2", FinalFEN: "fen",
			}},
		},
		{
			name: "end game bad result",
			kind: KindEndGame,
			payload: Payload{EndGame: &EndGamePayload{
				GameObjectID: "0xg", Result: "2-0", FinalFEN: "fen",
			}},
			wantErr: true,
		},
		{
			name:    "mint badge ok",
			kind:    KindMintBadge,
			payload: validMintPayload(),
		},
		{
			name: "mint badge bad url",
			kind: KindMintBadge,
			payload: Payload{MintBadge: &MintBadgePayload{
				RecipientAddress: "0xA", BadgeType: "b", Name: "n", SourceURL: "not a url",
			}},
			wantErr: true,
		},
		{
			name:    "variant mismatch",
			kind:    KindCreateGame,
			payload: validMintPayload(),
			wantErr: true,
		},
		{
			name:    "no variant",
			kind:    KindCreateGame,
			payload: Payload{},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.payload.Validate(tc.kind)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr && !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestPayloadEncodeDecode(t *testing.T) {
	t.Parallel()

	p := Payload{MakeMove: &MakeMovePayload{
		GameObjectID: "0xg", IsComputer: true, SAN: "Nf3", FEN: "fen", MoveHash: "h", GameID: "g1",
	}}

	raw, err := p.Encode(KindMakeMove)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := DecodePayload(KindMakeMove, raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.MakeMove == nil {
		t.Fatalf("expected make_move variant")
	}
	if *got.MakeMove != *p.MakeMove {
		t.Fatalf("round trip mismatch: got %+v want %+v", *got.MakeMove, *p.MakeMove)
	}

	if _, err := DecodePayload(KindMakeMove, []byte("{")); err == nil {
		t.Fatalf("expected error on malformed payload")
	}
}

func TestPayloadGameObjectID(t *testing.T) {
	t.Parallel()

	p := Payload{MakeMove: &MakeMovePayload{SAN: "e4", FEN: "f", MoveHash: "h"}}
	if id, ok := p.GameObjectID(); !ok || id != "" {
		t.Fatalf("expected empty object id, got %q ok=%v", id, ok)
	}
	if !p.SetGameObjectID("0xo") {
		t.Fatalf("SetGameObjectID failed")
	}
	if id, _ := p.GameObjectID(); id != "0xo" {
		t.Fatalf("object id: got %q want %q", id, "0xo")
	}

	badge := validMintPayload()
	if badge.SetGameObjectID("0xo") {
		t.Fatalf("mint badge payload must not accept a game object id")
	}
}

func TestIntentCloneIsDeep(t *testing.T) {
	t.Parallel()

	it := Intent{
		ID:      "t1",
		Kind:    KindMakeMove,
		Payload: Payload{MakeMove: &MakeMovePayload{SAN: "e4", FEN: "f", MoveHash: "h"}},
	}
	cp := it.Clone()
	cp.Payload.MakeMove.SAN = "d4"
	if it.Payload.MakeMove.SAN != "e4" {
		t.Fatalf("clone shares payload memory")
	}
}
