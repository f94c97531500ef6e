package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chesskite/chesskite-relay/internal/intent"
)

func newTestHandler(t *testing.T) (*Handler, *intent.MemoryStore) {
	t.Helper()

	now := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	queue := intent.NewMemoryStore(now)
	h, err := NewHandler(Config{Now: now}, queue, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, queue
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Timestamp == "" {
		t.Fatalf("body: %+v", body)
	}
}

func TestQueueRowLookup(t *testing.T) {
	t.Parallel()

	h, queue := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	_, _, err := queue.Enqueue(context.Background(), intent.Intent{
		ID:    "t1",
		Kind:  intent.KindMakeMove,
		Actor: "0xA",
		Payload: intent.Payload{MakeMove: &intent.MakeMovePayload{
			GameObjectID: "0xg", SAN: "e4", FEN: "fen", MoveHash: "h",
		}},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	resp, err := http.Get(srv.URL + "/queue/t1")
	if err != nil {
		t.Fatalf("GET /queue/t1: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	var row queueRowResponse
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row.ID != "t1" || row.Status != string(intent.StatusPending) || row.Actor != "0xA" {
		t.Fatalf("row: %+v", row)
	}

	missing, err := http.Get(srv.URL + "/queue/none")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status: got %d", missing.StatusCode)
	}
}
