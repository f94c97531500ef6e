package intent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory queue intended for unit tests and single-process
// usage. It is safe for concurrent use.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	rows map[string]*memRow
	seq  uint64
}

type memRow struct {
	it  Intent
	seq uint64
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:  now,
		rows: make(map[string]*memRow),
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, it Intent) (Intent, bool, error) {
	if err := it.Validate(); err != nil {
		return Intent{}, false, err
	}
	if it.Status == "" {
		it.Status = StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rows[it.ID]; ok {
		return existing.it.Clone(), false, nil
	}

	now := s.now().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	s.seq++
	s.rows[it.ID] = &memRow{it: it.Clone(), seq: s.seq}
	return it, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return Intent{}, ErrNotFound
	}
	return r.it.Clone(), nil
}

func (s *MemoryStore) ClaimNext(_ context.Context, actor string) (Intent, bool, error) {
	if actor == "" {
		return Intent{}, false, fmt.Errorf("%w: missing actor", ErrInvalidIntent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A processing row for the actor blocks further claims.
	for _, r := range s.rows {
		if r.it.Actor == actor && r.it.Status == StatusProcessing {
			return Intent{}, false, nil
		}
	}

	var oldest *memRow
	for _, r := range s.rows {
		if r.it.Actor != actor || r.it.Status != StatusPending {
			continue
		}
		if oldest == nil || r.before(oldest) {
			oldest = r
		}
	}
	if oldest == nil {
		return Intent{}, false, nil
	}

	oldest.it.Status = StatusProcessing
	oldest.it.UpdatedAt = s.now().UTC()
	return oldest.it.Clone(), true, nil
}

func (r *memRow) before(other *memRow) bool {
	if !r.it.CreatedAt.Equal(other.it.CreatedAt) {
		return r.it.CreatedAt.Before(other.it.CreatedAt)
	}
	return r.seq < other.seq
}

func (s *MemoryStore) ListActiveActors(_ context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be > 0", ErrInvalidIntent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldestByActor := make(map[string]*memRow)
	for _, r := range s.rows {
		if r.it.Status != StatusPending || r.it.Actor == "" {
			continue
		}
		if cur, ok := oldestByActor[r.it.Actor]; !ok || r.before(cur) {
			oldestByActor[r.it.Actor] = r
		}
	}

	actors := make([]string, 0, len(oldestByActor))
	for a := range oldestByActor {
		actors = append(actors, a)
	}
	sort.Slice(actors, func(i, j int) bool {
		return oldestByActor[actors[i]].before(oldestByActor[actors[j]])
	})
	if len(actors) > limit {
		actors = actors[:limit]
	}
	return actors, nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, id string) error {
	return s.setStatus(id, StatusCompleted, "", true)
}

func (s *MemoryStore) MarkFailed(_ context.Context, id, errMsg string) error {
	return s.setStatus(id, StatusFailed, errMsg, true)
}

func (s *MemoryStore) RequeuePending(_ context.Context, id, errMsg string) error {
	return s.setStatus(id, StatusPending, errMsg, false)
}

func (s *MemoryStore) setStatus(id string, status Status, errMsg string, stampProcessed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now().UTC()
	r.it.Status = status
	r.it.Error = errMsg
	r.it.UpdatedAt = now
	if stampProcessed {
		r.it.ProcessedAt = now
	}
	return nil
}

func (s *MemoryStore) IncrementRetries(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return 0, ErrNotFound
	}
	r.it.Retries++
	r.it.UpdatedAt = s.now().UTC()
	return r.it.Retries, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, id)
	return nil
}

func (s *MemoryStore) ListWaitingForGame(_ context.Context, gameRef string) ([]Intent, error) {
	if gameRef == "" {
		return nil, fmt.Errorf("%w: missing game ref", ErrInvalidIntent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []*memRow
	for _, r := range s.rows {
		if r.it.Status == StatusWaitingForParentID && r.it.GameRef == gameRef {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].before(rows[j]) })

	out := make([]Intent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.it.Clone())
	}
	return out, nil
}

func (s *MemoryStore) UnblockWaiting(_ context.Context, id, objectID string) error {
	if objectID == "" {
		return fmt.Errorf("%w: missing object id", ErrInvalidIntent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if r.it.Status != StatusWaitingForParentID {
		return ErrNotWaiting
	}
	if !r.it.Payload.SetGameObjectID(objectID) {
		return fmt.Errorf("%w: kind %s has no game object id", ErrInvalidPayload, r.it.Kind)
	}
	r.it.Status = StatusPending
	r.it.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) ExistsReward(_ context.Context, actor, playerRef, badgeType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.it.Kind != KindMintBadge || r.it.Payload.MintBadge == nil {
			continue
		}
		switch r.it.Status {
		case StatusPending, StatusProcessing, StatusCompleted:
		default:
			continue
		}
		if r.it.Actor == actor && r.it.PlayerRef == playerRef && r.it.Payload.MintBadge.BadgeType == badgeType {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ReclaimStuck(_ context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: olderThan must be > 0", ErrInvalidIntent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-olderThan)
	n := 0
	for _, r := range s.rows {
		if r.it.Status == StatusProcessing && r.it.UpdatedAt.Before(cutoff) {
			r.it.Status = StatusPending
			r.it.UpdatedAt = s.now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GCOld(_ context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = DefaultGCAge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-olderThan)
	n := 0
	for id, r := range s.rows {
		if r.it.Status != StatusCompleted && r.it.Status != StatusFailed {
			continue
		}
		if r.it.UpdatedAt.Before(cutoff) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
