package gamestore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore models the relational tables and views in memory for unit tests.
// Eligibility views are derived from the recorded game/victory state.
type MemoryStore struct {
	mu sync.Mutex

	players       map[string]Player // by address
	gameObjectIDs map[string]string // gameRef -> objectID
	rewards       map[string]map[string]Reward

	playedFirstGame  map[string]bool
	createdFirstGame map[string]bool
	victories        map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:          make(map[string]Player),
		gameObjectIDs:    make(map[string]string),
		rewards:          make(map[string]map[string]Reward),
		playedFirstGame:  make(map[string]bool),
		createdFirstGame: make(map[string]bool),
		victories:        make(map[string]int),
	}
}

// AddPlayer seeds a player row.
func (s *MemoryStore) AddPlayer(p Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.SuiAddress] = p
}

// SetHistory seeds the view inputs for a player.
func (s *MemoryStore) SetHistory(playerRef string, played, created bool, victories int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playedFirstGame[playerRef] = played
	s.createdFirstGame[playerRef] = created
	s.victories[playerRef] = victories
}

// GameObjectID reports the recorded object id for a game ref.
func (s *MemoryStore) GameObjectID(gameRef string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.gameObjectIDs[gameRef]
	return id, ok
}

func (s *MemoryStore) PlayerByAddress(_ context.Context, address string) (Player, error) {
	if address == "" {
		return Player{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[address]
	if !ok {
		return Player{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) SetGameObjectID(_ context.Context, gameRef, objectID string) error {
	if gameRef == "" || objectID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gameObjectIDs[gameRef] = objectID
	return nil
}

func (s *MemoryStore) UpsertReward(_ context.Context, playerRef, badgeType, objectID string) error {
	if playerRef == "" || badgeType == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byType, ok := s.rewards[playerRef]
	if !ok {
		byType = make(map[string]Reward)
		s.rewards[playerRef] = byType
	}
	byType[badgeType] = Reward{PlayerID: playerRef, BadgeType: badgeType, ObjectID: objectID}
	return nil
}

func (s *MemoryStore) HasReward(_ context.Context, playerRef, badgeType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.rewards[playerRef][badgeType]
	return ok, nil
}

func (s *MemoryStore) RewardTypes(_ context.Context, playerRef string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]string, 0, len(s.rewards[playerRef]))
	for t := range s.rewards[playerRef] {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

func (s *MemoryStore) InNoFirstGame(_ context.Context, playerRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.playedFirstGame[playerRef], nil
}

func (s *MemoryStore) InNoFirstGameCreated(_ context.Context, playerRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createdFirstGame[playerRef], nil
}

func (s *MemoryStore) Victories(_ context.Context, playerRef string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.victories[playerRef], nil
}

var _ Store = (*MemoryStore)(nil)
