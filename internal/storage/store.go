package storage

import (
	"context"
	"sync"

	"narrative-server/internal/models"
)

// ProgressStore is the persistence collaborator: an opaque get/put document
// store holding one player record per player. Put is versioned so concurrent
// read-modify-write cycles for the same player serialize at this boundary
// instead of silently losing an update.
type ProgressStore interface {
	// Get returns the player record and the version token to pass back to
	// Put. models.ErrProgressNotFound when no record exists.
	Get(ctx context.Context, playerID string) (*models.Player, int64, error)
	// Put writes the whole record. version must match the stored version
	// (0 for a new record) or models.ErrVersionConflict is returned.
	Put(ctx context.Context, playerID string, p *models.Player, version int64) error
}

// MemoryStore is an in-process ProgressStore used by tests and local
// development.
type MemoryStore struct {
	mu       sync.RWMutex
	players  map[string]*models.Player
	versions map[string]int64
}

var _ ProgressStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:  make(map[string]*models.Player),
		versions: make(map[string]int64),
	}
}

func (s *MemoryStore) Get(ctx context.Context, playerID string) (*models.Player, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil, 0, models.ErrProgressNotFound
	}
	return clonePlayer(p), s.versions[playerID], nil
}

func (s *MemoryStore) Put(ctx context.Context, playerID string, p *models.Player, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[playerID] != version {
		return models.ErrVersionConflict
	}
	s.players[playerID] = clonePlayer(p)
	s.versions[playerID] = version + 1
	return nil
}

// clonePlayer deep-copies through JSON so callers cannot mutate stored state
// behind the store's back. The memory store is a test double; this keeps its
// semantics identical to the serializing backends.
func clonePlayer(p *models.Player) *models.Player {
	data, err := marshalPlayer(p)
	if err != nil {
		// The player document is plain data; marshalling cannot fail for
		// records the engine constructs.
		panic(err)
	}
	clone, err := unmarshalPlayer(data)
	if err != nil {
		panic(err)
	}
	return clone
}
