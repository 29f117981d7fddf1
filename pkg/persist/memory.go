package persist

import (
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for tests.
type MemoryStore struct {
	mu         sync.Mutex
	nodeUUID   uuid.UUID
	datasetIDs map[string]uuid.UUID
}

// NewMemoryStore creates an empty in-memory persistent state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{datasetIDs: make(map[string]uuid.UUID)}
}

func (s *MemoryStore) NodeUUID() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nodeUUID == uuid.Nil {
		s.nodeUUID = uuid.New()
	}
	return s.nodeUUID, nil
}

func (s *MemoryStore) DatasetIDFor(key string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.datasetIDs[key]; ok {
		return id, nil
	}
	id := uuid.New()
	s.datasetIDs[key] = id
	return id, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
