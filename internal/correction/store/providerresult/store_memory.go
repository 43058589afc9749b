package providerresult

import (
	"context"
	"sync"
	"time"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// InMemoryStore mirrors the postgres log for tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	results []models.ProviderResult
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, result models.ProviderResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	result.ID = s.nextID
	if result.CreationDate.IsZero() {
		result.CreationDate = time.Now().UTC()
	}
	s.results = append(s.results, result)
	return nil
}

func (s *InMemoryStore) Latest(_ context.Context, provider id.ProviderName, shareID id.ShareID) (*models.ProviderResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.results) - 1; i >= 0; i-- {
		r := s.results[i]
		if r.ProviderName == provider && r.ShareID == shareID {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

// Count is a test hook.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
