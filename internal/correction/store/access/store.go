// Package access records last-read timestamps for corrected addresses. The
// table feeds retention and usage reporting.
package access

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	id "simba/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Touch upserts the last access time for an original share id.
func (s *PostgresStore) Touch(ctx context.Context, originalShareID id.ShareID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO address_access (original_share_id, last_access_date)
		VALUES ($1, $2)
		ON CONFLICT (original_share_id) DO UPDATE SET
			last_access_date = EXCLUDED.last_access_date
	`, originalShareID, at)
	if err != nil {
		return fmt.Errorf("touch address access: %w", err)
	}
	return nil
}

// InMemoryStore mirrors the postgres store for tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	accessed map[id.ShareID]time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{accessed: make(map[id.ShareID]time.Time)}
}

func (s *InMemoryStore) Touch(_ context.Context, originalShareID id.ShareID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessed[originalShareID] = at
	return nil
}

// LastAccess is a test hook.
func (s *InMemoryStore) LastAccess(originalShareID id.ShareID) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.accessed[originalShareID]
	return at, ok
}
