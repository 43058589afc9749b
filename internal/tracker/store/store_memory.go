package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"simba/internal/tracker/models"
	id "simba/pkg/domain"
)

// MappingSource exposes the live original share ids so the in-memory store
// can run the untracked-corrections anti-join without a database.
type MappingSource interface {
	LiveOriginals(ctx context.Context) ([]id.ShareID, error)
}

// InMemoryStore mirrors the postgres tracker store for unit tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[models.Key]models.Request
	nextID   int64
	mappings MappingSource
	now      func() time.Time
}

// NewInMemory creates an empty in-memory tracker store. mappings may be nil;
// SavedWithoutAnyRequest then reports nothing.
func NewInMemory(mappings MappingSource) *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[models.Key]models.Request),
		nextID:   1,
		mappings: mappings,
		now:      time.Now,
	}
}

// WithClock replaces the timestamp source.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Upsert(_ context.Context, rec models.Request) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(rec), nil
}

func (s *InMemoryStore) upsertLocked(rec models.Request) *models.Request {
	key := rec.Key()
	now := s.now()
	if existing, ok := s.requests[key]; ok {
		rec.ID = existing.ID
		rec.CreatedDatetime = existing.CreatedDatetime
	} else {
		rec.ID = s.nextID
		s.nextID++
		rec.CreatedDatetime = now
	}
	rec.UpdatedDatetime = now
	s.requests[key] = rec
	saved := rec
	return &saved
}

func (s *InMemoryStore) BulkUpsert(_ context.Context, recs []models.Request) ([]models.Request, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]models.Request, len(recs))
	errs := make([]error, len(recs))
	for i := range recs {
		saved[i] = *s.upsertLocked(recs[i])
	}
	return saved, errs
}

func (s *InMemoryStore) MarkGenerated(_ context.Context, keys []models.Key, outputDatetime time.Time, outputMessageRaw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		r, ok := s.requests[key]
		if !ok {
			continue
		}
		r.Generated = true
		at := outputDatetime
		r.OutputDatetime = &at
		r.OutputMessageRaw = outputMessageRaw
		r.UpdatedDatetime = s.now()
		s.requests[key] = r
	}
	return nil
}

func (s *InMemoryStore) MarkSent(_ context.Context, keys []models.Key, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		r, ok := s.requests[key]
		if !ok {
			continue
		}
		r.Sent = true
		sentAt := at
		r.SentDatetime = &sentAt
		r.UpdatedDatetime = s.now()
		s.requests[key] = r
	}
	return nil
}

func (s *InMemoryStore) ByShareID(_ context.Context, shareID id.ShareID) ([]models.Request, error) {
	return s.filter(func(r models.Request) bool {
		return r.ShareID == shareID
	}), nil
}

func (s *InMemoryStore) ByShareIDAndRequesters(_ context.Context, shareID id.ShareID, requesters []id.Requester) ([]models.Request, error) {
	wanted := make(map[id.Requester]bool, len(requesters))
	for _, r := range requesters {
		wanted[r] = true
	}
	return s.filter(func(r models.Request) bool {
		return r.ShareID == shareID && wanted[r.Requester]
	}), nil
}

func (s *InMemoryStore) NotGenerated(_ context.Context, shareID id.ShareID, requester id.Requester) ([]models.Request, error) {
	return s.filter(func(r models.Request) bool {
		return r.ShareID == shareID && r.Requester == requester && !r.Generated
	}), nil
}

func (s *InMemoryStore) GeneratedNotSent(_ context.Context, shareID id.ShareID, requester id.Requester) ([]models.Request, error) {
	return s.filter(func(r models.Request) bool {
		return r.ShareID == shareID && r.Requester == requester && r.Generated && !r.Sent
	}), nil
}

func (s *InMemoryStore) PendingOutputNotSent(_ context.Context, limit int) ([]models.Pending, error) {
	matches := s.filter(func(r models.Request) bool {
		return r.Generated && !r.Sent
	})
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].UpdatedDatetime.Before(matches[j].UpdatedDatetime)
	})
	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	pending := make([]models.Pending, len(matches))
	for i, r := range matches {
		pending[i] = models.Pending{ShareID: r.ShareID, Requester: r.Requester}
	}
	return pending, nil
}

func (s *InMemoryStore) SavedNotGenerated(ctx context.Context, limit int) ([]models.Pending, error) {
	if s.mappings == nil {
		return nil, nil
	}
	originals, err := s.mappings.LiveOriginals(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[id.ShareID]bool, len(originals))
	for _, shareID := range originals {
		live[shareID] = true
	}

	matches := s.filter(func(r models.Request) bool {
		return !r.Generated && live[r.ShareID]
	})
	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	pending := make([]models.Pending, len(matches))
	for i, r := range matches {
		pending[i] = models.Pending{ShareID: r.ShareID, Requester: r.Requester}
	}
	return pending, nil
}

func (s *InMemoryStore) SavedWithoutAnyRequest(ctx context.Context, limit int) ([]id.ShareID, error) {
	if s.mappings == nil {
		return nil, nil
	}
	originals, err := s.mappings.LiveOriginals(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	tracked := make(map[id.ShareID]bool, len(s.requests))
	for _, r := range s.requests {
		tracked[r.ShareID] = true
	}
	s.mu.RUnlock()

	var out []id.ShareID
	for _, shareID := range originals {
		if tracked[shareID] {
			continue
		}
		out = append(out, shareID)
		if limit >= 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests), nil
}

func (s *InMemoryStore) DeleteByIDs(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[int64]bool, len(ids))
	for _, recID := range ids {
		doomed[recID] = true
	}
	for key, r := range s.requests {
		if doomed[r.ID] {
			delete(s.requests, key)
		}
	}
	return nil
}

func (s *InMemoryStore) filter(keep func(models.Request) bool) []models.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Request
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
