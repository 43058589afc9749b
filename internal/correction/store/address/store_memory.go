package address

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// InMemoryStore mirrors the postgres store for unit tests and local runs.
// Upserts happen under one lock, which gives the same first-committer-wins
// behavior the database provides through ON CONFLICT.
type InMemoryStore struct {
	mu        sync.RWMutex
	addresses map[id.ShareID]models.Address
	mappings  map[id.ShareID]models.Mapping
}

// NewInMemory creates an empty in-memory address store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		addresses: make(map[id.ShareID]models.Address),
		mappings:  make(map[id.ShareID]models.Mapping),
	}
}

func (s *InMemoryStore) GetCorrected(_ context.Context, originalShareID id.ShareID) (*models.CorrectedAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[originalShareID]
	if !ok || m.ToDelete {
		return nil, nil
	}
	addr, ok := s.addresses[m.NewShareID]
	if !ok {
		return nil, nil
	}
	return &models.CorrectedAddress{OriginalShareID: originalShareID, Address: addr}, nil
}

// LiveOriginals lists the original share ids with a live mapping, sorted.
// The tracker's untracked-corrections sweep consumes it.
func (s *InMemoryStore) LiveOriginals(_ context.Context) ([]id.ShareID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []id.ShareID
	for originalID, m := range s.mappings {
		if !m.ToDelete {
			out = append(out, originalID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *InMemoryStore) GetCorrectedBatch(_ context.Context, originalShareIDs []id.ShareID) (map[id.ShareID]models.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[id.ShareID]models.Address, len(originalShareIDs))
	for _, originalID := range originalShareIDs {
		m, ok := s.mappings[originalID]
		if !ok || m.ToDelete {
			continue
		}
		if addr, ok := s.addresses[m.NewShareID]; ok {
			result[originalID] = addr
		}
	}
	return result, nil
}

func (s *InMemoryStore) Save(_ context.Context, originalShareID id.ShareID, addr models.Address, userID string) (*models.CorrectedAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertAddressLocked(addr, userID)
	s.upsertMappingLocked(originalShareID, addr.ShareID, userID)

	saved := s.addresses[addr.ShareID]
	return &models.CorrectedAddress{OriginalShareID: originalShareID, Address: saved}, nil
}

func (s *InMemoryStore) SaveMultiple(_ context.Context, addr models.Address, originalShareIDs []id.ShareID, userID string) ([]models.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertAddressLocked(addr, userID)
	results := make([]models.SaveResult, 0, len(originalShareIDs))
	for _, originalID := range originalShareIDs {
		s.upsertMappingLocked(originalID, addr.ShareID, userID)
		results = append(results, models.SaveResult{OriginalShareID: originalID})
	}
	return results, nil
}

func (s *InMemoryStore) upsertAddressLocked(addr models.Address, userID string) {
	now := time.Now()
	if existing, ok := s.addresses[addr.ShareID]; ok {
		addr.CreationUser = existing.CreationUser
		addr.CreationDate = existing.CreationDate
	} else {
		addr.CreationUser = userID
		addr.CreationDate = now
	}
	addr.LastUpdatedUser = userID
	addr.LastUpdatedDate = now
	s.addresses[addr.ShareID] = addr
}

func (s *InMemoryStore) upsertMappingLocked(originalID, newID id.ShareID, userID string) {
	now := time.Now()
	if existing, ok := s.mappings[originalID]; ok {
		existing.NewShareID = newID
		existing.LastUpdatedUser = userID
		existing.LastUpdatedDate = now
		existing.ToDelete = false
		s.mappings[originalID] = existing
		return
	}
	s.mappings[originalID] = models.Mapping{
		OriginalShareID: originalID,
		NewShareID:      newID,
		CreationUser:    userID,
		LastUpdatedUser: userID,
		CreationDate:    now,
		LastUpdatedDate: now,
	}
}

func (s *InMemoryStore) SoftDelete(_ context.Context, originalShareID id.ShareID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[originalShareID]
	if !ok || m.ToDelete {
		return false, nil
	}
	m.ToDelete = true
	m.LastUpdatedDate = time.Now()
	s.mappings[originalShareID] = m
	return true, nil
}

// AddressExists reports whether the canonical address row is still present.
// Test hook for soft-delete semantics.
func (s *InMemoryStore) AddressExists(shareID id.ShareID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.addresses[shareID]
	return ok
}

// AddressCount reports the number of canonical address rows. Test hook for
// merge semantics.
func (s *InMemoryStore) AddressCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addresses)
}

// FindSimilar approximates the pg_trgm search with a trigram similarity over
// city, company and postal code. Same thresholds as the SQL: one field above
// 0.8, best average wins.
func (s *InMemoryStore) FindSimilar(_ context.Context, candidate models.Address) (*models.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		addr models.Address
		avg  float64
	}
	var matches []scored
	for _, addr := range s.addresses {
		if addr.CountryCode != candidate.CountryCode {
			continue
		}
		city := trigramSimilarity(addr.CityName, candidate.CityName)
		company := trigramSimilarity(addr.CompanyName, candidate.CompanyName)
		postal := trigramSimilarity(addr.PostalCode, candidate.PostalCode)
		if city > 0.8 || company > 0.8 || postal > 0.8 {
			matches = append(matches, scored{addr: addr, avg: (city + company + postal) / 3})
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].avg != matches[j].avg {
			return matches[i].avg > matches[j].avg
		}
		return matches[i].addr.ShareID < matches[j].addr.ShareID
	})
	best := matches[0].addr
	return &best, nil
}

// trigramSimilarity mimics pg_trgm: shared trigrams over the union, on
// lower-cased padded strings.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if tb[t] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func trigrams(s string) map[string]bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	padded := "  " + s + " "
	out := make(map[string]bool)
	for i := 0; i+3 <= len(padded); i++ {
		out[padded[i:i+3]] = true
	}
	return out
}

func (s *InMemoryStore) SearchByCriteria(_ context.Context, criteria models.Address) (*models.CorrectedAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.CorrectedAddress
	var bestUpdated time.Time
	for originalID, m := range s.mappings {
		if m.ToDelete {
			continue
		}
		addr, ok := s.addresses[m.NewShareID]
		if !ok {
			continue
		}
		if addr.CountryCode != criteria.CountryCode || addr.PostalCode != criteria.PostalCode {
			continue
		}
		if criteria.CityName != "" && !strings.Contains(addr.CityName, criteria.CityName) {
			continue
		}
		if criteria.StreetLine1 != "" && !strings.Contains(addr.StreetLine1, criteria.StreetLine1) {
			continue
		}
		if criteria.CompanyName != "" && !strings.Contains(addr.CompanyName, criteria.CompanyName) {
			continue
		}
		if criteria.ContactName != "" && !strings.Contains(addr.ContactName, criteria.ContactName) {
			continue
		}
		if best == nil || addr.LastUpdatedDate.After(bestUpdated) {
			best = &models.CorrectedAddress{OriginalShareID: originalID, Address: addr}
			bestUpdated = addr.LastUpdatedDate
		}
	}
	return best, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]models.CorrectedAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CorrectedAddress
	for originalID, m := range s.mappings {
		if addr, ok := s.addresses[m.NewShareID]; ok {
			out = append(out, models.CorrectedAddress{OriginalShareID: originalID, Address: addr})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalShareID < out[j].OriginalShareID })
	return out, nil
}

func (s *InMemoryStore) MissingAEFSData(_ context.Context, limit int) ([]models.Address, error) {
	return s.listWhere(limit, func(a models.Address) bool { return a.AEFSGeocodeRank == nil })
}

func (s *InMemoryStore) MissingStreetSide(_ context.Context, limit int) ([]models.Address, error) {
	return s.listWhere(limit, func(a models.Address) bool { return a.StreetSide == "" })
}

func (s *InMemoryStore) MissingCorrectedBy(_ context.Context, limit int) ([]models.Address, error) {
	return s.listWhere(limit, func(a models.Address) bool { return a.CorrectedBy == "" })
}

func (s *InMemoryStore) listWhere(limit int, match func(models.Address) bool) ([]models.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Address
	for _, addr := range s.addresses {
		if match(addr) {
			out = append(out, addr)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
