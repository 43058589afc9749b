package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"simba/internal/correction/models"
	"simba/internal/correction/ports"
	id "simba/pkg/domain"
)

// InMemoryLedger mirrors the redis ledger for tests and local runs. The same
// UTC-day keying applies, so advancing the injected clock past midnight
// resets every budget.
type InMemoryLedger struct {
	mu       sync.Mutex
	counters map[string]int
	now      func() time.Time
}

// InMemoryOption configures an InMemoryLedger.
type InMemoryOption func(*InMemoryLedger)

// WithMemoryClock overrides the wall clock, for tests.
func WithMemoryClock(now func() time.Time) InMemoryOption {
	return func(l *InMemoryLedger) {
		l.now = now
	}
}

// NewInMemory constructs an empty in-memory ledger.
func NewInMemory(opts ...InMemoryOption) *InMemoryLedger {
	l := &InMemoryLedger{
		counters: make(map[string]int),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *InMemoryLedger) TryConsume(_ context.Context, provider models.Provider, cfg models.ProviderConfig) (ports.Decision, error) {
	countryKey := l.correctionKey(provider.Name, cfg.CountryCode)
	globalKey := l.globalKey(provider.Name)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !cfg.InfiniteCalls() && l.counters[countryKey] >= cfg.MaxCallsPerCountry {
		return ports.Denied, nil
	}
	if !provider.InfiniteCalls() && l.counters[globalKey] >= provider.MaxGlobalCalls {
		return ports.Denied, nil
	}
	l.counters[countryKey]++
	l.counters[globalKey]++
	return ports.Allowed, nil
}

func (l *InMemoryLedger) TryConsumeSearchBar(_ context.Context, provider models.Provider) (ports.Decision, error) {
	return l.consume(l.searchBarKey(provider.Name), provider.MaxSearchBarCalls), nil
}

func (l *InMemoryLedger) consume(key string, limit int) ports.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit >= 0 && l.counters[key] >= limit {
		return ports.Denied
	}
	l.counters[key]++
	return ports.Allowed
}

func (l *InMemoryLedger) Usage(_ context.Context, provider id.ProviderName, country id.CountryCode) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[l.correctionKey(provider, country)], nil
}

func (l *InMemoryLedger) correctionKey(provider id.ProviderName, country id.CountryCode) string {
	return fmt.Sprintf("%s%s:%s:%s", correctionKeyPrefix, provider, country, l.day())
}

func (l *InMemoryLedger) globalKey(provider id.ProviderName) string {
	return fmt.Sprintf("%s%s:%s", globalKeyPrefix, provider, l.day())
}

func (l *InMemoryLedger) searchBarKey(provider id.ProviderName) string {
	return fmt.Sprintf("%s%s:%s", searchBarKeyPrefix, provider, l.day())
}

func (l *InMemoryLedger) day() string {
	return l.now().UTC().Format("2006-01-02")
}
