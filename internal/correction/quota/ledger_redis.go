// Package quota enforces daily external-call budgets per provider and
// country. Admission is check-and-increment in one atomic step so concurrent
// callers can never jointly exceed a ceiling.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"simba/internal/correction/models"
	"simba/internal/correction/ports"
	id "simba/pkg/domain"
)

const (
	correctionKeyPrefix = "quota:corr:"
	globalKeyPrefix     = "quota:global:"
	searchBarKeyPrefix  = "quota:search:"
)

// consumeScript increments the day counter only while it is below the
// ceiling. A negative ceiling means unlimited; the counter still advances so
// usage reporting stays accurate. The key expires at the next UTC midnight.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if limit >= 0 and current >= limit then
	return 0
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('EXPIREAT', KEYS[1], tonumber(ARGV[2]))
end
return 1
`)

// consumePairScript admits a call only while both the per-country and the
// provider-wide day counters sit below their ceilings. Both checks run before
// either INCR, so a denial leaves both counters untouched.
var consumePairScript = redis.NewScript(`
local country = tonumber(redis.call('GET', KEYS[1]) or '0')
local global = tonumber(redis.call('GET', KEYS[2]) or '0')
local countryLimit = tonumber(ARGV[1])
local globalLimit = tonumber(ARGV[2])
if countryLimit >= 0 and country >= countryLimit then
	return 0
end
if globalLimit >= 0 and global >= globalLimit then
	return 0
end
local expireAt = tonumber(ARGV[3])
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('EXPIREAT', KEYS[1], expireAt)
end
local g = redis.call('INCR', KEYS[2])
if g == 1 then
	redis.call('EXPIREAT', KEYS[2], expireAt)
end
return 1
`)

// RedisLedger is the production quota ledger. Counters roll over at UTC
// midnight because the key embeds the UTC day.
type RedisLedger struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// RedisLedgerOption configures a RedisLedger.
type RedisLedgerOption func(*RedisLedger)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) RedisLedgerOption {
	return func(l *RedisLedger) {
		l.logger = logger
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) RedisLedgerOption {
	return func(l *RedisLedger) {
		l.now = now
	}
}

// NewRedisLedger constructs a Redis-backed quota ledger.
func NewRedisLedger(client *redis.Client, opts ...RedisLedgerOption) *RedisLedger {
	l := &RedisLedger{
		client: client,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// TryConsume admits one auto-correction call for the provider/country pair.
// Both the per-country budget and the provider-wide max_global_calls budget
// must have headroom. A Denied verdict with a nil error means a budget is
// exhausted; any ledger failure also denies (fail closed) and surfaces the
// error.
func (l *RedisLedger) TryConsume(ctx context.Context, provider models.Provider, cfg models.ProviderConfig) (ports.Decision, error) {
	countryKey := l.correctionKey(provider.Name, cfg.CountryCode)
	globalKey := l.globalKey(provider.Name)
	expireAt := nextUTCMidnight(l.now()).Unix()
	res, err := consumePairScript.Run(ctx, l.client,
		[]string{countryKey, globalKey},
		cfg.MaxCallsPerCountry, provider.MaxGlobalCalls, expireAt).Int()
	if err != nil {
		l.logger.Error("quota ledger unavailable, denying call", "key", countryKey, "error", err)
		return ports.Denied, fmt.Errorf("consume quota: %w", err)
	}
	if res == 0 {
		return ports.Denied, nil
	}
	return ports.Allowed, nil
}

// TryConsumeSearchBar admits one manual search-bar call against the
// provider-wide daily budget.
func (l *RedisLedger) TryConsumeSearchBar(ctx context.Context, provider models.Provider) (ports.Decision, error) {
	key := l.searchBarKey(provider.Name)
	return l.consume(ctx, key, provider.MaxSearchBarCalls)
}

func (l *RedisLedger) consume(ctx context.Context, key string, limit int) (ports.Decision, error) {
	expireAt := nextUTCMidnight(l.now()).Unix()
	res, err := consumeScript.Run(ctx, l.client, []string{key}, limit, expireAt).Int()
	if err != nil {
		l.logger.Error("quota ledger unavailable, denying call", "key", key, "error", err)
		return ports.Denied, fmt.Errorf("consume quota: %w", err)
	}
	if res == 0 {
		return ports.Denied, nil
	}
	return ports.Allowed, nil
}

// Usage reports the calls recorded today for a provider/country pair.
func (l *RedisLedger) Usage(ctx context.Context, provider id.ProviderName, country id.CountryCode) (int, error) {
	key := l.correctionKey(provider, country)
	n, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota usage: %w", err)
	}
	return n, nil
}

func (l *RedisLedger) correctionKey(provider id.ProviderName, country id.CountryCode) string {
	return fmt.Sprintf("%s%s:%s:%s", correctionKeyPrefix, provider, country, l.day())
}

func (l *RedisLedger) globalKey(provider id.ProviderName) string {
	return fmt.Sprintf("%s%s:%s", globalKeyPrefix, provider, l.day())
}

func (l *RedisLedger) searchBarKey(provider id.ProviderName) string {
	return fmt.Sprintf("%s%s:%s", searchBarKeyPrefix, provider, l.day())
}

func (l *RedisLedger) day() string {
	return l.now().UTC().Format("2006-01-02")
}

func nextUTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
