//go:build integration

package quota_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"simba/internal/correction/models"
	"simba/internal/correction/ports"
	"simba/internal/correction/quota"
	"simba/pkg/testutil/containers"
)

type RedisLedgerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	ledger *quota.RedisLedger
}

func TestRedisLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLedgerSuite))
}

func (s *RedisLedgerSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.ledger = quota.NewRedisLedger(s.redis.Client)
}

func (s *RedisLedgerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func googleFR(maxCalls int) (models.Provider, models.ProviderConfig) {
	provider := models.Provider{Name: "GOOGLE", MaxSearchBarCalls: 10, MaxGlobalCalls: -1}
	cfg := models.ProviderConfig{
		CountryCode:        "FR",
		ProviderName:       "GOOGLE",
		MaxCallsPerCountry: maxCalls,
		MinGeocodeRank:     20,
		MaxGeocodeRank:     40,
	}
	return provider, cfg
}

// TestConcurrentConsumeHoldsCeiling is the property the Lua script exists
// for: under contention the counter never exceeds the daily limit.
func (s *RedisLedgerSuite) TestConcurrentConsumeHoldsCeiling() {
	ctx := context.Background()
	const goroutines = 100
	const limit = 25
	provider, cfg := googleFR(limit)

	var wg sync.WaitGroup
	var allowed, denied atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict, err := s.ledger.TryConsume(ctx, provider, cfg)
			s.NoError(err)
			if verdict == ports.Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(limit), allowed.Load())
	s.Equal(int32(goroutines-limit), denied.Load())

	used, err := s.ledger.Usage(ctx, "GOOGLE", "FR")
	s.Require().NoError(err)
	s.Equal(limit, used)
}

func (s *RedisLedgerSuite) TestUnlimitedNeverDenies() {
	ctx := context.Background()
	provider, cfg := googleFR(models.UnlimitedCalls)

	for i := 0; i < 50; i++ {
		verdict, err := s.ledger.TryConsume(ctx, provider, cfg)
		s.Require().NoError(err)
		s.Require().Equal(ports.Allowed, verdict)
	}
}

func (s *RedisLedgerSuite) TestGlobalCapBindsAcrossCountries() {
	ctx := context.Background()
	provider, frCfg := googleFR(models.UnlimitedCalls)
	provider.MaxGlobalCalls = 2
	deCfg := frCfg
	deCfg.CountryCode = "DE"

	verdict, err := s.ledger.TryConsume(ctx, provider, frCfg)
	s.Require().NoError(err)
	s.Equal(ports.Allowed, verdict)
	verdict, err = s.ledger.TryConsume(ctx, provider, deCfg)
	s.Require().NoError(err)
	s.Equal(ports.Allowed, verdict)

	verdict, err = s.ledger.TryConsume(ctx, provider, frCfg)
	s.Require().NoError(err)
	s.Equal(ports.Denied, verdict, "max_global_calls spans countries")

	used, err := s.ledger.Usage(ctx, "GOOGLE", "FR")
	s.Require().NoError(err)
	s.Equal(1, used, "global denial leaves the country counter alone")
}

func (s *RedisLedgerSuite) TestSearchBarBudgetIsSeparate() {
	ctx := context.Background()
	provider, cfg := googleFR(1)
	provider.MaxSearchBarCalls = 1

	verdict, err := s.ledger.TryConsume(ctx, provider, cfg)
	s.Require().NoError(err)
	s.Equal(ports.Allowed, verdict)
	verdict, err = s.ledger.TryConsume(ctx, provider, cfg)
	s.Require().NoError(err)
	s.Equal(ports.Denied, verdict, "correction budget exhausted")

	verdict, err = s.ledger.TryConsumeSearchBar(ctx, provider)
	s.Require().NoError(err)
	s.Equal(ports.Allowed, verdict, "search-bar budget untouched by correction calls")
}

func (s *RedisLedgerSuite) TestCountersResetAtUTCMidnight() {
	ctx := context.Background()
	provider, cfg := googleFR(1)

	day1 := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	ledger := quota.NewRedisLedger(s.redis.Client, quota.WithClock(func() time.Time { return day1 }))

	verdict, err := ledger.TryConsume(ctx, provider, cfg)
	s.Require().NoError(err)
	s.Equal(ports.Allowed, verdict)
	verdict, err = ledger.TryConsume(ctx, provider, cfg)
	s.Require().NoError(err)
	s.Equal(ports.Denied, verdict)

	day2 := day1.Add(2 * time.Minute)
	ledger = quota.NewRedisLedger(s.redis.Client, quota.WithClock(func() time.Time { return day2 }))

	verdict, err = ledger.TryConsume(ctx, provider, cfg)
	s.Require().NoError(err)
	s.Equal(ports.Allowed, verdict, "new UTC day keys a fresh counter")
}
