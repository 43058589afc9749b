// Package service orchestrates address correction: validation, quota-gated
// provider calls, canonical saves and notification fan-out.
package service

import (
	"context"
	"log/slog"
	"time"

	"simba/internal/correction/metrics"
	"simba/internal/correction/ports"
	id "simba/pkg/domain"
)

// ClientResolver maps a configured provider name to its client. The provider
// registry satisfies it; tests plug in stubs.
type ClientResolver interface {
	Client(name id.ProviderName) (ports.ProviderClient, error)
}

// Service is the correction orchestrator.
type Service struct {
	addresses  ports.AddressStore
	configs    ports.ConfigStore
	results    ports.ProviderResultStore
	access     ports.AccessStore
	quota      ports.QuotaLedger
	clients    ClientResolver
	dispatcher ports.Dispatcher

	logger      *slog.Logger
	metrics     *metrics.Metrics
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics attaches the correction metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCallTimeout bounds each external provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.callTimeout = d
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New wires the orchestrator. Metrics are optional; all other collaborators
// are required.
func New(
	addresses ports.AddressStore,
	configs ports.ConfigStore,
	results ports.ProviderResultStore,
	access ports.AccessStore,
	quota ports.QuotaLedger,
	clients ClientResolver,
	dispatcher ports.Dispatcher,
	opts ...Option,
) *Service {
	s := &Service{
		addresses:   addresses,
		configs:     configs,
		results:     results,
		access:      access,
		quota:       quota,
		clients:     clients,
		dispatcher:  dispatcher,
		logger:      slog.Default(),
		callTimeout: 10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) notify(originalShareID id.ShareID) {
	// Fire-and-forget with a fresh context: a save already committed must
	// notify even when the request context is gone.
	if err := s.dispatcher.Enqueue(context.Background(), originalShareID); err != nil {
		s.logger.Error("enqueue notification", "original_share_id", originalShareID, "error", err)
		return
	}
	s.metrics.IncrementNotification()
}
