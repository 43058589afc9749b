// Package service orchestrates the correction-request lifecycle: intake,
// output generation from saved corrections, and the reprocessing sweep that
// drains generated-but-unsent requests.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	cmodels "simba/internal/correction/models"
	"simba/internal/tracker/models"
	"simba/internal/tracker/ports"
	id "simba/pkg/domain"
	dErrors "simba/pkg/domain-errors"
)

// CorrectedSource reads the corrected address for an original share id.
// The correction module's address store satisfies it.
type CorrectedSource interface {
	GetCorrected(ctx context.Context, originalShareID id.ShareID) (*cmodels.CorrectedAddress, error)
}

const (
	defaultSweepLimit   = 500
	defaultSweepWorkers = 8
)

// Service coordinates the request store, the corrected-address source and
// the downstream sender.
type Service struct {
	store     ports.RequestStore
	corrected CorrectedSource
	sender    Sender

	logger     *slog.Logger
	now        func() time.Time
	sweepLimit int
	workers    int
}

// Option configures optional service behavior.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSweepLimit bounds how many rows each sweep query fetches.
func WithSweepLimit(limit int) Option {
	return func(s *Service) { s.sweepLimit = limit }
}

// WithSweepWorkers bounds sweep concurrency.
func WithSweepWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// New creates the tracker service.
func New(store ports.RequestStore, corrected CorrectedSource, sender Sender, opts ...Option) *Service {
	s := &Service{
		store:      store,
		corrected:  corrected,
		sender:     sender,
		logger:     slog.Default(),
		now:        time.Now,
		sweepLimit: defaultSweepLimit,
		workers:    defaultSweepWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validate(rec *models.Request) error {
	switch {
	case rec.ParcelID == "":
		return dErrors.New(dErrors.CodeInvalidInput, "parcel_id is required")
	case rec.ShareID == "":
		return dErrors.New(dErrors.CodeInvalidInput, "share_id is required")
	case rec.Requester == "":
		return dErrors.New(dErrors.CodeInvalidInput, "requester is required")
	}
	return nil
}

// Track records one inbound request, replacing any prior row with the same
// (parcel_id, share_id, requester) identity.
func (s *Service) Track(ctx context.Context, rec models.Request) (*models.Request, error) {
	if err := validate(&rec); err != nil {
		return nil, err
	}
	saved, err := s.store.Upsert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("track request: %w", err)
	}
	return saved, nil
}

// TrackBatch records many requests. Each slot either holds the persisted row
// or its error; one bad record never aborts the batch.
func (s *Service) TrackBatch(ctx context.Context, recs []models.Request) ([]models.Request, []error) {
	saved := make([]models.Request, len(recs))
	errs := make([]error, len(recs))

	valid := make([]models.Request, 0, len(recs))
	slots := make([]int, 0, len(recs))
	for i := range recs {
		if err := validate(&recs[i]); err != nil {
			errs[i] = err
			continue
		}
		valid = append(valid, recs[i])
		slots = append(slots, i)
	}

	rows, rowErrs := s.store.BulkUpsert(ctx, valid)
	for j, i := range slots {
		if rowErrs[j] != nil {
			errs[i] = rowErrs[j]
			continue
		}
		saved[i] = rows[j]
	}
	return saved, errs
}

// Requests lists every tracked request for a share id.
func (s *Service) Requests(ctx context.Context, shareID id.ShareID) ([]models.Request, error) {
	return s.store.ByShareID(ctx, shareID)
}

// RequestsForRequesters narrows Requests to the given requesters.
func (s *Service) RequestsForRequesters(ctx context.Context, shareID id.ShareID, requesters []id.Requester) ([]models.Request, error) {
	return s.store.ByShareIDAndRequesters(ctx, shareID, requesters)
}

// Count returns the total number of tracked requests.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// Delete removes tracked requests by row id.
func (s *Service) Delete(ctx context.Context, ids []int64) error {
	return s.store.DeleteByIDs(ctx, ids)
}

// GenerateOutput composes the output message for every not-yet-generated
// request of the pair from the saved correction. Returns how many rows were
// stamped.
func (s *Service) GenerateOutput(ctx context.Context, shareID id.ShareID, requester id.Requester) (int, error) {
	rows, err := s.store.NotGenerated(ctx, shareID, requester)
	if err != nil {
		return 0, fmt.Errorf("list ungenerated requests: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	corrected, err := s.corrected.GetCorrected(ctx, shareID)
	if err != nil {
		return 0, fmt.Errorf("load corrected address: %w", err)
	}
	if corrected == nil {
		return 0, dErrors.Newf(dErrors.CodeNotFound, "no corrected address for %s", shareID)
	}
	payload, err := json.Marshal(corrected.Address)
	if err != nil {
		return 0, fmt.Errorf("encode output message: %w", err)
	}

	keys := make([]models.Key, len(rows))
	for i := range rows {
		keys[i] = rows[i].Key()
	}
	if err := s.store.MarkGenerated(ctx, keys, s.now().UTC(), string(payload)); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// SendPending delivers the generated-but-unsent requests of the pair in row
// order, stamping each sent row before moving on. A delivery failure stops
// the pair; already-sent rows stay sent.
func (s *Service) SendPending(ctx context.Context, shareID id.ShareID, requester id.Requester) (int, error) {
	rows, err := s.store.GeneratedNotSent(ctx, shareID, requester)
	if err != nil {
		return 0, fmt.Errorf("list unsent requests: %w", err)
	}

	sent := 0
	for i := range rows {
		if err := s.sender.Send(ctx, rows[i]); err != nil {
			return sent, fmt.Errorf("send request %d: %w", rows[i].ID, err)
		}
		if err := s.store.MarkSent(ctx, []models.Key{rows[i].Key()}, s.now().UTC()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// SweepReport summarizes one reprocessing pass.
type SweepReport struct {
	Generated int          `json:"generated"`
	Sent      int          `json:"sent"`
	Failed    int          `json:"failed"`
	Untracked []id.ShareID `json:"untracked,omitempty"`
}

// ReprocessSweep runs one maintenance pass: it composes output messages for
// requests whose correction has since been saved, drains the
// generated-but-unsent backlog, and reports corrected addresses that no
// request ever asked about. Per-pair failures are logged and counted, never
// fatal; only query errors abort the sweep.
func (s *Service) ReprocessSweep(ctx context.Context) (SweepReport, error) {
	var (
		toGenerate []models.Pending
		toSend     []models.Pending
		untracked  []id.ShareID
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		toGenerate, err = s.store.SavedNotGenerated(gctx, s.sweepLimit)
		return err
	})
	g.Go(func() (err error) {
		toSend, err = s.store.PendingOutputNotSent(gctx, s.sweepLimit)
		return err
	})
	g.Go(func() (err error) {
		untracked, err = s.store.SavedWithoutAnyRequest(gctx, s.sweepLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return SweepReport{}, fmt.Errorf("collect sweep backlog: %w", err)
	}

	var generated, sent, failed atomic.Int64

	work, wctx := errgroup.WithContext(ctx)
	work.SetLimit(s.workers)
	for _, p := range toGenerate {
		p := p
		work.Go(func() error {
			n, err := s.GenerateOutput(wctx, p.ShareID, p.Requester)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("output generation failed",
					"share_id", p.ShareID, "requester", p.Requester, "error", err)
				return nil
			}
			generated.Add(int64(n))
			return nil
		})
	}
	_ = work.Wait()

	// Send after generation so freshly generated rows ride the same pass.
	pairs := make(map[models.Pending]bool, len(toSend)+len(toGenerate))
	for _, p := range toSend {
		pairs[p] = true
	}
	for _, p := range toGenerate {
		pairs[p] = true
	}

	work, wctx = errgroup.WithContext(ctx)
	work.SetLimit(s.workers)
	for p := range pairs {
		p := p
		work.Go(func() error {
			n, err := s.SendPending(wctx, p.ShareID, p.Requester)
			sent.Add(int64(n))
			if err != nil {
				failed.Add(1)
				s.logger.Warn("request delivery failed",
					"share_id", p.ShareID, "requester", p.Requester, "error", err)
			}
			return nil
		})
	}
	_ = work.Wait()

	report := SweepReport{
		Generated: int(generated.Load()),
		Sent:      int(sent.Load()),
		Failed:    int(failed.Load()),
		Untracked: untracked,
	}
	if len(untracked) > 0 {
		s.logger.Info("corrections saved without any tracked request",
			"count", len(untracked))
	}
	return report, nil
}
