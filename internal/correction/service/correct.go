package service

import (
	"context"
	"fmt"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// Correct applies a manual user correction to one original address. The
// candidate is validated, stamped as corrected by USER with the fixed manual
// geocode rank, and saved. Saving a correction identical to the live one is
// rejected without touching state.
func (s *Service) Correct(ctx context.Context, original models.Address, candidate models.Address, userID string) (*models.CorrectedAddress, error) {
	if err := validateCandidate(&candidate, &original, true); err != nil {
		s.metrics.IncrementOutcome("manual", "rejected")
		return nil, err
	}

	existing, err := s.addresses.GetCorrected(ctx, original.ShareID)
	if err != nil {
		return nil, fmt.Errorf("load existing correction: %w", err)
	}
	if existing != nil && candidate.SameCorrection(&existing.Address) {
		s.metrics.IncrementOutcome("manual", "same_address")
		return nil, models.ErrSameAddress
	}

	candidate.CorrectedBy = id.ProviderUser
	candidate.GeocodeRank = models.ManualGeocodeRank

	saved, err := s.addresses.Save(ctx, original.ShareID, candidate, userID)
	if err != nil {
		s.metrics.IncrementOutcome("manual", "error")
		return nil, fmt.Errorf("save manual correction: %w", err)
	}

	s.logger.Info("manual correction saved",
		"original_share_id", original.ShareID,
		"share_id", saved.Address.ShareID,
		"user_id", userID,
	)
	s.metrics.IncrementOutcome("manual", "saved")
	s.notify(original.ShareID)
	return saved, nil
}

// CorrectAsOne maps several originals onto a single user-entered canonical
// address. Validation runs against every original; per-original save failures
// are reported individually and do not abort the batch. One notification is
// enqueued per successfully mapped original.
func (s *Service) CorrectAsOne(ctx context.Context, candidate models.Address, originals []models.Address, userID string) ([]models.SaveResult, error) {
	for i := range originals {
		if err := validateCandidate(&candidate, &originals[i], true); err != nil {
			s.metrics.IncrementOutcome("merge", "rejected")
			return nil, err
		}
	}
	if len(originals) == 0 {
		return nil, nil
	}

	candidate.CorrectedBy = id.ProviderUser
	candidate.GeocodeRank = models.ManualGeocodeRank

	originalIDs := make([]id.ShareID, len(originals))
	for i := range originals {
		originalIDs[i] = originals[i].ShareID
	}

	results, err := s.addresses.SaveMultiple(ctx, candidate, originalIDs, userID)
	if err != nil {
		s.metrics.IncrementOutcome("merge", "error")
		return nil, fmt.Errorf("save merged correction: %w", err)
	}

	for _, r := range results {
		if r.Err != nil {
			s.logger.Error("merge mapping failed",
				"original_share_id", r.OriginalShareID,
				"error", r.Err,
			)
			s.metrics.IncrementOutcome("merge", "error")
			continue
		}
		s.metrics.IncrementOutcome("merge", "saved")
		s.notify(r.OriginalShareID)
	}
	return results, nil
}

// IntegrateOne imports one externally corrected row, typically from a bulk
// provider feed. The candidate is authoritative so no country match against
// the original applies, and its provenance and rank are kept as supplied.
func (s *Service) IntegrateOne(ctx context.Context, originalShareID id.ShareID, candidate models.Address, userID string) (*models.CorrectedAddress, error) {
	if err := validateCandidate(&candidate, nil, false); err != nil {
		s.metrics.IncrementOutcome("integrate", "rejected")
		return nil, err
	}
	if candidate.CorrectedBy == "" {
		candidate.CorrectedBy = id.ProviderUser
	}

	existing, err := s.addresses.GetCorrected(ctx, originalShareID)
	if err != nil {
		return nil, fmt.Errorf("load existing correction: %w", err)
	}
	if existing != nil && candidate.SameCorrection(&existing.Address) {
		s.metrics.IncrementOutcome("integrate", "same_address")
		return nil, models.ErrSameAddress
	}

	saved, err := s.addresses.Save(ctx, originalShareID, candidate, userID)
	if err != nil {
		s.metrics.IncrementOutcome("integrate", "error")
		return nil, fmt.Errorf("integrate correction: %w", err)
	}

	s.metrics.IncrementOutcome("integrate", "saved")
	s.notify(originalShareID)
	return saved, nil
}
