package service

import (
	"context"
	"fmt"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// GetCorrected fetches the live correction for an original share id and
// touches its access record. Absence surfaces as the not-found rejection.
func (s *Service) GetCorrected(ctx context.Context, originalShareID id.ShareID) (*models.CorrectedAddress, error) {
	corrected, err := s.addresses.GetCorrected(ctx, originalShareID)
	if err != nil {
		return nil, fmt.Errorf("get corrected address: %w", err)
	}
	if corrected == nil {
		return nil, models.ErrNoCorrectedAddressFound
	}
	if err := s.access.Touch(ctx, originalShareID, s.now().UTC()); err != nil {
		s.logger.Warn("touch address access", "original_share_id", originalShareID, "error", err)
	}
	return corrected, nil
}

// GetCorrectedBatch fetches live corrections for several originals. Ids with
// no correction are absent from the map; an empty input yields an empty map.
func (s *Service) GetCorrectedBatch(ctx context.Context, originalShareIDs []id.ShareID) (map[id.ShareID]models.Address, error) {
	if len(originalShareIDs) == 0 {
		return map[id.ShareID]models.Address{}, nil
	}
	corrected, err := s.addresses.GetCorrectedBatch(ctx, originalShareIDs)
	if err != nil {
		return nil, fmt.Errorf("get corrected batch: %w", err)
	}
	return corrected, nil
}

// Delete soft-deletes the live mapping for an original share id. Deleting an
// already absent correction is the not-found rejection.
func (s *Service) Delete(ctx context.Context, originalShareID id.ShareID) error {
	deleted, err := s.addresses.SoftDelete(ctx, originalShareID)
	if err != nil {
		return fmt.Errorf("delete correction: %w", err)
	}
	if !deleted {
		return models.ErrNoCorrectedAddressFound
	}
	s.logger.Info("correction deleted", "original_share_id", originalShareID)
	return nil
}

// Suggest looks for an already corrected address similar to the candidate.
// Nil result means nothing cleared the similarity threshold.
func (s *Service) Suggest(ctx context.Context, candidate models.Address) (*models.Address, error) {
	similar, err := s.addresses.FindSimilar(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("find similar address: %w", err)
	}
	return similar, nil
}

// SearchByCriteria looks up a correction by country and postal code with
// optional substring filters.
func (s *Service) SearchByCriteria(ctx context.Context, criteria models.Address) (*models.CorrectedAddress, error) {
	found, err := s.addresses.SearchByCriteria(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("search by criteria: %w", err)
	}
	if found == nil {
		return nil, models.ErrNoCorrectedAddressFound
	}
	return found, nil
}

// ListAll streams the full corrected-address extraction.
func (s *Service) ListAll(ctx context.Context) ([]models.CorrectedAddress, error) {
	all, err := s.addresses.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list corrected addresses: %w", err)
	}
	return all, nil
}

// BackfillFeed names a maintenance feed of addresses missing enrichment data.
type BackfillFeed string

const (
	FeedAEFSData    BackfillFeed = "aefs_data"
	FeedStreetSide  BackfillFeed = "street_side"
	FeedCorrectedBy BackfillFeed = "corrected_by"
)

const defaultBackfillLimit = 1000

// Backfill lists addresses still missing the data the named feed tracks.
// External enrichment jobs poll these feeds and push fixes back through the
// correction endpoints.
func (s *Service) Backfill(ctx context.Context, feed BackfillFeed, limit int) ([]models.Address, error) {
	if limit <= 0 || limit > defaultBackfillLimit {
		limit = defaultBackfillLimit
	}
	var (
		rows []models.Address
		err  error
	)
	switch feed {
	case FeedAEFSData:
		rows, err = s.addresses.MissingAEFSData(ctx, limit)
	case FeedStreetSide:
		rows, err = s.addresses.MissingStreetSide(ctx, limit)
	case FeedCorrectedBy:
		rows, err = s.addresses.MissingCorrectedBy(ctx, limit)
	default:
		return nil, models.ErrUnknownBackfillFeed
	}
	if err != nil {
		return nil, fmt.Errorf("list backfill feed %s: %w", feed, err)
	}
	return rows, nil
}

// QuotaUsage reports the calls recorded today for a provider/country pair.
func (s *Service) QuotaUsage(ctx context.Context, provider id.ProviderName, country id.CountryCode) (int, error) {
	used, err := s.quota.Usage(ctx, provider, country)
	if err != nil {
		return 0, fmt.Errorf("read quota usage: %w", err)
	}
	return used, nil
}
