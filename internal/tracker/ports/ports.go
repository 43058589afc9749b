// Package ports defines the store interface for correction-request tracking.
package ports

import (
	"context"
	"time"

	"simba/internal/tracker/models"
	id "simba/pkg/domain"
)

// RequestStore owns the address_correction_request rows.
type RequestStore interface {
	// Upsert inserts or fully replaces the row identified by
	// (parcel_id, share_id, requester) and returns the persisted row.
	Upsert(ctx context.Context, rec models.Request) (*models.Request, error)

	// BulkUpsert applies Upsert per record. A failing record is reported
	// in its slot without aborting the rest.
	BulkUpsert(ctx context.Context, recs []models.Request) ([]models.Request, []error)

	// MarkGenerated stamps the output message on the identified rows and
	// sets generated.
	MarkGenerated(ctx context.Context, keys []models.Key, outputDatetime time.Time, outputMessageRaw string) error

	// MarkSent sets sent and its timestamp. Generated-before-sent is the
	// caller's responsibility.
	MarkSent(ctx context.Context, keys []models.Key, at time.Time) error

	ByShareID(ctx context.Context, shareID id.ShareID) ([]models.Request, error)
	ByShareIDAndRequesters(ctx context.Context, shareID id.ShareID, requesters []id.Requester) ([]models.Request, error)
	NotGenerated(ctx context.Context, shareID id.ShareID, requester id.Requester) ([]models.Request, error)
	GeneratedNotSent(ctx context.Context, shareID id.ShareID, requester id.Requester) ([]models.Request, error)

	// PendingOutputNotSent lists generated-but-unsent identities for the
	// send sweep.
	PendingOutputNotSent(ctx context.Context, limit int) ([]models.Pending, error)

	// SavedNotGenerated lists not-generated requests whose share id has a
	// live corrected address, so the sweep can compose their output.
	SavedNotGenerated(ctx context.Context, limit int) ([]models.Pending, error)

	// SavedWithoutAnyRequest anti-joins live mappings against requests to
	// find corrected addresses nobody asked about.
	SavedWithoutAnyRequest(ctx context.Context, limit int) ([]id.ShareID, error)

	Count(ctx context.Context) (int, error)
	DeleteByIDs(ctx context.Context, ids []int64) error
}
