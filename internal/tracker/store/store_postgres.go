// Package store persists correction-request tracking rows.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"simba/internal/tracker/models"
	id "simba/pkg/domain"
)

const requestColumns = `
	id, unique_id, parcel_id, share_id, geocode_rank, input_message,
	output_message, output_message_raw, output_datetime, generated, sent,
	sent_datetime, response_message, requester, geocode,
	created_datetime, updated_datetime`

// PostgresStore is the production tracker store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func scanRequest(row interface{ Scan(...any) error }) (*models.Request, error) {
	var r models.Request
	var uniqueID, outputRaw, geocode sql.NullString
	var rank sql.NullInt64
	var outputAt, sentAt sql.NullTime
	var input, output, response []byte

	err := row.Scan(
		&r.ID, &uniqueID, &r.ParcelID, &r.ShareID, &rank, &input,
		&output, &outputRaw, &outputAt, &r.Generated, &r.Sent,
		&sentAt, &response, &r.Requester, &geocode,
		&r.CreatedDatetime, &r.UpdatedDatetime,
	)
	if err != nil {
		return nil, err
	}
	r.UniqueID = uniqueID.String
	r.OutputMessageRaw = outputRaw.String
	r.Geocode = geocode.String
	if rank.Valid {
		v := int(rank.Int64)
		r.GeocodeRank = &v
	}
	if outputAt.Valid {
		r.OutputDatetime = &outputAt.Time
	}
	if sentAt.Valid {
		r.SentDatetime = &sentAt.Time
	}
	r.InputMessage = input
	r.OutputMessage = output
	r.ResponseMessage = response
	return &r, nil
}

const upsertRequest = `
	INSERT INTO address_correction_request (
		unique_id, parcel_id, share_id, geocode_rank, input_message,
		output_message, output_message_raw, output_datetime, generated,
		sent, sent_datetime, response_message, requester, geocode
	) VALUES (
		NULLIF($1, ''), $2, $3, $4, $5,
		$6, NULLIF($7, ''), $8, $9,
		$10, $11, $12, $13, NULLIF($14, '')
	)
	ON CONFLICT (parcel_id, share_id, requester) DO UPDATE SET
		unique_id = EXCLUDED.unique_id,
		geocode_rank = EXCLUDED.geocode_rank,
		input_message = EXCLUDED.input_message,
		output_message = EXCLUDED.output_message,
		output_message_raw = EXCLUDED.output_message_raw,
		output_datetime = EXCLUDED.output_datetime,
		generated = EXCLUDED.generated,
		sent = EXCLUDED.sent,
		sent_datetime = EXCLUDED.sent_datetime,
		response_message = EXCLUDED.response_message,
		geocode = EXCLUDED.geocode,
		updated_datetime = NOW()
	RETURNING ` + requestColumns

func (s *PostgresStore) Upsert(ctx context.Context, rec models.Request) (*models.Request, error) {
	row := s.db.QueryRowContext(ctx, upsertRequest,
		rec.UniqueID, rec.ParcelID, rec.ShareID, rec.GeocodeRank, nullJSON(rec.InputMessage),
		nullJSON(rec.OutputMessage), rec.OutputMessageRaw, rec.OutputDatetime, rec.Generated,
		rec.Sent, rec.SentDatetime, nullJSON(rec.ResponseMessage), rec.Requester, rec.Geocode,
	)
	saved, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("upsert correction request: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) BulkUpsert(ctx context.Context, recs []models.Request) ([]models.Request, []error) {
	saved := make([]models.Request, len(recs))
	errs := make([]error, len(recs))
	for i := range recs {
		row, err := s.Upsert(ctx, recs[i])
		if err != nil {
			errs[i] = err
			continue
		}
		saved[i] = *row
	}
	return saved, errs
}

func (s *PostgresStore) MarkGenerated(ctx context.Context, keys []models.Key, outputDatetime time.Time, outputMessageRaw string) error {
	for _, key := range keys {
		_, err := s.db.ExecContext(ctx, `
			UPDATE address_correction_request
			SET generated = TRUE, output_datetime = $4, output_message_raw = $5, updated_datetime = NOW()
			WHERE parcel_id = $1 AND share_id = $2 AND requester = $3
		`, key.ParcelID, key.ShareID, key.Requester, outputDatetime, outputMessageRaw)
		if err != nil {
			return fmt.Errorf("mark generated: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, keys []models.Key, at time.Time) error {
	for _, key := range keys {
		_, err := s.db.ExecContext(ctx, `
			UPDATE address_correction_request
			SET sent = TRUE, sent_datetime = $4, updated_datetime = NOW()
			WHERE parcel_id = $1 AND share_id = $2 AND requester = $3
		`, key.ParcelID, key.ShareID, key.Requester, at)
		if err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ByShareID(ctx context.Context, shareID id.ShareID) ([]models.Request, error) {
	return s.list(ctx, `
		SELECT `+requestColumns+`
		FROM address_correction_request WHERE share_id = $1
		ORDER BY id
	`, shareID)
}

func (s *PostgresStore) ByShareIDAndRequesters(ctx context.Context, shareID id.ShareID, requesters []id.Requester) ([]models.Request, error) {
	names := make([]string, len(requesters))
	for i, r := range requesters {
		names[i] = string(r)
	}
	return s.list(ctx, `
		SELECT `+requestColumns+`
		FROM address_correction_request
		WHERE share_id = $1 AND requester = ANY($2)
		ORDER BY id
	`, shareID, pq.Array(names))
}

func (s *PostgresStore) NotGenerated(ctx context.Context, shareID id.ShareID, requester id.Requester) ([]models.Request, error) {
	return s.list(ctx, `
		SELECT `+requestColumns+`
		FROM address_correction_request
		WHERE share_id = $1 AND requester = $2 AND generated = FALSE
		ORDER BY id
	`, shareID, requester)
}

func (s *PostgresStore) GeneratedNotSent(ctx context.Context, shareID id.ShareID, requester id.Requester) ([]models.Request, error) {
	return s.list(ctx, `
		SELECT `+requestColumns+`
		FROM address_correction_request
		WHERE share_id = $1 AND requester = $2 AND generated = TRUE AND sent = FALSE
		ORDER BY id
	`, shareID, requester)
}

func (s *PostgresStore) PendingOutputNotSent(ctx context.Context, limit int) ([]models.Pending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT share_id, requester
		FROM address_correction_request
		WHERE generated = TRUE AND sent = FALSE
		ORDER BY updated_datetime
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var pending []models.Pending
	for rows.Next() {
		var p models.Pending
		if err := rows.Scan(&p.ShareID, &p.Requester); err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending requests: %w", err)
	}
	return pending, nil
}

func (s *PostgresStore) SavedNotGenerated(ctx context.Context, limit int) ([]models.Pending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT acr.share_id, acr.requester
		FROM address_correction_request acr
		WHERE acr.generated = FALSE
		  AND EXISTS (
			SELECT 1 FROM mapping m
			WHERE m.original_share_id = acr.share_id AND m.to_delete = FALSE
		  )
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ungenerated requests: %w", err)
	}
	defer rows.Close()

	var pending []models.Pending
	for rows.Next() {
		var p models.Pending
		if err := rows.Scan(&p.ShareID, &p.Requester); err != nil {
			return nil, fmt.Errorf("scan ungenerated request: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ungenerated requests: %w", err)
	}
	return pending, nil
}

func (s *PostgresStore) SavedWithoutAnyRequest(ctx context.Context, limit int) ([]id.ShareID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.original_share_id
		FROM mapping m
		LEFT JOIN address_correction_request acr ON acr.share_id = m.original_share_id
		WHERE acr.share_id IS NULL AND m.to_delete = FALSE
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list untracked corrections: %w", err)
	}
	defer rows.Close()

	var ids []id.ShareID
	for rows.Next() {
		var shareID id.ShareID
		if err := rows.Scan(&shareID); err != nil {
			return nil, fmt.Errorf("scan untracked correction: %w", err)
		}
		ids = append(ids, shareID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate untracked corrections: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM address_correction_request`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count correction requests: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM address_correction_request WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("delete correction requests: %w", err)
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]models.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list correction requests: %w", err)
	}
	defer rows.Close()

	var out []models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correction request: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate correction requests: %w", err)
	}
	return out, nil
}

// nullJSON keeps empty payloads as SQL NULL instead of invalid empty jsonb.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
