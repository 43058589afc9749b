// Package providerresult persists raw provider responses as an append-only
// audit log, keyed by share id and provider.
package providerresult

import (
	"context"
	"database/sql"
	"fmt"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, result models.ProviderResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_result (share_id, provider_name, payload)
		VALUES ($1, $2, $3)
	`, result.ShareID, result.ProviderName, result.Payload)
	if err != nil {
		return fmt.Errorf("append provider result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, provider id.ProviderName, shareID id.ShareID) (*models.ProviderResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, share_id, provider_name, payload, creation_date
		FROM provider_result
		WHERE provider_name = $1 AND share_id = $2
		ORDER BY id DESC
		LIMIT 1
	`, provider, shareID)
	var r models.ProviderResult
	if err := row.Scan(&r.ID, &r.ShareID, &r.ProviderName, &r.Payload, &r.CreationDate); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest provider result: %w", err)
	}
	return &r, nil
}
