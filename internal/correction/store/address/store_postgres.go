// Package address persists corrected addresses and the original→corrected
// identity mapping. The upsert-on-conflict primitive is the serialization
// point for concurrent correction attempts on the same original id.
package address

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// addressColumns is the scan order shared by every address query.
const addressColumns = `a.share_id, a.street_line1_desc, a.street_line2_desc, a.street_line3_desc, a.street_line4_desc,
	a.city_nm, a.postal_cd, a.country_cd, a.geocode_rank, a.latitude, a.longitude,
	a.street_number, a.street_name, a.urban_cd, a.state_prov_cd, a.contact_nm, a.company_nm,
	a.phone_number, a.street_side, a.segment_id, a.corrected_by, a.correction_stop_type,
	a.creation_user, a.last_updated_user, a.creation_date, a.last_updated_date,
	a.aefs_address_type_cd, a.aefs_state, a.aefs_raw_address_id, a.aefs_geocode_rank, a.aefs_latitude, a.aefs_longitude`

// PostgresStore is the production address store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed address store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAddress(row scanner, addr *models.Address) error {
	var (
		line2, line3, line4, streetNumber, streetName, urbanCode, stateProv sql.NullString
		contact, company, phone, streetSide, segment, correctedBy, stopType sql.NullString
		creationUser, lastUpdatedUser                                       sql.NullString
		aefsAddressType, aefsState, aefsRawAddressID                        sql.NullString
		aefsGeocodeRank                                                     sql.NullInt64
		aefsLatitude, aefsLongitude                                         sql.NullFloat64
	)
	err := row.Scan(
		&addr.ShareID, &addr.StreetLine1, &line2, &line3, &line4,
		&addr.CityName, &addr.PostalCode, &addr.CountryCode, &addr.GeocodeRank, &addr.Latitude, &addr.Longitude,
		&streetNumber, &streetName, &urbanCode, &stateProv, &contact, &company,
		&phone, &streetSide, &segment, &correctedBy, &stopType,
		&creationUser, &lastUpdatedUser, &addr.CreationDate, &addr.LastUpdatedDate,
		&aefsAddressType, &aefsState, &aefsRawAddressID, &aefsGeocodeRank, &aefsLatitude, &aefsLongitude,
	)
	if err != nil {
		return err
	}
	addr.StreetLine2 = line2.String
	addr.StreetLine3 = line3.String
	addr.StreetLine4 = line4.String
	addr.StreetNumber = streetNumber.String
	addr.StreetName = streetName.String
	addr.UrbanCode = urbanCode.String
	addr.StateProvCode = stateProv.String
	addr.ContactName = contact.String
	addr.CompanyName = company.String
	addr.PhoneNumber = phone.String
	addr.StreetSide = streetSide.String
	addr.SegmentID = segment.String
	addr.CorrectedBy = id.ProviderName(correctedBy.String)
	addr.CorrectionStopType = stopType.String
	addr.CreationUser = creationUser.String
	addr.LastUpdatedUser = lastUpdatedUser.String
	addr.AEFSAddressTypeCode = aefsAddressType.String
	addr.AEFSState = aefsState.String
	addr.AEFSRawAddressID = aefsRawAddressID.String
	if aefsGeocodeRank.Valid {
		v := int(aefsGeocodeRank.Int64)
		addr.AEFSGeocodeRank = &v
	}
	if aefsLatitude.Valid {
		v := aefsLatitude.Float64
		addr.AEFSLatitude = &v
	}
	if aefsLongitude.Valid {
		v := aefsLongitude.Float64
		addr.AEFSLongitude = &v
	}
	return nil
}

// GetCorrected joins the live mapping onto its address row.
func (s *PostgresStore) GetCorrected(ctx context.Context, originalShareID id.ShareID) (*models.CorrectedAddress, error) {
	query := `
		SELECT m.original_share_id, ` + addressColumns + `
		FROM mapping m
		JOIN address a ON m.new_share_id = a.share_id
		WHERE m.original_share_id = $1 AND m.to_delete = FALSE
	`
	row := s.db.QueryRowContext(ctx, query, originalShareID)
	var corrected models.CorrectedAddress
	err := scanCorrected(row, &corrected)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get corrected address: %w", err)
	}
	return &corrected, nil
}

// GetCorrectedBatch returns live corrections keyed by original id. Ids
// without a live mapping are absent from the result.
func (s *PostgresStore) GetCorrectedBatch(ctx context.Context, originalShareIDs []id.ShareID) (map[id.ShareID]models.Address, error) {
	if len(originalShareIDs) == 0 {
		return map[id.ShareID]models.Address{}, nil
	}
	ids := make([]string, len(originalShareIDs))
	for i, sid := range originalShareIDs {
		ids[i] = sid.String()
	}
	query := `
		SELECT m.original_share_id, ` + addressColumns + `
		FROM mapping m
		JOIN address a ON m.new_share_id = a.share_id
		WHERE m.original_share_id = ANY($1) AND m.to_delete = FALSE
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get corrected address batch: %w", err)
	}
	defer rows.Close()

	result := make(map[id.ShareID]models.Address, len(originalShareIDs))
	for rows.Next() {
		var corrected models.CorrectedAddress
		if err := scanCorrected(rows, &corrected); err != nil {
			return nil, fmt.Errorf("scan corrected address batch: %w", err)
		}
		result[corrected.OriginalShareID] = corrected.Address
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corrected address batch: %w", err)
	}
	return result, nil
}

func scanCorrected(row scanner, out *models.CorrectedAddress) error {
	// original_share_id leads the column list; prefixScanner lets
	// scanAddress handle the rest.
	return scanAddress(prefixScanner{row: row, first: &out.OriginalShareID}, &out.Address)
}

// prefixScanner adapts scanAddress to rows prefixed with one extra column.
type prefixScanner struct {
	row   scanner
	first any
}

func (p prefixScanner) Scan(dest ...any) error {
	all := make([]any, 0, len(dest)+1)
	all = append(all, p.first)
	all = append(all, dest...)
	return p.row.Scan(all...)
}

const addressUpsert = `
	INSERT INTO address (
		share_id, street_line1_desc, street_line2_desc, street_line3_desc, street_line4_desc,
		city_nm, postal_cd, country_cd, geocode_rank, latitude, longitude,
		street_number, street_name, urban_cd, state_prov_cd, contact_nm, company_nm,
		phone_number, street_side, segment_id, corrected_by, correction_stop_type,
		creation_user, last_updated_user,
		aefs_address_type_cd, aefs_state, aefs_raw_address_id, aefs_geocode_rank, aefs_latitude, aefs_longitude
	) VALUES (
		$1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''),
		$6, $7, $8, $9, $10, $11,
		NULLIF($12,''), NULLIF($13,''), NULLIF($14,''), NULLIF($15,''), NULLIF($16,''), NULLIF($17,''),
		NULLIF($18,''), NULLIF($19,''), NULLIF($20,''), $21, NULLIF($22,''),
		$23, $23,
		NULLIF($24,''), NULLIF($25,''), NULLIF($26,''), $27, $28, $29
	)
	ON CONFLICT (share_id) DO UPDATE SET
		street_line1_desc = EXCLUDED.street_line1_desc,
		street_line2_desc = EXCLUDED.street_line2_desc,
		street_line3_desc = EXCLUDED.street_line3_desc,
		street_line4_desc = EXCLUDED.street_line4_desc,
		city_nm = EXCLUDED.city_nm,
		postal_cd = EXCLUDED.postal_cd,
		country_cd = EXCLUDED.country_cd,
		geocode_rank = EXCLUDED.geocode_rank,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		street_number = EXCLUDED.street_number,
		street_name = EXCLUDED.street_name,
		urban_cd = EXCLUDED.urban_cd,
		state_prov_cd = EXCLUDED.state_prov_cd,
		contact_nm = EXCLUDED.contact_nm,
		company_nm = EXCLUDED.company_nm,
		phone_number = EXCLUDED.phone_number,
		street_side = EXCLUDED.street_side,
		segment_id = EXCLUDED.segment_id,
		corrected_by = EXCLUDED.corrected_by,
		correction_stop_type = EXCLUDED.correction_stop_type,
		last_updated_user = EXCLUDED.last_updated_user,
		last_updated_date = NOW(),
		aefs_address_type_cd = EXCLUDED.aefs_address_type_cd,
		aefs_state = EXCLUDED.aefs_state,
		aefs_raw_address_id = EXCLUDED.aefs_raw_address_id,
		aefs_geocode_rank = EXCLUDED.aefs_geocode_rank,
		aefs_latitude = EXCLUDED.aefs_latitude,
		aefs_longitude = EXCLUDED.aefs_longitude
`

const mappingUpsert = `
	INSERT INTO mapping (original_share_id, new_share_id, creation_user, last_updated_user)
	VALUES ($1, $2, $3, $3)
	ON CONFLICT (original_share_id) DO UPDATE SET
		new_share_id = EXCLUDED.new_share_id,
		last_updated_user = EXCLUDED.last_updated_user,
		last_updated_date = NOW(),
		to_delete = FALSE
`

func addressUpsertArgs(addr models.Address, userID string) []any {
	return []any{
		addr.ShareID, addr.StreetLine1, addr.StreetLine2, addr.StreetLine3, addr.StreetLine4,
		addr.CityName, addr.PostalCode, addr.CountryCode, addr.GeocodeRank, addr.Latitude, addr.Longitude,
		addr.StreetNumber, addr.StreetName, addr.UrbanCode, addr.StateProvCode, addr.ContactName, addr.CompanyName,
		addr.PhoneNumber, addr.StreetSide, addr.SegmentID, addr.CorrectedBy, addr.CorrectionStopType,
		userID,
		addr.AEFSAddressTypeCode, addr.AEFSState, addr.AEFSRawAddressID, addr.AEFSGeocodeRank, addr.AEFSLatitude, addr.AEFSLongitude,
	}
}

// Save upserts the address and the mapping in one transaction. The database's
// first-committer-wins conflict handling serializes concurrent attempts for
// the same original id.
func (s *PostgresStore) Save(ctx context.Context, originalShareID id.ShareID, addr models.Address, userID string) (*models.CorrectedAddress, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, addressUpsert, addressUpsertArgs(addr, userID)...); err != nil {
		return nil, fmt.Errorf("upsert address: %w", err)
	}
	if _, err := tx.ExecContext(ctx, mappingUpsert, originalShareID, addr.ShareID, userID); err != nil {
		return nil, fmt.Errorf("upsert mapping: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save tx: %w", err)
	}
	return s.GetCorrected(ctx, originalShareID)
}

// SaveMultiple upserts the address once and maps every original id onto it.
// Each mapping runs in its own transaction; partial success across ids is
// reported per id.
func (s *PostgresStore) SaveMultiple(ctx context.Context, addr models.Address, originalShareIDs []id.ShareID, userID string) ([]models.SaveResult, error) {
	if _, err := s.db.ExecContext(ctx, addressUpsert, addressUpsertArgs(addr, userID)...); err != nil {
		return nil, fmt.Errorf("upsert address: %w", err)
	}
	results := make([]models.SaveResult, 0, len(originalShareIDs))
	for _, originalID := range originalShareIDs {
		_, err := s.db.ExecContext(ctx, mappingUpsert, originalID, addr.ShareID, userID)
		if err != nil {
			err = fmt.Errorf("upsert mapping %s: %w", originalID, err)
		}
		results = append(results, models.SaveResult{OriginalShareID: originalID, Err: err})
	}
	return results, nil
}

// SoftDelete flags the live mapping deleted without touching the address row.
func (s *PostgresStore) SoftDelete(ctx context.Context, originalShareID id.ShareID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mapping SET to_delete = TRUE, last_updated_date = NOW()
		WHERE original_share_id = $1 AND to_delete = FALSE
	`, originalShareID)
	if err != nil {
		return false, fmt.Errorf("soft delete mapping: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete rows affected: %w", err)
	}
	return n > 0, nil
}

// FindSimilar runs the pg_trgm suggestion search: average similarity over
// city, company and postal code within the same country, requiring at least
// one field above 0.8. Highest average wins; creation order is the stable
// tiebreak.
func (s *PostgresStore) FindSimilar(ctx context.Context, candidate models.Address) (*models.Address, error) {
	query := `
		SELECT ` + addressColumns + `,
			(similarity(COALESCE(a.city_nm,''), $2) +
			 similarity(COALESCE(a.company_nm,''), $3) +
			 similarity(COALESCE(a.postal_cd,''), $4)) / 3 AS sim_average
		FROM address a
		WHERE a.country_cd = $1
		  AND (similarity(COALESCE(a.city_nm,''), $2) > 0.8
		   OR similarity(COALESCE(a.company_nm,''), $3) > 0.8
		   OR similarity(COALESCE(a.postal_cd,''), $4) > 0.8)
		ORDER BY sim_average DESC, a.share_id ASC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, candidate.CountryCode, candidate.CityName, candidate.CompanyName, candidate.PostalCode)
	var addr models.Address
	var simAverage float64
	err := scanAddress(suffixScanner{row: row, last: &simAverage}, &addr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find similar address: %w", err)
	}
	return &addr, nil
}

type suffixScanner struct {
	row  scanner
	last any
}

func (s suffixScanner) Scan(dest ...any) error {
	all := make([]any, 0, len(dest)+1)
	all = append(all, dest...)
	all = append(all, s.last)
	return s.row.Scan(all...)
}

// SearchByCriteria finds a live corrected address by country and postal code
// with optional substring filters, newest update first.
func (s *PostgresStore) SearchByCriteria(ctx context.Context, criteria models.Address) (*models.CorrectedAddress, error) {
	query := `
		SELECT m.original_share_id, ` + addressColumns + `
		FROM mapping m
		JOIN address a ON m.new_share_id = a.share_id
		WHERE m.to_delete = FALSE
		  AND a.country_cd = $1
		  AND a.postal_cd = $2
		  AND ($3 = '' OR a.city_nm LIKE '%' || $3 || '%')
		  AND ($4 = '' OR a.street_line1_desc LIKE '%' || $4 || '%')
		  AND ($5 = '' OR a.company_nm LIKE '%' || $5 || '%')
		  AND ($6 = '' OR a.contact_nm LIKE '%' || $6 || '%')
		ORDER BY a.last_updated_date DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query,
		criteria.CountryCode, criteria.PostalCode,
		criteria.CityName, criteria.StreetLine1, criteria.CompanyName, criteria.ContactName)
	var corrected models.CorrectedAddress
	err := scanCorrected(row, &corrected)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("search corrected address: %w", err)
	}
	return &corrected, nil
}

// ListAll returns the full data extraction of live corrections.
func (s *PostgresStore) ListAll(ctx context.Context) ([]models.CorrectedAddress, error) {
	query := `
		SELECT m.original_share_id, ` + addressColumns + `
		FROM mapping m
		JOIN address a ON m.new_share_id = a.share_id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list corrected addresses: %w", err)
	}
	defer rows.Close()

	var out []models.CorrectedAddress
	for rows.Next() {
		var corrected models.CorrectedAddress
		if err := scanCorrected(rows, &corrected); err != nil {
			return nil, fmt.Errorf("scan corrected address: %w", err)
		}
		out = append(out, corrected)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corrected addresses: %w", err)
	}
	return out, nil
}

// MissingAEFSData feeds the AEFS backfill sweep.
func (s *PostgresStore) MissingAEFSData(ctx context.Context, limit int) ([]models.Address, error) {
	return s.listWhere(ctx, "a.aefs_geocode_rank IS NULL", limit)
}

// MissingStreetSide feeds the street-side backfill sweep.
func (s *PostgresStore) MissingStreetSide(ctx context.Context, limit int) ([]models.Address, error) {
	return s.listWhere(ctx, "a.street_side IS NULL", limit)
}

// MissingCorrectedBy feeds the provenance backfill sweep.
func (s *PostgresStore) MissingCorrectedBy(ctx context.Context, limit int) ([]models.Address, error) {
	return s.listWhere(ctx, "a.corrected_by IS NULL", limit)
}

func (s *PostgresStore) listWhere(ctx context.Context, where string, limit int) ([]models.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM address a WHERE ` + where + ` LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list addresses (%s): %w", where, err)
	}
	defer rows.Close()

	var out []models.Address
	for rows.Next() {
		var addr models.Address
		if err := scanAddress(rows, &addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return out, nil
}
