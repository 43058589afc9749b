package handler

import (
	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// UpdateRequest is the manual correction payload: the original address as the
// caller knows it plus the corrected candidate.
type UpdateRequest struct {
	Original  models.Address `json:"original"`
	Candidate models.Address `json:"candidate"`
}

// UpdateAsOneRequest maps several originals onto one canonical candidate.
type UpdateAsOneRequest struct {
	Candidate models.Address   `json:"candidate"`
	Originals []models.Address `json:"originals"`
}

// CheckRequest is the search-bar validation payload.
type CheckRequest struct {
	Address models.Address `json:"address"`
}

// CorrectedListRequest asks for live corrections of a batch of originals.
type CorrectedListRequest struct {
	ShareIDs []id.ShareID `json:"share_ids"`
}

// SuggestRequest asks for an already corrected address similar to the
// candidate.
type SuggestRequest struct {
	Address models.Address `json:"address"`
}

// SearchRequest looks up a correction by country and postal code with
// optional substring filters on city, street, company and contact.
type SearchRequest struct {
	Criteria models.Address `json:"criteria"`
}

// IntegrateRequest imports one externally corrected row.
type IntegrateRequest struct {
	OriginalShareID id.ShareID     `json:"original_share_id"`
	Candidate       models.Address `json:"candidate"`
}

// AutoCorrectRequest submits an original address to the automated path.
type AutoCorrectRequest struct {
	Address models.Address `json:"address"`
}

// AutoCorrectResponse reports the automated-path outcome.
type AutoCorrectResponse struct {
	Outcome   string                   `json:"outcome"`
	Corrected *models.CorrectedAddress `json:"corrected,omitempty"`
}

// MandatoryFieldsResponse lists the fields a correction must fill.
type MandatoryFieldsResponse struct {
	CountryCode id.CountryCode `json:"country_cd"`
	Fields      []string       `json:"fields"`
}

// SaveResultResponse reports one per-original outcome of a merge save.
type SaveResultResponse struct {
	OriginalShareID id.ShareID `json:"original_share_id"`
	Saved           bool       `json:"saved"`
	Error           string     `json:"error,omitempty"`
}

func toSaveResultResponses(results []models.SaveResult) []SaveResultResponse {
	out := make([]SaveResultResponse, 0, len(results))
	for _, r := range results {
		resp := SaveResultResponse{OriginalShareID: r.OriginalShareID, Saved: r.Err == nil}
		if r.Err != nil {
			resp.Error = r.Err.Error()
		}
		out = append(out, resp)
	}
	return out
}
