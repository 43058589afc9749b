// Package models holds the correction-request tracking records.
package models

import (
	"encoding/json"
	"time"

	id "simba/pkg/domain"
)

// Request is one inbound correction request from a downstream system.
// Identity is the (parcel id, share id, requester) triple; the lifecycle goes
// received, generated (output message composed), sent. Sent implies
// generated; regeneration stays idempotent until the row is sent.
type Request struct {
	ID               int64           `json:"id"`
	UniqueID         string          `json:"unique_id"`
	ParcelID         string          `json:"parcel_id"`
	ShareID          id.ShareID      `json:"share_id"`
	GeocodeRank      *int            `json:"geocode_rank,omitempty"`
	InputMessage     json.RawMessage `json:"input_message,omitempty"`
	OutputMessage    json.RawMessage `json:"output_message,omitempty"`
	OutputMessageRaw string          `json:"output_message_raw,omitempty"`
	OutputDatetime   *time.Time      `json:"output_datetime,omitempty"`
	Generated        bool            `json:"generated"`
	Sent             bool            `json:"sent"`
	SentDatetime     *time.Time      `json:"sent_datetime,omitempty"`
	ResponseMessage  json.RawMessage `json:"response_message,omitempty"`
	Requester        id.Requester    `json:"requester"`
	Geocode          string          `json:"geocode,omitempty"`
	CreatedDatetime  time.Time       `json:"created_datetime,omitempty"`
	UpdatedDatetime  time.Time       `json:"updated_datetime,omitempty"`
}

// Key is the conflict identity of a request.
type Key struct {
	ParcelID  string
	ShareID   id.ShareID
	Requester id.Requester
}

// Key returns the conflict identity of the request.
func (r *Request) Key() Key {
	return Key{ParcelID: r.ParcelID, ShareID: r.ShareID, Requester: r.Requester}
}

// Pending identifies a request awaiting a lifecycle transition in the
// reprocessing sweep.
type Pending struct {
	ShareID   id.ShareID   `json:"share_id"`
	Requester id.Requester `json:"requester"`
}
