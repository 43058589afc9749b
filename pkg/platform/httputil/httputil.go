// Package httputil holds the JSON helpers shared by all transport handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "simba/pkg/domain-errors"
)

// Classified is implemented by business errors that carry their own code and
// envelope detail. The correction rejections implement it.
type Classified interface {
	error
	HTTPEnvelope() (code dErrors.Code, field, info string)
}

// ErrorEnvelope is the wire shape of every error response.
type ErrorEnvelope struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Field   string `json:"field,omitempty"`
	Info    string `json:"info,omitempty"`
}

// WriteJSON writes v with the given status. Encoding failures are ignored;
// the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates an error into the envelope. Classified errors keep
// their message and detail; anything else is masked as an internal error so
// infrastructure detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	var classified Classified
	if errors.As(err, &classified) {
		code, field, info := classified.HTTPEnvelope()
		status := dErrors.ToHTTPStatus(code)
		WriteJSON(w, status, ErrorEnvelope{
			Message: classified.Error(),
			Status:  status,
			Field:   field,
			Info:    info,
		})
		return
	}

	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	message := "internal error"
	if code != dErrors.CodeInternal {
		message = err.Error()
	}
	WriteJSON(w, status, ErrorEnvelope{Message: message, Status: status})
}

// Decode parses a JSON request body into T.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return v, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return v, nil
}
