// Package providers holds the HTTP clients for the external address
// validation services and the registry that resolves a configured provider
// name to its client.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"simba/internal/correction/models"
)

const maxResponseBytes = 1 << 20

// postJSON sends the request payload and decodes the response into out.
// Non-2xx statuses map onto the provider error taxonomy so callers never see
// raw transport detail.
func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return models.ErrProviderDown
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.ErrNoAddressFromProvider
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return models.ErrProviderCannotValidate
	case resp.StatusCode >= 500:
		return models.ErrProviderUnavailable
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
