// Package identity resolves stable user identifiers to wallet addresses.
// Profiles, KYC, and authentication live in an external service; the
// engine only ever needs an address to settle against.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnknownUser indicates the identity service has no record of the user.
var ErrUnknownUser = errors.New("unknown user")

// HTTPDirectory queries the external identity/profile service.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory creates a directory talking to the identity service at
// baseURL (endpoint: GET {baseURL}/v1/users/{id}).
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type userProfile struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address"`
}

// WalletAddress resolves the user's settlement address.
func (d *HTTPDirectory) WalletAddress(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.baseURL+"/v1/users/"+userID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var profile userProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("failed to decode user profile: %w", err)
	}
	if profile.WalletAddress == "" {
		return "", fmt.Errorf("%w: user %s has no wallet", ErrUnknownUser, userID)
	}
	return profile.WalletAddress, nil
}

// StaticDirectory maps user IDs to addresses in memory. Used in tests and
// local development.
type StaticDirectory map[string]string

// WalletAddress looks the user up in the map.
func (d StaticDirectory) WalletAddress(_ context.Context, userID string) (string, error) {
	addr, ok := d[userID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return addr, nil
}
