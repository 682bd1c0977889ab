package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Ensure HTTPSigner implements Broadcaster
var _ Broadcaster = (*HTTPSigner)(nil)

// HTTPSigner hands transfer intents to an external signing/broadcast
// service over HTTP. The service holds the wallet keys, signs the intent,
// submits it to the network, and returns the transaction ID. The engine
// never sees key material.
type HTTPSigner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSigner creates a broadcaster talking to the signing service at
// baseURL (endpoint: POST {baseURL}/v1/transactions).
func NewHTTPSigner(baseURL string) *HTTPSigner {
	return &HTTPSigner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type broadcastResponse struct {
	TxID string `json:"tx_id"`
}

// SignAndBroadcast submits the intent for signing and broadcast. A non-2xx
// response means the signer rejected the intent.
func (s *HTTPSigner) SignAndBroadcast(ctx context.Context, intent TransferIntent) (TxHandle, error) {
	body, err := json.Marshal(intent)
	if err != nil {
		return TxHandle{}, fmt.Errorf("failed to encode intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return TxHandle{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return TxHandle{}, fmt.Errorf("signer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TxHandle{}, fmt.Errorf("signer rejected intent: status %d", resp.StatusCode)
	}

	var out broadcastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TxHandle{}, fmt.Errorf("failed to decode signer response: %w", err)
	}
	if out.TxID == "" {
		return TxHandle{}, fmt.Errorf("signer returned empty tx_id")
	}

	return TxHandle{TxID: out.TxID, SubmittedAt: time.Now()}, nil
}
