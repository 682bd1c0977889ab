package settlement

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
)

// Ensure AlgodChainQuery implements ChainQuery
var _ ChainQuery = (*AlgodChainQuery)(nil)

// AlgodChainQuery answers transaction status questions against an Algorand
// node's pending-transaction endpoint.
type AlgodChainQuery struct {
	client *algod.Client
}

// NewAlgodChainQuery connects to an algod node. For public nodes (e.g.
// testnet-api.algonode.cloud) the token is empty.
func NewAlgodChainQuery(address, token string) (*AlgodChainQuery, error) {
	client, err := algod.MakeClient(address, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create algod client: %w", err)
	}
	return &AlgodChainQuery{client: client}, nil
}

// TransactionStatus maps algod's pending-transaction response to the
// gateway's tri-state: a confirmed round means confirmed, a pool error
// means the transaction was dropped, anything else is still pending.
func (q *AlgodChainQuery) TransactionStatus(ctx context.Context, handle TxHandle) (TxStatus, error) {
	info, _, err := q.client.PendingTransactionInformation(handle.TxID).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to query transaction %s: %w", handle.TxID, err)
	}
	if info.PoolError != "" {
		return StatusFailed, nil
	}
	if info.ConfirmedRound > 0 {
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}
