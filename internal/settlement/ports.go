// Package settlement bridges due payments to on-chain execution. The
// gateway builds transfer intents, hands them to an external
// signing/broadcast service, and polls the chain for confirmation. It never
// holds private keys and never mutates ledger state except through the
// payment store's idempotent status update.
package settlement

import (
	"context"
	"time"

	"github.com/tandahub/tanda/internal/models"
)

// TransferIntent is the unsigned description of one transfer. Amounts are
// microAlgos; Note carries the circle and round so the transfer is
// reconcilable from chain data alone.
type TransferIntent struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
	Note     string `json:"note"`
}

// TxHandle is an opaque reference to a broadcast transaction, returned by
// the signing service and used to poll for confirmation.
type TxHandle struct {
	// TxID is the chain transaction identifier.
	TxID string
	// SubmittedAt is when the broadcast was accepted.
	SubmittedAt time.Time
}

// TxStatus is the chain-side state of a broadcast transaction.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
)

// Broadcaster is the external signing/broadcast service. Implementations
// sign the intent with keys the engine never sees and submit it to the
// network.
type Broadcaster interface {
	SignAndBroadcast(ctx context.Context, intent TransferIntent) (TxHandle, error)
}

// ChainQuery is the external chain-state service used to poll for
// confirmation of a broadcast transaction.
type ChainQuery interface {
	TransactionStatus(ctx context.Context, handle TxHandle) (TxStatus, error)
}

// PaymentStore is the slice of the ledger the gateway needs: reading a
// payment before submission and recording settlement outcomes. Keeping the
// gateway behind this narrow interface preserves the ledger as the single
// writer of entity state.
type PaymentStore interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, txRef, failReason string) error
}
