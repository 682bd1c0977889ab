package models

// PaymentKind distinguishes money flowing into the pool from money
// flowing out of it.
type PaymentKind string

const (
	// PaymentContribution is a member's periodic payment into the pool.
	PaymentContribution PaymentKind = "contribution"
	// PaymentPayout is the full pool paid to the round's designated payee.
	PaymentPayout PaymentKind = "payout"
)

// PaymentStatus is the settlement state of a payment.
// Confirmed is terminal; failed payments may be re-submitted, which
// creates a fresh settlement attempt on the same row.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// IsTerminal reports whether the payment no longer gates round advancement.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentConfirmed || s == PaymentFailed
}

// Payment is one scheduled or executed money movement for one round.
//
// The store enforces exactly one payout payment per (rosca, round) and at
// most one contribution payment per (rosca, round, user).
type Payment struct {
	// ID is the unique identifier (UUID format).
	ID string

	// ROSCAID and UserID link the payment to its circle and the paying
	// (contribution) or receiving (payout) user.
	ROSCAID string
	UserID  string

	// Kind is contribution or payout.
	Kind PaymentKind

	// Amount in microAlgos.
	Amount int64

	// Round is the 1-indexed round this payment belongs to.
	Round int

	// TxRef is the on-chain transaction ID, set after submission.
	TxRef string

	// Status is pending until the chain confirms or rejects the transfer.
	Status PaymentStatus

	// FailReason records why a payment failed (timeout, rejection,
	// cancellation). Empty otherwise.
	FailReason string

	// DueDate is the Unix timestamp the payment is due, from the rotation
	// schedule.
	DueDate int64

	// PaidDate is the Unix timestamp of on-chain confirmation. Zero until
	// confirmed.
	PaidDate int64

	// CreatedAt is the Unix timestamp when the payment was generated.
	CreatedAt int64
}
