// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"

	"github.com/tandahub/tanda/internal/models"
)

// ROSCAFilter narrows ListROSCAs. Zero value lists everything.
type ROSCAFilter struct {
	// Status, if non-empty, restricts results to circles in that state.
	Status models.ROSCAStatus
}

// Store is the ledger: the single owner of ROSCA, Participation, Payment,
// and Notification state. All mutations to one circle's records are
// serialized by the implementation; other components hold identifiers only
// and never cache mutable copies.
//
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// etc.) without changing the engine.
type Store interface {
	// CreateROSCA validates the configuration and persists a new circle in
	// the forming state. The rosca's ID, ContributionAmount, and timestamps
	// are populated by the store. Fails with ErrInvalidConfig.
	CreateROSCA(ctx context.Context, rosca *models.ROSCA) error

	// GetROSCA retrieves a circle by ID. Fails with ErrNotFound.
	GetROSCA(ctx context.Context, roscaID string) (*models.ROSCA, error)

	// ListROSCAs retrieves circles matching the filter, newest first.
	ListROSCAs(ctx context.Context, filter ROSCAFilter) ([]*models.ROSCA, error)

	// JoinROSCA atomically assigns the caller the next free rotation
	// position. Two concurrent joins never receive the same position: the
	// participant count increment and position assignment happen in one
	// transaction. Fails with ErrNotForming, ErrAlreadyJoined, ErrFull.
	JoinROSCA(ctx context.Context, roscaID, userID string) (*models.Participation, error)

	// UpdateROSCAStatus transitions a circle's lifecycle state. The
	// transition is guarded: it only applies while the current status is one
	// of allowedFrom, otherwise ErrStateForbidden.
	UpdateROSCAStatus(ctx context.Context, roscaID string, status models.ROSCAStatus, allowedFrom ...models.ROSCAStatus) error

	// SetROSCASchedule records the computed end date and current round,
	// set on activation and advanced as rounds complete.
	SetROSCASchedule(ctx context.Context, roscaID string, endDate int64, currentRound int) error

	// GetParticipation retrieves one user's membership in a circle.
	// Fails with ErrNotFound.
	GetParticipation(ctx context.Context, roscaID, userID string) (*models.Participation, error)

	// ListParticipations retrieves all memberships of a circle ordered by
	// rotation position.
	ListParticipations(ctx context.Context, roscaID string) ([]*models.Participation, error)

	// ListParticipationsByUser retrieves all of a user's memberships,
	// newest first.
	ListParticipationsByUser(ctx context.Context, userID string) ([]*models.Participation, error)

	// UpdateParticipationStatus transitions a membership's state.
	UpdateParticipationStatus(ctx context.Context, participationID string, status models.ParticipationStatus) error

	// RecordPayment persists a newly scheduled payment, enforcing one payout
	// per round and one contribution per participant per round. Fails with
	// ErrDuplicateRound.
	RecordPayment(ctx context.Context, payment *models.Payment) error

	// GetPayment retrieves a payment by ID. Fails with ErrNotFound.
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)

	// ListPayments retrieves a circle's payments, optionally restricted to
	// one round, ordered by round then kind.
	ListPayments(ctx context.Context, roscaID string, round *int) ([]*models.Payment, error)

	// UpdatePaymentStatus transitions a payment's settlement state and
	// records the transaction reference. Idempotent: confirming an
	// already-confirmed payment is a no-op, and a confirmed payment never
	// regresses. On the pending->confirmed transition the member's
	// cumulative totals (and payout round, for payouts) are updated in the
	// same transaction.
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, txRef, failReason string) error

	// CreateNotification queues an event for downstream delivery.
	CreateNotification(ctx context.Context, n *models.Notification) error

	// ListNotifications retrieves a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error)

	// MarkNotificationRead flags a notification as read.
	MarkNotificationRead(ctx context.Context, notificationID string) error

	// Close releases any resources held by the store.
	Close() error
}
