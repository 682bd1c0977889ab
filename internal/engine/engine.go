// Package engine is the lifecycle manager for savings circles: the entry
// point external callers invoke. It orchestrates the ledger store, the
// rotation schedule, and the settlement gateway, and owns the per-circle
// state machine (forming -> active -> completed/cancelled).
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tandahub/tanda/internal/models"
	"github.com/tandahub/tanda/internal/notify"
	"github.com/tandahub/tanda/internal/settlement"
	"github.com/tandahub/tanda/internal/storage"
)

// Clock abstracts time for activation checks; tests substitute a fixed one.
type Clock interface {
	Now() time.Time
}

// DefaultClock reads the system clock.
type DefaultClock struct{}

func (DefaultClock) Now() time.Time { return time.Now() }

// Identity resolves a user's wallet address. The engine only needs a
// stable identifier and a settlement address; profiles live elsewhere.
type Identity interface {
	WalletAddress(ctx context.Context, userID string) (string, error)
}

// Settler executes a payment on chain without blocking the caller on
// confirmation.
type Settler interface {
	Settle(ctx context.Context, payment *models.Payment, sender, receiver string) (settlement.TxHandle, error)
}

// Engine coordinates circle lifecycle, membership, payment generation, and
// settlement. All mutations of one circle are serialized through a
// per-circle lock; reads and cross-circle work proceed concurrently.
type Engine struct {
	store       storage.Store
	settler     Settler
	identity    Identity
	sink        notify.Sink
	clock       Clock
	poolAddress string
	locks       *keyedMutex
}

// Config carries the engine's collaborators.
type Config struct {
	Store    storage.Store
	Settler  Settler
	Identity Identity
	Sink     notify.Sink
	Clock    Clock
	// PoolAddress is the escrow wallet contributions flow into and payouts
	// flow out of.
	PoolAddress string
}

// New creates an engine. A nil Clock defaults to the system clock; a nil
// Sink discards events.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = DefaultClock{}
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.NopSink{}
	}
	return &Engine{
		store:       cfg.Store,
		settler:     cfg.Settler,
		identity:    cfg.Identity,
		sink:        cfg.Sink,
		clock:       cfg.Clock,
		poolAddress: cfg.PoolAddress,
		locks:       newKeyedMutex(),
	}
}

// CreateROSCAInput is the validated boundary between callers (API, UI) and
// entity construction.
type CreateROSCAInput struct {
	Name            string
	Description     string
	TotalAmount     int64
	Frequency       models.Frequency
	Rounds          int
	MaxParticipants int
	StartDate       int64
	AdminID         string
}

// CreateROSCA creates a circle in the forming state. Configuration
// arithmetic is validated by the store before anything persists.
func (e *Engine) CreateROSCA(ctx context.Context, in CreateROSCAInput) (*models.ROSCA, error) {
	rosca := &models.ROSCA{
		Name:            in.Name,
		Description:     in.Description,
		TotalAmount:     in.TotalAmount,
		Frequency:       in.Frequency,
		Rounds:          in.Rounds,
		MaxParticipants: in.MaxParticipants,
		StartDate:       in.StartDate,
		AdminID:         in.AdminID,
	}
	if err := e.store.CreateROSCA(ctx, rosca); err != nil {
		return nil, err
	}
	return rosca, nil
}

// GetROSCA retrieves a circle by ID.
func (e *Engine) GetROSCA(ctx context.Context, roscaID string) (*models.ROSCA, error) {
	return e.store.GetROSCA(ctx, roscaID)
}

// ListROSCAs retrieves circles, optionally filtered by status.
func (e *Engine) ListROSCAs(ctx context.Context, status models.ROSCAStatus) ([]*models.ROSCA, error) {
	return e.store.ListROSCAs(ctx, storage.ROSCAFilter{Status: status})
}

// ListParticipations retrieves all of a user's memberships.
func (e *Engine) ListParticipations(ctx context.Context, userID string) ([]*models.Participation, error) {
	return e.store.ListParticipationsByUser(ctx, userID)
}

// ListPayments retrieves a circle's payments, optionally for one round.
func (e *Engine) ListPayments(ctx context.Context, roscaID string, round *int) ([]*models.Payment, error) {
	return e.store.ListPayments(ctx, roscaID, round)
}

// ListNotifications retrieves a user's queued events.
func (e *Engine) ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error) {
	return e.store.ListNotifications(ctx, userID)
}

// notifyParticipants fans one event out to every member of a circle.
func (e *Engine) notifyParticipants(ctx context.Context, participations []*models.Participation, typ models.NotificationType, title, message string) {
	for _, p := range participations {
		e.sink.Notify(ctx, &models.Notification{
			UserID:  p.UserID,
			Title:   title,
			Message: message,
			Type:    typ,
		})
	}
}

func microAlgos(amount int64) string {
	return fmt.Sprintf("%d.%06d ALGO", amount/1_000_000, amount%1_000_000)
}
