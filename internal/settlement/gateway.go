package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tandahub/tanda/internal/models"
)

// Typed settlement outcomes. All are retryable by re-invoking Submit except
// ErrAlreadySettled, which is permanent.
var (
	// ErrAlreadySettled rejects re-submission of a confirmed payment.
	ErrAlreadySettled = errors.New("payment already settled")

	// ErrSubmission indicates the signing/broadcast service refused the
	// intent. The payment is marked failed and may be re-submitted.
	ErrSubmission = errors.New("transaction submission failed")

	// ErrTimeout indicates the confirmation poll budget was exhausted. The
	// payment is marked failed but not deleted; a retry re-submits it.
	ErrTimeout = errors.New("confirmation timed out")

	// ErrRejected indicates the chain rejected the transaction.
	ErrRejected = errors.New("transaction rejected on chain")
)

const (
	// DefaultMaxRounds matches the confirmation window used against
	// Algorand: four polling rounds before giving up.
	DefaultMaxRounds = 4

	// DefaultPollInterval approximates Algorand block time.
	DefaultPollInterval = 4 * time.Second
)

// Gateway executes payments against the chain. Submit returns as soon as
// the broadcast is accepted; confirmation runs as its own schedulable unit
// of work so many circles settle concurrently without blocking callers.
type Gateway struct {
	store        PaymentStore
	broadcaster  Broadcaster
	chain        ChainQuery
	pollInterval time.Duration
	maxRounds    int

	wg sync.WaitGroup
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPollInterval overrides the confirmation polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) { g.pollInterval = d }
}

// WithMaxRounds overrides the number of confirmation attempts.
func WithMaxRounds(n int) Option {
	return func(g *Gateway) { g.maxRounds = n }
}

// NewGateway creates a settlement gateway over the given external services.
func NewGateway(store PaymentStore, broadcaster Broadcaster, chain ChainQuery, opts ...Option) *Gateway {
	g := &Gateway{
		store:        store,
		broadcaster:  broadcaster,
		chain:        chain,
		pollInterval: DefaultPollInterval,
		maxRounds:    DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit builds a transfer intent for the payment and hands it to the
// signing service. The payment must not already be confirmed. On success
// the transaction reference is recorded and the payment stays pending until
// AwaitConfirmation resolves it; on broadcast failure the payment is marked
// failed and ErrSubmission is returned.
func (g *Gateway) Submit(ctx context.Context, payment *models.Payment, sender, receiver string) (TxHandle, error) {
	// The settlement check reads the ledger, not the caller's copy, which
	// may be stale by the time submission happens.
	current, err := g.store.GetPayment(ctx, payment.ID)
	if err != nil {
		return TxHandle{}, err
	}
	if current.Status == models.PaymentConfirmed {
		return TxHandle{}, fmt.Errorf("%w: payment %s", ErrAlreadySettled, payment.ID)
	}

	intent := TransferIntent{
		Sender:   sender,
		Receiver: receiver,
		Amount:   payment.Amount,
		Note:     fmt.Sprintf("rosca:%s round:%d %s", payment.ROSCAID, payment.Round, payment.Kind),
	}

	submissionsTotal.Inc()
	handle, err := g.broadcaster.SignAndBroadcast(ctx, intent)
	if err != nil {
		failuresTotal.WithLabelValues("submission").Inc()
		if storeErr := g.store.UpdatePaymentStatus(ctx, payment.ID, models.PaymentFailed, "", "submission rejected"); storeErr != nil {
			slog.Error("Failed to mark payment failed after broadcast rejection",
				"payment_id", payment.ID, "error", storeErr)
		}
		return TxHandle{}, fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	// Record the tx reference while the payment remains pending.
	if err := g.store.UpdatePaymentStatus(ctx, payment.ID, models.PaymentPending, handle.TxID, ""); err != nil {
		return TxHandle{}, fmt.Errorf("failed to record tx reference: %w", err)
	}

	slog.Info("Payment submitted",
		"payment_id", payment.ID,
		"rosca_id", payment.ROSCAID,
		"round", payment.Round,
		"kind", payment.Kind,
		"tx_id", handle.TxID,
	)
	return handle, nil
}

// AwaitConfirmation polls the chain up to the configured number of rounds.
// On confirmation the payment flips to confirmed with its tx reference; on
// chain rejection or an exhausted poll budget it flips to failed. Canceling
// the context stops polling without touching the payment: it stays pending
// for later reconciliation, and the broadcast transaction is unaffected.
func (g *Gateway) AwaitConfirmation(ctx context.Context, paymentID string, handle TxHandle) (string, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= g.maxRounds; attempt++ {
		status, err := g.chain.TransactionStatus(ctx, handle)
		if err != nil {
			slog.Warn("Chain query failed",
				"payment_id", paymentID, "tx_id", handle.TxID, "attempt", attempt, "error", err)
		} else {
			switch status {
			case StatusConfirmed:
				if err := g.store.UpdatePaymentStatus(ctx, paymentID, models.PaymentConfirmed, handle.TxID, ""); err != nil {
					return "", fmt.Errorf("failed to record confirmation: %w", err)
				}
				confirmationsTotal.Inc()
				confirmationSeconds.Observe(time.Since(handle.SubmittedAt).Seconds())
				slog.Info("Payment confirmed", "payment_id", paymentID, "tx_id", handle.TxID)
				return handle.TxID, nil

			case StatusFailed:
				failuresTotal.WithLabelValues("rejected").Inc()
				if err := g.store.UpdatePaymentStatus(ctx, paymentID, models.PaymentFailed, handle.TxID, "rejected on chain"); err != nil {
					return "", fmt.Errorf("failed to record rejection: %w", err)
				}
				return "", fmt.Errorf("%w: payment %s tx %s", ErrRejected, paymentID, handle.TxID)
			}
		}

		if attempt == g.maxRounds {
			break
		}
		select {
		case <-ctx.Done():
			// Caller cancelled the wait; the payment stays pending.
			return "", ctx.Err()
		case <-ticker.C:
		}
	}

	failuresTotal.WithLabelValues("timeout").Inc()
	if err := g.store.UpdatePaymentStatus(ctx, paymentID, models.PaymentFailed, handle.TxID, "confirmation timeout"); err != nil {
		return "", fmt.Errorf("failed to record timeout: %w", err)
	}
	return "", fmt.Errorf("%w: payment %s after %d rounds", ErrTimeout, paymentID, g.maxRounds)
}

// Settle submits the payment and confirms it in the background, so the
// caller never blocks on chain latency. The confirmation inherits values
// from ctx but not its cancellation; it is bounded by the poll budget.
func (g *Gateway) Settle(ctx context.Context, payment *models.Payment, sender, receiver string) (TxHandle, error) {
	handle, err := g.Submit(ctx, payment, sender, receiver)
	if err != nil {
		return TxHandle{}, err
	}

	confirmCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		time.Duration(g.maxRounds+1)*g.pollInterval,
	)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		if _, err := g.AwaitConfirmation(confirmCtx, payment.ID, handle); err != nil {
			slog.Warn("Background confirmation failed",
				"payment_id", payment.ID, "tx_id", handle.TxID, "error", err)
		}
	}()
	return handle, nil
}

// Wait blocks until all background confirmations have finished. Used on
// shutdown and in tests.
func (g *Gateway) Wait() {
	g.wg.Wait()
}
