package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tandahub/tanda/internal/models"
	"github.com/tandahub/tanda/internal/storage"
)

const paymentColumns = `id, rosca_id, user_id, kind, amount, round_number,
	tx_ref, status, fail_reason, due_date, paid_date, created_at`

// RecordPayment persists a newly scheduled payment. The partial unique
// indexes reject a second payout for a round or a second contribution by the
// same member in a round; those violations surface as ErrDuplicateRound.
func (s *SQLiteStore) RecordPayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.CreatedAt == 0 {
		payment.CreatedAt = time.Now().Unix()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, rosca_id, user_id, kind, amount, round_number,
			tx_ref, status, fail_reason, due_date, paid_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.ROSCAID, payment.UserID, payment.Kind, payment.Amount,
		payment.Round, payment.TxRef, payment.Status, payment.FailReason,
		payment.DueDate, payment.PaidDate, payment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s by %s for rosca %s round %d",
				storage.ErrDuplicateRound, payment.Kind, payment.UserID,
				payment.ROSCAID, payment.Round)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
// modernc.org/sqlite surfaces these as textual driver errors.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetPayment retrieves a payment by ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", paymentID)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment %s", storage.ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListPayments retrieves a circle's payments, optionally for one round.
func (s *SQLiteStore) ListPayments(ctx context.Context, roscaID string, round *int) ([]*models.Payment, error) {
	query := "SELECT " + paymentColumns + " FROM payments WHERE rosca_id = ?"
	args := []any{roscaID}
	if round != nil {
		query += " AND round_number = ?"
		args = append(args, *round)
	}
	query += " ORDER BY round_number, kind, created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row scanner) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID, &p.ROSCAID, &p.UserID, &p.Kind, &p.Amount, &p.Round,
		&p.TxRef, &p.Status, &p.FailReason, &p.DueDate, &p.PaidDate, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePaymentStatus applies a settlement state transition.
//
// Idempotence: a payment that is already confirmed is never touched again.
// A duplicate confirmation notification is absorbed as a no-op, and a
// confirmed payment cannot regress to pending or failed. The member's
// cumulative totals are updated in the same transaction as the
// pending->confirmed flip, so the ledger never shows a confirmed payment
// without its accounting effect.
func (s *SQLiteStore) UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, txRef, failReason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p := &models.Payment{}
	err = tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", paymentID,
	).Scan(
		&p.ID, &p.ROSCAID, &p.UserID, &p.Kind, &p.Amount, &p.Round,
		&p.TxRef, &p.Status, &p.FailReason, &p.DueDate, &p.PaidDate, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: payment %s", storage.ErrNotFound, paymentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load payment: %w", err)
	}

	if p.Status == models.PaymentConfirmed {
		// Confirmed is terminal; duplicate updates are absorbed.
		return nil
	}

	paidDate := p.PaidDate
	if status == models.PaymentConfirmed {
		paidDate = time.Now().Unix()
		failReason = ""
	}
	if txRef == "" {
		txRef = p.TxRef
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE payments SET status = ?, tx_ref = ?, fail_reason = ?, paid_date = ? WHERE id = ?",
		status, txRef, failReason, paidDate, paymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	if status == models.PaymentConfirmed {
		if err := applyAccounting(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// applyAccounting rolls a freshly confirmed payment into the member's
// cumulative totals.
func applyAccounting(ctx context.Context, tx *sql.Tx, p *models.Payment) error {
	switch p.Kind {
	case models.PaymentContribution:
		_, err := tx.ExecContext(ctx,
			`UPDATE participations SET total_contributed = total_contributed + ?
			 WHERE rosca_id = ? AND user_id = ?`,
			p.Amount, p.ROSCAID, p.UserID,
		)
		if err != nil {
			return fmt.Errorf("failed to update contribution total: %w", err)
		}
	case models.PaymentPayout:
		_, err := tx.ExecContext(ctx,
			`UPDATE participations SET total_received = total_received + ?, payout_round = ?
			 WHERE rosca_id = ? AND user_id = ?`,
			p.Amount, p.Round, p.ROSCAID, p.UserID,
		)
		if err != nil {
			return fmt.Errorf("failed to update payout total: %w", err)
		}
	default:
		return fmt.Errorf("unknown payment kind %q", p.Kind)
	}
	return nil
}
