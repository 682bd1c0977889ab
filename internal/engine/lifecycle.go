package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tandahub/tanda/internal/models"
	"github.com/tandahub/tanda/internal/rotation"
	"github.com/tandahub/tanda/internal/storage"
)

// JoinROSCA adds the user to a forming circle. If the join fills the last
// seat and the start date has passed, the circle activates immediately;
// otherwise activation happens on a later AdvanceRound tick.
func (e *Engine) JoinROSCA(ctx context.Context, roscaID, userID string) (*models.Participation, error) {
	unlock := e.locks.lock(roscaID)
	defer unlock()

	participation, err := e.store.JoinROSCA(ctx, roscaID, userID)
	if err != nil {
		return nil, err
	}
	slog.Info("User joined rosca",
		"rosca_id", roscaID, "user_id", userID, "position", participation.Position)

	rosca, err := e.store.GetROSCA(ctx, roscaID)
	if err != nil {
		return nil, err
	}
	e.sink.Notify(ctx, &models.Notification{
		UserID:  rosca.AdminID,
		Title:   "New member",
		Message: fmt.Sprintf("%s joined %q at position %d", userID, rosca.Name, participation.Position),
		Type:    models.NotifyROSCAUpdate,
	})

	if _, err := e.activateIfReady(ctx, rosca); err != nil {
		// The join is already committed; activation is retried by the next
		// AdvanceRound tick.
		slog.Error("Activation failed after join",
			"rosca_id", roscaID, "user_id", userID, "error", err)
	}
	return participation, nil
}

// activateIfReady performs the forming -> active transition when the circle
// is full and the start date has been reached: positions freeze, the end
// date is computed from the rotation schedule, and round 1 payments are
// generated. Caller holds the circle lock.
func (e *Engine) activateIfReady(ctx context.Context, rosca *models.ROSCA) (bool, error) {
	if rosca.Status != models.ROSCAForming {
		return false, nil
	}
	if rosca.CurrentParticipants < rosca.MaxParticipants {
		return false, nil
	}
	if e.clock.Now().Unix() < rosca.StartDate {
		return false, nil
	}

	if err := e.store.UpdateROSCAStatus(ctx, rosca.ID, models.ROSCAActive, models.ROSCAForming); err != nil {
		return false, err
	}

	endDate, err := rotation.EndDate(rosca.StartDate, rosca.Rounds, rosca.Frequency)
	if err != nil {
		return false, err
	}
	if err := e.store.SetROSCASchedule(ctx, rosca.ID, endDate, 1); err != nil {
		return false, err
	}
	rosca.Status = models.ROSCAActive
	rosca.EndDate = endDate
	rosca.CurrentRound = 1

	participations, err := e.store.ListParticipations(ctx, rosca.ID)
	if err != nil {
		return false, err
	}
	if err := e.generateRoundPayments(ctx, rosca, participations, 1); err != nil {
		return false, err
	}

	slog.Info("ROSCA activated",
		"rosca_id", rosca.ID, "participants", rosca.CurrentParticipants, "end_date", endDate)
	e.notifyParticipants(ctx, participations, models.NotifyROSCAUpdate,
		"ROSCA started",
		fmt.Sprintf("%q is now active; round 1 contributions of %s are due", rosca.Name, microAlgos(rosca.ContributionAmount)))
	return true, nil
}

// generateRoundPayments writes one contribution payment per active member
// plus the round's payout to the rotation payee. Payments are generated
// round by round, never in bulk; a duplicate-round error means this round
// was already generated and is absorbed so re-entry stays idempotent.
func (e *Engine) generateRoundPayments(ctx context.Context, rosca *models.ROSCA, participations []*models.Participation, round int) error {
	dueDate, err := rotation.DueDate(rosca.StartDate, round, rosca.Frequency)
	if err != nil {
		return err
	}
	payee, err := rotation.Payee(participations, round, rosca.MaxParticipants)
	if err != nil {
		return err
	}

	for _, p := range participations {
		if p.Status != models.ParticipationActive {
			continue
		}
		contribution := &models.Payment{
			ROSCAID: rosca.ID,
			UserID:  p.UserID,
			Kind:    models.PaymentContribution,
			Amount:  rosca.ContributionAmount,
			Round:   round,
			DueDate: dueDate,
		}
		if err := e.store.RecordPayment(ctx, contribution); err != nil {
			if errors.Is(err, storage.ErrDuplicateRound) {
				continue
			}
			return err
		}
		e.sink.Notify(ctx, &models.Notification{
			UserID:  p.UserID,
			Title:   "Contribution due",
			Message: fmt.Sprintf("Round %d contribution of %s to %q is due", round, microAlgos(rosca.ContributionAmount), rosca.Name),
			Type:    models.NotifyPaymentDue,
		})
	}

	payout := &models.Payment{
		ROSCAID: rosca.ID,
		UserID:  payee.UserID,
		Kind:    models.PaymentPayout,
		Amount:  rosca.TotalAmount,
		Round:   round,
		DueDate: dueDate,
	}
	if err := e.store.RecordPayment(ctx, payout); err != nil && !errors.Is(err, storage.ErrDuplicateRound) {
		return err
	}

	slog.Info("Round payments generated",
		"rosca_id", rosca.ID, "round", round, "payee", payee.UserID, "due_date", dueDate)
	return nil
}

// AdvanceRound evaluates the circle's state machine and moves it forward if
// ready. It is idempotent: a round with any pending payment blocks, a
// forming circle activates only when full and started, and terminal states
// are left alone. Returns whether a transition happened.
func (e *Engine) AdvanceRound(ctx context.Context, roscaID string) (bool, error) {
	unlock := e.locks.lock(roscaID)
	defer unlock()

	rosca, err := e.store.GetROSCA(ctx, roscaID)
	if err != nil {
		return false, err
	}

	switch rosca.Status {
	case models.ROSCAForming:
		return e.activateIfReady(ctx, rosca)
	case models.ROSCAActive:
		return e.advanceActiveRound(ctx, rosca)
	default:
		// Completed and cancelled are terminal; advancing is a no-op.
		return false, nil
	}
}

// advanceActiveRound moves an active circle past its current round once
// every payment of that round has reached a terminal status. Caller holds
// the circle lock.
func (e *Engine) advanceActiveRound(ctx context.Context, rosca *models.ROSCA) (bool, error) {
	round := rosca.CurrentRound
	participations, err := e.store.ListParticipations(ctx, rosca.ID)
	if err != nil {
		return false, err
	}

	// Regenerate the current round before evaluating it. Generation is
	// idempotent, so an intact round is untouched; a round left partial by
	// an earlier store failure gets its missing payments back, keeping the
	// one-payout-per-round accounting whole.
	if err := e.generateRoundPayments(ctx, rosca, participations, round); err != nil {
		return false, err
	}

	payments, err := e.store.ListPayments(ctx, rosca.ID, &round)
	if err != nil {
		return false, err
	}
	if len(payments) == 0 {
		return false, fmt.Errorf("rosca %s round %d has no payments", rosca.ID, round)
	}

	allConfirmed := true
	for _, p := range payments {
		if !p.Status.IsTerminal() {
			// A pending payment blocks advancement; this prevents
			// double-scheduling the next round.
			return false, nil
		}
		if p.Status != models.PaymentConfirmed {
			allConfirmed = false
		}
	}

	if round >= rosca.Rounds {
		if !allConfirmed {
			// Final round has failures awaiting external resolution;
			// the circle stays active.
			return false, nil
		}
		return true, e.complete(ctx, rosca)
	}

	if !allConfirmed {
		// Failed payments in a non-final round are terminal for gating
		// purposes; defaults are surfaced separately and the rotation
		// continues.
		slog.Warn("Advancing past round with failed payments",
			"rosca_id", rosca.ID, "round", round)
	}

	next := round + 1
	if err := e.generateRoundPayments(ctx, rosca, participations, next); err != nil {
		return false, err
	}
	if err := e.store.SetROSCASchedule(ctx, rosca.ID, rosca.EndDate, next); err != nil {
		return false, err
	}
	slog.Info("Round advanced", "rosca_id", rosca.ID, "from", round, "to", next)
	return true, nil
}

// complete performs the active -> completed transition after the final
// round's payments all confirmed.
func (e *Engine) complete(ctx context.Context, rosca *models.ROSCA) error {
	if err := e.store.UpdateROSCAStatus(ctx, rosca.ID, models.ROSCACompleted, models.ROSCAActive); err != nil {
		return err
	}

	participations, err := e.store.ListParticipations(ctx, rosca.ID)
	if err != nil {
		return err
	}
	for _, p := range participations {
		if p.Status != models.ParticipationActive {
			continue
		}
		if err := e.store.UpdateParticipationStatus(ctx, p.ID, models.ParticipationCompleted); err != nil {
			return err
		}
	}

	slog.Info("ROSCA completed", "rosca_id", rosca.ID, "rounds", rosca.Rounds)
	e.notifyParticipants(ctx, participations, models.NotifyROSCAUpdate,
		"ROSCA completed",
		fmt.Sprintf("%q finished all %d rounds", rosca.Name, rosca.Rounds))
	return nil
}

// CancelROSCA performs the forming|active -> cancelled transition on the
// administrator's request. Outstanding pending payments are marked failed
// with the cancellation reason; no further payments are ever generated.
func (e *Engine) CancelROSCA(ctx context.Context, roscaID, requesterID, reason string) error {
	unlock := e.locks.lock(roscaID)
	defer unlock()

	rosca, err := e.store.GetROSCA(ctx, roscaID)
	if err != nil {
		return err
	}
	if rosca.AdminID != requesterID {
		return fmt.Errorf("%w: only the administrator can cancel rosca %s",
			storage.ErrStateForbidden, roscaID)
	}

	if err := e.store.UpdateROSCAStatus(ctx, roscaID, models.ROSCACancelled,
		models.ROSCAForming, models.ROSCAActive); err != nil {
		return err
	}

	payments, err := e.store.ListPayments(ctx, roscaID, nil)
	if err != nil {
		return err
	}
	failReason := "cancelled"
	if reason != "" {
		failReason = "cancelled: " + reason
	}
	for _, p := range payments {
		if p.Status != models.PaymentPending {
			continue
		}
		if err := e.store.UpdatePaymentStatus(ctx, p.ID, models.PaymentFailed, "", failReason); err != nil {
			return err
		}
	}

	participations, err := e.store.ListParticipations(ctx, roscaID)
	if err != nil {
		return err
	}
	slog.Info("ROSCA cancelled", "rosca_id", roscaID, "requester", requesterID, "reason", reason)
	e.notifyParticipants(ctx, participations, models.NotifyROSCAUpdate,
		"ROSCA cancelled",
		fmt.Sprintf("%q was cancelled by its administrator: %s", rosca.Name, reason))
	return nil
}

// SubmitPayment kicks off settlement for a due payment. Contributions move
// from the member's wallet into the pool; payouts move from the pool to the
// payee. Confirmation proceeds in the background; the caller gets the
// transaction ID as soon as the broadcast is accepted.
func (e *Engine) SubmitPayment(ctx context.Context, paymentID string) (string, error) {
	payment, err := e.store.GetPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}

	wallet, err := e.identity.WalletAddress(ctx, payment.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve wallet for user %s: %w", payment.UserID, err)
	}

	var sender, receiver string
	switch payment.Kind {
	case models.PaymentContribution:
		sender, receiver = wallet, e.poolAddress
	case models.PaymentPayout:
		sender, receiver = e.poolAddress, wallet
	default:
		return "", fmt.Errorf("unknown payment kind %q", payment.Kind)
	}

	handle, err := e.settler.Settle(ctx, payment, sender, receiver)
	if err != nil {
		return "", err
	}
	return handle.TxID, nil
}

// MarkDefaulted transitions a member to defaulted after a failed
// contribution that policy chose not to retry. The circle itself is never
// cancelled here: a default is surfaced to the remaining members for group
// resolution, not resolved by guessing.
func (e *Engine) MarkDefaulted(ctx context.Context, roscaID, userID string) error {
	unlock := e.locks.lock(roscaID)
	defer unlock()

	rosca, err := e.store.GetROSCA(ctx, roscaID)
	if err != nil {
		return err
	}
	participation, err := e.store.GetParticipation(ctx, roscaID, userID)
	if err != nil {
		return err
	}

	payments, err := e.store.ListPayments(ctx, roscaID, nil)
	if err != nil {
		return err
	}
	hasFailedContribution := false
	for _, p := range payments {
		if p.UserID == userID && p.Kind == models.PaymentContribution && p.Status == models.PaymentFailed {
			hasFailedContribution = true
			break
		}
	}
	if !hasFailedContribution {
		return fmt.Errorf("%w: user %s has no failed contribution in rosca %s",
			storage.ErrStateForbidden, userID, roscaID)
	}

	if err := e.store.UpdateParticipationStatus(ctx, participation.ID, models.ParticipationDefaulted); err != nil {
		return err
	}

	participations, err := e.store.ListParticipations(ctx, roscaID)
	if err != nil {
		return err
	}
	slog.Warn("Participant defaulted", "rosca_id", roscaID, "user_id", userID)
	e.notifyParticipants(ctx, participations, models.NotifyROSCAUpdate,
		"Member defaulted",
		fmt.Sprintf("A member of %q missed a contribution; the group decides how to proceed", rosca.Name))
	return nil
}
