package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tandahub/tanda/internal/identity"
	"github.com/tandahub/tanda/internal/models"
	"github.com/tandahub/tanda/internal/settlement"
	"github.com/tandahub/tanda/internal/storage"
	"github.com/tandahub/tanda/internal/storage/sqlite"
)

// fakeClock lets tests control activation timing.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeSettler records settle calls without touching the chain.
type fakeSettler struct {
	mu    sync.Mutex
	calls []settleCall
}

type settleCall struct {
	paymentID string
	sender    string
	receiver  string
}

func (s *fakeSettler) Settle(_ context.Context, payment *models.Payment, sender, receiver string) (settlement.TxHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, settleCall{paymentID: payment.ID, sender: sender, receiver: receiver})
	return settlement.TxHandle{TxID: "TX-" + payment.ID, SubmittedAt: time.Now()}, nil
}

const poolAddr = "POOL7777777777777777777777777777777777777777777777777777777A"

func setupEngine(t *testing.T, clock Clock) (*Engine, storage.Store, *fakeSettler) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	directory := identity.StaticDirectory{}
	for i := 1; i <= 20; i++ {
		directory[fmt.Sprintf("user-%d", i)] = fmt.Sprintf("ADDR%d", i)
	}
	directory["admin-1"] = "ADDRADMIN"

	settler := &fakeSettler{}
	eng := New(Config{
		Store:       store,
		Settler:     settler,
		Identity:    directory,
		Clock:       clock,
		PoolAddress: poolAddr,
	})
	return eng, store, settler
}

func confirmAll(t *testing.T, store storage.Store, roscaID string, round int) {
	t.Helper()
	payments, err := store.ListPayments(context.Background(), roscaID, &round)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	for i, p := range payments {
		if err := store.UpdatePaymentStatus(context.Background(), p.ID, models.PaymentConfirmed, fmt.Sprintf("TX-%d-%d", round, i), ""); err != nil {
			t.Fatalf("UpdatePaymentStatus failed: %v", err)
		}
	}
}

// The canonical scenario: a 50,000 ALGO circle with 10 members. Ten joins
// succeed, the eleventh is rejected, and activation generates ten
// contributions plus one payout to the position-1 member.
func TestActivationScenario(t *testing.T) {
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start.Add(-24 * time.Hour)}
	eng, _, _ := setupEngine(t, clock)
	ctx := context.Background()

	rosca, err := eng.CreateROSCA(ctx, CreateROSCAInput{
		Name:            "Familia Savings",
		TotalAmount:     50_000_000_000, // 50,000 ALGO
		Frequency:       models.FrequencyMonthly,
		Rounds:          10,
		MaxParticipants: 10,
		StartDate:       start.Unix(),
		AdminID:         "admin-1",
	})
	if err != nil {
		t.Fatalf("CreateROSCA failed: %v", err)
	}
	if rosca.ContributionAmount != 5_000_000_000 {
		t.Fatalf("ContributionAmount = %d, want 5_000_000_000", rosca.ContributionAmount)
	}

	for i := 1; i <= 10; i++ {
		p, err := eng.JoinROSCA(ctx, rosca.ID, fmt.Sprintf("user-%d", i))
		if err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
		if p.Position != i {
			t.Errorf("join %d got position %d", i, p.Position)
		}
	}

	if _, err := eng.JoinROSCA(ctx, rosca.ID, "user-11"); !errors.Is(err, storage.ErrFull) {
		t.Errorf("11th join: expected ErrFull, got %v", err)
	}

	// Full but before the start date: still forming.
	current, err := eng.GetROSCA(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("GetROSCA failed: %v", err)
	}
	if current.Status != models.ROSCAForming {
		t.Fatalf("Status = %s before start date, want forming", current.Status)
	}

	clock.set(start.Add(time.Hour))
	advanced, err := eng.AdvanceRound(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("AdvanceRound failed: %v", err)
	}
	if !advanced {
		t.Fatal("expected activation to advance")
	}

	current, err = eng.GetROSCA(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("GetROSCA failed: %v", err)
	}
	if current.Status != models.ROSCAActive {
		t.Errorf("Status = %s, want active", current.Status)
	}
	if current.CurrentRound != 1 {
		t.Errorf("CurrentRound = %d, want 1", current.CurrentRound)
	}
	if current.EndDate == 0 {
		t.Error("EndDate not computed on activation")
	}

	round := 1
	payments, err := eng.ListPayments(ctx, rosca.ID, &round)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	contributions, payouts := 0, 0
	for _, p := range payments {
		switch p.Kind {
		case models.PaymentContribution:
			contributions++
			if p.Amount != 5_000_000_000 {
				t.Errorf("contribution amount = %d", p.Amount)
			}
		case models.PaymentPayout:
			payouts++
			if p.Amount != 50_000_000_000 {
				t.Errorf("payout amount = %d", p.Amount)
			}
			if p.UserID != "user-1" {
				t.Errorf("round 1 payout to %s, want user-1 (position 1)", p.UserID)
			}
		}
	}
	if contributions != 10 || payouts != 1 {
		t.Errorf("round 1 generated %d contributions and %d payouts, want 10 and 1", contributions, payouts)
	}
}

func activeROSCA(t *testing.T, eng *Engine, members, rounds int) *models.ROSCA {
	t.Helper()
	ctx := context.Background()

	start := time.Now().Add(-time.Hour)
	rosca, err := eng.CreateROSCA(ctx, CreateROSCAInput{
		Name:            "Test Circle",
		TotalAmount:     int64(members) * 1_000_000,
		Frequency:       models.FrequencyWeekly,
		Rounds:          rounds,
		MaxParticipants: members,
		StartDate:       start.Unix(),
		AdminID:         "admin-1",
	})
	if err != nil {
		t.Fatalf("CreateROSCA failed: %v", err)
	}
	for i := 1; i <= members; i++ {
		if _, err := eng.JoinROSCA(ctx, rosca.ID, fmt.Sprintf("user-%d", i)); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}

	current, err := eng.GetROSCA(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("GetROSCA failed: %v", err)
	}
	if current.Status != models.ROSCAActive {
		t.Fatalf("Status = %s after filling, want active", current.Status)
	}
	return current
}

func TestRoundAdvancement(t *testing.T) {
	eng, store, _ := setupEngine(t, DefaultClock{})
	ctx := context.Background()
	rosca := activeROSCA(t, eng, 3, 3)

	t.Run("pending payment blocks advancement", func(t *testing.T) {
		advanced, err := eng.AdvanceRound(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("AdvanceRound failed: %v", err)
		}
		if advanced {
			t.Error("advanced while round 1 payments pending")
		}
	})

	t.Run("partially confirmed round still blocks", func(t *testing.T) {
		round := 1
		payments, err := store.ListPayments(ctx, rosca.ID, &round)
		if err != nil {
			t.Fatalf("ListPayments failed: %v", err)
		}
		// Confirm everything except the payout.
		for _, p := range payments {
			if p.Kind == models.PaymentContribution {
				if err := store.UpdatePaymentStatus(ctx, p.ID, models.PaymentConfirmed, "TX", ""); err != nil {
					t.Fatalf("UpdatePaymentStatus failed: %v", err)
				}
			}
		}

		advanced, err := eng.AdvanceRound(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("AdvanceRound failed: %v", err)
		}
		if advanced {
			t.Error("advanced while payout pending")
		}
	})

	t.Run("terminal round generates the next one", func(t *testing.T) {
		confirmAll(t, store, rosca.ID, 1)

		advanced, err := eng.AdvanceRound(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("AdvanceRound failed: %v", err)
		}
		if !advanced {
			t.Fatal("expected advancement")
		}

		current, err := eng.GetROSCA(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("GetROSCA failed: %v", err)
		}
		if current.CurrentRound != 2 {
			t.Errorf("CurrentRound = %d, want 2", current.CurrentRound)
		}

		round := 2
		payments, err := store.ListPayments(ctx, rosca.ID, &round)
		if err != nil {
			t.Fatalf("ListPayments failed: %v", err)
		}
		var payout *models.Payment
		for _, p := range payments {
			if p.Kind == models.PaymentPayout {
				payout = p
			}
		}
		if payout == nil {
			t.Fatal("round 2 has no payout")
		}
		if payout.UserID != "user-2" {
			t.Errorf("round 2 payout to %s, want user-2 (position 2)", payout.UserID)
		}
	})

	t.Run("advance is idempotent", func(t *testing.T) {
		advanced, err := eng.AdvanceRound(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("AdvanceRound failed: %v", err)
		}
		if advanced {
			t.Error("second advance should be a no-op while round 2 pending")
		}
	})
}

// A timed-out payout leaves the round blocked only while pending: once the
// gateway marks it failed the round is terminal and advancement resumes.
func TestAdvancementAfterTimeout(t *testing.T) {
	eng, store, _ := setupEngine(t, DefaultClock{})
	ctx := context.Background()
	rosca := activeROSCA(t, eng, 3, 3)

	round := 1
	payments, err := store.ListPayments(ctx, rosca.ID, &round)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	for _, p := range payments {
		if p.Kind == models.PaymentContribution {
			if err := store.UpdatePaymentStatus(ctx, p.ID, models.PaymentConfirmed, "TX", ""); err != nil {
				t.Fatalf("UpdatePaymentStatus failed: %v", err)
			}
		} else {
			// The gateway's confirmation poll budget ran out.
			if err := store.UpdatePaymentStatus(ctx, p.ID, models.PaymentFailed, "TXP", "confirmation timeout"); err != nil {
				t.Fatalf("UpdatePaymentStatus failed: %v", err)
			}
		}
	}

	advanced, err := eng.AdvanceRound(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("AdvanceRound failed: %v", err)
	}
	if !advanced {
		t.Error("expected advancement once all round 1 payments terminal")
	}
}

// failingPayoutStore rejects a configured number of payout inserts to
// simulate store failures mid-generation.
type failingPayoutStore struct {
	storage.Store
	mu       sync.Mutex
	failures int
}

func (s *failingPayoutStore) RecordPayment(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	fail := p.Kind == models.PaymentPayout && s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("write failed")
	}
	return s.Store.RecordPayment(ctx, p)
}

// A store failure while generating a round must not strand the circle: the
// join that triggered activation still reports its committed membership, and
// the next advance regenerates the missing payments before gating.
func TestAdvanceRepairsPartialRound(t *testing.T) {
	base, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { base.Close() })
	store := &failingPayoutStore{Store: base, failures: 1}

	eng := New(Config{
		Store:   store,
		Settler: &fakeSettler{},
		Identity: identity.StaticDirectory{
			"user-1": "ADDR1", "user-2": "ADDR2", "user-3": "ADDR3",
		},
		PoolAddress: poolAddr,
	})
	ctx := context.Background()

	rosca, err := eng.CreateROSCA(ctx, CreateROSCAInput{
		Name:            "Repair Circle",
		TotalAmount:     3_000_000,
		Frequency:       models.FrequencyWeekly,
		Rounds:          3,
		MaxParticipants: 3,
		StartDate:       time.Now().Add(-time.Hour).Unix(),
		AdminID:         "admin-1",
	})
	if err != nil {
		t.Fatalf("CreateROSCA failed: %v", err)
	}

	for i := 1; i <= 2; i++ {
		if _, err := eng.JoinROSCA(ctx, rosca.ID, fmt.Sprintf("user-%d", i)); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}

	// The filling join triggers activation; the payout insert fails but the
	// committed membership is still returned.
	p, err := eng.JoinROSCA(ctx, rosca.ID, "user-3")
	if err != nil {
		t.Fatalf("filling join failed despite committed membership: %v", err)
	}
	if p.Position != 3 {
		t.Errorf("filling join got position %d, want 3", p.Position)
	}

	current, err := eng.GetROSCA(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("GetROSCA failed: %v", err)
	}
	if current.Status != models.ROSCAActive || current.CurrentRound != 1 {
		t.Fatalf("circle is %s round %d, want active round 1", current.Status, current.CurrentRound)
	}

	round := 1
	payments, err := store.ListPayments(ctx, rosca.ID, &round)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	payouts := 0
	for _, p := range payments {
		if p.Kind == models.PaymentPayout {
			payouts++
		}
	}
	if len(payments) != 3 || payouts != 0 {
		t.Fatalf("round 1 has %d payments with %d payouts after failure, want 3 and 0", len(payments), payouts)
	}

	// Advancing does not skip the broken round: it regenerates the payout,
	// which is pending, so the round still gates.
	advanced, err := eng.AdvanceRound(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("AdvanceRound failed: %v", err)
	}
	if advanced {
		t.Error("advanced past a round whose payout is pending")
	}

	payments, err = store.ListPayments(ctx, rosca.ID, &round)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	var payout *models.Payment
	for _, p := range payments {
		if p.Kind == models.PaymentPayout {
			payout = p
		}
	}
	if payout == nil {
		t.Fatal("payout was not regenerated")
	}
	if payout.UserID != "user-1" {
		t.Errorf("regenerated payout to %s, want user-1 (position 1)", payout.UserID)
	}

	confirmAll(t, store, rosca.ID, 1)
	advanced, err = eng.AdvanceRound(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("AdvanceRound failed: %v", err)
	}
	if !advanced {
		t.Fatal("expected advancement once the repaired round confirmed")
	}
}

func TestCompletion(t *testing.T) {
	eng, store, _ := setupEngine(t, DefaultClock{})
	ctx := context.Background()
	rosca := activeROSCA(t, eng, 3, 3)

	for round := 1; round < 3; round++ {
		confirmAll(t, store, rosca.ID, round)
		advanced, err := eng.AdvanceRound(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("AdvanceRound after round %d failed: %v", round, err)
		}
		if !advanced {
			t.Fatalf("round %d did not advance", round)
		}
	}

	confirmAll(t, store, rosca.ID, 3)
	advanced, err := eng.AdvanceRound(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("final AdvanceRound failed: %v", err)
	}
	if !advanced {
		t.Fatal("expected completion to advance")
	}

	current, err := eng.GetROSCA(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("GetROSCA failed: %v", err)
	}
	if current.Status != models.ROSCACompleted {
		t.Errorf("Status = %s, want completed", current.Status)
	}

	participations, err := store.ListParticipations(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("ListParticipations failed: %v", err)
	}
	for _, p := range participations {
		if p.Status != models.ParticipationCompleted {
			t.Errorf("participation %s status = %s, want completed", p.UserID, p.Status)
		}
		if p.TotalReceived != rosca.TotalAmount {
			t.Errorf("participation %s received %d, want %d", p.UserID, p.TotalReceived, rosca.TotalAmount)
		}
	}

	// Terminal: further advances are no-ops.
	advanced, err = eng.AdvanceRound(ctx, rosca.ID)
	if err != nil {
		t.Fatalf("AdvanceRound on completed failed: %v", err)
	}
	if advanced {
		t.Error("completed circle advanced")
	}
}

func TestCancelROSCA(t *testing.T) {
	eng, store, _ := setupEngine(t, DefaultClock{})
	ctx := context.Background()
	rosca := activeROSCA(t, eng, 3, 3)

	t.Run("non-admin cannot cancel", func(t *testing.T) {
		err := eng.CancelROSCA(ctx, rosca.ID, "user-1", "mutiny")
		if !errors.Is(err, storage.ErrStateForbidden) {
			t.Errorf("expected ErrStateForbidden, got %v", err)
		}
	})

	t.Run("admin cancels with pending payments", func(t *testing.T) {
		if err := eng.CancelROSCA(ctx, rosca.ID, "admin-1", "group decision"); err != nil {
			t.Fatalf("CancelROSCA failed: %v", err)
		}

		current, err := eng.GetROSCA(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("GetROSCA failed: %v", err)
		}
		if current.Status != models.ROSCACancelled {
			t.Errorf("Status = %s, want cancelled", current.Status)
		}

		payments, err := store.ListPayments(ctx, rosca.ID, nil)
		if err != nil {
			t.Fatalf("ListPayments failed: %v", err)
		}
		for _, p := range payments {
			if p.Status != models.PaymentFailed {
				t.Errorf("payment %s status = %s, want failed", p.ID, p.Status)
			}
			if p.FailReason != "cancelled: group decision" {
				t.Errorf("payment %s fail reason = %q", p.ID, p.FailReason)
			}
		}
	})

	t.Run("no further rounds after cancellation", func(t *testing.T) {
		advanced, err := eng.AdvanceRound(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("AdvanceRound failed: %v", err)
		}
		if advanced {
			t.Error("cancelled circle advanced")
		}
	})

	t.Run("cancelling twice rejected", func(t *testing.T) {
		err := eng.CancelROSCA(ctx, rosca.ID, "admin-1", "again")
		if !errors.Is(err, storage.ErrStateForbidden) {
			t.Errorf("expected ErrStateForbidden, got %v", err)
		}
	})
}

func TestMarkDefaulted(t *testing.T) {
	eng, store, _ := setupEngine(t, DefaultClock{})
	ctx := context.Background()
	rosca := activeROSCA(t, eng, 3, 3)

	t.Run("requires a failed contribution", func(t *testing.T) {
		err := eng.MarkDefaulted(ctx, rosca.ID, "user-2")
		if !errors.Is(err, storage.ErrStateForbidden) {
			t.Errorf("expected ErrStateForbidden, got %v", err)
		}
	})

	t.Run("default surfaces without cancelling the circle", func(t *testing.T) {
		round := 1
		payments, err := store.ListPayments(ctx, rosca.ID, &round)
		if err != nil {
			t.Fatalf("ListPayments failed: %v", err)
		}
		for _, p := range payments {
			if p.Kind == models.PaymentContribution && p.UserID == "user-2" {
				if err := store.UpdatePaymentStatus(ctx, p.ID, models.PaymentFailed, "", "confirmation timeout"); err != nil {
					t.Fatalf("UpdatePaymentStatus failed: %v", err)
				}
			}
		}

		if err := eng.MarkDefaulted(ctx, rosca.ID, "user-2"); err != nil {
			t.Fatalf("MarkDefaulted failed: %v", err)
		}

		p, err := store.GetParticipation(ctx, rosca.ID, "user-2")
		if err != nil {
			t.Fatalf("GetParticipation failed: %v", err)
		}
		if p.Status != models.ParticipationDefaulted {
			t.Errorf("participation status = %s, want defaulted", p.Status)
		}

		current, err := eng.GetROSCA(ctx, rosca.ID)
		if err != nil {
			t.Fatalf("GetROSCA failed: %v", err)
		}
		if current.Status != models.ROSCAActive {
			t.Errorf("rosca status = %s after default, want active", current.Status)
		}
	})
}

func TestSubmitPayment(t *testing.T) {
	eng, store, settler := setupEngine(t, DefaultClock{})
	ctx := context.Background()
	rosca := activeROSCA(t, eng, 3, 3)

	round := 1
	payments, err := store.ListPayments(ctx, rosca.ID, &round)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	var contribution, payout *models.Payment
	for _, p := range payments {
		switch {
		case p.Kind == models.PaymentContribution && p.UserID == "user-1":
			contribution = p
		case p.Kind == models.PaymentPayout:
			payout = p
		}
	}

	t.Run("contribution flows into the pool", func(t *testing.T) {
		txID, err := eng.SubmitPayment(ctx, contribution.ID)
		if err != nil {
			t.Fatalf("SubmitPayment failed: %v", err)
		}
		if txID == "" {
			t.Error("expected tx ID")
		}

		call := settler.calls[len(settler.calls)-1]
		if call.sender != "ADDR1" || call.receiver != poolAddr {
			t.Errorf("contribution routed %s -> %s", call.sender, call.receiver)
		}
	})

	t.Run("payout flows out of the pool", func(t *testing.T) {
		if _, err := eng.SubmitPayment(ctx, payout.ID); err != nil {
			t.Fatalf("SubmitPayment failed: %v", err)
		}

		call := settler.calls[len(settler.calls)-1]
		if call.sender != poolAddr || call.receiver != "ADDR1" {
			t.Errorf("payout routed %s -> %s", call.sender, call.receiver)
		}
	})

	t.Run("unknown payment rejected", func(t *testing.T) {
		if _, err := eng.SubmitPayment(ctx, "nonexistent-id"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
