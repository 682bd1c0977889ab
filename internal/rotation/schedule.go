// Package rotation computes payout order and due dates for a savings
// circle. Every function here is a pure function of the circle's
// configuration and a round number; there is no hidden state, so the full
// schedule can be re-derived from the ledger at any time (including after
// a crash).
package rotation

import (
	"fmt"
	"time"

	"github.com/tandahub/tanda/internal/models"
)

// PayeePosition returns the rotation position that receives the pool in the
// given 1-indexed round: a strict round-robin over 1..maxParticipants.
func PayeePosition(round, maxParticipants int) (int, error) {
	if round < 1 {
		return 0, fmt.Errorf("round must be >= 1, got %d", round)
	}
	if maxParticipants < 1 {
		return 0, fmt.Errorf("maxParticipants must be >= 1, got %d", maxParticipants)
	}
	return (round-1)%maxParticipants + 1, nil
}

// DueDate returns the Unix timestamp a round's payments fall due:
// startDate advanced by round-1 periods. Weekly periods are exactly seven
// days; monthly periods follow the calendar (Jan 31 + 1 month normalizes
// per time.AddDate).
func DueDate(startDate int64, round int, freq models.Frequency) (int64, error) {
	if round < 1 {
		return 0, fmt.Errorf("round must be >= 1, got %d", round)
	}
	start := time.Unix(startDate, 0).UTC()
	switch freq {
	case models.FrequencyWeekly:
		return start.AddDate(0, 0, 7*(round-1)).Unix(), nil
	case models.FrequencyMonthly:
		return start.AddDate(0, round-1, 0).Unix(), nil
	default:
		return 0, fmt.Errorf("unknown frequency %q", freq)
	}
}

// EndDate returns the Unix timestamp of the final round's due date.
func EndDate(startDate int64, rounds int, freq models.Frequency) (int64, error) {
	return DueDate(startDate, rounds, freq)
}

// Payee returns the participation that receives the pool in the given
// round. Participations must be the circle's full frozen membership;
// positions are unique, so the match is unambiguous.
func Payee(participations []*models.Participation, round, maxParticipants int) (*models.Participation, error) {
	position, err := PayeePosition(round, maxParticipants)
	if err != nil {
		return nil, err
	}
	for _, p := range participations {
		if p.Position == position {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no participation at position %d", position)
}
