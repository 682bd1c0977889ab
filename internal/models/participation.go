package models

// ParticipationStatus is the state of one member within a circle.
type ParticipationStatus string

const (
	ParticipationActive    ParticipationStatus = "active"
	ParticipationCompleted ParticipationStatus = "completed"
	ParticipationDefaulted ParticipationStatus = "defaulted"
)

// Participation represents one user's membership in one ROSCA.
//
// Positions within a circle form a permutation of 1..MaxParticipants with
// no gaps or duplicates; a participation's Position is frozen once the
// circle activates.
type Participation struct {
	// ID is the unique identifier (UUID format).
	ID string

	// ROSCAID and UserID link the membership to its circle and user.
	ROSCAID string
	UserID  string

	// Position is the member's fixed rank in the payout rotation
	// (1..MaxParticipants, unique per circle).
	Position int

	// PayoutRound is the round in which this member received the pool.
	// Zero until the payout is confirmed.
	PayoutRound int

	// Status is active until the member either receives their payout and the
	// circle completes, or defaults on a contribution.
	Status ParticipationStatus

	// TotalContributed and TotalReceived are cumulative confirmed amounts,
	// in microAlgos.
	TotalContributed int64
	TotalReceived    int64

	// JoinedAt is the Unix timestamp when the user joined.
	JoinedAt int64
}
