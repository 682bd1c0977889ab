package models

// ROSCAStatus is the lifecycle state of a savings circle.
// Transitions are monotonic: forming -> active -> completed, with
// cancelled reachable from forming and active. Completed and cancelled
// are terminal.
type ROSCAStatus string

const (
	ROSCAForming   ROSCAStatus = "forming"
	ROSCAActive    ROSCAStatus = "active"
	ROSCACompleted ROSCAStatus = "completed"
	ROSCACancelled ROSCAStatus = "cancelled"
)

// Frequency is the contribution cadence of a ROSCA.
type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ROSCA represents one rotating savings circle.
//
// Invariants enforced by the ledger store:
//   - ContributionAmount * MaxParticipants == TotalAmount
//   - CurrentParticipants <= MaxParticipants
//   - MaxParticipants in [3, 20]
type ROSCA struct {
	// ID is the unique identifier for the circle (UUID format).
	ID string

	// Name is the display name chosen by the administrator.
	Name string

	// Description is an optional free-text summary shown when browsing.
	Description string

	// TotalAmount is the full pool paid out each round, in microAlgos.
	TotalAmount int64

	// ContributionAmount is each member's per-round payment, in microAlgos.
	// Always TotalAmount / MaxParticipants.
	ContributionAmount int64

	// Frequency is the round cadence: weekly or monthly.
	Frequency Frequency

	// Rounds is the total number of contribution/payout cycles.
	Rounds int

	// MaxParticipants is the membership cap (3..20).
	MaxParticipants int

	// CurrentParticipants counts members who have joined so far.
	CurrentParticipants int

	// CurrentRound is the round currently being settled. Zero while forming;
	// set to 1 on activation and incremented as rounds complete.
	CurrentRound int

	// Status is the lifecycle state.
	Status ROSCAStatus

	// StartDate is the Unix timestamp of the first round's start.
	StartDate int64

	// EndDate is the Unix timestamp of the scheduled final payout.
	// Computed on activation; zero while forming.
	EndDate int64

	// AdminID is the user ID of the circle administrator.
	AdminID string

	// CreatedAt and UpdatedAt are Unix timestamps maintained by the store.
	CreatedAt int64
	UpdatedAt int64
}

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (s ROSCAStatus) IsTerminal() bool {
	return s == ROSCACompleted || s == ROSCACancelled
}
