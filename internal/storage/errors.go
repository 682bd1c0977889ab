package storage

import "errors"

// Typed outcomes surfaced by the ledger store. Callers branch on these with
// errors.Is; the API layer maps them to response codes.
var (
	// ErrInvalidConfig rejects a ROSCA whose arithmetic or bounds are wrong
	// (validation error: caller corrects input and retries).
	ErrInvalidConfig = errors.New("invalid rosca configuration")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrFull rejects a join once the circle has reached its participant cap.
	ErrFull = errors.New("rosca is full")

	// ErrAlreadyJoined rejects a second join by the same user.
	ErrAlreadyJoined = errors.New("user already joined rosca")

	// ErrNotForming rejects joins on a circle that is no longer forming
	// (state error: permanent until state changes).
	ErrNotForming = errors.New("rosca is not accepting members")

	// ErrDuplicateRound rejects a payment that would violate per-round
	// uniqueness: a second payout for a round, or a second contribution by
	// the same user in a round.
	ErrDuplicateRound = errors.New("duplicate payment for round")

	// ErrStateForbidden rejects an operation not allowed in the circle's
	// current lifecycle state.
	ErrStateForbidden = errors.New("operation not allowed in current state")

	// ErrConflict indicates a concurrent mutation raced this one; the caller
	// should retry the whole operation.
	ErrConflict = errors.New("concurrent modification conflict")
)
