package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tandahub/tanda/internal/models"
	"github.com/tandahub/tanda/internal/storage"
)

const (
	minParticipants = 3
	maxParticipants = 20
)

const roscaColumns = `id, name, description, total_amount, contribution_amount,
	frequency, rounds, max_participants, current_participants, current_round,
	status, start_date, end_date, admin_id, created_at, updated_at`

// CreateROSCA validates the configuration and persists a new circle.
func (s *SQLiteStore) CreateROSCA(ctx context.Context, rosca *models.ROSCA) error {
	if err := validateConfig(rosca); err != nil {
		return err
	}

	if rosca.ID == "" {
		rosca.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if rosca.CreatedAt == 0 {
		rosca.CreatedAt = now
	}
	rosca.UpdatedAt = now
	rosca.Status = models.ROSCAForming
	rosca.ContributionAmount = rosca.TotalAmount / int64(rosca.MaxParticipants)
	rosca.CurrentParticipants = 0
	rosca.CurrentRound = 0

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roscas (id, name, description, total_amount, contribution_amount,
			frequency, rounds, max_participants, current_participants, current_round,
			status, start_date, end_date, admin_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rosca.ID, rosca.Name, rosca.Description, rosca.TotalAmount, rosca.ContributionAmount,
		rosca.Frequency, rosca.Rounds, rosca.MaxParticipants, rosca.CurrentParticipants,
		rosca.CurrentRound, rosca.Status, rosca.StartDate, rosca.EndDate, rosca.AdminID,
		rosca.CreatedAt, rosca.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rosca: %w", err)
	}

	return nil
}

// validateConfig checks the pool arithmetic and bounds before anything is
// persisted.
func validateConfig(r *models.ROSCA) error {
	if r.Name == "" {
		return fmt.Errorf("%w: name required", storage.ErrInvalidConfig)
	}
	if r.MaxParticipants < minParticipants || r.MaxParticipants > maxParticipants {
		return fmt.Errorf("%w: max_participants must be in [%d, %d], got %d",
			storage.ErrInvalidConfig, minParticipants, maxParticipants, r.MaxParticipants)
	}
	if r.TotalAmount <= 0 {
		return fmt.Errorf("%w: total_amount must be positive", storage.ErrInvalidConfig)
	}
	if r.TotalAmount%int64(r.MaxParticipants) != 0 {
		return fmt.Errorf("%w: total_amount %d not divisible by %d participants",
			storage.ErrInvalidConfig, r.TotalAmount, r.MaxParticipants)
	}
	if r.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be positive", storage.ErrInvalidConfig)
	}
	if r.Frequency != models.FrequencyWeekly && r.Frequency != models.FrequencyMonthly {
		return fmt.Errorf("%w: frequency must be weekly or monthly, got %q",
			storage.ErrInvalidConfig, r.Frequency)
	}
	if r.StartDate <= 0 {
		return fmt.Errorf("%w: start_date required", storage.ErrInvalidConfig)
	}
	if r.AdminID == "" {
		return fmt.Errorf("%w: admin_id required", storage.ErrInvalidConfig)
	}
	return nil
}

// GetROSCA retrieves a circle by ID.
func (s *SQLiteStore) GetROSCA(ctx context.Context, roscaID string) (*models.ROSCA, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+roscaColumns+" FROM roscas WHERE id = ?", roscaID)
	rosca, err := scanROSCA(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: rosca %s", storage.ErrNotFound, roscaID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rosca: %w", err)
	}
	return rosca, nil
}

// ListROSCAs retrieves circles matching the filter, newest first.
func (s *SQLiteStore) ListROSCAs(ctx context.Context, filter storage.ROSCAFilter) ([]*models.ROSCA, error) {
	query := "SELECT " + roscaColumns + " FROM roscas"
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roscas: %w", err)
	}
	defer rows.Close()

	var roscas []*models.ROSCA
	for rows.Next() {
		rosca, err := scanROSCA(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rosca: %w", err)
		}
		roscas = append(roscas, rosca)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roscas: %w", err)
	}
	return roscas, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanROSCA(row scanner) (*models.ROSCA, error) {
	rosca := &models.ROSCA{}
	err := row.Scan(
		&rosca.ID, &rosca.Name, &rosca.Description, &rosca.TotalAmount,
		&rosca.ContributionAmount, &rosca.Frequency, &rosca.Rounds,
		&rosca.MaxParticipants, &rosca.CurrentParticipants, &rosca.CurrentRound,
		&rosca.Status, &rosca.StartDate, &rosca.EndDate, &rosca.AdminID,
		&rosca.CreatedAt, &rosca.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rosca, nil
}

// JoinROSCA atomically assigns the next free rotation position.
// The guarded UPDATE is the capacity check: it only increments the
// participant count while the circle is forming and below its cap, so two
// concurrent joins cannot both slip past a full count.
func (s *SQLiteStore) JoinROSCA(ctx context.Context, roscaID, userID string) (*models.Participation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status models.ROSCAStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM roscas WHERE id = ?", roscaID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: rosca %s", storage.ErrNotFound, roscaID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check rosca: %w", err)
	}
	if status != models.ROSCAForming {
		return nil, fmt.Errorf("%w: rosca %s is %s", storage.ErrNotForming, roscaID, status)
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM participations WHERE rosca_id = ? AND user_id = ?",
		roscaID, userID,
	).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("%w: user %s in rosca %s", storage.ErrAlreadyJoined, userID, roscaID)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx,
		`UPDATE roscas SET current_participants = current_participants + 1, updated_at = ?
		 WHERE id = ? AND status = 'forming' AND current_participants < max_participants`,
		now, roscaID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to increment participants: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: rosca %s", storage.ErrFull, roscaID)
	}

	var position int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), 0) + 1 FROM participations WHERE rosca_id = ?",
		roscaID,
	).Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("failed to compute position: %w", err)
	}

	p := &models.Participation{
		ID:       uuid.New().String(),
		ROSCAID:  roscaID,
		UserID:   userID,
		Position: position,
		Status:   models.ParticipationActive,
		JoinedAt: now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO participations (id, rosca_id, user_id, position, payout_round,
			status, total_contributed, total_received, joined_at)
		 VALUES (?, ?, ?, ?, 0, ?, 0, 0, ?)`,
		p.ID, p.ROSCAID, p.UserID, p.Position, p.Status, p.JoinedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert participation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return p, nil
}

// UpdateROSCAStatus applies a guarded lifecycle transition.
func (s *SQLiteStore) UpdateROSCAStatus(ctx context.Context, roscaID string, status models.ROSCAStatus, allowedFrom ...models.ROSCAStatus) error {
	if len(allowedFrom) == 0 {
		return fmt.Errorf("%w: no source states allowed", storage.ErrStateForbidden)
	}

	query := `UPDATE roscas SET status = ?, updated_at = ? WHERE id = ? AND status IN (`
	args := []any{status, time.Now().Unix(), roscaID}
	for i, from := range allowedFrom {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, from)
	}
	query += ")"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update rosca status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the circle does not exist or it is not in an allowed state.
		var current models.ROSCAStatus
		err := s.db.QueryRowContext(ctx, "SELECT status FROM roscas WHERE id = ?", roscaID).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: rosca %s", storage.ErrNotFound, roscaID)
		}
		if err != nil {
			return fmt.Errorf("failed to check rosca status: %w", err)
		}
		return fmt.Errorf("%w: rosca %s is %s, cannot become %s",
			storage.ErrStateForbidden, roscaID, current, status)
	}
	return nil
}

// SetROSCASchedule records the computed end date and current round.
func (s *SQLiteStore) SetROSCASchedule(ctx context.Context, roscaID string, endDate int64, currentRound int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE roscas SET end_date = ?, current_round = ?, updated_at = ? WHERE id = ?",
		endDate, currentRound, time.Now().Unix(), roscaID,
	)
	if err != nil {
		return fmt.Errorf("failed to set rosca schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rosca %s", storage.ErrNotFound, roscaID)
	}
	return nil
}
