package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tandahub/tanda/internal/models"
	"github.com/tandahub/tanda/internal/storage"
)

const participationColumns = `id, rosca_id, user_id, position, payout_round,
	status, total_contributed, total_received, joined_at`

// GetParticipation retrieves one user's membership in a circle.
func (s *SQLiteStore) GetParticipation(ctx context.Context, roscaID, userID string) (*models.Participation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+participationColumns+" FROM participations WHERE rosca_id = ? AND user_id = ?",
		roscaID, userID,
	)
	p, err := scanParticipation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: participation of user %s in rosca %s",
			storage.ErrNotFound, userID, roscaID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}
	return p, nil
}

// ListParticipations retrieves a circle's memberships ordered by position.
func (s *SQLiteStore) ListParticipations(ctx context.Context, roscaID string) ([]*models.Participation, error) {
	return s.listParticipations(ctx,
		"SELECT "+participationColumns+" FROM participations WHERE rosca_id = ? ORDER BY position",
		roscaID,
	)
}

// ListParticipationsByUser retrieves a user's memberships, newest first.
func (s *SQLiteStore) ListParticipationsByUser(ctx context.Context, userID string) ([]*models.Participation, error) {
	return s.listParticipations(ctx,
		"SELECT "+participationColumns+" FROM participations WHERE user_id = ? ORDER BY joined_at DESC",
		userID,
	)
}

func (s *SQLiteStore) listParticipations(ctx context.Context, query string, arg any) ([]*models.Participation, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	defer rows.Close()

	var participations []*models.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participation: %w", err)
		}
		participations = append(participations, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participations: %w", err)
	}
	return participations, nil
}

func scanParticipation(row scanner) (*models.Participation, error) {
	p := &models.Participation{}
	err := row.Scan(
		&p.ID, &p.ROSCAID, &p.UserID, &p.Position, &p.PayoutRound,
		&p.Status, &p.TotalContributed, &p.TotalReceived, &p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateParticipationStatus transitions a membership's state.
func (s *SQLiteStore) UpdateParticipationStatus(ctx context.Context, participationID string, status models.ParticipationStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE participations SET status = ? WHERE id = ?",
		status, participationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update participation status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: participation %s", storage.ErrNotFound, participationID)
	}
	return nil
}
