package api

import "github.com/tandahub/tanda/internal/models"

// Response shapes returned to the UI layer. Kept separate from the domain
// models so wire compatibility does not constrain the ledger.

type roscaResponse struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	TotalAmount         int64  `json:"total_amount"`
	ContributionAmount  int64  `json:"contribution_amount"`
	Frequency           string `json:"frequency"`
	Rounds              int    `json:"rounds"`
	MaxParticipants     int    `json:"max_participants"`
	CurrentParticipants int    `json:"current_participants"`
	CurrentRound        int    `json:"current_round"`
	Status              string `json:"status"`
	StartDate           int64  `json:"start_date"`
	EndDate             int64  `json:"end_date"`
	AdminID             string `json:"admin_id"`
	CreatedAt           int64  `json:"created_at"`
}

func toROSCAResponse(r *models.ROSCA) *roscaResponse {
	return &roscaResponse{
		ID:                  r.ID,
		Name:                r.Name,
		Description:         r.Description,
		TotalAmount:         r.TotalAmount,
		ContributionAmount:  r.ContributionAmount,
		Frequency:           string(r.Frequency),
		Rounds:              r.Rounds,
		MaxParticipants:     r.MaxParticipants,
		CurrentParticipants: r.CurrentParticipants,
		CurrentRound:        r.CurrentRound,
		Status:              string(r.Status),
		StartDate:           r.StartDate,
		EndDate:             r.EndDate,
		AdminID:             r.AdminID,
		CreatedAt:           r.CreatedAt,
	}
}

type participationResponse struct {
	ID               string `json:"id"`
	ROSCAID          string `json:"rosca_id"`
	UserID           string `json:"user_id"`
	Position         int    `json:"position"`
	PayoutRound      int    `json:"payout_round,omitempty"`
	Status           string `json:"status"`
	TotalContributed int64  `json:"total_contributed"`
	TotalReceived    int64  `json:"total_received"`
	JoinedAt         int64  `json:"joined_at"`
}

func toParticipationResponse(p *models.Participation) *participationResponse {
	return &participationResponse{
		ID:               p.ID,
		ROSCAID:          p.ROSCAID,
		UserID:           p.UserID,
		Position:         p.Position,
		PayoutRound:      p.PayoutRound,
		Status:           string(p.Status),
		TotalContributed: p.TotalContributed,
		TotalReceived:    p.TotalReceived,
		JoinedAt:         p.JoinedAt,
	}
}

type paymentResponse struct {
	ID         string `json:"id"`
	ROSCAID    string `json:"rosca_id"`
	UserID     string `json:"user_id"`
	Kind       string `json:"kind"`
	Amount     int64  `json:"amount"`
	Round      int    `json:"round_number"`
	TxRef      string `json:"transaction_ref,omitempty"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
	DueDate    int64  `json:"due_date"`
	PaidDate   int64  `json:"paid_date,omitempty"`
}

func toPaymentResponse(p *models.Payment) *paymentResponse {
	return &paymentResponse{
		ID:         p.ID,
		ROSCAID:    p.ROSCAID,
		UserID:     p.UserID,
		Kind:       string(p.Kind),
		Amount:     p.Amount,
		Round:      p.Round,
		TxRef:      p.TxRef,
		Status:     string(p.Status),
		FailReason: p.FailReason,
		DueDate:    p.DueDate,
		PaidDate:   p.PaidDate,
	}
}

type notificationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"created_at"`
}

func toNotificationResponse(n *models.Notification) *notificationResponse {
	return &notificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
