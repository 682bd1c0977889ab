package models

// NotificationType categorizes events for downstream delivery.
type NotificationType string

const (
	NotifyPaymentDue      NotificationType = "payment_due"
	NotifyPaymentReceived NotificationType = "payment_received"
	NotifyROSCAUpdate     NotificationType = "rosca_update"
	NotifySystem          NotificationType = "system"
)

// Notification is a lifecycle or payment event addressed to one user.
// The engine emits these fire-and-forget; delivery is a downstream concern.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      NotificationType
	Read      bool
	CreatedAt int64
}
