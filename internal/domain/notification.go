package domain

import "time"

// NotificationKind classifies a user-visible notification.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyInfo    NotificationKind = "info"
)

// Notification is a transient, dismissable message surfaced to a user.
type Notification struct {
	ID        string
	User      string
	Kind      NotificationKind
	Action    string
	Message   string
	TxHash    string
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the notification should no longer be shown.
func (n Notification) Expired(now time.Time) bool {
	return n.TTL > 0 && now.After(n.CreatedAt.Add(n.TTL))
}
