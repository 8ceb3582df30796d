package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind names a user-facing event.
type NotificationKind string

// Notification kinds emitted by the core.
const (
	NotificationMatchFormed      NotificationKind = "match_formed"
	NotificationMilestoneReached NotificationKind = "milestone_reached"
	NotificationPriorityInterest NotificationKind = "priority_interest"
)

// Notification is a best-effort, post-commit event for one recipient.
// ID is derived from (kind, subject, recipient) so retries produce the same id.
type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	RecipientID string           `json:"recipient_id"`
	SubjectID   string           `json:"subject_id"`
	Payload     map[string]any   `json:"payload,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewNotification builds a notification with a deterministic id.
func NewNotification(kind NotificationKind, subjectID, recipientID string, payload map[string]any, now time.Time) Notification {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(kind)+":"+subjectID+":"+recipientID))
	return Notification{
		ID:          id.String(),
		Kind:        kind,
		RecipientID: recipientID,
		SubjectID:   subjectID,
		Payload:     payload,
		CreatedAt:   now.UTC(),
	}
}
