package model

import "time"

// NotificationType classifies the engagement that produced a notification.
type NotificationType string

const (
	NotificationLike NotificationType = "like"
	NotificationFork NotificationType = "fork"
	NotificationCopy NotificationType = "copy"
)

// SnippetRef is the denormalized slice of the subject snippet embedded in a
// notification row (just enough to render "X liked your snippet 'Title'").
type SnippetRef struct {
	Title string `json:"title"`
}

// Notification is an inbound engagement event addressed to the current user.
//
// Lifecycle: a remote trigger creates the row when another user likes, forks
// or copies one of the recipient's snippets. The read flag only ever moves
// unread → read, never back.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	ActorID     string           `json:"actor_id"`
	SnippetID   string           `json:"snippet_id"`
	Type        NotificationType `json:"type"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
	Actor       *Author          `json:"actor,omitempty"`
	Snippet     *SnippetRef      `json:"snippet,omitempty"`
}

// NotificationDraft is the insert payload for an engagement notification.
// The backend fills in id, is_read and created_at.
type NotificationDraft struct {
	RecipientID string           `json:"recipient_id"`
	ActorID     string           `json:"actor_id"`
	SnippetID   string           `json:"snippet_id"`
	Type        NotificationType `json:"type"`
}
