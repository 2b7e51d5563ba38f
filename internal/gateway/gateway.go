// Package gateway defines the narrow contracts through which the client
// core talks to the remote data platform.
//
// The remote store is the source of truth; the packages above this one
// (store, notify) only keep a client-side projection of it. Everything they
// need from the backend fits in the small interfaces below, which keeps the
// core testable with hand-written in-memory fakes and keeps the HTTP
// details confined to the postgrest and realtime sub-packages.
package gateway

import (
	"context"

	"github.com/sofyan2108/codeheaven-ta/internal/model"
)

// Scope selects which slice of the snippets collection a load targets.
type Scope string

const (
	// ScopeOwn is every snippet owned by the current principal.
	ScopeOwn Scope = "own"
	// ScopePublic is the public explore feed.
	ScopePublic Scope = "public"
	// ScopeByAuthor is one author's public snippets (Query.AuthorID).
	ScopeByAuthor Scope = "by-author"
)

// Query narrows a snippet list call. Results are always ordered by
// creation time descending.
type Query struct {
	Scope    Scope
	AuthorID string // required for ScopeByAuthor, ignored otherwise
}

type SnippetGateway interface {
	List(ctx context.Context, q Query) ([]model.Snippet, error)
	Get(ctx context.Context, id string) (*model.Snippet, error)
	// Insert creates a snippet and returns the authoritative row,
	// including the server-assigned id and timestamps.
	Insert(ctx context.Context, draft model.SnippetDraft) (*model.Snippet, error)
	// Update applies a partial patch and returns the full updated row.
	Update(ctx context.Context, id string, patch model.SnippetPatch) (*model.Snippet, error)
	Delete(ctx context.Context, id string) error
	// IncrementCopyCount is the backend's atomic counter bump for a copy
	// engagement. It is a remote procedure, not a read-modify-write.
	IncrementCopyCount(ctx context.Context, id string) error
}

type FavoriteGateway interface {
	// ListIDs returns the snippet ids the user has favorited.
	ListIDs(ctx context.Context, userID string) ([]string, error)
	Add(ctx context.Context, userID, snippetID string) error
	Remove(ctx context.Context, userID, snippetID string) error
}

type NotificationGateway interface {
	// ListRecent returns at most limit notifications for the recipient,
	// newest first, with actor and snippet fields already denormalized.
	ListRecent(ctx context.Context, recipientID string, limit int) ([]model.Notification, error)
	Get(ctx context.Context, id string) (*model.Notification, error)
	Insert(ctx context.Context, draft model.NotificationDraft) error
	MarkRead(ctx context.Context, id string) error
	// MarkAllRead flips every unread notification for the recipient.
	MarkAllRead(ctx context.Context, recipientID string) error
}

type ProfileGateway interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Update(ctx context.Context, userID string, patch model.ProfilePatch) error
}

// InsertEvent is one row-inserted event from the change feed. Only the new
// row's id travels over the feed; consumers fetch the denormalized record
// through NotificationGateway.Get.
type InsertEvent struct {
	ID string
}

// Subscriber is a standing subscription to notification inserts for one
// recipient. The returned channel closes when ctx is cancelled. Reconnects
// and backoff are the subscriber's responsibility, not the consumer's.
type Subscriber interface {
	Subscribe(ctx context.Context, recipientID string) (<-chan InsertEvent, error)
}
