// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Author holds the denormalized display fields of the user who owns a record.
//
// WHY DENORMALIZE?
// The backend performs a read-time join (snippets ← profiles) and embeds the
// display name and avatar directly in each row it returns. The client never
// issues a second lookup just to render a card. We only mirror what the
// backend already joined — this package never joins anything itself.
type Author struct {
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// Snippet represents a saved code snippet as mirrored from the remote store.
//
// The `json:"..."` tags match the backend's column names, so a row from the
// REST gateway unmarshals straight into this struct. The embedded Author
// comes back under the "author" alias of the joined profiles relation.
//
// CopyCount and LikeCount are advisory aggregates: the authoritative values
// live remotely, and the local copies are a best-effort mirror adjusted by
// optimistic mutations. They never decrease except through an explicit
// unlike.
type Snippet struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Language    string    `json:"language"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"` // insertion order preserved, max 5
	IsPublic    bool      `json:"is_public"`
	CopyCount   int       `json:"copy_count"`
	LikeCount   int       `json:"like_count"`
	CreatedAt   time.Time `json:"created_at"`
	Author      *Author   `json:"author,omitempty"`
}

// SnippetDraft is the client-side input for creating a snippet.
// The ID is server-assigned, so a draft has none.
type SnippetDraft struct {
	Title       string   `json:"title"`
	Language    string   `json:"language"`
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"is_public"`
}

// SnippetPatch carries a partial update. Nil fields are left untouched
// remotely — the gateway only sends the fields that are set.
//
// WHY POINTERS?
// A plain string can't distinguish "set title to empty" from "don't touch
// the title". A *string can: nil means "no change".
type SnippetPatch struct {
	Title       *string   `json:"title,omitempty"`
	Language    *string   `json:"language,omitempty"`
	Code        *string   `json:"code,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	IsPublic    *bool     `json:"is_public,omitempty"`
}
