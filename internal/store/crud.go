package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sofyan2108/codeheaven-ta/internal/apperror"
	"github.com/sofyan2108/codeheaven-ta/internal/model"
)

// Validation constants.
// Defining these as constants (not magic numbers in code) makes them:
// - Easy to find and change
// - Self-documenting (the name explains the purpose)
// - Referenceable in error messages
const (
	MaxTitleLength       = 100
	MaxCodeLength        = 100000 // ~100KB of code
	MaxDescriptionLength = 500
	MaxTags              = 5
)

// validateDraft enforces the pre-flight rules a draft must pass BEFORE any
// remote call is made. Tags are kept in insertion order and deliberately
// not deduplicated.
func validateDraft(draft *model.SnippetDraft) error {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)

	if draft.Title == "" {
		return apperror.ValidationFailed("title", "snippet title is required")
	}
	if len(draft.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("snippet title must be %d characters or less", MaxTitleLength))
	}
	if draft.Code == "" {
		return apperror.ValidationFailed("code", "snippet code is required")
	}
	if len(draft.Code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	if len(draft.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if len(draft.Tags) > MaxTags {
		return apperror.ValidationFailed("tags",
			fmt.Sprintf("at most %d tags", MaxTags))
	}
	return nil
}

// Create validates the draft, creates it remotely, and prepends the
// authoritative created record to the dashboard collection.
//
// Create is the one write that is NOT optimistic: the id is
// server-assigned, so there is nothing coherent to show until the backend
// answers. On any failure local state is untouched — no ghost records.
func (s *Store) Create(ctx context.Context, draft model.SnippetDraft) (*model.Snippet, error) {
	if s.session.UserID() == "" {
		return nil, apperror.Unauthenticated("sign in to create snippets")
	}
	if err := validateDraft(&draft); err != nil {
		return nil, err
	}

	created, err := s.snippets.Insert(ctx, draft)
	if err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("title", draft.Title),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.mu.Lock()
	s.collections[CollectionOwn] = append([]model.Snippet{*created}, s.collections[CollectionOwn]...)
	s.mu.Unlock()
	s.publish()

	s.logger.Info("snippet created",
		slog.String("id", created.ID),
		slog.String("title", created.Title),
	)
	return created, nil
}

// Update is remote-first: the gateway write happens before any local
// change, and only the confirmed row (with whatever normalization the
// backend applied) replaces the local copies. No optimistic pre-update —
// mirroring a half-validated patch would show state the backend may reject.
func (s *Store) Update(ctx context.Context, id string, patch model.SnippetPatch) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}

	updated, err := s.snippets.Update(ctx, id, patch)
	if err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.mu.Lock()
	s.replaceEverywhere(*updated)
	s.mu.Unlock()
	s.publish()

	s.logger.Info("snippet updated", slog.String("id", id))
	return updated, nil
}

func validatePatch(patch *model.SnippetPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return apperror.ValidationFailed("title", "snippet title is required")
		}
		if len(title) > MaxTitleLength {
			return apperror.ValidationFailed("title",
				fmt.Sprintf("snippet title must be %d characters or less", MaxTitleLength))
		}
		patch.Title = &title
	}
	if patch.Code != nil {
		if *patch.Code == "" {
			return apperror.ValidationFailed("code", "snippet code is required")
		}
		if len(*patch.Code) > MaxCodeLength {
			return apperror.ValidationFailed("code",
				fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
		}
	}
	if patch.Description != nil && len(*patch.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if patch.Tags != nil && len(*patch.Tags) > MaxTags {
		return apperror.ValidationFailed("tags",
			fmt.Sprintf("at most %d tags", MaxTags))
	}
	return nil
}

// Delete is remote-first: only a confirmed remote delete removes the
// record from the local collections.
func (s *Store) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "snippet ID is required")
	}

	if err := s.snippets.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.mu.Lock()
	s.removeEverywhere(id)
	s.mu.Unlock()
	s.publish()

	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}
