package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sofyan2108/codeheaven-ta/internal/apperror"
	"github.com/sofyan2108/codeheaven-ta/internal/model"
)

// ToggleLike flips the current user's like on a snippet.
//
// This is the textbook optimistic mutation: the favorite set and the
// mirrored like counter change in every collection BEFORE the remote
// write, so the heart icon reacts instantly. The remote write is
// fire-and-forget from the caller's perspective — its failure is logged,
// not returned, and the resulting drift stands until the next full load.
//
// The only error ToggleLike returns is the precondition: an anonymous
// visitor cannot like anything, and the UI should prompt a sign-in.
func (s *Store) ToggleLike(ctx context.Context, id string) error {
	userID := s.session.UserID()
	if userID == "" {
		return apperror.Unauthenticated("sign in to like snippets")
	}

	s.mu.Lock()
	_, wasLiked := s.favoriteIDs[id]
	delta := 1
	if wasLiked {
		delete(s.favoriteIDs, id)
		delta = -1
	} else {
		s.favoriteIDs[id] = struct{}{}
	}
	s.adjustEverywhere(id, func(snip *model.Snippet) {
		snip.LikeCount += delta
	})
	s.mu.Unlock()
	s.publish()

	// Local state is committed; everything below is best-effort remote
	// bookkeeping.
	if wasLiked {
		if err := s.favorites.Remove(ctx, userID, id); err != nil {
			s.logger.Error("failed to remove favorite",
				slog.String("snippet_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	if err := s.favorites.Add(ctx, userID, id); err != nil {
		s.logger.Error("failed to add favorite",
			slog.String("snippet_id", id),
			slog.String("error", err.Error()),
		)
		return nil
	}

	// Only a fresh like (false→true) notifies the owner.
	s.notifyOwner(ctx, id, model.NotificationLike)
	return nil
}

// Fork copies someone else's snippet into the current user's dashboard as
// a private record with counters reset to zero. Like Create it is
// remote-first — the fork's id is server-assigned.
func (s *Store) Fork(ctx context.Context, src model.Snippet) (*model.Snippet, error) {
	if s.session.UserID() == "" {
		return nil, apperror.Unauthenticated("sign in to fork snippets")
	}

	draft := model.SnippetDraft{
		Title:       src.Title + " (Fork)",
		Language:    src.Language,
		Code:        src.Code,
		Description: src.Description,
		Tags:        append([]string(nil), src.Tags...),
		IsPublic:    false,
	}

	created, err := s.snippets.Insert(ctx, draft)
	if err != nil {
		s.logger.Error("failed to fork snippet",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.mu.Lock()
	s.collections[CollectionOwn] = append([]model.Snippet{*created}, s.collections[CollectionOwn]...)
	s.mu.Unlock()
	s.publish()

	s.logger.Info("snippet forked",
		slog.String("source_id", src.ID),
		slog.String("fork_id", created.ID),
	)

	// The notification references the SOURCE record and its owner — the
	// fork itself belongs to the acting user and needs no announcement.
	s.notifyUser(ctx, src.UserID, src.ID, model.NotificationFork)
	return created, nil
}

// RecordCopy counts a copy engagement at most once per session.
//
// The tracker decides synchronously, before any counter change or remote
// call. Once it says yes the id is burned for this session even if the
// remote increment then fails — an under-count is acceptable, a double
// count is not.
func (s *Store) RecordCopy(ctx context.Context, id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if !s.tracker.ShouldRecord(id) {
		return
	}

	if err := s.snippets.IncrementCopyCount(ctx, id); err != nil {
		s.logger.Error("failed to increment copy count",
			slog.String("snippet_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.adjustEverywhere(id, func(snip *model.Snippet) {
		snip.CopyCount++
	})
	s.mu.Unlock()
	s.publish()

	// A copy by an anonymous visitor still counts, but only signed-in
	// actors produce a notification.
	if s.session.UserID() != "" {
		s.notifyOwner(ctx, id, model.NotificationCopy)
	}
}

// notifyOwner resolves the snippet's owner and enqueues an engagement
// notification addressed to them. Failures never bubble up: notification
// bookkeeping is non-critical.
func (s *Store) notifyOwner(ctx context.Context, snippetID string, kind model.NotificationType) {
	s.mu.Lock()
	snip, found := s.lookup(snippetID)
	s.mu.Unlock()

	ownerID := snip.UserID
	if !found {
		// Direct-access pages mutate snippets the collections never
		// loaded; fall back to a point read for the owner.
		fetched, err := s.snippets.Get(ctx, snippetID)
		if err != nil {
			s.logger.Warn("could not resolve snippet owner for notification",
				slog.String("snippet_id", snippetID),
				slog.String("error", err.Error()),
			)
			return
		}
		ownerID = fetched.UserID
	}

	s.notifyUser(ctx, ownerID, snippetID, kind)
}

// notifyUser inserts the notification unless the actor is the recipient —
// nobody needs to be told about their own engagement.
func (s *Store) notifyUser(ctx context.Context, recipientID, snippetID string, kind model.NotificationType) {
	actorID := s.session.UserID()
	if recipientID == "" || recipientID == actorID {
		return
	}

	err := s.notifications.Insert(ctx, model.NotificationDraft{
		RecipientID: recipientID,
		ActorID:     actorID,
		SnippetID:   snippetID,
		Type:        kind,
	})
	if err != nil {
		s.logger.Error("failed to create notification",
			slog.String("type", string(kind)),
			slog.String("snippet_id", snippetID),
			slog.String("error", err.Error()),
		)
	}
}
