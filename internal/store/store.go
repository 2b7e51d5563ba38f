// Package store holds the client-side projection of the remote snippet data
// and the rules for keeping that projection correct under local mutation.
//
// THE SYNC MODEL:
// The remote relational store is the source of truth. This store keeps named
// collections of snippet records (the dashboard's own list, the public
// explore feed, a viewed profile's list) plus the current user's favorite-id
// set. A snippet can appear in several collections at once, so every
// mutation is applied to ALL collections that hold a copy of the affected
// record — otherwise two renderings of the same card would disagree.
//
// Mutations come in two flavours:
//
//   - remote-first (create, update, delete, fork): nothing changes locally
//     until the backend confirms. Create and fork cannot be optimistic at
//     all, because the record id is server-assigned.
//   - optimistic (like toggling, copy counting): local state changes
//     immediately, the remote write follows, and a failed remote write is
//     NOT rolled back. The drift is accepted and corrected by the next full
//     load. This trade-off is deliberate — see the package tests.
//
// OBSERVABILITY:
// The store is an explicit state container: UI code registers a callback
// with Subscribe and re-reads the snapshot accessors when it fires. Every
// committed local mutation publishes exactly once, after the lock is
// released, so subscribers may call back into the store.
package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sofyan2108/codeheaven-ta/internal/dedup"
	"github.com/sofyan2108/codeheaven-ta/internal/gateway"
	"github.com/sofyan2108/codeheaven-ta/internal/model"
	"github.com/sofyan2108/codeheaven-ta/internal/session"
)

// Collection names one locally-held snippet list.
type Collection string

const (
	// CollectionOwn is the signed-in user's dashboard list.
	CollectionOwn Collection = "own"
	// CollectionExplore is the public explore feed.
	CollectionExplore Collection = "explore"
	// CollectionProfile is the currently viewed public profile's list.
	CollectionProfile Collection = "profile"
)

// collections in a fixed order, so iteration is deterministic.
var allCollections = []Collection{CollectionOwn, CollectionExplore, CollectionProfile}

// Deps are the collaborators a Store needs. All of them are interfaces (or
// small concrete helpers), so tests inject in-memory fakes.
type Deps struct {
	Snippets      gateway.SnippetGateway
	Favorites     gateway.FavoriteGateway
	Notifications gateway.NotificationGateway
	Profiles      gateway.ProfileGateway
	Session       session.Session
	Tracker       *dedup.Tracker
	Logger        *slog.Logger
}

// Store is the optimistic collection store.
type Store struct {
	snippets      gateway.SnippetGateway
	favorites     gateway.FavoriteGateway
	notifications gateway.NotificationGateway
	profiles      gateway.ProfileGateway
	session       session.Session
	tracker       *dedup.Tracker
	logger        *slog.Logger

	mu          sync.Mutex
	collections map[Collection][]model.Snippet
	favoriteIDs map[string]struct{}
	profile     *model.Profile

	subscribers map[int]func()
	nextSubID   int
}

// New creates a Store. The tracker may not be nil — even an anonymous
// visitor can copy a snippet, and that action must still be deduplicated.
func New(deps Deps) *Store {
	return &Store{
		snippets:      deps.Snippets,
		favorites:     deps.Favorites,
		notifications: deps.Notifications,
		profiles:      deps.Profiles,
		session:       deps.Session,
		tracker:       deps.Tracker,
		logger:        deps.Logger,
		collections:   make(map[Collection][]model.Snippet),
		favoriteIDs:   make(map[string]struct{}),
		subscribers:   make(map[int]func()),
	}
}

// Subscribe registers fn to run after every committed local mutation.
// The returned function removes the subscription; call it when the
// observing component goes away.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// publish runs every subscriber once. Called after the lock is released, so
// subscribers are free to read the store.
func (s *Store) publish() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Snippets returns a copy of one collection.
func (s *Store) Snippets(c Collection) []model.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Snippet, len(s.collections[c]))
	copy(out, s.collections[c])
	return out
}

// IsFavorite reports whether the current user has the snippet favorited.
func (s *Store) IsFavorite(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.favoriteIDs[id]
	return ok
}

// FavoriteIDs returns the favorited snippet ids (unordered).
func (s *Store) FavoriteIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.favoriteIDs))
	for id := range s.favoriteIDs {
		out = append(out, id)
	}
	return out
}

// Profile returns the currently loaded public profile, or nil.
func (s *Store) Profile() *model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// LoadAll replaces one collection wholesale with the result of a remote
// query. The scope decides which collection: own → dashboard, public →
// explore, by-author → profile.
//
// A failed load is logged and leaves the collection unchanged — the UI
// renders whatever it had, never an error page, matching the best-effort
// contract for reads.
func (s *Store) LoadAll(ctx context.Context, q gateway.Query) {
	collection, ok := collectionForScope(q.Scope)
	if !ok {
		s.logger.Error("load with unknown scope", slog.String("scope", string(q.Scope)))
		return
	}

	fetched, err := s.snippets.List(ctx, q)
	if err != nil {
		s.logger.Error("failed to load snippets",
			slog.String("scope", string(q.Scope)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.collections[collection] = fetched
	s.mu.Unlock()
	s.publish()
}

func collectionForScope(scope gateway.Scope) (Collection, bool) {
	switch scope {
	case gateway.ScopeOwn:
		return CollectionOwn, true
	case gateway.ScopePublic:
		return CollectionExplore, true
	case gateway.ScopeByAuthor:
		return CollectionProfile, true
	default:
		return "", false
	}
}

// LoadFavoriteIDs rebuilds the favorite-id set from the remote join table.
// A no-op for anonymous visitors.
func (s *Store) LoadFavoriteIDs(ctx context.Context) {
	userID := s.session.UserID()
	if userID == "" {
		return
	}

	ids, err := s.favorites.ListIDs(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load favorite ids", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.favoriteIDs = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.favoriteIDs[id] = struct{}{}
	}
	s.mu.Unlock()
	s.publish()
}

// LoadProfile loads another user's public profile and their public
// snippets into the profile collection. The previous profile is cleared
// first so a slow load never shows user A's name over user B's snippets.
func (s *Store) LoadProfile(ctx context.Context, userID string) {
	s.mu.Lock()
	s.profile = nil
	s.collections[CollectionProfile] = nil
	s.mu.Unlock()
	s.publish()

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load profile",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	s.publish()

	s.LoadAll(ctx, gateway.Query{Scope: gateway.ScopeByAuthor, AuthorID: userID})
}

// --- shared mutation helpers ---

// replaceEverywhere swaps the record with the given id in every collection
// that holds it, preserving position (no re-sort, no visual jump).
// Caller must hold s.mu.
func (s *Store) replaceEverywhere(updated model.Snippet) {
	for _, c := range allCollections {
		list := s.collections[c]
		for i := range list {
			if list[i].ID == updated.ID {
				list[i] = updated
			}
		}
	}
}

// removeEverywhere deletes the record from every collection.
// Caller must hold s.mu.
func (s *Store) removeEverywhere(id string) {
	for _, c := range allCollections {
		list := s.collections[c]
		kept := list[:0]
		for _, snip := range list {
			if snip.ID != id {
				kept = append(kept, snip)
			}
		}
		s.collections[c] = kept
	}
}

// adjustEverywhere applies fn to each copy of the record, in place.
// Caller must hold s.mu.
func (s *Store) adjustEverywhere(id string, fn func(*model.Snippet)) {
	for _, c := range allCollections {
		list := s.collections[c]
		for i := range list {
			if list[i].ID == id {
				fn(&list[i])
			}
		}
	}
}

// lookup finds any local copy of the record. Caller must hold s.mu.
func (s *Store) lookup(id string) (model.Snippet, bool) {
	for _, c := range allCollections {
		for _, snip := range s.collections[c] {
			if snip.ID == id {
				return snip, true
			}
		}
	}
	return model.Snippet{}, false
}
