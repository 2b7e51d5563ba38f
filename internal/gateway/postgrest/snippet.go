package postgrest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sofyan2108/codeheaven-ta/internal/apperror"
	"github.com/sofyan2108/codeheaven-ta/internal/gateway"
	"github.com/sofyan2108/codeheaven-ta/internal/model"
)

// snippetSelect embeds the owner's display fields under the "author" alias
// so rows unmarshal straight into model.Snippet.
const snippetSelect = "*,author:profiles(full_name,avatar_url)"

// Snippets is the snippet-table view of a Client.
type Snippets struct {
	c *Client
}

// List fetches snippets for one scope, newest first.
func (s *Snippets) List(ctx context.Context, q gateway.Query) ([]model.Snippet, error) {
	query := url.Values{}
	query.Set("select", snippetSelect)
	query.Set("order", "created_at.desc")

	switch q.Scope {
	case gateway.ScopeOwn:
		// Row-level security already limits the result to the bearer's own
		// rows; no extra filter needed.
	case gateway.ScopePublic:
		query.Set("is_public", "eq.true")
	case gateway.ScopeByAuthor:
		if q.AuthorID == "" {
			return nil, apperror.ValidationFailed("author_id", "author id is required for a by-author query")
		}
		query.Set("user_id", "eq."+q.AuthorID)
		query.Set("is_public", "eq.true")
	default:
		return nil, apperror.ValidationFailed("scope", "unknown snippet scope "+string(q.Scope))
	}

	var snippets []model.Snippet
	if err := s.c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "/rest/v1/snippets",
		query:  query,
		out:    &snippets,
	}); err != nil {
		return nil, err
	}
	return snippets, nil
}

// Get fetches a single snippet with its denormalized author.
func (s *Snippets) Get(ctx context.Context, id string) (*model.Snippet, error) {
	query := url.Values{}
	query.Set("select", snippetSelect)
	query.Set("id", "eq."+id)

	var snippet model.Snippet
	if err := s.c.do(ctx, requestOpts{
		method:     http.MethodGet,
		path:       "/rest/v1/snippets",
		query:      query,
		out:        &snippet,
		single:     true,
		resource:   "snippet",
		resourceID: id,
	}); err != nil {
		return nil, err
	}
	return &snippet, nil
}

// Insert creates a snippet and returns the authoritative row. The backend
// assigns the id, the timestamps and the owner (from the bearer token).
func (s *Snippets) Insert(ctx context.Context, draft model.SnippetDraft) (*model.Snippet, error) {
	query := url.Values{}
	query.Set("select", snippetSelect)

	var created model.Snippet
	if err := s.c.do(ctx, requestOpts{
		method:    http.MethodPost,
		path:      "/rest/v1/snippets",
		query:     query,
		body:      draft,
		out:       &created,
		single:    true,
		returning: true,
		resource:  "snippet",
	}); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update patches a snippet and returns the full updated row.
func (s *Snippets) Update(ctx context.Context, id string, patch model.SnippetPatch) (*model.Snippet, error) {
	query := url.Values{}
	query.Set("select", snippetSelect)
	query.Set("id", "eq."+id)

	var updated model.Snippet
	if err := s.c.do(ctx, requestOpts{
		method:     http.MethodPatch,
		path:       "/rest/v1/snippets",
		query:      query,
		body:       patch,
		out:        &updated,
		single:     true,
		returning:  true,
		resource:   "snippet",
		resourceID: id,
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a snippet row.
func (s *Snippets) Delete(ctx context.Context, id string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)

	return s.c.do(ctx, requestOpts{
		method:     http.MethodDelete,
		path:       "/rest/v1/snippets",
		query:      query,
		resource:   "snippet",
		resourceID: id,
	})
}

// IncrementCopyCount calls the backend's atomic counter procedure.
// A read-modify-write from the client would race with other users; the
// stored procedure bumps the counter in one statement.
func (s *Snippets) IncrementCopyCount(ctx context.Context, id string) error {
	return s.c.do(ctx, requestOpts{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/increment_copy_count",
		body:   map[string]string{"snippet_id": id},
	})
}
