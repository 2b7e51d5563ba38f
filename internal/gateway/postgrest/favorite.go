package postgrest

import (
	"context"
	"net/http"
	"net/url"
)

// Favorites is the favorites-join-table view of a Client.
type Favorites struct {
	c *Client
}

// favoriteRow is the wire shape of one favorites join-table row when only
// the snippet id is selected.
type favoriteRow struct {
	SnippetID string `json:"snippet_id"`
}

// ListIDs returns the snippet ids the user has favorited.
func (f *Favorites) ListIDs(ctx context.Context, userID string) ([]string, error) {
	query := url.Values{}
	query.Set("select", "snippet_id")
	query.Set("user_id", "eq."+userID)

	var rows []favoriteRow
	if err := f.c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "/rest/v1/favorites",
		query:  query,
		out:    &rows,
	}); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.SnippetID)
	}
	return ids, nil
}

// Add inserts a (user, snippet) favorite marker.
func (f *Favorites) Add(ctx context.Context, userID, snippetID string) error {
	return f.c.do(ctx, requestOpts{
		method: http.MethodPost,
		path:   "/rest/v1/favorites",
		body: map[string]string{
			"user_id":    userID,
			"snippet_id": snippetID,
		},
	})
}

// Remove deletes the (user, snippet) favorite marker.
func (f *Favorites) Remove(ctx context.Context, userID, snippetID string) error {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("snippet_id", "eq."+snippetID)

	return f.c.do(ctx, requestOpts{
		method:     http.MethodDelete,
		path:       "/rest/v1/favorites",
		query:      query,
		resource:   "favorite",
		resourceID: snippetID,
	})
}
