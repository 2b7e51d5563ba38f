package postgrest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sofyan2108/codeheaven-ta/internal/model"
)

// Profiles is the profile-table view of a Client.
type Profiles struct {
	c *Client
}

// Get fetches one public profile row.
func (p *Profiles) Get(ctx context.Context, userID string) (*model.Profile, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("id", "eq."+userID)

	var profile model.Profile
	if err := p.c.do(ctx, requestOpts{
		method:     http.MethodGet,
		path:       "/rest/v1/profiles",
		query:      query,
		out:        &profile,
		single:     true,
		resource:   "profile",
		resourceID: userID,
	}); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update patches the user's own profile row. The auth collaborator mirrors
// the same fields into the session metadata separately; that part is
// outside this module.
func (p *Profiles) Update(ctx context.Context, userID string, patch model.ProfilePatch) error {
	query := url.Values{}
	query.Set("id", "eq."+userID)

	return p.c.do(ctx, requestOpts{
		method:     http.MethodPatch,
		path:       "/rest/v1/profiles",
		query:      query,
		body:       patch,
		resource:   "profile",
		resourceID: userID,
	})
}
