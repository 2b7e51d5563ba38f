package postgrest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sofyan2108/codeheaven-ta/internal/model"
)

// notificationSelect embeds the actor's display fields and the subject
// snippet's title. The actor join must be disambiguated with !actor_id
// because notifications reference profiles twice (actor and recipient).
const notificationSelect = "*,actor:profiles!actor_id(full_name,avatar_url),snippet:snippets(title)"

// Notifications is the notification-table view of a Client.
type Notifications struct {
	c *Client
}

// ListRecent fetches the recipient's newest notifications, capped at limit.
func (n *Notifications) ListRecent(ctx context.Context, recipientID string, limit int) ([]model.Notification, error) {
	query := url.Values{}
	query.Set("select", notificationSelect)
	query.Set("recipient_id", "eq."+recipientID)
	query.Set("order", "created_at.desc")
	query.Set("limit", strconv.Itoa(limit))

	var notifications []model.Notification
	if err := n.c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "/rest/v1/notifications",
		query:  query,
		out:    &notifications,
	}); err != nil {
		return nil, err
	}
	return notifications, nil
}

// Get fetches one notification with its denormalized fields. The live feed
// only delivers row ids, so this is how a streamed arrival gets its joins.
func (n *Notifications) Get(ctx context.Context, id string) (*model.Notification, error) {
	query := url.Values{}
	query.Set("select", notificationSelect)
	query.Set("id", "eq."+id)

	var notification model.Notification
	if err := n.c.do(ctx, requestOpts{
		method:     http.MethodGet,
		path:       "/rest/v1/notifications",
		query:      query,
		out:        &notification,
		single:     true,
		resource:   "notification",
		resourceID: id,
	}); err != nil {
		return nil, err
	}
	return &notification, nil
}

// Insert creates an engagement notification addressed to another user.
func (n *Notifications) Insert(ctx context.Context, draft model.NotificationDraft) error {
	return n.c.do(ctx, requestOpts{
		method: http.MethodPost,
		path:   "/rest/v1/notifications",
		body:   draft,
	})
}

// MarkRead flips one notification to read.
func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)

	return n.c.do(ctx, requestOpts{
		method:     http.MethodPatch,
		path:       "/rest/v1/notifications",
		query:      query,
		body:       map[string]bool{"is_read": true},
		resource:   "notification",
		resourceID: id,
	})
}

// MarkAllRead flips the recipient's entire unread subset in one statement.
func (n *Notifications) MarkAllRead(ctx context.Context, recipientID string) error {
	query := url.Values{}
	query.Set("recipient_id", "eq."+recipientID)
	query.Set("is_read", "eq.false")

	return n.c.do(ctx, requestOpts{
		method: http.MethodPatch,
		path:   "/rest/v1/notifications",
		query:  query,
		body:   map[string]bool{"is_read": true},
	})
}
