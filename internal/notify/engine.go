// Package notify maintains the client's mirror of the notification inbox:
// an ordered list of inbound engagement events plus an unread counter.
//
// Two feeds converge here. A full fetch pulls the most recent 20 rows and
// replaces the list wholesale; the live change feed delivers newly inserted
// rows one at a time, which are prepended without any cap. Live arrivals
// are by construction newer than anything a fetch returned, so the list
// stays newest-first without ever re-sorting.
//
// The whole subsystem is best-effort: a failed fetch or a failed read-flag
// write is logged and swallowed. The snippet workflow must never block or
// error because the bell icon couldn't update.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sofyan2108/codeheaven-ta/internal/gateway"
	"github.com/sofyan2108/codeheaven-ta/internal/model"
	"github.com/sofyan2108/codeheaven-ta/internal/session"
)

// RecentLimit caps a full fetch. Live-streamed arrivals are exempt: within
// a session the list grows past the cap by prepending.
const RecentLimit = 20

// Engine is the notification ingestion engine.
type Engine struct {
	gw      gateway.NotificationGateway
	feed    gateway.Subscriber
	session session.Session
	logger  *slog.Logger

	mu            sync.Mutex
	notifications []model.Notification
	unread        int

	subscribers map[int]func()
	nextSubID   int
}

// New creates an Engine. The feed may be nil when live delivery is not
// wired (Run then just waits for cancellation).
func New(gw gateway.NotificationGateway, feed gateway.Subscriber, sess session.Session, logger *slog.Logger) *Engine {
	return &Engine{
		gw:          gw,
		feed:        feed,
		session:     sess,
		logger:      logger,
		subscribers: make(map[int]func()),
	}
}

// Subscribe registers fn to run after each committed change to the list or
// the unread counter. Returns an unsubscribe function.
func (e *Engine) Subscribe(fn func()) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

func (e *Engine) publish() {
	e.mu.Lock()
	fns := make([]func(), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Notifications returns a copy of the current list, newest first.
func (e *Engine) Notifications() []model.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Notification, len(e.notifications))
	copy(out, e.notifications)
	return out
}

// UnreadCount returns the current unread counter.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread
}

// FetchRecent replaces the list wholesale with the newest RecentLimit rows
// and recomputes the unread counter from scratch. This is also how drift
// from failed optimistic writes gets corrected.
func (e *Engine) FetchRecent(ctx context.Context) {
	userID := e.session.UserID()
	if userID == "" {
		return
	}

	fetched, err := e.gw.ListRecent(ctx, userID, RecentLimit)
	if err != nil {
		e.logger.Error("failed to fetch notifications", slog.String("error", err.Error()))
		return
	}

	unread := 0
	for _, n := range fetched {
		if !n.IsRead {
			unread++
		}
	}

	e.mu.Lock()
	e.notifications = fetched
	e.unread = unread
	e.mu.Unlock()
	e.publish()
}

// MarkRead optimistically flips one notification to read and decrements
// the unread counter, then issues the remote update. A remote failure is
// logged, never rolled back; the next FetchRecent squares things up.
// The unread → read transition is one-way: marking twice is a no-op.
func (e *Engine) MarkRead(ctx context.Context, id string) {
	e.mu.Lock()
	flipped := false
	for i := range e.notifications {
		if e.notifications[i].ID == id && !e.notifications[i].IsRead {
			e.notifications[i].IsRead = true
			e.unread--
			flipped = true
		}
	}
	e.mu.Unlock()

	if !flipped {
		return
	}
	e.publish()

	if err := e.gw.MarkRead(ctx, id); err != nil {
		e.logger.Error("failed to mark notification read",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}

// MarkAllRead is the bulk variant of MarkRead: every local entry flips to
// read and the counter drops to zero, then one remote update covers the
// recipient's unread subset. Idempotent — a second call changes nothing.
func (e *Engine) MarkAllRead(ctx context.Context) {
	userID := e.session.UserID()
	if userID == "" {
		return
	}

	e.mu.Lock()
	flipped := false
	for i := range e.notifications {
		if !e.notifications[i].IsRead {
			e.notifications[i].IsRead = true
			flipped = true
		}
	}
	e.unread = 0
	e.mu.Unlock()

	if flipped {
		e.publish()
	}

	if err := e.gw.MarkAllRead(ctx, userID); err != nil {
		e.logger.Error("failed to mark all notifications read", slog.String("error", err.Error()))
	}
}

// Run consumes the live change feed until ctx is cancelled. Each event
// carries only the new row's id; the full denormalized record is fetched
// and prepended, bumping the unread counter by one.
//
// Run blocks; start it on its own goroutine. Reconnection of the
// underlying transport is the feed's job, not this engine's.
func (e *Engine) Run(ctx context.Context) {
	userID := e.session.UserID()
	if userID == "" || e.feed == nil {
		<-ctx.Done()
		return
	}

	events, err := e.feed.Subscribe(ctx, userID)
	if err != nil {
		e.logger.Error("failed to open notification feed", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			e.ingest(ctx, event)
		}
	}
}

// ingest fetches the full record for one live event and prepends it.
func (e *Engine) ingest(ctx context.Context, event gateway.InsertEvent) {
	notification, err := e.gw.Get(ctx, event.ID)
	if err != nil {
		e.logger.Warn("failed to fetch streamed notification",
			slog.String("id", event.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	e.mu.Lock()
	e.notifications = append([]model.Notification{*notification}, e.notifications...)
	if !notification.IsRead {
		e.unread++
	}
	e.mu.Unlock()
	e.publish()
}
