// Package realtime consumes the backend's change feed over a websocket.
//
// The feed speaks a phoenix-channel style protocol: every frame is a JSON
// envelope {topic, event, payload, ref}. A client joins a channel with a
// "phx_join" frame describing which postgres changes it wants, answers the
// server with periodic heartbeats, and then receives one "postgres_changes"
// frame per matching row change.
//
// This package owns the transport policy — reconnecting with capped backoff
// when the socket drops, re-joining the channel, heartbeating. Consumers
// just read InsertEvents from a channel and never see any of that.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/sofyan2108/codeheaven-ta/internal/gateway"
)

var _ gateway.Subscriber = (*Feed)(nil)

const (
	heartbeatInterval = 30 * time.Second
	// readTimeout must exceed the heartbeat interval, or a quiet-but-healthy
	// connection would be cut mid-heartbeat.
	readTimeout      = 70 * time.Second
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
	eventBufferSize  = 16
	notificationsTop = "realtime:public:notifications"
)

// Config holds the connection settings for the change feed.
type Config struct {
	// URL is the websocket endpoint, e.g.
	// "wss://xyzcompany.supabase.co/realtime/v1/websocket".
	URL string
	// APIKey is the project's public api key, sent as a query param.
	APIKey string
	// Dialer overrides the default dialer (mainly for tests).
	Dialer *websocket.Dialer
}

// Feed subscribes to notification inserts for one recipient.
type Feed struct {
	url    string
	apiKey string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// New creates a change-feed client.
func New(cfg Config, logger *slog.Logger) (*Feed, error) {
	u := strings.TrimSpace(cfg.URL)
	if u == "" {
		return nil, fmt.Errorf("realtime: websocket URL is required")
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Feed{
		url:    u,
		apiKey: cfg.APIKey,
		dialer: dialer,
		logger: logger,
	}, nil
}

// envelope is one protocol frame in either direction.
type envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// joinConfig asks the server for INSERT events on the notifications table,
// filtered to one recipient.
type joinConfig struct {
	Config struct {
		PostgresChanges []postgresChange `json:"postgres_changes"`
	} `json:"config"`
}

type postgresChange struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter"`
}

// changePayload is the slice of a "postgres_changes" frame we consume.
// Only the new row's id matters; the engine refetches the full record.
type changePayload struct {
	Data struct {
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
	} `json:"data"`
}

// Subscribe opens the standing subscription. Events arrive on the returned
// channel until ctx is cancelled, at which point the channel closes. The
// feed reconnects on its own; a dropped socket never surfaces to the caller.
func (f *Feed) Subscribe(ctx context.Context, recipientID string) (<-chan gateway.InsertEvent, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("realtime: recipient id is required")
	}

	events := make(chan gateway.InsertEvent, eventBufferSize)
	go f.run(ctx, recipientID, events)
	return events, nil
}

// run is the reconnect loop: dial, join, consume until the connection
// breaks, back off, repeat. Backoff resets after a successful join.
func (f *Feed) run(ctx context.Context, recipientID string, events chan<- gateway.InsertEvent) {
	defer close(events)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := f.connect(ctx, recipientID)
		if err != nil {
			f.logger.Warn("realtime connect failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = initialBackoff
		err = f.consume(ctx, conn, events)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("realtime connection lost", slog.String("error", err.Error()))
	}
}

// connect dials the endpoint and joins the notifications channel.
func (f *Feed) connect(ctx context.Context, recipientID string) (*websocket.Conn, error) {
	u := f.url
	if f.apiKey != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "apikey=" + f.apiKey + "&vsn=1.0.0"
	}

	conn, resp, err := f.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing feed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing feed: %w", err)
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		conn.Close()
		return nil, fmt.Errorf("dialing feed: unexpected status %d", resp.StatusCode)
	}

	join := joinConfig{}
	join.Config.PostgresChanges = []postgresChange{{
		Event:  "INSERT",
		Schema: "public",
		Table:  "notifications",
		Filter: "recipient_id=eq." + recipientID,
	}}
	payload, err := json.Marshal(join)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encoding join payload: %w", err)
	}

	if err := conn.WriteJSON(envelope{
		Topic:   notificationsTop,
		Event:   "phx_join",
		Payload: payload,
		Ref:     xid.New().String(),
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("joining channel: %w", err)
	}
	return conn, nil
}

// consume reads frames until the connection breaks or ctx is cancelled.
// A heartbeat goroutine keeps the server from dropping us as idle. It is
// the only writer once the join frame is sent, and this loop is the only
// reader, which is exactly the concurrency gorilla connections permit.
func (f *Feed) consume(ctx context.Context, conn *websocket.Conn, events chan<- gateway.InsertEvent) error {
	hbCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go f.heartbeat(hbCtx, conn)

	// Unblock ReadJSON when the caller cancels.
	go func() {
		<-hbCtx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var frame envelope
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.Event != "postgres_changes" {
			// phx_reply, heartbeat acks, presence noise — not ours.
			continue
		}

		var change changePayload
		if err := json.Unmarshal(frame.Payload, &change); err != nil {
			f.logger.Warn("realtime: undecodable change payload", slog.String("error", err.Error()))
			continue
		}
		if change.Data.Record.ID == "" {
			continue
		}

		select {
		case events <- gateway.InsertEvent{ID: change.Data.Record.ID}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := conn.WriteJSON(envelope{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage("{}"),
				Ref:     xid.New().String(),
			})
			if err != nil {
				return
			}
		}
	}
}

// sleep waits for d or until ctx is cancelled; reports whether it slept
// the full duration.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
