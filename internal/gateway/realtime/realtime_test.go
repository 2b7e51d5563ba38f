package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofyan2108/codeheaven-ta/internal/gateway"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRealtimeServer upgrades connections and scripts the server side of
// the channel protocol. Joins and raw connections are reported on channels
// so the test can synchronize without sleeping.
type fakeRealtimeServer struct {
	upgrader websocket.Upgrader
	joins    chan envelope
	conns    chan *websocket.Conn
}

func newFakeRealtimeServer() *fakeRealtimeServer {
	return &fakeRealtimeServer{
		joins: make(chan envelope, 4),
		conns: make(chan *websocket.Conn, 4),
	}
}

func (s *fakeRealtimeServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var join envelope
	if err := conn.ReadJSON(&join); err != nil {
		conn.Close()
		return
	}
	s.joins <- join
	s.conns <- conn
}

// insertFrame builds a postgres_changes frame announcing one new row.
func insertFrame(id string) envelope {
	payload, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"type":   "INSERT",
			"record": map[string]string{"id": id},
		},
	})
	return envelope{
		Topic:   notificationsTop,
		Event:   "postgres_changes",
		Payload: payload,
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscribeRequiresRecipient(t *testing.T) {
	feed, err := New(Config{URL: "ws://example.invalid/socket"}, testLogger())
	require.NoError(t, err)

	_, err = feed.Subscribe(context.Background(), "")
	assert.Error(t, err)
}

func TestSubscribeJoinsAndDeliversInserts(t *testing.T) {
	backend := newFakeRealtimeServer()
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer srv.Close()

	feed, err := New(Config{URL: wsURL(srv), APIKey: "anon-key"}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := feed.Subscribe(ctx, "user-1")
	require.NoError(t, err)

	// The join frame asks for INSERTs on notifications for this recipient.
	var join envelope
	select {
	case join = <-backend.joins:
	case <-time.After(2 * time.Second):
		t.Fatal("no join frame received")
	}
	assert.Equal(t, "phx_join", join.Event)
	assert.Equal(t, notificationsTop, join.Topic)
	assert.NotEmpty(t, join.Ref)

	var cfg joinConfig
	require.NoError(t, json.Unmarshal(join.Payload, &cfg))
	require.Len(t, cfg.Config.PostgresChanges, 1)
	change := cfg.Config.PostgresChanges[0]
	assert.Equal(t, "INSERT", change.Event)
	assert.Equal(t, "public", change.Schema)
	assert.Equal(t, "notifications", change.Table)
	assert.Equal(t, "recipient_id=eq.user-1", change.Filter)

	conn := <-backend.conns
	defer conn.Close()

	// Protocol noise before the real event must be skipped silently.
	require.NoError(t, conn.WriteJSON(envelope{Topic: notificationsTop, Event: "phx_reply"}))
	require.NoError(t, conn.WriteJSON(insertFrame("n-42")))

	select {
	case event := <-events:
		assert.Equal(t, gateway.InsertEvent{ID: "n-42"}, event)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSubscribeReconnectsAfterDrop(t *testing.T) {
	backend := newFakeRealtimeServer()
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer srv.Close()

	feed, err := New(Config{URL: wsURL(srv)}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := feed.Subscribe(ctx, "user-1")
	require.NoError(t, err)

	// First connection: server drops it immediately after the join.
	<-backend.joins
	first := <-backend.conns
	first.Close()

	// The feed must dial again on its own and deliver over the fresh
	// connection. The first retry waits one backoff unit.
	select {
	case <-backend.joins:
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not reconnect")
	}
	second := <-backend.conns
	defer second.Close()

	require.NoError(t, second.WriteJSON(insertFrame("after-reconnect")))
	select {
	case event := <-events:
		assert.Equal(t, "after-reconnect", event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
}

func TestSubscribeClosesChannelOnCancel(t *testing.T) {
	backend := newFakeRealtimeServer()
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer srv.Close()

	feed, err := New(Config{URL: wsURL(srv)}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := feed.Subscribe(ctx, "user-1")
	require.NoError(t, err)

	<-backend.joins
	conn := <-backend.conns
	defer conn.Close()

	cancel()

	select {
	case _, open := <-events:
		assert.False(t, open, "events channel should close on cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}
}

func TestUndecodableChangeIsSkipped(t *testing.T) {
	backend := newFakeRealtimeServer()
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer srv.Close()

	feed, err := New(Config{URL: wsURL(srv)}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := feed.Subscribe(ctx, "user-1")
	require.NoError(t, err)

	<-backend.joins
	conn := <-backend.conns
	defer conn.Close()

	// A change frame with no record id carries nothing to deliver.
	empty, _ := json.Marshal(map[string]any{"data": map[string]any{}})
	require.NoError(t, conn.WriteJSON(envelope{Topic: notificationsTop, Event: "postgres_changes", Payload: empty}))
	require.NoError(t, conn.WriteJSON(insertFrame("real")))

	select {
	case event := <-events:
		assert.Equal(t, "real", event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}
