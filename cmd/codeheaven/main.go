// Package main is the headless entry point for the codeheaven client core.
//
// The core is a library: the real consumer is UI code that renders the
// store and the notification engine. This command wires the full dependency
// graph the same way a UI shell would and exposes a few smoke commands over
// it, which is invaluable when poking at a backend without booting a
// frontend:
//
//	codeheaven snippets        # the signed-in user's own snippets
//	codeheaven explore         # the public feed
//	codeheaven notifications   # the inbox + unread count
//	codeheaven watch           # follow the live notification feed
//	codeheaven analyze <file>  # run a file through the AI analysis
//
// MAIN PACKAGE IN GO:
// main() stays minimal — read configuration, build dependencies, dispatch.
// All actual logic lives in the internal packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sofyan2108/codeheaven-ta/internal/ai"
	"github.com/sofyan2108/codeheaven-ta/internal/dedup"
	"github.com/sofyan2108/codeheaven-ta/internal/gateway"
	"github.com/sofyan2108/codeheaven-ta/internal/gateway/postgrest"
	"github.com/sofyan2108/codeheaven-ta/internal/gateway/realtime"
	"github.com/sofyan2108/codeheaven-ta/internal/model"
	"github.com/sofyan2108/codeheaven-ta/internal/notify"
	"github.com/sofyan2108/codeheaven-ta/internal/session"
	"github.com/sofyan2108/codeheaven-ta/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: codeheaven <snippets|explore|notifications|watch|analyze> [args]")
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:], logger); err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(command string, args []string, logger *slog.Logger) error {
	ctx := context.Background()

	// === 1. SESSION ===
	// The auth collaborator normally supplies the access token; here it
	// comes from the environment. No token means an anonymous session —
	// public reads still work.
	var sess session.Session = session.Anonymous{}
	if token := os.Getenv("SUPABASE_ACCESS_TOKEN"); token != "" {
		ts, err := session.FromAccessToken(token)
		if err != nil {
			return err
		}
		sess = ts
	}

	// === 2. GATEWAY ===
	// A session.Session is an oauth2.TokenSource, so it plugs straight in;
	// the anonymous session yields no token and the gateway falls back to
	// the api key.
	gw, err := postgrest.New(postgrest.Config{
		BaseURL: os.Getenv("SUPABASE_URL"),
		APIKey:  os.Getenv("SUPABASE_ANON_KEY"),
		Tokens:  sess,
	}, logger)
	if err != nil {
		return err
	}

	// === 3. SESSION-SCOPED DEDUP ===
	// The copy tracker's scope lives in a per-user cache file: it survives
	// restarts of this command the way session storage survives a page
	// refresh. Deleting the file starts a fresh dedup window.
	scopePath := filepath.Join(os.TempDir(), "codeheaven-session.db")
	scope, err := dedup.NewSQLiteScope(scopePath)
	if err != nil {
		return fmt.Errorf("opening session scope: %w", err)
	}
	defer scope.Close()

	// === 4. THE CORE ===
	st := store.New(store.Deps{
		Snippets:      gw.Snippets(),
		Favorites:     gw.Favorites(),
		Notifications: gw.Notifications(),
		Profiles:      gw.Profiles(),
		Session:       sess,
		Tracker:       dedup.NewTracker(scope),
		Logger:        logger,
	})
	engine := notify.New(gw.Notifications(), nil, sess, logger)

	switch command {
	case "snippets":
		st.LoadAll(ctx, gateway.Query{Scope: gateway.ScopeOwn})
		printSnippets(st.Snippets(store.CollectionOwn))
	case "explore":
		st.LoadAll(ctx, gateway.Query{Scope: gateway.ScopePublic})
		printSnippets(st.Snippets(store.CollectionExplore))
	case "notifications":
		engine.FetchRecent(ctx)
		printNotifications(engine.Notifications(), engine.UnreadCount())
	case "watch":
		if sess.UserID() == "" {
			return fmt.Errorf("watch needs a signed-in session (set SUPABASE_ACCESS_TOKEN)")
		}
		feed, err := realtime.New(realtime.Config{
			URL:    feedURL(os.Getenv("SUPABASE_URL")),
			APIKey: os.Getenv("SUPABASE_ANON_KEY"),
		}, logger)
		if err != nil {
			return err
		}
		engine = notify.New(gw.Notifications(), feed, sess, logger)
		engine.FetchRecent(ctx)
		printNotifications(engine.Notifications(), engine.UnreadCount())

		engine.Subscribe(func() {
			latest := engine.Notifications()
			if len(latest) > 0 {
				printNotifications(latest[:1], engine.UnreadCount())
			}
		})

		watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		engine.Run(watchCtx)
	case "analyze":
		if len(args) != 1 {
			return fmt.Errorf("usage: codeheaven analyze <file>")
		}
		code, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		client := ai.New(ai.Config{APIKey: os.Getenv("GEMINI_API_KEY")}, logger)
		analysis, err := client.Analyze(ctx, string(code))
		if err != nil {
			return err
		}
		printAnalysis(analysis)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// feedURL derives the websocket endpoint from the project root URL.
func feedURL(projectURL string) string {
	u := strings.TrimRight(strings.TrimSpace(projectURL), "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/realtime/v1/websocket"
}

func printSnippets(snippets []model.Snippet) {
	if len(snippets) == 0 {
		fmt.Println("no snippets")
		return
	}
	for _, s := range snippets {
		visibility := "private"
		if s.IsPublic {
			visibility = "public"
		}
		fmt.Printf("%-22s %-10s %-8s likes=%-4d copies=%-4d %s\n",
			s.ID, s.Language, visibility, s.LikeCount, s.CopyCount, s.Title)
	}
}

func printNotifications(notifications []model.Notification, unread int) {
	fmt.Printf("%d notifications, %d unread\n", len(notifications), unread)
	for _, n := range notifications {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		actor := n.ActorID
		if n.Actor != nil && n.Actor.FullName != "" {
			actor = n.Actor.FullName
		}
		title := n.SnippetID
		if n.Snippet != nil && n.Snippet.Title != "" {
			title = n.Snippet.Title
		}
		fmt.Printf("%s %-6s %s — %q (%s)\n", marker, n.Type, actor, title, n.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func printAnalysis(a *model.Analysis) {
	fmt.Printf("title:       %s\n", a.Title)
	fmt.Printf("language:    %s\n", a.Language)
	fmt.Printf("description: %s\n", a.Description)
	fmt.Printf("tags:        %v\n", a.Tags)
}
