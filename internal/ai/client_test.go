package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofyan2108/codeheaven-ta/internal/apperror"
)

// fakeProvider scripts the generative endpoint: a discovery listing plus a
// queue of canned generation responses, consumed one per call.
type fakeProvider struct {
	t *testing.T

	listingStatus int
	listingBody   string

	responses []scriptedResponse

	generateCalls []string // model names, in call order
}

type scriptedResponse struct {
	status int
	body   string
}

func (p *fakeProvider) server() *httptest.Server {
	r := chi.NewRouter()
	r.Get("/v1beta/models", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(p.listingStatus)
		w.Write([]byte(p.listingBody))
	})
	r.Post("/v1beta/models/{model}", func(w http.ResponseWriter, req *http.Request) {
		p.generateCalls = append(p.generateCalls, chi.URLParam(req, "model"))
		if len(p.responses) == 0 {
			p.t.Error("generation called more times than scripted")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		next := p.responses[0]
		p.responses = p.responses[1:]
		w.WriteHeader(next.status)
		w.Write([]byte(next.body))
	})
	return httptest.NewServer(r)
}

// candidateBody wraps text in the provider's response envelope.
func candidateBody(text string) string {
	quoted, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"parts":[{"text":` + string(quoted) + `}]}}]}`
}

const goodListing = `{"models":[
  {"name":"models/embedding-001","supportedGenerationMethods":["embedContent"]},
  {"name":"models/gemini-2.0-flash","supportedGenerationMethods":["countTokens","generateContent"]}
]}`

const analysisJSON = `{"title":"Quicksort","language":"go","description":"Sorts a slice in place.","tags":["sort","recursion","go"]}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingSleep captures retry delays instead of waiting them out.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestClient(t *testing.T, p *fakeProvider) (*Client, *recordingSleep) {
	t.Helper()
	p.t = t
	if p.listingStatus == 0 {
		p.listingStatus = http.StatusOK
		p.listingBody = goodListing
	}
	srv := p.server()
	t.Cleanup(srv.Close)

	rec := &recordingSleep{}
	c := New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Sleep:   rec.sleep,
	}, testLogger())
	return c, rec
}

func TestAnalyzeRequiresCredential(t *testing.T) {
	c := New(Config{APIKey: "  "}, testLogger())

	_, err := c.Analyze(context.Background(), "code")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestAnalyzeHappyPath(t *testing.T) {
	p := &fakeProvider{responses: []scriptedResponse{
		{status: http.StatusOK, body: candidateBody(analysisJSON)},
	}}
	c, rec := newTestClient(t, p)

	got, err := c.Analyze(context.Background(), "func qs() {}")
	require.NoError(t, err)

	assert.Equal(t, "Quicksort", got.Title)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, []string{"sort", "recursion", "go"}, got.Tags)

	// Discovery picked the listed model; no retries, no sleeps.
	assert.Equal(t, []string{"gemini-2.0-flash:generateContent"}, p.generateCalls)
	assert.Empty(t, rec.delays)
}

func TestAnalyzeStripsMarkdownFences(t *testing.T) {
	p := &fakeProvider{responses: []scriptedResponse{
		{status: http.StatusOK, body: candidateBody("```json\n" + analysisJSON + "\n```")},
	}}
	c, _ := newTestClient(t, p)

	got, err := c.Analyze(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "Quicksort", got.Title)
}

func TestAnalyzeToleratesMissingKeys(t *testing.T) {
	p := &fakeProvider{responses: []scriptedResponse{
		{status: http.StatusOK, body: candidateBody(`{"title":"Only a title"}`)},
	}}
	c, _ := newTestClient(t, p)

	got, err := c.Analyze(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "Only a title", got.Title)
	assert.Empty(t, got.Language)
	assert.Empty(t, got.Tags)
}

func TestAnalyzeRetriesOverloadThenSucceeds(t *testing.T) {
	p := &fakeProvider{responses: []scriptedResponse{
		{status: http.StatusServiceUnavailable, body: `{"error":{"message":"The model is overloaded"}}`},
		{status: http.StatusTooManyRequests, body: `{"error":{"status":"RESOURCE_EXHAUSTED"}}`},
		{status: http.StatusOK, body: candidateBody(analysisJSON)},
	}}
	c, rec := newTestClient(t, p)

	got, err := c.Analyze(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "Quicksort", got.Title)

	// Exactly three calls, with growing delays between them.
	assert.Len(t, p.generateCalls, 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestAnalyzeGivesUpAfterRetryCeiling(t *testing.T) {
	overloaded := scriptedResponse{status: http.StatusServiceUnavailable, body: "service unavailable"}
	p := &fakeProvider{responses: []scriptedResponse{overloaded, overloaded, overloaded}}
	c, rec := newTestClient(t, p)

	_, err := c.Analyze(context.Background(), "code")
	assert.True(t, errors.Is(err, apperror.ErrOverloaded))

	// Three attempts total; no sleep after the last one.
	assert.Len(t, p.generateCalls, 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestAnalyzeOverloadMarkerInBody(t *testing.T) {
	// A 500 whose body names the overload condition still retries.
	p := &fakeProvider{responses: []scriptedResponse{
		{status: http.StatusInternalServerError, body: `{"error":{"message":"Service Unavailable."}}`},
		{status: http.StatusOK, body: candidateBody(analysisJSON)},
	}}
	c, _ := newTestClient(t, p)

	_, err := c.Analyze(context.Background(), "code")
	require.NoError(t, err)
	assert.Len(t, p.generateCalls, 2)
}

func TestAnalyzeDoesNotRetryNonOverloadFailures(t *testing.T) {
	p := &fakeProvider{responses: []scriptedResponse{
		{status: http.StatusBadRequest, body: `{"error":{"message":"invalid argument"}}`},
	}}
	c, rec := newTestClient(t, p)

	_, err := c.Analyze(context.Background(), "code")
	assert.True(t, errors.Is(err, apperror.ErrAnalysis))

	assert.Len(t, p.generateCalls, 1, "a hard failure must not burn retries")
	assert.Empty(t, rec.delays)
}

func TestAnalyzeUnparseableTextIsNotRetried(t *testing.T) {
	p := &fakeProvider{responses: []scriptedResponse{
		{status: http.StatusOK, body: candidateBody("Sorry, I cannot analyze this.")},
	}}
	c, _ := newTestClient(t, p)

	_, err := c.Analyze(context.Background(), "code")
	assert.True(t, errors.Is(err, apperror.ErrAnalysis))
	assert.Len(t, p.generateCalls, 1)
}

func TestDiscoveryFallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		listing string
	}{
		{name: "listing endpoint down", status: http.StatusInternalServerError, listing: "boom"},
		{name: "no usable model", status: http.StatusOK,
			listing: `{"models":[{"name":"models/embedding-001","supportedGenerationMethods":["embedContent"]}]}`},
		{name: "malformed listing", status: http.StatusOK, listing: "{not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{
				listingStatus: tt.status,
				listingBody:   tt.listing,
				responses: []scriptedResponse{
					{status: http.StatusOK, body: candidateBody(analysisJSON)},
				},
			}
			c, _ := newTestClient(t, p)

			_, err := c.Analyze(context.Background(), "code")
			require.NoError(t, err)
			assert.Equal(t, []string{fallbackModel + ":generateContent"}, p.generateCalls)
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare json", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "plain fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding whitespace", in: "  \n```json\n{}\n```\n ", want: "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}
