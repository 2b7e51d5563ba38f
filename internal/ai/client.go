// Package ai obtains a structured best-effort analysis of a code sample
// from an external generative capability.
//
// The provider's fleet is a moving target: model names rotate, quotas come
// and go, and the service sheds load with transient overload errors. The
// client copes with all three:
//
//   - capability discovery picks a usable model at call time and falls
//     back to a known-good default when discovery itself fails
//   - overload responses are retried a bounded number of times with a
//     growing delay; every other failure surfaces immediately
//   - the text response is sanitized (markdown fences stripped) before
//     being parsed as JSON
//
// Analyze is a pure function over the code sample — no caching, no state.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sofyan2108/codeheaven-ta/internal/apperror"
	"github.com/sofyan2108/codeheaven-ta/internal/model"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	// fallbackModel is used whenever discovery fails or finds nothing
	// usable. Discovery failure is never fatal.
	fallbackModel = "gemini-1.5-flash"

	// modelFamily is the token a discovered model's name must contain.
	modelFamily = "gemini"

	// generationMethod must appear in a model's supported methods.
	generationMethod = "generateContent"

	// maxAttempts bounds the generation call: 1 try + 2 retries.
	maxAttempts = 3

	// retryUnit scales the backoff: attempt × 2s, so 2s then 4s.
	retryUnit = 2 * time.Second
)

// promptTemplate embeds the code sample and pins the output contract.
const promptTemplate = `Analyze the following code snippet and return a JSON object (without Markdown formatting).
The JSON must have exactly these keys:
1. "title": a short, descriptive title (max 50 chars).
2. "language": the programming language (lowercase, e.g. "javascript", "python", "html", "css").
3. "description": a concise explanation of what the code does (max 200 chars).
4. "tags": an array of 3-5 relevant keywords (lowercase).

Code to analyze:
%s`

// Config holds the capability client settings.
type Config struct {
	// APIKey is the provider credential. Analyze refuses to run without it.
	APIKey string
	// BaseURL overrides the provider endpoint (mainly for tests).
	BaseURL string
	// HTTPClient overrides the default client (mainly for tests).
	HTTPClient *http.Client
	// Sleep overrides the retry delay (tests inject a recorder so a retry
	// test doesn't actually take six seconds).
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client calls the generative capability.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// New creates a capability client. A missing key is not an error here —
// the client is constructed at wire-up time, but the typed failure belongs
// to the moment the user actually asks for an analysis.
func New(cfg Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		sleep:      sleep,
		logger:     logger,
	}
}

// --- wire types (provider API) ---

type listModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze runs the code sample through the capability and returns the
// parsed result.
//
// Error contract: ErrUnauthenticated when no credential is configured,
// ErrOverloaded when the service stayed overloaded through every retry,
// ErrAnalysis for everything else (bad response, parse failure, ...).
func (c *Client) Analyze(ctx context.Context, code string) (*model.Analysis, error) {
	if c.apiKey == "" {
		return nil, apperror.Unauthenticated("no AI API key configured — set GEMINI_API_KEY to enable analysis")
	}

	modelName := c.discoverModel(ctx)
	prompt := fmt.Sprintf(promptTemplate, code)

	text, err := c.generateWithRetry(ctx, modelName, prompt)
	if err != nil {
		return nil, err
	}

	analysis := &model.Analysis{}
	// Open decision, resolved permissively: the parse must yield a JSON
	// object, but missing keys just stay zero values. The form pre-fill
	// tolerates blanks; failing a whole analysis over an absent tag list
	// would help nobody.
	if err := json.Unmarshal([]byte(stripFences(text)), analysis); err != nil {
		c.logger.Error("analysis response was not valid JSON", slog.String("error", err.Error()))
		return nil, apperror.AnalysisFailed("the AI response could not be parsed")
	}
	return analysis, nil
}

// discoverModel asks the provider which models exist and picks the first
// one in the recognized family that supports content generation. Any
// failure — network, bad status, empty list — falls back silently to the
// default: discovery is an optimization, never a gate.
func (c *Client) discoverModel(ctx context.Context) string {
	u := fmt.Sprintf("%s/v1beta/models?key=%s", c.baseURL, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fallbackModel
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("model discovery failed, using fallback",
			slog.String("fallback", fallbackModel),
			slog.String("error", err.Error()),
		)
		return fallbackModel
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("model discovery returned bad status, using fallback",
			slog.Int("status", resp.StatusCode),
			slog.String("fallback", fallbackModel),
		)
		return fallbackModel
	}

	var listing listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fallbackModel
	}

	for _, m := range listing.Models {
		name := strings.TrimPrefix(m.Name, "models/")
		if !strings.Contains(strings.ToLower(name), modelFamily) {
			continue
		}
		for _, method := range m.SupportedGenerationMethods {
			if method == generationMethod {
				c.logger.Debug("discovered model", slog.String("model", name))
				return name
			}
		}
	}
	return fallbackModel
}

// generateWithRetry issues the generation call, retrying only on overload.
// Delays grow linearly with the attempt number: 2s after the first
// failure, 4s after the second, then give up.
func (c *Client) generateWithRetry(ctx context.Context, modelName, prompt string) (string, error) {
	var lastOverload error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := c.generate(ctx, modelName, prompt)
		if err == nil {
			return text, nil
		}

		if !isOverload(err) {
			c.logger.Error("analysis call failed",
				slog.String("model", modelName),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return "", apperror.AnalysisFailed("code analysis failed — try filling the form manually")
		}

		lastOverload = err
		if attempt == maxAttempts {
			break
		}

		delay := time.Duration(attempt) * retryUnit
		c.logger.Warn("model overloaded, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return "", apperror.AnalysisFailed("analysis cancelled")
		}
	}

	c.logger.Error("model still overloaded after retries",
		slog.Int("attempts", maxAttempts),
		slog.String("error", lastOverload.Error()),
	)
	return "", apperror.Overloaded("the AI service is overloaded — try again in a moment")
}

// overloadError marks a transient, retryable provider failure.
type overloadError struct {
	message string
}

func (e *overloadError) Error() string { return e.message }

func isOverload(err error) bool {
	_, ok := err.(*overloadError)
	return ok
}

// generate performs one generation round-trip and extracts the text
// payload.
func (c *Client) generate(ctx context.Context, modelName, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(modelName), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Overload shows up as a shedding status code or as a recognizable
		// marker in the error body.
		if resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusTooManyRequests ||
			containsOverloadMarker(string(raw)) {
			return "", &overloadError{message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(raw), 200))}
		}
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("model error %s: %s", parsed.Error.Status, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func containsOverloadMarker(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "resource_exhausted")
}

// stripFences removes markdown code-fence wrapping that models add despite
// being told not to: ```json ... ``` or a bare ``` pair.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
