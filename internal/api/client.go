package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nhle/ehr-terminal/internal/model"
)

// TokenSource supplies the bearer token for outgoing requests. An empty
// token sends the request unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) string

func (f TokenFunc) Token(ctx context.Context) string { return f(ctx) }

// Client is a thin HTTP client for the EHR REST API. It handles Bearer
// token authentication, JSON marshaling, client-side rate limiting and
// automatic retry with exponential backoff on HTTP 429.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      TokenSource
	limiter     *rate.Limiter
	timeout     time.Duration
	maxRetries  int
	backoffUnit time.Duration
	log         logrus.FieldLogger
}

// NewClient creates a client from the api section of the config.
func NewClient(cfg model.APIConfig, log logrus.FieldLogger) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{},
		limiter:     rate.NewLimiter(limit, burst),
		timeout:     timeout,
		maxRetries:  cfg.MaxRetries,
		backoffUnit: time.Second,
		log:         log,
	}
}

// SetTokenSource installs the bearer token provider. It is set after
// construction because the session layer both uses the client and
// owns the token.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) get(ctx context.Context, op, path string, result interface{}) error {
	return c.do(ctx, op, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, op, path string, body, result interface{}) error {
	return c.do(ctx, op, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, op, path string, body, result interface{}) error {
	return c.do(ctx, op, http.MethodPut, path, body, result)
}

func (c *Client) delete(ctx context.Context, op, path string) error {
	return c.do(ctx, op, http.MethodDelete, path, nil, nil)
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
// Every failure leaves as an *Error.
func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	url := c.baseURL + path

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUnknown, Op: op, Err: fmt.Errorf("marshaling request body: %w", err)}
		}
	}

	token := ""
	if c.tokens != nil {
		token = c.tokens.Token(ctx)
	}

	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetwork, Op: op, Err: contextOr(ctx, err)}
		}

		status, header, respBody, err := c.roundTrip(ctx, method, url, token, data)
		if err != nil {
			return &Error{Kind: KindNetwork, Op: op, Err: err}
		}

		if status == http.StatusTooManyRequests {
			lastStatus = status
			wait := c.retryAfterDuration(header, attempt)
			c.log.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt + 1,
				"wait":    wait.String(),
			}).Warn("rate limited by backend")

			select {
			case <-ctx.Done():
				return &Error{Kind: KindNetwork, Op: op, Err: ctx.Err()}
			case <-time.After(wait):
				continue
			}
		}

		if status < 200 || status >= 300 {
			return &Error{
				Kind:    kindForStatus(status),
				Status:  status,
				Op:      op,
				Message: errorMessage(respBody),
			}
		}

		// No content to parse (e.g. 204).
		if result == nil || status == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return &Error{
				Kind:   KindDecode,
				Status: status,
				Op:     op,
				Err:    fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err),
			}
		}
		return nil
	}

	return &Error{
		Kind:    KindServer,
		Status:  lastStatus,
		Op:      op,
		Message: "The server is busy. Please try again in a moment.",
		Err:     fmt.Errorf("max retries (%d) exceeded", c.maxRetries),
	}
}

// roundTrip performs one attempt under the per-request timeout.
func (c *Client) roundTrip(
	ctx context.Context,
	method, url, token string,
	data []byte,
) (int, http.Header, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if data != nil {
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("creating request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("executing request %s %s: %w", method, url, contextOr(ctx, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, resp.Header, respBody, nil
}

// contextOr prefers the context's own error so callers can match
// context.Canceled and context.DeadlineExceeded.
func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func (c *Client) retryAfterDuration(header http.Header, attempt int) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * c.backoffUnit
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// errorMessage extracts the backend's explanation from an error body.
// The backend uses both {"error": "..."} and {"message": "..."}.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
