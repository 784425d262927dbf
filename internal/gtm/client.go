package gtm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

// DefaultBaseURL is the Tag Manager v2 REST endpoint.
const DefaultBaseURL = "https://tagmanager.googleapis.com/tagmanager/v2"

const userAgent = "gtm-go/0.1"

// Default client-side rate limit. Tag Manager's per-user quota is far lower
// than most Google APIs (on the order of 0.25 qps sustained), so the client
// throttles itself rather than burning quota on 429 responses.
const (
	defaultQPS   = 0.25
	defaultBurst = 4
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer per Go
// convention "accept interfaces, return structs"; auth.Session provides the
// real implementation.
type TokenSource interface {
	Token() (string, error)
}

// Entity is an opaque Tag Manager resource payload. Field names and nesting
// are defined entirely by the remote API (a tag has "name", "type",
// "parameter", ...); the client never interprets contents beyond
// pass-through.
type Entity = map[string]any

// Client is a path-addressed HTTP client for the Tag Manager API. It holds a
// borrowed, read-only token handle and carries no shared mutable state per
// request, so operations may be issued concurrently. There is no response
// cache and no automatic retry: every failure surfaces once, immediately.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Tag Manager client. baseURL is typically
// DefaultBaseURL. A nil httpClient falls back to http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		limiter:    rate.NewLimiter(rate.Limit(defaultQPS), defaultBurst),
		logger:     logger,
	}
}

// SetRateLimit overrides the default client-side throttle.
// qps <= 0 disables throttling.
func (c *Client) SetRateLimit(qps float64, burst int) {
	if qps <= 0 {
		c.limiter = nil
		return
	}

	c.limiter = rate.NewLimiter(rate.Limit(qps), burst)
}

// do executes one API request and decodes the JSON response body into an
// Entity. op names the operation for error reporting; apiPath is the
// slash-delimited resource path (optionally with a :verb suffix). Every
// failure — transport, auth, HTTP status — comes back as a *RequestError;
// no raw transport error escapes.
func (c *Client) do(ctx context.Context, op, method, apiPath string, body any) (Entity, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Op: op, Path: apiPath, Message: err.Error(), Err: err}
		}
	}

	var reqBody io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &RequestError{Op: op, Path: apiPath, Message: "encoding request: " + err.Error(), Err: err}
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+apiPath, reqBody)
	if err != nil {
		return nil, &RequestError{Op: op, Path: apiPath, Message: "building request: " + err.Error(), Err: err}
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, &RequestError{Op: op, Path: apiPath, Message: "obtaining token: " + err.Error(), Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Op: op, Path: apiPath, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	// CheckResponse parses Google's structured error body into a
	// *googleapi.Error; the status sentinel rides along for errors.Is.
	if checkErr := googleapi.CheckResponse(resp); checkErr != nil {
		reqErr := normalizeAPIError(op, apiPath, resp.StatusCode, checkErr)
		c.logger.Debug("request failed",
			slog.String("op", op),
			slog.String("path", apiPath),
			slog.Int("status", resp.StatusCode),
		)

		return nil, reqErr
	}

	c.logger.Debug("request succeeded",
		slog.String("op", op),
		slog.String("path", apiPath),
		slog.Int("status", resp.StatusCode),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: op, Path: apiPath, Message: "reading response: " + err.Error(), Err: err}
	}

	if len(data) == 0 {
		return Entity{}, nil
	}

	var out Entity
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &RequestError{Op: op, Path: apiPath, Message: "decoding response: " + err.Error(), Err: err}
	}

	return out, nil
}

// normalizeAPIError converts the error CheckResponse produced into the
// uniform RequestError shape.
func normalizeAPIError(op, apiPath string, status int, err error) *RequestError {
	msg := err.Error()

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		msg = gerr.Message
	}

	return &RequestError{
		Op:         op,
		Path:       apiPath,
		StatusCode: status,
		Message:    msg,
		Err:        classifyStatus(status),
	}
}

// fmtPath joins a parent path with a child collection segment.
func fmtPath(parent, collection string) string {
	return fmt.Sprintf("%s/%s", parent, collection)
}
