package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/processing"
)

// DefaultEndpoint is the public autocomplete endpoint.
const DefaultEndpoint = "http://suggestqueries.google.com/complete/search"

const maxBodyBytes = 1 << 20

var xssiPrefix = []byte(")]}'")

// Client issues one autocomplete lookup per call.
type Client struct {
	endpoint    *url.URL
	clientParam string
	language    string
}

// NewClient validates the endpoint URL.
func NewClient(endpoint, clientParam, language string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse suggest endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("suggest endpoint must be http(s), got %q", endpoint)
	}
	if clientParam == "" {
		clientParam = "firefox"
	}
	if language == "" {
		language = "en"
	}
	return &Client{endpoint: u, clientParam: clientParam, language: language}, nil
}

// URL builds the request URL for query.
func (c *Client) URL(query string) string {
	u := *c.endpoint
	params := u.Query()
	params.Set("client", c.clientParam)
	params.Set("q", query)
	params.Set("hl", c.language)
	params.Set("ie", "utf-8")
	params.Set("oe", "utf-8")
	u.RawQuery = params.Encode()
	return u.String()
}

// Fetch performs one attempt through route with a per-attempt timeout.
// Every failure is returned as *AttemptError.
func (c *Client) Fetch(ctx context.Context, route Route, query string, header http.Header, timeout time.Duration) ([]string, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.URL(query), nil)
	if err != nil {
		return nil, &AttemptError{Kind: models.FailureConnection, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header = header.Clone()

	res, err := route.HTTP.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodyBytes))
		return nil, &AttemptError{Kind: models.FailureStatus, StatusCode: res.StatusCode, Err: fmt.Errorf("unexpected status %s", res.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}

	suggestions, err := ParseSuggestions(body)
	if err != nil {
		return nil, &AttemptError{Kind: models.FailureMalformed, StatusCode: res.StatusCode, Err: err}
	}
	return suggestions, nil
}

func classifyTransport(parent context.Context, err error) *AttemptError {
	if parent.Err() != nil {
		return canceled(parent.Err())
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &AttemptError{Kind: models.FailureTimeout, Err: err}
	}
	return &AttemptError{Kind: models.FailureConnection, Err: err}
}

// ParseSuggestions decodes `[query, [suggestion, ...], ...]`. Entries may be plain
// strings or arrays whose first element is the suggestion; anything else is skipped.
// An XSSI guard prefix is tolerated. Empty or undecodable bodies are errors; a valid
// body with no suggestions is not.
func ParseSuggestions(body []byte) ([]string, error) {
	body = bytes.TrimSpace(body)
	if bytes.HasPrefix(body, xssiPrefix) {
		body = bytes.TrimSpace(body[len(xssiPrefix):])
	}
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}

	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope) < 2 {
		return nil, fmt.Errorf("response has %d elements, want at least 2", len(envelope))
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(envelope[1], &entries); err != nil {
		return nil, fmt.Errorf("decode suggestion list: %w", err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if s, ok := entryText(entry); ok {
			if s = processing.CleanSuggestion(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func entryText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var nested []json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		if err := json.Unmarshal(nested[0], &s); err == nil {
			return s, true
		}
	}
	return "", false
}
