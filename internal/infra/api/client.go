// Package api is the REST client for the TrustAI backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// New builds a client for baseURL. A nil TokenSource sends no Authorization header.
func New(baseURL string, timeout time.Duration, tokens TokenSource, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  logger,
	}
}

// BaseURL returns the backend root without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Projects() *ProjectsAPI { return &ProjectsAPI{c: c} }
func (c *Client) Files() *FilesAPI       { return &FilesAPI{c: c} }
func (c *Client) Messages() *MessagesAPI { return &MessagesAPI{c: c} }
func (c *Client) AI() *AIAPI             { return &AIAPI{c: c} }
func (c *Client) Auth() *AuthAPI         { return &AuthAPI{c: c} }

// getJSON, postJSON etc. all go through do.
func (c *Client) getJSON(ctx context.Context, path string, authed bool, out any) error {
	return c.do(ctx, http.MethodGet, path, authed, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, authed bool, in, out any) error {
	return c.do(ctx, http.MethodPost, path, authed, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, authed bool, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, authed, out)
}

// send attaches auth and a request id, executes req and decodes the JSON
// response into out (if non-nil).
func (c *Client) send(req *http.Request, authed bool, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if authed && c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("backend call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
