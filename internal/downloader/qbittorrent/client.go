// Package qbittorrent implements a qBittorrent Web API (v2) client.
package qbittorrent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"github.com/slipstream/qbremote/internal/downloader/types"
)

const (
	defaultTimeout = 30 * time.Second
	apiPrefix      = "/api/v2"
	maxErrorBody   = 512
)

// Client implements the qBittorrent Web API. It satisfies types.TorrentClient;
// search calls go through SearchAdapter.
type Client struct {
	baseURL    string
	config     types.ClientConfig
	httpClient *http.Client
	limiter    ratelimit.Limiter
	session    *Session
	logger     zerolog.Logger
}

// Compile-time check that Client implements TorrentClient.
var _ types.TorrentClient = (*Client)(nil)

// NewFromConfig creates a client from a ClientConfig.
func NewFromConfig(cfg *types.ClientConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qbittorrent URL is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid qbittorrent URL %q", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}

	baseURL := strings.TrimSuffix(cfg.URL, "/")
	c := &Client{
		baseURL: baseURL,
		config:  *cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		logger: logger.With().
			Str("component", "qbittorrent").
			Str("url", baseURL).
			Logger(),
	}
	c.session = newSession(c)
	return c, nil
}

// Session returns the session shared by all calls made through this client.
func (c *Client) Session() *Session {
	return c.session
}

// Test verifies the client connection and credentials.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Version returns the daemon's application version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version string
	err := c.withSession(ctx, func(token string) error {
		body, err := c.get(ctx, token, "/app/version", nil)
		if err != nil {
			return err
		}
		version = strings.TrimSpace(string(body))
		return nil
	})
	return version, err
}

// GetDownloadDir returns the default save path.
func (c *Client) GetDownloadDir(ctx context.Context) (string, error) {
	var prefs qbitPreferences
	err := c.withSession(ctx, func(token string) error {
		return c.getJSON(ctx, token, "/app/preferences", nil, &prefs)
	})
	if err != nil {
		return "", err
	}
	if prefs.SavePath == "" {
		return "", fmt.Errorf("%w: save_path not found in preferences", types.ErrUnexpectedResponse)
	}
	return prefs.SavePath, nil
}

// withSession runs fn with the current session token, logging in first if
// needed. A rejected session is refreshed once and fn retried once.
func (c *Client) withSession(ctx context.Context, fn func(token string) error) error {
	token, ok := c.session.CurrentToken()
	if !ok {
		var err error
		if token, err = c.session.Authenticate(ctx); err != nil {
			return err
		}
	}

	err := fn(token)
	if !errors.Is(err, types.ErrAuthFailed) {
		return err
	}

	c.logger.Debug().Msg("Session rejected, logging in again")
	c.session.Invalidate()
	token, err = c.session.Authenticate(ctx)
	if err != nil {
		return err
	}
	return fn(token)
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, token)
}

func (c *Client) getJSON(ctx context.Context, token, path string, query url.Values, out any) error {
	body, err := c.get(ctx, token, path, query)
	if err != nil {
		return err
	}
	return decodeJSON(body, out)
}

func (c *Client) postForm(ctx context.Context, token, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, token)
}

func (c *Client) postFormJSON(ctx context.Context, token, path string, form url.Values, out any) error {
	body, err := c.postForm(ctx, token, path, form)
	if err != nil {
		return err
	}
	return decodeJSON(body, out)
}

func (c *Client) postMultipart(ctx context.Context, token, path string, fields map[string]string, fileField, fileName string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}
	part, err := writer.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, token)
}

// do executes req with the session cookie and maps daemon status codes onto
// the shared error sentinels.
func (c *Client) do(req *http.Request, token string) ([]byte, error) {
	if token != "" {
		req.Header.Set("Cookie", token)
	}
	// The WebUI rejects cross-site requests whose Referer does not match its host.
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, types.ErrAuthFailed
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", req.URL.Path, types.ErrNotFound)
	case http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", types.ErrConflict, truncate(body))
	default:
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, truncate(body))
	}
}

// send paces and executes a request without any status handling.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	c.limiter.Take()

	c.logger.Trace().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Msg("Executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Msg("Request failed")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func decodeJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", types.ErrUnexpectedResponse, err)
	}
	return nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

func joinHashes(hashes []string) string {
	normalized := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			normalized = append(normalized, h)
		}
	}
	return strings.Join(normalized, "|")
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "|")
}
