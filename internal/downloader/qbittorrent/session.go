package qbittorrent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/slipstream/qbremote/internal/downloader/types"
)

// Session owns the WebUI session cookie. A token is the cookie pair
// ("SID=..."), carried verbatim on every request.
//
// When no username is configured the daemon is expected to whitelist this
// host, and the session hands out an empty token without logging in.
type Session struct {
	client *Client

	mu    sync.RWMutex
	token string
	valid bool

	logins singleflight.Group
}

func newSession(client *Client) *Session {
	return &Session{client: client}
}

// CurrentToken returns the cached session token.
func (s *Session) CurrentToken() (string, bool) {
	if s.client.config.Username == "" {
		return "", true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.valid
}

// Authenticate logs in and caches the new token. Concurrent callers share a
// single login request.
func (s *Session) Authenticate(ctx context.Context) (string, error) {
	if s.client.config.Username == "" {
		return "", nil
	}

	v, err, _ := s.logins.Do("login", func() (any, error) {
		token, err := s.login(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = token
		s.valid = true
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.valid = false
}

func (s *Session) login(ctx context.Context) (string, error) {
	c := s.client
	form := url.Values{
		"username": {c.config.Username},
		"password": {c.config.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return "", fmt.Errorf("%w: client address banned after too many failed logins", types.ErrAuthFailed)
	default:
		return "", fmt.Errorf("login failed with status %d: %s", resp.StatusCode, truncate(body))
	}

	if strings.TrimSpace(string(body)) != "Ok." {
		return "", fmt.Errorf("%w: invalid username or password", types.ErrAuthFailed)
	}

	cookie := sessionCookie(resp.Cookies())
	if cookie == nil {
		return "", fmt.Errorf("%w: login response carried no session cookie", types.ErrUnexpectedResponse)
	}

	c.logger.Debug().Str("cookie", cookie.Name).Msg("Logged in")
	return cookie.Name + "=" + cookie.Value, nil
}

// sessionCookie picks the session cookie. Newer daemons suffix the name
// with the WebUI port.
func sessionCookie(cookies []*http.Cookie) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Value == "" {
			continue
		}
		if cookie.Name == "SID" || strings.HasPrefix(cookie.Name, "QBT_SID") {
			return cookie
		}
	}
	return nil
}
