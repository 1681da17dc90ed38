// Package strava is the remote client over the Strava v3 REST API.
package strava

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hyperengineering/mykrok/internal/metrics"
	"github.com/hyperengineering/mykrok/internal/types"
)

const (
	// DefaultBaseURL is the Strava v3 API root.
	DefaultBaseURL = "https://www.strava.com/api/v3"
	// DefaultTokenURL is the OAuth token endpoint.
	DefaultTokenURL = "https://www.strava.com/oauth/token"
	// PageSize is the number of activities requested per list page.
	PageSize = 200

	maxBodyBytes = 64 << 20
)

// Token is an OAuth access token and the refresh token that renews it.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (t Token) expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt.Add(-time.Minute))
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Token        Token
	Timeout      time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	// OnTokenRefresh is called after the access token has been renewed.
	OnTokenRefresh func(Token)
	Logger         *slog.Logger
}

// Client talks to the Strava API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	tokenURL  string
	clientID  string
	secret    string
	http      *http.Client
	cb        *gobreaker.CircuitBreaker[[]byte]
	onRefresh func(Token)
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	token Token
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "strava")

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:  cfg.TokenURL,
		clientID:  cfg.ClientID,
		secret:    cfg.ClientSecret,
		http:      httpClient,
		cb:        newBreaker("strava-api", logger),
		onRefresh: cfg.OnTokenRefresh,
		logger:    logger,
		now:       time.Now,
		token:     cfg.Token,
	}
}

// get issues an authenticated GET against the API and returns the body.
// endpoint labels metrics and logs.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.doAuthorized(ctx, path, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", types.ErrTransient, err)
		metrics.RemoteRequests.WithLabelValues(endpoint, "rejected").Inc()
		metrics.RemoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	c.observe(endpoint, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return body, nil
}

func (c *Client) observe(endpoint string, start time.Time, err error) {
	metrics.RemoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(endpoint, outcome(err)).Inc()
		return
	}
	metrics.RemoteRequests.WithLabelValues(endpoint, "ok").Inc()
}

func (c *Client) doAuthorized(ctx context.Context, path string, query url.Values) ([]byte, error) {
	token, err := c.accessToken(ctx, false)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, path, query, token)
	if errors.Is(err, types.ErrUnauthorized) && c.canRefresh() {
		c.logger.Info("access token rejected, refreshing")
		if token, err = c.accessToken(ctx, true); err != nil {
			return nil, err
		}
		return c.do(ctx, path, query, token)
	}
	return body, err
}

func (c *Client) do(ctx context.Context, path string, query url.Values, token string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(req)
}

// send performs req and maps the response status onto the shared error
// sentinels.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", types.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", types.ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		rl := &types.RateLimitError{
			RetryAfter: retryAfter(resp.Header, c.now()),
			Usage:      resp.Header.Get("X-RateLimit-Usage"),
		}
		c.logger.Warn("rate limited", "usage", rl.Usage, "retry_after", rl.RetryAfter)
		return nil, rl
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, req.URL.Path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", types.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout:
		return nil, fmt.Errorf("%w: status %d", types.ErrTransient, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", types.ErrInvalid, resp.StatusCode, snippet(body))
	}
}

func (c *Client) canRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token.RefreshToken != "" && c.clientID != ""
}

// accessToken returns a usable access token, refreshing it when expired or
// when force is set.
func (c *Client) accessToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.token.AccessToken != "" && !c.token.expired(c.now()) {
		return c.token.AccessToken, nil
	}
	if c.token.RefreshToken == "" || c.clientID == "" {
		if c.token.AccessToken == "" {
			return "", fmt.Errorf("%w: no access token or refresh token configured", types.ErrUnauthorized)
		}
		return c.token.AccessToken, nil
	}

	tok, err := c.refresh(ctx, c.token.RefreshToken)
	if err != nil {
		return "", err
	}
	c.token = tok
	if c.onRefresh != nil {
		c.onRefresh(tok)
	}
	c.logger.Info("access token refreshed", "expires_at", tok.ExpiresAt)
	return tok.AccessToken, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (Token, error) {
	tok, err := c.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return Token{}, fmt.Errorf("refresh token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// requestToken posts form plus the client credentials to the token endpoint.
func (c *Client) requestToken(ctx context.Context, form url.Values) (Token, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.send(req)
	if err != nil {
		return Token{}, err
	}
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: token response without access token", types.ErrUnauthorized)
	}
	return Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Unix(resp.ExpiresAt, 0).UTC(),
	}, nil
}

// retryAfter reads the Retry-After header, falling back to the start of the
// next 15-minute rate limit window.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil && t.After(now) {
			return t.Sub(now)
		}
	}
	next := now.Truncate(15 * time.Minute).Add(15 * time.Minute)
	return next.Sub(now)
}

func outcome(err error) string {
	switch {
	case types.IsRateLimited(err):
		return "rate_limited"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

func snippet(body []byte) string {
	const n = 200
	s := strings.TrimSpace(string(body))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
