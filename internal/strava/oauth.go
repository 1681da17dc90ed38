package strava

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// DefaultAuthorizeURL is the OAuth consent page.
	DefaultAuthorizeURL = "https://www.strava.com/oauth/authorize"
	// Scopes are the permissions requested at authorization.
	Scopes = "read,activity:read_all,profile:read_all"
)

// ErrAuthDenied is returned when the athlete declines authorization.
var ErrAuthDenied = errors.New("authorization denied")

// AuthorizeURL returns the consent page address for clientID. After approval
// the remote redirects to redirectURI carrying state and an authorization
// code. force asks the remote to show the consent page even when the athlete
// approved the application before.
func AuthorizeURL(base, clientID, redirectURI, state string, force bool) string {
	if base == "" {
		base = DefaultAuthorizeURL
	}
	prompt := "auto"
	if force {
		prompt = "force"
	}
	q := url.Values{
		"client_id":       {clientID},
		"redirect_uri":    {redirectURI},
		"response_type":   {"code"},
		"approval_prompt": {prompt},
		"scope":           {Scopes},
		"state":           {state},
	}
	return base + "?" + q.Encode()
}

// Exchange trades an authorization code for a token. The token replaces the
// client's current one and is passed to OnTokenRefresh.
func (c *Client) Exchange(ctx context.Context, code string) (Token, error) {
	tok, err := c.requestToken(ctx, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	})
	if err != nil {
		return Token{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	if c.onRefresh != nil {
		c.onRefresh(tok)
	}
	c.logger.Info("authorization code exchanged", "expires_at", tok.ExpiresAt)
	return tok, nil
}

// WaitForCode serves the OAuth redirect on ln until a request carrying state
// arrives, and returns its authorization code. Requests with another state
// are rejected and waiting continues. The server is shut down on return.
func WaitForCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	type callback struct {
		code string
		err  error
	}
	done := make(chan callback, 1)

	r := chi.NewRouter()
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "unexpected authorization state", http.StatusBadRequest)
			return
		}
		var cb callback
		switch {
		case q.Get("error") != "":
			cb.err = fmt.Errorf("%w: %s", ErrAuthDenied, q.Get("error"))
		case q.Get("code") == "":
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		default:
			cb.code = q.Get("code")
		}
		select {
		case done <- cb:
		default:
		}
		if cb.err != nil {
			fmt.Fprintln(w, "Authorization denied. You can close this window.")
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	select {
	case cb := <-done:
		return cb.code, cb.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
