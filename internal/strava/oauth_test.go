package strava

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeURL(t *testing.T) {
	raw := AuthorizeURL("", "123", "http://localhost:8000/", "st", false)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.strava.com", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "123", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8000/", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "auto", q.Get("approval_prompt"))
	assert.Equal(t, Scopes, q.Get("scope"))
	assert.Equal(t, "st", q.Get("state"))

	forced, err := url.Parse(AuthorizeURL("http://auth.test/authorize", "123", "http://localhost:8000/", "st", true))
	require.NoError(t, err)
	assert.Equal(t, "auth.test", forced.Host)
	assert.Equal(t, "force", forced.Query().Get("approval_prompt"))
}

func TestExchange_InstallsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			assert.Equal(t, "the-code", r.PostForm.Get("code"))
			assert.Equal(t, "id", r.PostForm.Get("client_id"))
			assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
			fmt.Fprint(w, `{"access_token": "granted", "refresh_token": "rt", "expires_at": 4102444800}`)
		case "/api/v3/athlete":
			assert.Equal(t, "Bearer granted", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"id": 7, "username": "al"}`)
		}
	}))
	defer srv.Close()

	var saved Token
	c := New(Config{
		BaseURL:        srv.URL + "/api/v3",
		TokenURL:       srv.URL + "/oauth/token",
		ClientID:       "id",
		ClientSecret:   "secret",
		OnTokenRefresh: func(tok Token) { saved = tok },
	})

	tok, err := c.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "granted", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Equal(t, time.Unix(4102444800, 0).UTC(), tok.ExpiresAt)
	assert.Equal(t, tok, saved)

	a, err := c.GetAthlete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "al", a.Username)
}

func TestExchange_RejectedCode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message": "Bad Request"}`)
	}))

	_, err := c.Exchange(context.Background(), "bad")
	assert.Error(t, err)
}

func listenLocal(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, "http://" + ln.Addr().String()
}

func getBody(t *testing.T, rawURL string) (int, string) {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestWaitForCode_ReturnsCodeForMatchingState(t *testing.T) {
	ln, base := listenLocal(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		code string
		err  error
	}
	got := make(chan result, 1)
	go func() {
		code, err := WaitForCode(ctx, ln, "st")
		got <- result{code, err}
	}()

	status, _ := getBody(t, base+"/?state=other&code=x")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = getBody(t, base+"/?state=st")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := getBody(t, base+"/?state=st&code=abc&scope=read")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Authorization complete")

	r := <-got
	require.NoError(t, r.err)
	assert.Equal(t, "abc", r.code)
}

func TestWaitForCode_Denied(t *testing.T) {
	ln, base := listenLocal(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := WaitForCode(ctx, ln, "st")
		errc <- err
	}()

	_, body := getBody(t, base+"/?state=st&error=access_denied")
	assert.Contains(t, body, "denied")
	assert.ErrorIs(t, <-errc, ErrAuthDenied)
}

func TestWaitForCode_ContextCanceled(t *testing.T) {
	ln, _ := listenLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForCode(ctx, ln, "st")
	assert.ErrorIs(t, err, context.Canceled)
}
