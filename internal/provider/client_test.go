package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/stay/internal/domain"
)

const testSecret = "super-secret-client-value"

type fakeProvider struct {
	tokenStatus    int
	tokenBody      map[string]any
	profileStatus  int
	profileBody    string
	tokenCalls     atomic.Int32
	profileCalls   atomic.Int32
	failFirstToken bool
	lastForm       map[string]string
	lastAuthHeader string
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		f.lastForm = map[string]string{}
		for k := range r.PostForm {
			f.lastForm[k] = r.PostForm.Get(k)
		}
		if f.failFirstToken && n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
		}
		_ = json.NewEncoder(w).Encode(f.tokenBody)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.profileCalls.Add(1)
		f.lastAuthHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if f.profileStatus != 0 {
			w.WriteHeader(f.profileStatus)
		}
		_, _ = w.Write([]byte(f.profileBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, p domain.Provider, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Provider:     p,
		ClientID:     "client-id",
		ClientSecret: testSecret,
		RedirectURI:  "http://localhost/callback",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
		MaxRetries:   1,
	})
	require.NoError(t, err)
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func TestExchangeCode_PostsFormGrant(t *testing.T) {
	f := &fakeProvider{tokenBody: map[string]any{"access_token": "tok_1", "token_type": "bearer"}}
	c := newTestClient(t, domain.ProviderGoogle, f.server(t))

	tok, err := c.ExchangeCode(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "tok_1", tok)

	assert.Equal(t, "authorization_code", f.lastForm["grant_type"])
	assert.Equal(t, "client-id", f.lastForm["client_id"])
	assert.Equal(t, testSecret, f.lastForm["client_secret"])
	assert.Equal(t, "abc123", f.lastForm["code"])
	assert.Equal(t, "http://localhost/callback", f.lastForm["redirect_uri"])
}

func TestExchangeCode_ProviderRejects(t *testing.T) {
	f := &fakeProvider{
		tokenStatus: http.StatusBadRequest,
		tokenBody:   map[string]any{"error": "invalid_grant", "error_description": "code " + "abc123" + " used, secret " + testSecret},
	}
	c := newTestClient(t, domain.ProviderNaver, f.server(t))

	_, err := c.ExchangeCode(context.Background(), "abc123")
	require.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
	assert.NotContains(t, err.Error(), testSecret)
	assert.NotContains(t, err.Error(), "abc123")
	assert.Equal(t, int32(1), f.tokenCalls.Load(), "4xx must not be retried")
}

func TestExchangeCode_MissingAccessToken(t *testing.T) {
	f := &fakeProvider{tokenBody: map[string]any{"token_type": "bearer"}}
	c := newTestClient(t, domain.ProviderKakao, f.server(t))

	_, err := c.ExchangeCode(context.Background(), "abc123")
	assert.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
}

func TestExchangeCode_RetriesTransientOnce(t *testing.T) {
	f := &fakeProvider{
		failFirstToken: true,
		tokenBody:      map[string]any{"access_token": "tok_1", "token_type": "bearer"},
	}
	c := newTestClient(t, domain.ProviderGoogle, f.server(t))

	tok, err := c.ExchangeCode(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "tok_1", tok)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestExchangeCode_EmptyCode(t *testing.T) {
	f := &fakeProvider{}
	c := newTestClient(t, domain.ProviderGoogle, f.server(t))

	_, err := c.ExchangeCode(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
	assert.Zero(t, f.tokenCalls.Load())
}

func TestFetchProfile_Google(t *testing.T) {
	f := &fakeProvider{profileBody: `{"id":"g-42","email":"user@gmail.com","name":"Kim","picture":"https://img/p.png"}`}
	c := newTestClient(t, domain.ProviderGoogle, f.server(t))

	p, err := c.FetchProfile(context.Background(), "tok_1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok_1", f.lastAuthHeader)
	assert.Equal(t, &Profile{
		Provider:      domain.ProviderGoogle,
		ExternalID:    "g-42",
		Email:         "user@gmail.com",
		DisplayName:   "Kim",
		AvatarURL:     "https://img/p.png",
		EmailVerified: true,
	}, p)
}

func TestFetchProfile_ServerErrorRetriedThenFails(t *testing.T) {
	f := &fakeProvider{profileStatus: http.StatusServiceUnavailable}
	c := newTestClient(t, domain.ProviderGoogle, f.server(t))

	_, err := c.FetchProfile(context.Background(), "tok_1")
	require.ErrorIs(t, err, domain.ErrProfileFetchFailed)
	assert.NotContains(t, err.Error(), "tok_1")
	assert.Equal(t, int32(2), f.profileCalls.Load())
}

func TestFetchProfile_Unauthorized(t *testing.T) {
	f := &fakeProvider{profileStatus: http.StatusUnauthorized}
	c := newTestClient(t, domain.ProviderKakao, f.server(t))

	_, err := c.FetchProfile(context.Background(), "tok_1")
	require.ErrorIs(t, err, domain.ErrProfileFetchFailed)
	assert.Equal(t, int32(1), f.profileCalls.Load())
}

func TestFetchProfile_BadJSON(t *testing.T) {
	f := &fakeProvider{profileBody: `{"id":`}
	c := newTestClient(t, domain.ProviderGoogle, f.server(t))

	_, err := c.FetchProfile(context.Background(), "tok_1")
	assert.ErrorIs(t, err, domain.ErrProfileFetchFailed)
}

func TestFetchProfile_NetworkFailure(t *testing.T) {
	f := &fakeProvider{}
	srv := f.server(t)
	c := newTestClient(t, domain.ProviderGoogle, srv)
	srv.Close()

	_, err := c.FetchProfile(context.Background(), "tok_1")
	assert.ErrorIs(t, err, domain.ErrProfileFetchFailed)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{Provider: "GITHUB", ClientID: "x", TokenURL: "x", UserInfoURL: "x"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)

	_, err = NewClient(Config{Provider: domain.ProviderGoogle})
	assert.Error(t, err)

	c, err := NewClient(Config{
		Provider:    domain.ProviderGoogle,
		ClientID:    "x",
		AuthURL:     "https://accounts.example.com/auth",
		TokenURL:    "https://accounts.example.com/token",
		UserInfoURL: "https://accounts.example.com/userinfo",
		Timeout:     time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, MaxTimeout, c.http.Timeout)
	assert.Contains(t, c.AuthCodeURL("st4te"), "state=st4te")
}

func TestRegistry(t *testing.T) {
	f := &fakeProvider{}
	srv := f.server(t)
	g := newTestClient(t, domain.ProviderGoogle, srv)
	k := newTestClient(t, domain.ProviderKakao, srv)

	r := NewRegistry(g, k)
	a, err := r.Get(domain.ProviderKakao)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderKakao, a.Provider())

	_, err = r.Get(domain.ProviderNaver)
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
	assert.Equal(t, []domain.Provider{domain.ProviderGoogle, domain.ProviderKakao}, r.Providers())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "****", redact("abc"))
	assert.Equal(t, "supe...(25)", redact(testSecret))
}
