package account_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kathanp/emailbot/svc/account"
)

func googleServer(t *testing.T, tokenStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "test-access",
			"refresh_token": "test-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":             "1234",
			"email":          "carol@example.com",
			"verified_email": true,
			"name":           "Carol",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func googleConf(srv *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/auth/google/callback",
		Scopes:       []string{"openid", "email"},
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
	}
}

func TestGoogleAuthURL(t *testing.T) {
	t.Parallel()

	cfg := account.GoogleConfig{ClientID: "client", ClientSecret: "secret", RedirectURL: "https://app.example.com/cb"}
	require.True(t, cfg.Enabled())
	assert.False(t, account.GoogleConfig{}.Enabled())

	url := account.NewGoogle(cfg.OAuth2()).AuthURL("state-1")
	assert.Contains(t, url, "accounts.google.com")
	assert.Contains(t, url, "state=state-1")
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
}

func TestGoogleResolve(t *testing.T) {
	t.Parallel()

	srv := googleServer(t, http.StatusOK)
	g := account.NewGoogle(googleConf(srv), account.WithHTTPClient(srv.Client()), account.WithUserinfoEndpoint(srv.URL+"/"))

	profile, tok, err := g.Resolve(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, account.Profile{GoogleID: "1234", Email: "carol@example.com", EmailVerified: true, Name: "Carol"}, profile)
	assert.Equal(t, "test-refresh", tok.RefreshToken)
}

func TestGoogleResolveInvalidCode(t *testing.T) {
	t.Parallel()

	srv := googleServer(t, http.StatusBadRequest)
	g := account.NewGoogle(googleConf(srv), account.WithHTTPClient(srv.Client()), account.WithUserinfoEndpoint(srv.URL+"/"))

	_, _, err := g.Resolve(context.Background(), "code")
	assert.ErrorIs(t, err, account.ErrInvalidCode)
}
