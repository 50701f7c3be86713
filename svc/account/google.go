package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/kathanp/emailbot/svc/store"
)

// GoogleConfig configures Google sign-in. The gmail.send scope lets the
// stored grant send campaigns through the Gmail provider.
type GoogleConfig struct {
	ClientID     string        `env:"GOOGLE_OAUTH_CLIENT_ID"`
	ClientSecret string        `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	RedirectURL  string        `env:"GOOGLE_OAUTH_REDIRECT_URL"`
	Scopes       []string      `env:"GOOGLE_OAUTH_SCOPES" envSeparator:"," envDefault:"openid,https://www.googleapis.com/auth/userinfo.email,https://www.googleapis.com/auth/userinfo.profile,https://www.googleapis.com/auth/gmail.send"`
	StateTTL     time.Duration `env:"GOOGLE_OAUTH_STATE_TTL" envDefault:"10m"`
}

// Enabled reports whether client credentials are present.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// OAuth2 returns the oauth2 config for Google.
func (c GoogleConfig) OAuth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
		Endpoint:     google.Endpoint,
	}
}

// Profile is the Google identity behind an authorization code.
type Profile struct {
	GoogleID      string
	Email         string
	EmailVerified bool
	Name          string
}

// IdentityProvider runs the provider side of the OAuth flow.
type IdentityProvider interface {
	AuthURL(state string) string
	Resolve(ctx context.Context, code string) (Profile, *oauth2.Token, error)
}

type GoogleOption func(*Google)

// WithHTTPClient sets the client used for token exchange and userinfo.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *Google) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// WithUserinfoEndpoint points userinfo lookups at another base URL.
func WithUserinfoEndpoint(url string) GoogleOption {
	return func(g *Google) { g.endpoint = url }
}

// Google implements IdentityProvider against Google's OAuth and userinfo APIs.
type Google struct {
	conf       *oauth2.Config
	httpClient *http.Client
	endpoint   string
}

func NewGoogle(conf *oauth2.Config, opts ...GoogleOption) *Google {
	g := &Google{conf: conf, httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthURL requests offline access with forced consent so Google always
// returns a refresh token for the Gmail provider.
func (g *Google) AuthURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *Google) Resolve(ctx context.Context, code string) (Profile, *oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return Profile{}, nil, errors.Join(ErrInvalidCode, err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(g.conf.Client(ctx, tok))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return Profile{}, nil, fmt.Errorf("google: userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Profile{}, nil, fmt.Errorf("google: fetch userinfo: %w", err)
	}

	return Profile{
		GoogleID:      info.Id,
		Email:         info.Email,
		EmailVerified: info.VerifiedEmail != nil && *info.VerifiedEmail,
		Name:          info.Name,
	}, tok, nil
}

func storedToken(tok *oauth2.Token) *store.GoogleToken {
	return &store.GoogleToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry.UTC(),
	}
}
