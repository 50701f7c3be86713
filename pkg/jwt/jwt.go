// Package jwt issues and verifies HS256 tokens for API access and OAuth state.
package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token audiences.
const (
	AudienceAccess     = "access"
	AudienceOAuthState = "oauth_state"
)

// Claims are the registered claims plus the account email.
type Claims struct {
	Email string `json:"email,omitempty"`
	gojwt.RegisteredClaims
}

type Config struct {
	SigningKey string        `env:"JWT_SECRET,required"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"emailbot"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"24h"`
}

type Option func(*Service)

// WithClock overrides time.Now for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service signs and parses tokens with a single HMAC key.
type Service struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	if len(cfg.SigningKey) < 32 {
		return nil, ErrWeakSigningKey
	}
	s := &Service{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTTL,
		now:    time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccess returns an access token for the user and its expiry.
func (s *Service) IssueAccess(userID, email string) (string, time.Time, error) {
	return s.issue(userID, email, AudienceAccess, s.ttl)
}

// IssueState returns a short-lived token carrying nonce, used as the OAuth state parameter.
func (s *Service) IssueState(nonce string, ttl time.Duration) (string, error) {
	tok, _, err := s.issue(nonce, "", AudienceOAuthState, ttl)
	return tok, err
}

func (s *Service) issue(subject, email, audience string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			Audience:  gojwt.ClaimStrings{audience},
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(exp),
		},
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies the signature, issuer, audience and expiry.
func (s *Service) Parse(token, audience string) (*Claims, error) {
	var claims Claims
	_, err := gojwt.ParseWithClaims(token, &claims,
		func(*gojwt.Token) (any, error) { return s.key, nil },
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(s.issuer),
		gojwt.WithAudience(audience),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, gojwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	case claims.Subject == "":
		return nil, ErrMissingSubject
	}
	return &claims, nil
}
