// Package account registers users and signs them in with a password or Google.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kathanp/emailbot/pkg/jwt"
	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/plans"
	"github.com/kathanp/emailbot/svc/store"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
)

// Users persists accounts.
type Users interface {
	Create(ctx context.Context, u *store.User) error
	ByID(ctx context.Context, id string) (*store.User, error)
	ByEmail(ctx context.Context, email string) (*store.User, error)
	ByGoogleID(ctx context.Context, googleID string) (*store.User, error)
	LinkGoogle(ctx context.Context, id, googleID, googleEmail string, tok *store.GoogleToken) error
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithGoogle enables Google sign-in.
func WithGoogle(p IdentityProvider, stateTTL time.Duration) Option {
	return func(s *Service) {
		s.google = p
		if stateTTL > 0 {
			s.stateTTL = stateTTL
		}
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

type Service struct {
	users    Users
	tokens   *jwt.Service
	google   IdentityProvider
	stateTTL time.Duration
	cost     int
	log      *slog.Logger
}

func New(users Users, tokens *jwt.Service, opts ...Option) *Service {
	s := &Service{
		users:    users,
		tokens:   tokens,
		stateTTL: 10 * time.Minute,
		cost:     bcrypt.DefaultCost,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("account"))
	return s
}

// Session is a signed-in user and their access token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *store.User
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"max=100"`
}

// Register creates a password account on the free plan.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if n := len(req.Password); n < MinPasswordLength || n > MaxPasswordLength {
		return nil, errors.Join(ErrWeakPassword,
			fmt.Errorf("password must be %d to %d characters", MinPasswordLength, MaxPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("account: hash password: %w", err)
	}

	u := &store.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		Plan:         plans.FreePlanID,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("account: create user: %w", err)
	}

	s.log.InfoContext(ctx, "account registered", logger.UserID(u.Key()))
	return s.session(u)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login checks a password. Unknown emails and wrong passwords both yield
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.ByEmail(ctx, email)
	if store.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account: find user: %w", err)
	}
	if u.PasswordHash == "" {
		return nil, ErrPasswordNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// User returns the account behind an authenticated request.
func (s *Service) User(ctx context.Context, userID string) (*store.User, error) {
	u, err := s.users.ByID(ctx, userID)
	if store.IsNotFound(err) || errors.Is(err, store.ErrInvalidID) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account: find user: %w", err)
	}
	return u, nil
}

// GoogleAuthURL returns the consent URL carrying a signed, expiring state.
func (s *Service) GoogleAuthURL(ctx context.Context) (string, error) {
	if s.google == nil {
		return "", ErrGoogleDisabled
	}
	state, err := s.tokens.IssueState(uuid.NewString(), s.stateTTL)
	if err != nil {
		return "", fmt.Errorf("account: issue state: %w", err)
	}
	return s.google.AuthURL(state), nil
}

// GoogleCallback completes sign-in. A known Google id signs into its account,
// a matching email links Google to the existing account, otherwise a new
// free account is created. The OAuth grant is stored for Gmail sending.
func (s *Service) GoogleCallback(ctx context.Context, code, state string) (*Session, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}
	if _, err := s.tokens.Parse(state, jwt.AudienceOAuthState); err != nil {
		return nil, errors.Join(ErrInvalidState, err)
	}
	if code == "" {
		return nil, ErrInvalidCode
	}

	profile, tok, err := s.google.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile.Email == "" || profile.GoogleID == "" {
		return nil, ErrNoEmail
	}
	if !profile.EmailVerified {
		return nil, ErrUnverifiedEmail
	}
	email, err := normalizeEmail(profile.Email)
	if err != nil {
		return nil, err
	}

	u, err := s.googleUser(ctx, profile, email)
	if err != nil {
		return nil, err
	}

	grant := storedToken(tok)
	if grant.RefreshToken == "" && u.GoogleToken != nil {
		grant.RefreshToken = u.GoogleToken.RefreshToken
	}
	if err := s.users.LinkGoogle(ctx, u.Key(), profile.GoogleID, email, grant); err != nil {
		return nil, fmt.Errorf("account: link google: %w", err)
	}
	u.GoogleID, u.GoogleEmail, u.GoogleToken = profile.GoogleID, email, grant

	return s.session(u)
}

func (s *Service) googleUser(ctx context.Context, p Profile, email string) (*store.User, error) {
	u, err := s.users.ByGoogleID(ctx, p.GoogleID)
	if err == nil {
		return u, nil
	}
	if !store.IsNotFound(err) {
		return nil, fmt.Errorf("account: find by google id: %w", err)
	}

	u, err = s.users.ByEmail(ctx, email)
	if err == nil {
		s.log.InfoContext(ctx, "linking google account", logger.UserID(u.Key()))
		return u, nil
	}
	if !store.IsNotFound(err) {
		return nil, fmt.Errorf("account: find by email: %w", err)
	}

	u = &store.User{Email: email, Name: p.Name, Plan: plans.FreePlanID}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("account: create user: %w", err)
	}
	s.log.InfoContext(ctx, "account registered with google", logger.UserID(u.Key()))
	return u, nil
}

func (s *Service) session(u *store.User) (*Session, error) {
	token, exp, err := s.tokens.IssueAccess(u.Key(), u.Email)
	if err != nil {
		return nil, fmt.Errorf("account: issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
