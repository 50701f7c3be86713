// Package senders manages verified From addresses and resolves the delivery
// provider each one sends through.
package senders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/oauth2"

	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/store"
)

// Store persists senders.
type Store interface {
	Create(ctx context.Context, s *store.Sender) error
	ByID(ctx context.Context, userID, id string) (*store.Sender, error)
	ByEmail(ctx context.Context, userID, email string) (*store.Sender, error)
	List(ctx context.Context, userID string) ([]store.Sender, error)
	SetStatus(ctx context.Context, userID, id, status string) error
}

type Users interface {
	ByID(ctx context.Context, id string) (*store.User, error)
}

type Quota interface {
	CheckSenderLimit(ctx context.Context, userID string) quota.ResourceLimit
}

// Identities verifies addresses with SES. *delivery.SES implements it.
type Identities interface {
	VerifyIdentity(ctx context.Context, email string) error
	IdentityVerified(ctx context.Context, email string) (bool, error)
	DeleteIdentity(ctx context.Context, email string) error
}

// SESProvider sends and verifies through SES.
type SESProvider interface {
	delivery.Provider
	Identities
}

// GmailFactory builds a provider acting as the owner of tok.
type GmailFactory func(ctx context.Context, tok *oauth2.Token) (delivery.Provider, error)

// GmailFromOAuth refreshes stored tokens through cfg.
func GmailFromOAuth(cfg *oauth2.Config) GmailFactory {
	return func(ctx context.Context, tok *oauth2.Token) (delivery.Provider, error) {
		return delivery.NewGmail(ctx, cfg.TokenSource(ctx, tok))
	}
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithSES(p SESProvider) Option {
	return func(s *Service) { s.ses = p }
}

func WithGmail(f GmailFactory) Option {
	return func(s *Service) { s.gmail = f }
}

// WithProvider registers a provider whose senders need no verification
// beyond the provider's own credentials, such as SMTP, Postmark or dev.
func WithProvider(p delivery.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.static[p.Kind()] = p
		}
	}
}

type Service struct {
	store  Store
	users  Users
	quota  Quota
	ses    SESProvider
	gmail  GmailFactory
	static map[delivery.Kind]delivery.Provider
	log    *slog.Logger
}

func New(st Store, users Users, q Quota, opts ...Option) *Service {
	s := &Service{
		store:  st,
		users:  users,
		quota:  q,
		static: map[delivery.Kind]delivery.Provider{},
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("senders"))
	return s
}

// AddRequest is the input for Add.
type AddRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"max=100"`
	Provider    string `json:"provider" validate:"required"`
}

// Add registers a sender after checking the plan's sender limit.
func (s *Service) Add(ctx context.Context, userID string, req AddRequest) (*store.Sender, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, req.Email)
	}
	email := strings.ToLower(addr.Address)

	kind, err := delivery.ParseKind(req.Provider)
	if err != nil {
		return nil, err
	}
	if !s.configured(kind) {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, kind)
	}

	if err := s.quota.CheckSenderLimit(ctx, userID).Err(); err != nil {
		return nil, err
	}

	switch _, err := s.store.ByEmail(ctx, userID, email); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSender, email)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	sender := &store.Sender{
		UserID:             userID,
		Email:              email,
		DisplayName:        strings.TrimSpace(req.DisplayName),
		Provider:           string(kind),
		VerificationStatus: store.SenderVerified,
	}

	log := s.log.With(logger.UserID(userID), logger.Provider(string(kind)), slog.String("sender", email))
	switch kind {
	case delivery.KindSES:
		if err := s.ses.VerifyIdentity(ctx, email); err != nil {
			log.WarnContext(ctx, "ses identity registration failed", logger.Error(err))
			return nil, errors.Join(ErrVerificationFailed, err)
		}
		sender.VerificationStatus = store.SenderPending
	case delivery.KindGmail:
		user, err := s.user(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user.GoogleToken == nil || user.GoogleEmail == "" {
			return nil, ErrGmailNotLinked
		}
		if !strings.EqualFold(user.GoogleEmail, email) {
			return nil, fmt.Errorf("%w: linked account is %s", ErrGmailMismatch, user.GoogleEmail)
		}
	}

	if err := s.store.Create(ctx, sender); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "sender added", slog.String("status", sender.VerificationStatus))
	return sender, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]store.Sender, error) {
	return s.store.List(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*store.Sender, error) {
	sender, err := s.store.ByID(ctx, userID, id)
	if store.IsNotFound(err) || (err == nil && sender.VerificationStatus == store.SenderDeleted) {
		return nil, ErrSenderNotFound
	}
	return sender, err
}

// Refresh asks SES whether a pending sender has been confirmed. Other
// providers are returned unchanged.
func (s *Service) Refresh(ctx context.Context, userID, id string) (*store.Sender, error) {
	sender, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sender.Provider != string(delivery.KindSES) || sender.VerificationStatus == store.SenderVerified {
		return sender, nil
	}
	if s.ses == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, delivery.KindSES)
	}

	status := store.SenderPending
	ok, err := s.ses.IdentityVerified(ctx, sender.Email)
	switch {
	case errors.Is(err, delivery.ErrIdentityNotFound):
		status = store.SenderFailed
	case err != nil:
		return nil, err
	case ok:
		status = store.SenderVerified
	}

	if status != sender.VerificationStatus {
		if err := s.store.SetStatus(ctx, userID, id, status); err != nil {
			return nil, err
		}
		sender.VerificationStatus = status
		s.log.InfoContext(ctx, "sender status changed",
			logger.UserID(userID), slog.String("sender", sender.Email), slog.String("status", status))
	}
	return sender, nil
}

// Delete hides the sender and frees its slot. The SES identity is removed best effort.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	sender, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.SetStatus(ctx, userID, id, store.SenderDeleted); err != nil {
		return err
	}
	if sender.Provider == string(delivery.KindSES) && s.ses != nil {
		if err := s.ses.DeleteIdentity(ctx, sender.Email); err != nil {
			s.log.WarnContext(ctx, "failed to remove ses identity",
				logger.UserID(userID), slog.String("sender", sender.Email), logger.Error(err))
		}
	}
	return nil
}

// Provider returns the provider that sends as sender. The sender must be verified.
func (s *Service) Provider(ctx context.Context, user *store.User, sender *store.Sender) (delivery.Provider, error) {
	if sender.VerificationStatus != store.SenderVerified {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotVerified, sender.Email, sender.VerificationStatus)
	}
	kind, err := delivery.ParseKind(sender.Provider)
	if err != nil {
		return nil, err
	}
	if !s.configured(kind) {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, kind)
	}

	switch kind {
	case delivery.KindSES:
		return s.ses, nil
	case delivery.KindGmail:
		if user.GoogleToken == nil {
			return nil, ErrGmailNotLinked
		}
		return s.gmail(ctx, &oauth2.Token{
			AccessToken:  user.GoogleToken.AccessToken,
			RefreshToken: user.GoogleToken.RefreshToken,
			TokenType:    user.GoogleToken.TokenType,
			Expiry:       user.GoogleToken.Expiry,
		})
	default:
		return s.static[kind], nil
	}
}

// Kinds lists the configured providers.
func (s *Service) Kinds() []delivery.Kind {
	var out []delivery.Kind
	for _, k := range []delivery.Kind{delivery.KindSES, delivery.KindGmail, delivery.KindSMTP, delivery.KindPostmark, delivery.KindDev} {
		if s.configured(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s *Service) configured(k delivery.Kind) bool {
	switch k {
	case delivery.KindSES:
		return s.ses != nil
	case delivery.KindGmail:
		return s.gmail != nil
	default:
		return s.static[k] != nil
	}
}

func (s *Service) user(ctx context.Context, userID string) (*store.User, error) {
	u, err := s.users.ByID(ctx, userID)
	if store.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	return u, err
}
