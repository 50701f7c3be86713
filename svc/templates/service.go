// Package templates stores email templates and checks their placeholders
// against uploaded contact files.
package templates

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/templatevars"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/store"
)

var (
	ErrTemplateNotFound = errors.New("templates: template not found")
	ErrFileNotFound     = errors.New("templates: contact file not found")
	ErrEmptyTemplate    = errors.New("templates: subject and body are required")
)

type Store interface {
	Create(ctx context.Context, t *store.Template) error
	ByID(ctx context.Context, userID, id string) (*store.Template, error)
	List(ctx context.Context, userID string) ([]store.Template, error)
	Deactivate(ctx context.Context, userID, id string) error
}

type Files interface {
	ByID(ctx context.Context, userID, id string) (*store.ContactFile, error)
}

type Quota interface {
	CheckTemplateLimit(ctx context.Context, userID string) quota.ResourceLimit
}

type Service struct {
	store Store
	files Files
	quota Quota
	log   *slog.Logger
}

func New(st Store, files Files, q Quota, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: st, files: files, quota: q, log: log.With(logger.Component("templates"))}
}

type CreateRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Subject string `json:"subject" validate:"required,max=998"`
	Body    string `json:"body" validate:"required"`
}

// Create stores an active template with its placeholders extracted.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*store.Template, error) {
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Body) == "" {
		return nil, ErrEmptyTemplate
	}
	if err := s.quota.CheckTemplateLimit(ctx, userID).Err(); err != nil {
		return nil, err
	}

	t := &store.Template{
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		Subject:   req.Subject,
		Body:      req.Body,
		Variables: templatevars.Extract(Text(req.Subject, req.Body)),
		IsActive:  true,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "template created", logger.UserID(userID),
		slog.String("template_id", t.ID.Hex()), slog.Int("variables", len(t.Variables)))
	return t, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]store.Template, error) {
	return s.store.List(ctx, userID)
}

// Get returns an active template.
func (s *Service) Get(ctx context.Context, userID, id string) (*store.Template, error) {
	t, err := s.store.ByID(ctx, userID, id)
	if notFound(err) || (err == nil && !t.IsActive) {
		return nil, ErrTemplateNotFound
	}
	return t, err
}

// Deactivate hides the template and frees a template slot.
func (s *Service) Deactivate(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.Deactivate(ctx, userID, id)
}

// ValidateAgainstFile checks the template's placeholders against the file's columns.
func (s *Service) ValidateAgainstFile(ctx context.Context, userID, templateID, fileID string) (templatevars.Result, error) {
	t, err := s.Get(ctx, userID, templateID)
	if err != nil {
		return templatevars.Result{}, err
	}
	f, err := s.files.ByID(ctx, userID, fileID)
	if notFound(err) {
		return templatevars.Result{}, ErrFileNotFound
	}
	if err != nil {
		return templatevars.Result{}, err
	}
	return Check(t, f.Columns), nil
}

// Check validates subject and body together against columns.
func Check(t *store.Template, columns []string) templatevars.Result {
	return templatevars.Validate(Text(t.Subject, t.Body), columns)
}

// Text joins subject and body for placeholder scanning.
func Text(subject, body string) string {
	return subject + "\n" + body
}

func notFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID)
}
