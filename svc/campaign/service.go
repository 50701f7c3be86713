// Package campaign validates, meters and dispatches a template to every
// contact in an uploaded file, recording one email log per attempt.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/kathanp/emailbot/pkg/contacts"
	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/dispatch"
	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/templatevars"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/store"
	"github.com/kathanp/emailbot/svc/templates"
)

type Quota interface {
	CheckEmailLimit(ctx context.Context, userID string, requested int) quota.EmailLimit
}

// Providers resolves the delivery backend for a verified sender.
type Providers interface {
	Provider(ctx context.Context, user *store.User, sender *store.Sender) (delivery.Provider, error)
}

type Dispatcher interface {
	SendBulk(ctx context.Context, p delivery.Provider, sender string, msgs []delivery.Message, pacing dispatch.Pacing) dispatch.Result
}

// Recorder receives batch timings.
type Recorder interface {
	ObserveDispatch(kind delivery.Kind, d time.Duration)
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithAsync makes Start return once the campaign is recorded and dispatch
// runs in the background. Use Wait to drain running campaigns.
func WithAsync(async bool) Option {
	return func(s *Service) { s.async = async }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	store      Store
	quota      Quota
	providers  Providers
	dispatcher Dispatcher
	recorder   Recorder
	async      bool
	log        *slog.Logger
	now        func() time.Time
	wg         sync.WaitGroup
}

func New(st Store, q Quota, providers Providers, d Dispatcher, opts ...Option) *Service {
	s := &Service{
		store:      st,
		quota:      q,
		providers:  providers,
		dispatcher: d,
		log:        logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("campaign"))
	return s
}

type StartRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
	FileID     string `json:"file_id" validate:"required"`
	SenderID   string `json:"sender_id" validate:"required"`
}

// Start runs a campaign. Validation and quota failures return before anything
// is recorded; failures after the campaign is recorded mark it failed.
func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (*store.Campaign, error) {
	user, tpl, file, sender, err := s.load(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	if res := templates.Check(tpl, file.Columns); !res.Valid {
		return nil, &ValidationError{Result: res}
	}

	recipients := withEmail(file.Contacts)
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	limit := s.quota.CheckEmailLimit(ctx, userID, len(recipients))
	if err := limit.Err(); err != nil {
		return nil, err
	}

	start := s.now().UTC()
	c := &store.Campaign{
		UserID:      userID,
		TemplateID:  req.TemplateID,
		FileID:      req.FileID,
		SenderEmail: sender.Email,
		Provider:    sender.Provider,
		Status:      store.CampaignSending,
		TotalEmails: len(recipients),
		StartTime:   start,
		CreatedAt:   start,
		UpdatedAt:   start,
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("campaign: record: %w", err)
	}

	log := s.log.With(logger.UserID(userID), logger.CampaignID(c.ID.Hex()), logger.Provider(sender.Provider))
	log.InfoContext(ctx, "campaign started", logger.Count("recipients", len(recipients)))

	msgs := render(tpl, recipients, c.ID.Hex())
	p, err := s.providers.Provider(ctx, user, sender)
	if err != nil {
		s.fail(ctx, log, c, err)
		return c, errors.Join(ErrSetupFailed, err)
	}

	from := sender.Email
	if sender.DisplayName != "" {
		from = (&mail.Address{Name: sender.DisplayName, Address: sender.Email}).String()
	}
	run := func(ctx context.Context) {
		s.dispatch(ctx, log, c, p, from, msgs)
	}
	if !s.async {
		run(ctx)
		return c, nil
	}

	snapshot := *c
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(context.WithoutCancel(ctx))
	}()
	return &snapshot, nil
}

// Wait blocks until background campaigns finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) load(ctx context.Context, userID string, req StartRequest) (
	*store.User, *store.Template, *store.ContactFile, *store.Sender, error,
) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, nil, nil, nil, notFoundAs(err, ErrUserNotFound)
	}
	tpl, err := s.store.Template(ctx, userID, req.TemplateID)
	if err == nil && !tpl.IsActive {
		err = store.ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, nil, notFoundAs(err, ErrTemplateNotFound)
	}
	file, err := s.store.File(ctx, userID, req.FileID)
	if err != nil {
		return nil, nil, nil, nil, notFoundAs(err, ErrFileNotFound)
	}
	sender, err := s.store.Sender(ctx, userID, req.SenderID)
	if err == nil && sender.VerificationStatus == store.SenderDeleted {
		err = store.ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, nil, notFoundAs(err, ErrSenderNotFound)
	}
	if sender.VerificationStatus != store.SenderVerified {
		return nil, nil, nil, nil, fmt.Errorf("%w: %s is %s", ErrSenderNotReady, sender.Email, sender.VerificationStatus)
	}
	return user, tpl, file, sender, nil
}

func (s *Service) dispatch(ctx context.Context, log *slog.Logger, c *store.Campaign, p delivery.Provider, from string, msgs []delivery.Message) {
	res := s.dispatcher.SendBulk(ctx, p, from, msgs, dispatch.PacingFor(p.Kind()))
	if s.recorder != nil {
		s.recorder.ObserveDispatch(p.Kind(), res.Duration())
	}

	logs := make([]store.EmailLog, 0, len(res.Deliveries))
	for _, d := range res.Deliveries {
		entry := store.EmailLog{
			UserID:     c.UserID,
			CampaignID: c.ID.Hex(),
			Recipient:  d.To,
			Sender:     c.SenderEmail,
			Provider:   string(p.Kind()),
			Status:     store.EmailStatusSent,
			MessageID:  d.MessageID,
			SentAt:     d.SentAt,
		}
		if !d.OK() {
			entry.Status = store.EmailStatusFailed
			entry.ErrorCode = d.Err.Code
			entry.ErrorMessage = d.Err.Message
		}
		logs = append(logs, entry)
	}
	if err := s.store.InsertEmailLogs(ctx, logs); err != nil {
		log.ErrorContext(ctx, "failed to record email logs", logger.Error(err))
	}

	end := res.EndTime.UTC()
	c.Status = store.CampaignCompleted
	c.TotalEmails = res.Total
	c.SuccessfulSends = res.Successful
	c.FailedSends = res.Failed
	c.EndTime = &end
	c.DurationSeconds = res.Duration().Seconds()
	c.UpdatedAt = s.now().UTC()
	if err := s.store.CompleteCampaign(ctx, c); err != nil {
		log.ErrorContext(ctx, "failed to record campaign result", logger.Error(err))
	}

	log.InfoContext(ctx, "campaign completed",
		logger.Count("successful", res.Successful),
		logger.Count("failed", res.Failed),
		logger.Duration(res.Duration()),
	)
}

func (s *Service) fail(ctx context.Context, log *slog.Logger, c *store.Campaign, cause error) {
	end := s.now().UTC()
	c.Status = store.CampaignFailed
	c.FailureReason = cause.Error()
	c.EndTime = &end
	c.UpdatedAt = end
	if err := s.store.FailCampaign(ctx, c); err != nil {
		log.ErrorContext(ctx, "failed to mark campaign failed", logger.Error(err))
	}
	log.WarnContext(ctx, "campaign failed before dispatch", logger.Error(cause))
}

// Get returns a campaign.
func (s *Service) Get(ctx context.Context, userID, id string) (*store.Campaign, error) {
	c, err := s.store.Campaign(ctx, userID, id)
	if err != nil {
		return nil, notFoundAs(err, ErrCampaignNotFound)
	}
	return c, nil
}

// List returns recent campaigns, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int64) ([]store.Campaign, error) {
	return s.store.Campaigns(ctx, userID, limit)
}

// Logs returns the per-recipient records of a campaign.
func (s *Service) Logs(ctx context.Context, userID, id string) ([]store.EmailLog, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.EmailLogs(ctx, userID, id)
}

func withEmail(rows []map[string]string) []contacts.Contact {
	out := make([]contacts.Contact, 0, len(rows))
	for _, r := range rows {
		if c := contacts.Contact(r); c.Email() != "" {
			out = append(out, c)
		}
	}
	return out
}

func render(tpl *store.Template, recipients []contacts.Contact, tag string) []delivery.Message {
	html := looksLikeHTML(tpl.Body)
	msgs := make([]delivery.Message, len(recipients))
	for i, c := range recipients {
		body := templatevars.Render(tpl.Body, c)
		msgs[i] = delivery.Message{
			To:      c.Email(),
			Subject: strings.TrimSpace(templatevars.Render(tpl.Subject, c)),
			Tag:     tag,
		}
		if html {
			msgs[i].HTML = body
		} else {
			msgs[i].Text = body
		}
	}
	return msgs
}

func looksLikeHTML(s string) bool {
	i := strings.IndexByte(s, '<')
	return i >= 0 && strings.IndexByte(s[i:], '>') > 0
}

func notFoundAs(err, target error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
		return target
	}
	return err
}
