// Package quota enforces plan limits and applies plan changes.
//
// Read-only checks fail open: when the store cannot be reached they allow the
// action and mark the answer Degraded. Plan changes fail closed: a downgrade
// whose usage cannot be read is refused.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/plans"
	"github.com/kathanp/emailbot/svc/store"
)

// Recorder receives quota decisions for metrics.
type Recorder interface {
	QuotaDenied(resource string)
	PlanChanged(change string)
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithCatalog(c *plans.Catalog) Option {
	return func(e *Engine) {
		if c != nil {
			e.catalog = c
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type Engine struct {
	store    Store
	catalog  *plans.Catalog
	notifier Notifier
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time
}

func New(st Store, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		catalog: plans.Default(),
		log:     logger.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = NewLogNotifier(e.log)
	}
	e.log = e.log.With(logger.Component("quota"))
	return e
}

// Catalog returns the plan catalog the engine enforces.
func (e *Engine) Catalog() *plans.Catalog { return e.catalog }

// EmailLimit is the answer to "may this user send now".
// Allowed is true whenever any quota remains; Requested is informational.
type EmailLimit struct {
	Allowed    bool   `json:"allowed"`
	Requested  int64  `json:"requested"`
	Used       int64  `json:"used"`
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
	Plan       string `json:"plan"`
	Period     Period `json:"period"`
	Degraded   bool   `json:"degraded,omitempty"`
	Suggestion string `json:"upgrade_suggestion,omitempty"` // set only when denied
}

// CheckEmailLimit reports remaining email quota for the current billing period.
func (e *Engine) CheckEmailLimit(ctx context.Context, userID string, requested int) EmailLimit {
	res := EmailLimit{Requested: int64(requested)}

	user, err := e.store.User(ctx, userID)
	if err != nil {
		free := e.catalog.Free()
		e.log.WarnContext(ctx, "email limit check degraded: user lookup failed",
			logger.UserID(userID), logger.Error(err))
		res.Allowed = true
		res.Plan = free.ID
		res.Limit = free.Limits.Emails
		res.Remaining = free.Limits.Emails
		res.Period = e.fallbackPeriod()
		res.Degraded = true
		return res
	}

	plan := e.catalog.Resolve(user.Plan)
	res.Plan = plan.ID
	res.Limit = plan.Limits.Emails
	res.Period = e.periodFor(ctx, user)

	used, err := e.store.CountSentEmails(ctx, userID, res.Period.Start, res.Period.End)
	if err != nil {
		e.log.WarnContext(ctx, "email limit check degraded: usage count failed",
			logger.UserID(userID), logger.Error(err))
		res.Allowed = true
		res.Remaining = plans.Remaining(0, res.Limit)
		res.Degraded = true
		return res
	}

	res.Used = used
	res.Remaining = plans.Remaining(used, res.Limit)
	res.Allowed = res.Limit == plans.Unlimited || res.Remaining > 0

	if !res.Allowed {
		res.Suggestion = e.suggest(plan, plans.ResourceEmails)
		e.denied(plans.ResourceEmails)
	} else if res.Limit != plans.Unlimited && res.Requested > res.Remaining {
		e.log.WarnContext(ctx, "batch is larger than remaining email quota",
			logger.UserID(userID),
			slog.Int64("requested", res.Requested),
			slog.Int64("remaining", res.Remaining))
	}
	return res
}

// ResourceLimit is the answer to "may this user add one more".
type ResourceLimit struct {
	Resource   plans.Resource `json:"resource"`
	CanAdd     bool           `json:"can_add"`
	Current    int64          `json:"current"`
	Limit      int64          `json:"limit"`
	Remaining  int64          `json:"remaining"`
	Plan       string         `json:"plan"`
	Degraded   bool           `json:"degraded,omitempty"`
	Suggestion string         `json:"upgrade_suggestion,omitempty"`
}

// CheckSenderLimit counts senders that are not deleted.
func (e *Engine) CheckSenderLimit(ctx context.Context, userID string) ResourceLimit {
	return e.checkResource(ctx, userID, plans.ResourceSenders, e.store.CountSenders)
}

// CheckTemplateLimit counts active templates.
func (e *Engine) CheckTemplateLimit(ctx context.Context, userID string) ResourceLimit {
	return e.checkResource(ctx, userID, plans.ResourceTemplates, e.store.CountActiveTemplates)
}

func (e *Engine) checkResource(
	ctx context.Context,
	userID string,
	r plans.Resource,
	count func(context.Context, string) (int64, error),
) ResourceLimit {
	res := ResourceLimit{Resource: r}

	plan := e.catalog.Free()
	user, err := e.store.User(ctx, userID)
	if err == nil {
		plan = e.catalog.Resolve(user.Plan)
	}
	res.Plan = plan.ID
	res.Limit = plan.Limit(r)

	if err != nil {
		e.log.WarnContext(ctx, "limit check degraded: user lookup failed",
			logger.UserID(userID), slog.String("resource", string(r)), logger.Error(err))
		res.CanAdd = true
		res.Remaining = res.Limit
		res.Degraded = true
		return res
	}

	current, err := count(ctx, userID)
	if err != nil {
		e.log.WarnContext(ctx, "limit check degraded: count failed",
			logger.UserID(userID), slog.String("resource", string(r)), logger.Error(err))
		res.CanAdd = true
		res.Remaining = res.Limit
		res.Degraded = true
		return res
	}

	res.Current = current
	res.Remaining = plans.Remaining(current, res.Limit)
	res.CanAdd = res.Limit == plans.Unlimited || res.Remaining > 0
	if !res.CanAdd {
		res.Suggestion = e.suggest(plan, r)
		e.denied(r)
	}
	return res
}

func (e *Engine) suggest(current plans.Plan, r plans.Resource) string {
	up, ok := e.catalog.UpgradeFor(current, r)
	if !ok {
		return ""
	}
	limit := "unlimited"
	if l := up.Limit(r); l != plans.Unlimited {
		limit = fmt.Sprint(l)
	}
	return fmt.Sprintf("Upgrade to the %s plan for %s %s.", up.Name, limit, r)
}

func (e *Engine) denied(r plans.Resource) {
	if e.recorder != nil {
		e.recorder.QuotaDenied(string(r))
	}
}

// ResourceUsage is one line of a usage report.
type ResourceUsage struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

func newResourceUsage(used, limit int64) ResourceUsage {
	return ResourceUsage{Used: used, Limit: limit, Remaining: plans.Remaining(used, limit)}
}

// UsageReport summarises a user's consumption against their plan.
type UsageReport struct {
	Plan      plans.Plan    `json:"plan"`
	Period    Period        `json:"period"`
	Emails    ResourceUsage `json:"emails"`
	Senders   ResourceUsage `json:"senders"`
	Templates ResourceUsage `json:"templates"`
	Campaigns int64         `json:"campaigns"`
}

// Usage reads every counter for the user. Unlike the checks it returns errors.
func (e *Engine) Usage(ctx context.Context, userID string) (*UsageReport, error) {
	user, err := e.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan := e.catalog.Resolve(user.Plan)
	period := e.periodFor(ctx, user)

	counts, err := e.counts(ctx, userID, period)
	if err != nil {
		return nil, errors.Join(ErrUsageUnavailable, err)
	}
	campaigns, err := e.store.CountCampaigns(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrUsageUnavailable, err)
	}

	return &UsageReport{
		Plan:      plan,
		Period:    period,
		Emails:    newResourceUsage(counts[plans.ResourceEmails], plan.Limits.Emails),
		Senders:   newResourceUsage(counts[plans.ResourceSenders], plan.Limits.Senders),
		Templates: newResourceUsage(counts[plans.ResourceTemplates], plan.Limits.Templates),
		Campaigns: campaigns,
	}, nil
}

func (e *Engine) counts(ctx context.Context, userID string, period Period) (map[plans.Resource]int64, error) {
	emails, err := e.store.CountSentEmails(ctx, userID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("count emails: %w", err)
	}
	senders, err := e.store.CountSenders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count senders: %w", err)
	}
	templates, err := e.store.CountActiveTemplates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count templates: %w", err)
	}
	return map[plans.Resource]int64{
		plans.ResourceEmails:    emails,
		plans.ResourceSenders:   senders,
		plans.ResourceTemplates: templates,
	}, nil
}

func (e *Engine) lookupUser(ctx context.Context, userID string) (*store.User, error) {
	user, err := e.store.User(ctx, userID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
		return nil, errors.Join(ErrUserNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("quota: load user: %w", err)
	}
	return user, nil
}
