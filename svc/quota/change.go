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

// PlanChange describes an applied plan update.
type PlanChange struct {
	UserID    string       `json:"user_id"`
	UserEmail string       `json:"-"`
	OldPlan   string       `json:"old_plan"`
	NewPlan   string       `json:"new_plan"`
	Change    plans.Change `json:"change_type"`
	Cycle     plans.Cycle  `json:"billing_cycle"`
	Period    Period       `json:"period"`
	At        time.Time    `json:"timestamp"`
}

// CheckDowngrade returns the violations that would block moving the user to planID.
// An upgrade or same-tier move has no violations. Usage read errors are
// returned wrapped in ErrUsageUnavailable so callers refuse the change.
func (e *Engine) CheckDowngrade(ctx context.Context, userID, planID string) ([]Violation, error) {
	target, err := e.catalog.Get(planID)
	if err != nil {
		return nil, err
	}
	user, err := e.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := e.catalog.Resolve(user.Plan)
	if plans.Classify(current, target) != plans.ChangeDowngrade {
		return nil, nil
	}
	return e.violations(ctx, user, target)
}

func (e *Engine) violations(ctx context.Context, user *store.User, target plans.Plan) ([]Violation, error) {
	period := e.period(ctx, user.Key(), user, false)
	counts, err := e.counts(ctx, user.Key(), period)
	if err != nil {
		return nil, errors.Join(ErrUsageUnavailable, err)
	}

	var out []Violation
	for _, r := range plans.Resources {
		used, limit := counts[r], target.Limit(r)
		if !plans.Exceeds(used, limit) {
			continue
		}
		out = append(out, Violation{
			Resource: r,
			Used:     used,
			Limit:    limit,
			Message:  violationMessage(r, used, limit, target.Name),
		})
	}
	return out, nil
}

func violationMessage(r plans.Resource, used, limit int64, planName string) string {
	switch r {
	case plans.ResourceEmails:
		return fmt.Sprintf("You have sent %d emails this billing period, but the %s plan allows %d per month.",
			used, planName, limit)
	case plans.ResourceSenders:
		return fmt.Sprintf("You have %d sender emails, but the %s plan allows %d. Remove %d before downgrading.",
			used, planName, limit, used-limit)
	case plans.ResourceTemplates:
		return fmt.Sprintf("You have %d active templates, but the %s plan allows %d. Deactivate %d before downgrading.",
			used, planName, limit, used-limit)
	}
	return fmt.Sprintf("Usage of %s (%d) exceeds the %s plan limit of %d.", r, used, planName, limit)
}

// UpdateSubscription moves the user to planID. Downgrades are refused as a
// whole when any resource is over the target plan's limit.
//
// Once the plan write succeeds the change is committed; the billing cycle,
// subscription log and notification that follow are best effort and only logged on failure.
func (e *Engine) UpdateSubscription(ctx context.Context, userID, planID string, cycle plans.Cycle) (*PlanChange, error) {
	if cycle == "" {
		cycle = plans.Monthly
	}
	if !cycle.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCycle, cycle)
	}
	target, err := e.catalog.Get(planID)
	if err != nil {
		return nil, err
	}
	user, err := e.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	current := e.catalog.Resolve(user.Plan)
	change := plans.Classify(current, target)
	log := e.log.With(logger.UserID(userID),
		slog.String("old_plan", current.ID), slog.String("new_plan", target.ID),
		slog.String("change_type", string(change)))

	if change == plans.ChangeDowngrade {
		vs, err := e.violations(ctx, user, target)
		if err != nil {
			log.WarnContext(ctx, "downgrade refused: usage unavailable", logger.Error(err))
			return nil, err
		}
		if len(vs) > 0 {
			log.InfoContext(ctx, "downgrade blocked", slog.Int("violations", len(vs)))
			e.denied("downgrade")
			return nil, &DowngradeError{From: current.ID, To: target.ID, Violations: vs}
		}
	}

	if err := e.store.UpdatePlan(ctx, userID, target.ID); err != nil {
		return nil, errors.Join(ErrPlanUpdateFailed, err)
	}

	now := e.now().UTC()
	pc := &PlanChange{
		UserID:    userID,
		UserEmail: user.Email,
		OldPlan:   current.ID,
		NewPlan:   target.ID,
		Change:    change,
		Cycle:     cycle,
		Period: Period{
			Start:  now,
			End:    now.Add(cycle.Duration()),
			PlanID: target.ID,
			Cycle:  cycle,
			Source: SourceCycle,
		},
		At: now,
	}

	if err := e.store.AppendCycle(ctx, &store.BillingCycle{
		UserID:      userID,
		PlanID:      target.ID,
		Cycle:       string(cycle),
		PeriodStart: pc.Period.Start,
		PeriodEnd:   pc.Period.End,
		CreatedAt:   now,
	}); err != nil {
		log.ErrorContext(ctx, "plan updated but billing cycle was not recorded", logger.Error(err))
	}

	if err := e.store.AppendSubscriptionLog(ctx, &store.SubscriptionLog{
		UserID:     userID,
		OldPlan:    current.ID,
		NewPlan:    target.ID,
		ChangeType: string(change),
		Cycle:      string(cycle),
		Timestamp:  now,
	}); err != nil {
		log.ErrorContext(ctx, "plan updated but subscription log was not recorded", logger.Error(err))
	}

	if err := e.notifier.PlanChanged(ctx, *pc); err != nil {
		log.WarnContext(ctx, "plan change notification failed", logger.Error(err))
	}
	if e.recorder != nil {
		e.recorder.PlanChanged(string(change))
	}

	log.InfoContext(ctx, "plan updated", slog.String("billing_cycle", string(cycle)))
	return pc, nil
}
