package quota

import (
	"context"
	"errors"
	"time"

	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/plans"
	"github.com/kathanp/emailbot/svc/store"
)

// PeriodSource tells where a billing period came from.
type PeriodSource string

const (
	// SourceCycle is a stored billing cycle that contains now.
	SourceCycle PeriodSource = "cycle"
	// SourceDerived is a rolling 30-day window anchored at account creation.
	SourceDerived PeriodSource = "derived"
	// SourceFallback is the calendar month, used when the store fails.
	SourceFallback PeriodSource = "fallback"
)

// Period is a half-open window [Start, End) over which email usage is counted.
type Period struct {
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"`
	PlanID string       `json:"plan_id"`
	Cycle  plans.Cycle  `json:"billing_cycle"`
	Source PeriodSource `json:"source"`
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

const rollingWindow = 30 * 24 * time.Hour

// BillingPeriod returns the period containing now for the user. It never fails:
// store errors produce the calendar-month fallback on the free plan.
func (e *Engine) BillingPeriod(ctx context.Context, userID string) Period {
	return e.period(ctx, userID, nil, true)
}

func (e *Engine) periodFor(ctx context.Context, user *store.User) Period {
	return e.period(ctx, user.Key(), user, true)
}

// period resolves the billing period. user may be nil, in which case it is
// loaded only when a window has to be derived. A derived window is stored
// when persist is set.
func (e *Engine) period(ctx context.Context, userID string, user *store.User, persist bool) Period {
	now := e.now().UTC()

	latest, err := e.store.LatestCycle(ctx, userID)
	switch {
	case err == nil:
		start, end := latest.PeriodStart.UTC(), latest.PeriodEnd.UTC()
		if !now.Before(start) && now.Before(end) {
			return Period{
				Start:  start,
				End:    end,
				PlanID: latest.PlanID,
				Cycle:  cycleOrMonthly(latest.Cycle),
				Source: SourceCycle,
			}
		}
		// A cycle scheduled to start later is kept; the derived window
		// bridges the gap without being stored.
		if now.Before(start) {
			persist = false
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		e.log.WarnContext(ctx, "billing period lookup failed, using calendar month",
			logger.UserID(userID), logger.Error(err))
		return e.fallbackPeriod()
	}

	if user == nil {
		if user, err = e.store.User(ctx, userID); err != nil {
			e.log.WarnContext(ctx, "billing period user lookup failed, using calendar month",
				logger.UserID(userID), logger.Error(err))
			return e.fallbackPeriod()
		}
	}

	p := derivePeriod(user.CreatedAt, now)
	p.PlanID = e.catalog.Resolve(user.Plan).ID
	if !persist {
		return p
	}

	if err := e.store.AppendCycle(ctx, &store.BillingCycle{
		UserID:      userID,
		PlanID:      p.PlanID,
		Cycle:       string(p.Cycle),
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
		CreatedAt:   now,
	}); err != nil {
		e.log.WarnContext(ctx, "failed to persist derived billing period",
			logger.UserID(userID), logger.Error(err))
	}
	return p
}

// derivePeriod finds the 30-day window containing now, counting from the
// creation date truncated to UTC midnight. A creation time in the future
// anchors at today.
func derivePeriod(createdAt, now time.Time) Period {
	anchor := midnight(createdAt.UTC())
	if createdAt.IsZero() || anchor.After(now) {
		anchor = midnight(now)
	}
	steps := now.Sub(anchor) / rollingWindow
	start := anchor.Add(steps * rollingWindow)
	return Period{
		Start:  start,
		End:    start.Add(rollingWindow),
		Cycle:  plans.Monthly,
		Source: SourceDerived,
	}
}

func (e *Engine) fallbackPeriod() Period {
	now := e.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start:  start,
		End:    start.AddDate(0, 1, 0),
		PlanID: plans.FreePlanID,
		Cycle:  plans.Monthly,
		Source: SourceFallback,
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cycleOrMonthly(s string) plans.Cycle {
	if c := plans.Cycle(s); c.Valid() {
		return c
	}
	return plans.Monthly
}
