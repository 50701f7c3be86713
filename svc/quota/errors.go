package quota

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kathanp/emailbot/pkg/plans"
)

var (
	ErrUnknownPlan      = plans.ErrUnknownPlan
	ErrInvalidCycle     = errors.New("quota: invalid billing cycle")
	ErrUserNotFound     = errors.New("quota: user not found")
	ErrUsageUnavailable = errors.New("quota: usage could not be determined")
	ErrDowngradeBlocked = errors.New("quota: downgrade blocked by current usage")
	ErrPlanUpdateFailed = errors.New("quota: failed to update plan")
	ErrLimitReached     = errors.New("quota: plan limit reached")
)

// DeniedError is returned when a plan limit refuses an action.
type DeniedError struct {
	Resource   plans.Resource
	Used       int64
	Limit      int64
	Plan       string
	Suggestion string
}

func (e *DeniedError) Error() string {
	msg := fmt.Sprintf("%s limit reached: %d of %d used on the %s plan", e.Resource, e.Used, e.Limit, e.Plan)
	if e.Suggestion != "" {
		msg += ". " + e.Suggestion
	}
	return msg
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrLimitReached
}

// Err returns a *DeniedError when sending is not allowed.
func (l EmailLimit) Err() error {
	if l.Allowed {
		return nil
	}
	return &DeniedError{Resource: plans.ResourceEmails, Used: l.Used, Limit: l.Limit, Plan: l.Plan, Suggestion: l.Suggestion}
}

// Err returns a *DeniedError when another resource cannot be added.
func (l ResourceLimit) Err() error {
	if l.CanAdd {
		return nil
	}
	return &DeniedError{Resource: l.Resource, Used: l.Current, Limit: l.Limit, Plan: l.Plan, Suggestion: l.Suggestion}
}

// Violation is one resource whose current usage exceeds the target plan's limit.
type Violation struct {
	Resource plans.Resource `json:"resource"`
	Used     int64          `json:"used"`
	Limit    int64          `json:"limit"`
	Message  string         `json:"message"`
}

// DowngradeError lists every resource that blocks a downgrade.
type DowngradeError struct {
	From       string
	To         string
	Violations []Violation
}

func (e *DowngradeError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("cannot downgrade from %s to %s: %s", e.From, e.To, strings.Join(msgs, " "))
}

func (e *DowngradeError) Is(target error) bool {
	return target == ErrDowngradeBlocked
}
