package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/plans"
)

// Notifier is told about every applied plan change.
type Notifier interface {
	PlanChanged(ctx context.Context, pc PlanChange) error
}

// LogNotifier records plan changes in the log.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = logger.Discard()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) PlanChanged(ctx context.Context, pc PlanChange) error {
	n.log.InfoContext(ctx, "subscription changed",
		logger.UserID(pc.UserID),
		slog.String("old_plan", pc.OldPlan),
		slog.String("new_plan", pc.NewPlan),
		slog.String("change_type", string(pc.Change)),
	)
	return nil
}

// MailNotifier emails the account owner after logging the change.
type MailNotifier struct {
	*LogNotifier
	provider delivery.Provider
	from     string
	catalog  *plans.Catalog
}

func NewMailNotifier(log *slog.Logger, p delivery.Provider, from string, catalog *plans.Catalog) *MailNotifier {
	if catalog == nil {
		catalog = plans.Default()
	}
	return &MailNotifier{LogNotifier: NewLogNotifier(log), provider: p, from: from, catalog: catalog}
}

func (n *MailNotifier) PlanChanged(ctx context.Context, pc PlanChange) error {
	_ = n.LogNotifier.PlanChanged(ctx, pc)
	if pc.UserEmail == "" || pc.Change == plans.ChangeNone {
		return nil
	}

	plan := n.catalog.Resolve(pc.NewPlan)
	subject := fmt.Sprintf("Your plan is now %s", plan.Name)
	text := fmt.Sprintf("Your subscription changed from %s to %s (%s billing). "+
		"Your new limits: %s emails per period, %s senders, %s templates.",
		pc.OldPlan, pc.NewPlan, pc.Cycle,
		limitText(plan.Limits.Emails), limitText(plan.Limits.Senders), limitText(plan.Limits.Templates))

	_, err := n.provider.Send(ctx, n.from, delivery.Message{
		To:      pc.UserEmail,
		Subject: subject,
		Text:    text,
		Tag:     "plan-change",
	})
	return err
}

func limitText(n int64) string {
	if n == plans.Unlimited {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
