package quota

import (
	"context"
	"time"

	"github.com/kathanp/emailbot/svc/store"
)

// Store is the persistence the engine reads counts from and writes plan changes to.
type Store interface {
	User(ctx context.Context, userID string) (*store.User, error)
	UpdatePlan(ctx context.Context, userID, planID string) error
	LatestCycle(ctx context.Context, userID string) (*store.BillingCycle, error)
	AppendCycle(ctx context.Context, c *store.BillingCycle) error
	AppendSubscriptionLog(ctx context.Context, l *store.SubscriptionLog) error
	CountSentEmails(ctx context.Context, userID string, start, end time.Time) (int64, error)
	CountSenders(ctx context.Context, userID string) (int64, error)
	CountActiveTemplates(ctx context.Context, userID string) (int64, error)
	CountCampaigns(ctx context.Context, userID string) (int64, error)
}

// NewMongoStore adapts the MongoDB repositories to Store.
func NewMongoStore(s *store.Store) Store {
	return mongoStore{s: s}
}

type mongoStore struct {
	s *store.Store
}

func (m mongoStore) User(ctx context.Context, userID string) (*store.User, error) {
	return m.s.Users.ByID(ctx, userID)
}

func (m mongoStore) UpdatePlan(ctx context.Context, userID, planID string) error {
	return m.s.Users.UpdatePlan(ctx, userID, planID)
}

func (m mongoStore) LatestCycle(ctx context.Context, userID string) (*store.BillingCycle, error) {
	return m.s.BillingCycles.Latest(ctx, userID)
}

func (m mongoStore) AppendCycle(ctx context.Context, c *store.BillingCycle) error {
	return m.s.BillingCycles.Append(ctx, c)
}

func (m mongoStore) AppendSubscriptionLog(ctx context.Context, l *store.SubscriptionLog) error {
	return m.s.SubscriptionLogs.Append(ctx, l)
}

func (m mongoStore) CountSentEmails(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	return m.s.EmailLogs.CountSent(ctx, userID, start, end)
}

func (m mongoStore) CountSenders(ctx context.Context, userID string) (int64, error) {
	return m.s.Senders.CountInUse(ctx, userID)
}

func (m mongoStore) CountActiveTemplates(ctx context.Context, userID string) (int64, error) {
	return m.s.Templates.CountActive(ctx, userID)
}

func (m mongoStore) CountCampaigns(ctx context.Context, userID string) (int64, error) {
	return m.s.Campaigns.Count(ctx, userID)
}
