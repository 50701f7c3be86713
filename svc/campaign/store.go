package campaign

import (
	"context"

	"github.com/kathanp/emailbot/svc/store"
)

// Store is everything a campaign reads and writes.
type Store interface {
	User(ctx context.Context, id string) (*store.User, error)
	Template(ctx context.Context, userID, id string) (*store.Template, error)
	File(ctx context.Context, userID, id string) (*store.ContactFile, error)
	Sender(ctx context.Context, userID, id string) (*store.Sender, error)

	CreateCampaign(ctx context.Context, c *store.Campaign) error
	CompleteCampaign(ctx context.Context, c *store.Campaign) error
	FailCampaign(ctx context.Context, c *store.Campaign) error
	Campaign(ctx context.Context, userID, id string) (*store.Campaign, error)
	Campaigns(ctx context.Context, userID string, limit int64) ([]store.Campaign, error)

	InsertEmailLogs(ctx context.Context, logs []store.EmailLog) error
	EmailLogs(ctx context.Context, userID, campaignID string) ([]store.EmailLog, error)
}

func NewMongoStore(s *store.Store) Store {
	return mongoStore{s: s}
}

type mongoStore struct {
	s *store.Store
}

func (m mongoStore) User(ctx context.Context, id string) (*store.User, error) {
	return m.s.Users.ByID(ctx, id)
}

func (m mongoStore) Template(ctx context.Context, userID, id string) (*store.Template, error) {
	return m.s.Templates.ByID(ctx, userID, id)
}

func (m mongoStore) File(ctx context.Context, userID, id string) (*store.ContactFile, error) {
	return m.s.Files.ByID(ctx, userID, id)
}

func (m mongoStore) Sender(ctx context.Context, userID, id string) (*store.Sender, error) {
	return m.s.Senders.ByID(ctx, userID, id)
}

func (m mongoStore) CreateCampaign(ctx context.Context, c *store.Campaign) error {
	return m.s.Campaigns.Create(ctx, c)
}

func (m mongoStore) CompleteCampaign(ctx context.Context, c *store.Campaign) error {
	return m.s.Campaigns.Complete(ctx, c)
}

func (m mongoStore) FailCampaign(ctx context.Context, c *store.Campaign) error {
	return m.s.Campaigns.Fail(ctx, c)
}

func (m mongoStore) Campaign(ctx context.Context, userID, id string) (*store.Campaign, error) {
	return m.s.Campaigns.ByID(ctx, userID, id)
}

func (m mongoStore) Campaigns(ctx context.Context, userID string, limit int64) ([]store.Campaign, error) {
	return m.s.Campaigns.List(ctx, userID, limit)
}

func (m mongoStore) InsertEmailLogs(ctx context.Context, logs []store.EmailLog) error {
	return m.s.EmailLogs.InsertMany(ctx, logs)
}

func (m mongoStore) EmailLogs(ctx context.Context, userID, campaignID string) ([]store.EmailLog, error) {
	return m.s.EmailLogs.ByCampaign(ctx, userID, campaignID)
}
