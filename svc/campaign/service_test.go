package campaign_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/dispatch"
	"github.com/kathanp/emailbot/svc/campaign"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/store"
)

const uid = "65f1c0ffee0000000000beef"

type memStore struct {
	mu        sync.Mutex
	user      *store.User
	templates map[string]*store.Template
	files     map[string]*store.ContactFile
	senders   map[string]*store.Sender
	campaigns map[string]*store.Campaign
	logs      []store.EmailLog
}

func newMemStore() *memStore {
	return &memStore{
		user:      &store.User{Email: "owner@example.com", Plan: "starter"},
		templates: map[string]*store.Template{},
		files:     map[string]*store.ContactFile{},
		senders:   map[string]*store.Sender{},
		campaigns: map[string]*store.Campaign{},
	}
}

func (m *memStore) User(_ context.Context, id string) (*store.User, error) {
	if id != uid {
		return nil, store.ErrNotFound
	}
	return m.user, nil
}

func (m *memStore) Template(_ context.Context, _, id string) (*store.Template, error) {
	if t, ok := m.templates[id]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) File(_ context.Context, _, id string) (*store.ContactFile, error) {
	if f, ok := m.files[id]; ok {
		return f, nil
	}
	return nil, store.ErrInvalidID
}

func (m *memStore) Sender(_ context.Context, _, id string) (*store.Sender, error) {
	if s, ok := m.senders[id]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreateCampaign(_ context.Context, c *store.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = bson.NewObjectID()
	cp := *c
	m.campaigns[c.ID.Hex()] = &cp
	return nil
}

func (m *memStore) CompleteCampaign(_ context.Context, c *store.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID.Hex()] = &cp
	return nil
}

func (m *memStore) FailCampaign(ctx context.Context, c *store.Campaign) error {
	return m.CompleteCampaign(ctx, c)
}

func (m *memStore) Campaign(_ context.Context, _, id string) (*store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) Campaigns(_ context.Context, _ string, _ int64) ([]store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Campaign{}
	for _, c := range m.campaigns {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) InsertEmailLogs(_ context.Context, logs []store.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *memStore) EmailLogs(_ context.Context, _, campaignID string) ([]store.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.EmailLog
	for _, l := range m.logs {
		if l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	return out, nil
}

type emailQuota struct {
	limit     quota.EmailLimit
	requested []int
}

func (q *emailQuota) CheckEmailLimit(_ context.Context, _ string, requested int) quota.EmailLimit {
	q.requested = append(q.requested, requested)
	return q.limit
}

type recordingProvider struct {
	mu     sync.Mutex
	sent   []delivery.Message
	sender string
	fail   map[string]bool
}

func (p *recordingProvider) Kind() delivery.Kind { return delivery.KindSES }

func (p *recordingProvider) Send(_ context.Context, sender string, msg delivery.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sender = sender
	if p.fail[msg.To] {
		return "", &delivery.Error{Code: delivery.CodeInvalidRecipient, Message: "mailbox does not exist"}
	}
	p.sent = append(p.sent, msg)
	return "mid-" + msg.To, nil
}

type providers struct {
	p   delivery.Provider
	err error
}

func (r providers) Provider(context.Context, *store.User, *store.Sender) (delivery.Provider, error) {
	return r.p, r.err
}

type durations struct {
	mu    sync.Mutex
	kinds []delivery.Kind
}

func (d *durations) ObserveDispatch(kind delivery.Kind, _ time.Duration) {
	d.mu.Lock()
	d.kinds = append(d.kinds, kind)
	d.mu.Unlock()
}

var allowed = quota.EmailLimit{Allowed: true, Limit: 1000, Remaining: 900, Plan: "starter"}

type fixture struct {
	st       *memStore
	quota    *emailQuota
	provider *recordingProvider
	req      campaign.StartRequest
}

func newFixture() *fixture {
	st := newMemStore()
	tplID, fileID, senderID := bson.NewObjectID().Hex(), bson.NewObjectID().Hex(), bson.NewObjectID().Hex()
	st.templates[tplID] = &store.Template{
		UserID: uid, IsActive: true,
		Subject: "Hello {FIRST_NAME}",
		Body:    "<p>Hi {FIRST_NAME} from {company}</p>",
	}
	st.files[fileID] = &store.ContactFile{
		UserID:  uid,
		Columns: []string{"Email", "First_Name"},
		Contacts: []map[string]string{
			{"Email": "ann@example.com", "First_Name": "Ann"},
			{"Email": "", "First_Name": "Nobody"},
			{"Email": "bob@example.com", "First_Name": "Bob"},
			{"Email": "cy@example.com", "First_Name": "Cy"},
		},
	}
	st.senders[senderID] = &store.Sender{
		UserID: uid, Email: "news@example.com", DisplayName: "News",
		Provider: "ses", VerificationStatus: store.SenderVerified,
	}
	return &fixture{
		st:       st,
		quota:    &emailQuota{limit: allowed},
		provider: &recordingProvider{fail: map[string]bool{"bob@example.com": true}},
		req:      campaign.StartRequest{TemplateID: tplID, FileID: fileID, SenderID: senderID},
	}
}

func (f *fixture) service(opts ...campaign.Option) *campaign.Service {
	d := dispatch.New(dispatch.WithSleep(func(context.Context, time.Duration) {}))
	return campaign.New(f.st, f.quota, providers{p: f.provider}, d, opts...)
}

func TestStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	rec := &durations{}

	c, err := f.service(campaign.WithRecorder(rec)).Start(ctx, uid, f.req)
	require.NoError(t, err)

	assert.Equal(t, []int{3}, f.quota.requested)
	assert.Equal(t, store.CampaignCompleted, c.Status)
	assert.Equal(t, 3, c.TotalEmails)
	assert.Equal(t, 2, c.SuccessfulSends)
	assert.Equal(t, 1, c.FailedSends)
	require.NotNil(t, c.EndTime)
	assert.Equal(t, "ses", c.Provider)

	saved, err := f.st.Campaign(ctx, uid, c.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, store.CampaignCompleted, saved.Status)

	require.Len(t, f.provider.sent, 2)
	assert.Contains(t, f.provider.sender, "news@example.com")
	assert.Contains(t, f.provider.sender, "News")
	for _, m := range f.provider.sent {
		assert.NotContains(t, m.Subject, "{FIRST_NAME}")
		assert.Contains(t, m.HTML, "{company}")
		assert.Empty(t, m.Text)
		assert.Equal(t, c.ID.Hex(), m.Tag)
	}

	logs, err := f.service().Logs(ctx, uid, c.ID.Hex())
	require.NoError(t, err)
	require.Len(t, logs, 3)
	statuses := map[string]string{}
	for _, l := range logs {
		statuses[l.Recipient] = l.Status
		if l.Status == store.EmailStatusFailed {
			assert.Equal(t, delivery.CodeInvalidRecipient, l.ErrorCode)
			assert.Empty(t, l.MessageID)
		} else {
			assert.Equal(t, "mid-"+l.Recipient, l.MessageID)
		}
	}
	assert.Equal(t, map[string]string{
		"ann@example.com": store.EmailStatusSent,
		"bob@example.com": store.EmailStatusFailed,
		"cy@example.com":  store.EmailStatusSent,
	}, statuses)
	assert.Equal(t, []delivery.Kind{delivery.KindSES}, rec.kinds)
}

func TestStartRejectsMissingVariables(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.st.templates[f.req.TemplateID].Body = "Hi {FIRST_NAME}, your {PLAN} renews on {DATE}"

	_, err := f.service().Start(context.Background(), uid, f.req)
	require.ErrorIs(t, err, campaign.ErrValidationFailed)

	var ve *campaign.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"DATE", "PLAN"}, ve.Result.Missing)
	assert.Empty(t, f.st.campaigns)
	assert.Empty(t, f.provider.sent)
	assert.Empty(t, f.quota.requested)
}

func TestStartQuotaDenied(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.quota.limit = quota.EmailLimit{Used: 1000, Limit: 1000, Plan: "starter", Suggestion: "Upgrade."}

	_, err := f.service().Start(context.Background(), uid, f.req)
	require.ErrorIs(t, err, quota.ErrLimitReached)
	assert.Empty(t, f.st.campaigns)
	assert.Empty(t, f.provider.sent)
}

func TestStartPrerequisites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown template", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.req.TemplateID = bson.NewObjectID().Hex()
		_, err := f.service().Start(ctx, uid, f.req)
		assert.ErrorIs(t, err, campaign.ErrTemplateNotFound)
	})

	t.Run("inactive template", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.st.templates[f.req.TemplateID].IsActive = false
		_, err := f.service().Start(ctx, uid, f.req)
		assert.ErrorIs(t, err, campaign.ErrTemplateNotFound)
	})

	t.Run("malformed file id", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.req.FileID = "nope"
		_, err := f.service().Start(ctx, uid, f.req)
		assert.ErrorIs(t, err, campaign.ErrFileNotFound)
	})

	t.Run("pending sender", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.st.senders[f.req.SenderID].VerificationStatus = store.SenderPending
		_, err := f.service().Start(ctx, uid, f.req)
		assert.ErrorIs(t, err, campaign.ErrSenderNotReady)
	})

	t.Run("deleted sender", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.st.senders[f.req.SenderID].VerificationStatus = store.SenderDeleted
		_, err := f.service().Start(ctx, uid, f.req)
		assert.ErrorIs(t, err, campaign.ErrSenderNotFound)
	})

	t.Run("no email addresses", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.st.files[f.req.FileID].Contacts = []map[string]string{{"Email": " ", "First_Name": "x"}}
		_, err := f.service().Start(ctx, uid, f.req)
		assert.ErrorIs(t, err, campaign.ErrNoRecipients)
	})
}

func TestStartMarksFailedWhenProviderUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture()
	d := dispatch.New()
	svc := campaign.New(f.st, f.quota, providers{err: errors.New("gmail token revoked")}, d)

	c, err := svc.Start(context.Background(), uid, f.req)
	require.ErrorIs(t, err, campaign.ErrSetupFailed)
	require.NotNil(t, c)

	saved, err := f.st.Campaign(context.Background(), uid, c.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, store.CampaignFailed, saved.Status)
	assert.Contains(t, saved.FailureReason, "token revoked")
	assert.Empty(t, f.st.logs)
}

func TestStartStampsUpdatedAt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("completed", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		now := created
		c, err := f.service(campaign.WithClock(func() time.Time {
			defer func() { now = now.Add(time.Minute) }()
			return now
		})).Start(ctx, uid, f.req)
		require.NoError(t, err)

		saved, err := f.st.Campaign(ctx, uid, c.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, created, saved.CreatedAt)
		assert.True(t, saved.UpdatedAt.After(saved.CreatedAt), "completion moves updated_at forward")
	})

	t.Run("failed", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		svc := campaign.New(f.st, f.quota, providers{err: errors.New("no provider")}, dispatch.New(),
			campaign.WithClock(func() time.Time { return created }))
		c, err := svc.Start(ctx, uid, f.req)
		require.ErrorIs(t, err, campaign.ErrSetupFailed)

		saved, err := f.st.Campaign(ctx, uid, c.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, store.CampaignFailed, saved.Status)
		assert.Equal(t, created, saved.UpdatedAt)
	})
}

func TestStartAsync(t *testing.T) {
	t.Parallel()
	f := newFixture()
	svc := f.service(campaign.WithAsync(true))

	ctx, cancel := context.WithCancel(context.Background())
	c, err := svc.Start(ctx, uid, f.req)
	require.NoError(t, err)
	cancel()
	assert.Equal(t, store.CampaignSending, c.Status)

	svc.Wait()
	saved, err := svc.Get(context.Background(), uid, c.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, store.CampaignCompleted, saved.Status)
	assert.Equal(t, 2, saved.SuccessfulSends)
	assert.Equal(t, 3, saved.SuccessfulSends+saved.FailedSends)

	_, err = svc.Get(context.Background(), uid, bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, campaign.ErrCampaignNotFound)
}
