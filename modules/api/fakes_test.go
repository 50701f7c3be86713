package api_test

import (
	"context"
	"io"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/plans"
	"github.com/kathanp/emailbot/pkg/templatevars"
	"github.com/kathanp/emailbot/svc/account"
	"github.com/kathanp/emailbot/svc/billing"
	"github.com/kathanp/emailbot/svc/campaign"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/senders"
	"github.com/kathanp/emailbot/svc/store"
	"github.com/kathanp/emailbot/svc/templates"
)

type fakeAccounts struct {
	register func(account.RegisterRequest) (*account.Session, error)
	login    func(account.LoginRequest) (*account.Session, error)
	user     *store.User
}

func (f *fakeAccounts) Register(_ context.Context, req account.RegisterRequest) (*account.Session, error) {
	return f.register(req)
}

func (f *fakeAccounts) Login(_ context.Context, req account.LoginRequest) (*account.Session, error) {
	return f.login(req)
}

func (f *fakeAccounts) User(_ context.Context, id string) (*store.User, error) {
	if f.user == nil || f.user.Key() != id {
		return nil, account.ErrUserNotFound
	}
	return f.user, nil
}

func (f *fakeAccounts) GoogleAuthURL(context.Context) (string, error) {
	return "", account.ErrGoogleDisabled
}

func (f *fakeAccounts) GoogleCallback(context.Context, string, string) (*account.Session, error) {
	return nil, account.ErrGoogleDisabled
}

type fakeBilling struct {
	change  func(userID string, req billing.ChangeRequest) (*quota.PlanChange, error)
	webhook func(payload []byte, sig string) error
}

func (f *fakeBilling) ChangePlan(_ context.Context, userID string, req billing.ChangeRequest) (*quota.PlanChange, error) {
	return f.change(userID, req)
}

func (f *fakeBilling) Cancel(ctx context.Context, userID string) (*quota.PlanChange, error) {
	return f.change(userID, billing.ChangeRequest{PlanID: plans.FreePlanID})
}

func (f *fakeBilling) PaymentMethods(context.Context, string) ([]billing.PaymentMethod, error) {
	return []billing.PaymentMethod{{ID: "pm_1", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}}, nil
}

func (f *fakeBilling) HandleWebhook(_ context.Context, payload []byte, sig string) error {
	return f.webhook(payload, sig)
}

type fakeQuota struct {
	report *quota.UsageReport
}

func (f *fakeQuota) Catalog() *plans.Catalog { return plans.Default() }

func (f *fakeQuota) Usage(context.Context, string) (*quota.UsageReport, error) {
	return f.report, nil
}

type fakeFiles struct {
	uploaded string
	files    []store.ContactFile
}

func (f *fakeFiles) Upload(_ context.Context, userID, name string, r io.Reader) (*store.ContactFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.uploaded = string(raw)
	cf := store.ContactFile{
		ID:       bson.NewObjectID(),
		UserID:   userID,
		Filename: name,
		Size:     int64(len(raw)),
		Columns:  strings.Split(strings.SplitN(string(raw), "\n", 2)[0], ","),
		RowCount: strings.Count(strings.TrimSpace(string(raw)), "\n"),
	}
	f.files = append(f.files, cf)
	return &cf, nil
}

func (f *fakeFiles) List(context.Context, string) ([]store.ContactFile, error) {
	return f.files, nil
}

func (f *fakeFiles) Get(_ context.Context, _, id string) (*store.ContactFile, error) {
	for i := range f.files {
		if f.files[i].ID.Hex() == id {
			return &f.files[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeFiles) Open(ctx context.Context, userID, id string) (io.ReadCloser, *store.ContactFile, error) {
	cf, err := f.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(strings.NewReader(f.uploaded)), cf, nil
}

func (f *fakeFiles) Delete(ctx context.Context, userID, id string) error {
	_, err := f.Get(ctx, userID, id)
	return err
}

type fakeTemplates struct {
	create func(templates.CreateRequest) (*store.Template, error)
	result templatevars.Result
}

func (f *fakeTemplates) Create(_ context.Context, _ string, req templates.CreateRequest) (*store.Template, error) {
	return f.create(req)
}

func (f *fakeTemplates) List(context.Context, string) ([]store.Template, error) {
	return nil, nil
}

func (f *fakeTemplates) Get(context.Context, string, string) (*store.Template, error) {
	return nil, templates.ErrTemplateNotFound
}

func (f *fakeTemplates) Deactivate(context.Context, string, string) error {
	return templates.ErrTemplateNotFound
}

func (f *fakeTemplates) ValidateAgainstFile(context.Context, string, string, string) (templatevars.Result, error) {
	return f.result, nil
}

type fakeSenders struct{}

func (fakeSenders) Add(_ context.Context, userID string, req senders.AddRequest) (*store.Sender, error) {
	return nil, senders.ErrDuplicateSender
}

func (fakeSenders) List(context.Context, string) ([]store.Sender, error) {
	return []store.Sender{}, nil
}

func (fakeSenders) Refresh(context.Context, string, string) (*store.Sender, error) {
	return nil, senders.ErrSenderNotFound
}

func (fakeSenders) Delete(context.Context, string, string) error { return nil }

func (fakeSenders) Kinds() []delivery.Kind {
	return []delivery.Kind{delivery.KindSES, delivery.KindDev}
}

type fakeCampaigns struct {
	start func(campaign.StartRequest) (*store.Campaign, error)
	limit int64
}

func (f *fakeCampaigns) Start(_ context.Context, _ string, req campaign.StartRequest) (*store.Campaign, error) {
	return f.start(req)
}

func (f *fakeCampaigns) Get(context.Context, string, string) (*store.Campaign, error) {
	return nil, campaign.ErrCampaignNotFound
}

func (f *fakeCampaigns) List(_ context.Context, _ string, limit int64) ([]store.Campaign, error) {
	f.limit = limit
	return []store.Campaign{}, nil
}

func (f *fakeCampaigns) Logs(context.Context, string, string) ([]store.EmailLog, error) {
	return nil, campaign.ErrCampaignNotFound
}
