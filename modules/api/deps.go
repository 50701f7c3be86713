package api

import (
	"context"
	"io"

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

type Accounts interface {
	Register(ctx context.Context, req account.RegisterRequest) (*account.Session, error)
	Login(ctx context.Context, req account.LoginRequest) (*account.Session, error)
	User(ctx context.Context, userID string) (*store.User, error)
	GoogleAuthURL(ctx context.Context) (string, error)
	GoogleCallback(ctx context.Context, code, state string) (*account.Session, error)
}

type Billing interface {
	ChangePlan(ctx context.Context, userID string, req billing.ChangeRequest) (*quota.PlanChange, error)
	Cancel(ctx context.Context, userID string) (*quota.PlanChange, error)
	PaymentMethods(ctx context.Context, userID string) ([]billing.PaymentMethod, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type Quota interface {
	Catalog() *plans.Catalog
	Usage(ctx context.Context, userID string) (*quota.UsageReport, error)
}

type Files interface {
	Upload(ctx context.Context, userID, filename string, r io.Reader) (*store.ContactFile, error)
	List(ctx context.Context, userID string) ([]store.ContactFile, error)
	Get(ctx context.Context, userID, id string) (*store.ContactFile, error)
	Open(ctx context.Context, userID, id string) (io.ReadCloser, *store.ContactFile, error)
	Delete(ctx context.Context, userID, id string) error
}

type Templates interface {
	Create(ctx context.Context, userID string, req templates.CreateRequest) (*store.Template, error)
	List(ctx context.Context, userID string) ([]store.Template, error)
	Get(ctx context.Context, userID, id string) (*store.Template, error)
	Deactivate(ctx context.Context, userID, id string) error
	ValidateAgainstFile(ctx context.Context, userID, templateID, fileID string) (templatevars.Result, error)
}

type Senders interface {
	Add(ctx context.Context, userID string, req senders.AddRequest) (*store.Sender, error)
	List(ctx context.Context, userID string) ([]store.Sender, error)
	Refresh(ctx context.Context, userID, id string) (*store.Sender, error)
	Delete(ctx context.Context, userID, id string) error
	Kinds() []delivery.Kind
}

type Campaigns interface {
	Start(ctx context.Context, userID string, req campaign.StartRequest) (*store.Campaign, error)
	Get(ctx context.Context, userID, id string) (*store.Campaign, error)
	List(ctx context.Context, userID string, limit int64) ([]store.Campaign, error)
	Logs(ctx context.Context, userID, id string) ([]store.EmailLog, error)
}
