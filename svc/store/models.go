package store

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Collection names.
const (
	UsersCollection            = "users"
	FilesCollection            = "files"
	TemplatesCollection        = "templates"
	SendersCollection          = "senders"
	CampaignsCollection        = "campaigns"
	BillingCyclesCollection    = "billing_cycles"
	EmailLogsCollection        = "email_logs"
	SubscriptionLogsCollection = "subscription_logs"
)

// GoogleToken is the stored OAuth grant used to send through Gmail.
type GoogleToken struct {
	AccessToken  string    `bson:"access_token"`
	RefreshToken string    `bson:"refresh_token"`
	TokenType    string    `bson:"token_type"`
	Expiry       time.Time `bson:"expiry"`
}

// Sealed returns a copy of t with both tokens encrypted for userID.
func (t *GoogleToken) Sealed(c TokenCipher, userID string) (*GoogleToken, error) {
	return t.transform(c.Seal, userID)
}

// Opened reverses Sealed. Tokens stored before sealing was enabled pass through.
func (t *GoogleToken) Opened(c TokenCipher, userID string) (*GoogleToken, error) {
	return t.transform(c.Open, userID)
}

func (t *GoogleToken) transform(fn func(scope, v string) (string, error), userID string) (*GoogleToken, error) {
	out := *t
	var err error
	if out.AccessToken, err = fn(userID, t.AccessToken); err != nil {
		return nil, err
	}
	if out.RefreshToken, err = fn(userID, t.RefreshToken); err != nil {
		return nil, err
	}
	return &out, nil
}

type User struct {
	ID                   bson.ObjectID `bson:"_id,omitempty"`
	Email                string        `bson:"email"`
	Name                 string        `bson:"name"`
	PasswordHash         string        `bson:"password_hash,omitempty"`
	Plan                 string        `bson:"plan"`
	GoogleID             string        `bson:"google_id,omitempty"`
	GoogleEmail          string        `bson:"google_email,omitempty"`
	GoogleToken          *GoogleToken  `bson:"google_token,omitempty"`
	StripeCustomerID     string        `bson:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string        `bson:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time     `bson:"created_at"`
	UpdatedAt            time.Time     `bson:"updated_at"`
}

// Key is the canonical user reference stored in every other collection.
func (u User) Key() string { return u.ID.Hex() }

type BillingCycle struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	UserID      string        `bson:"user_id"`
	PlanID      string        `bson:"plan_id"`
	Cycle       string        `bson:"billing_cycle"`
	PeriodStart time.Time     `bson:"period_start"`
	PeriodEnd   time.Time     `bson:"period_end"`
	CreatedAt   time.Time     `bson:"created_at"`
}

// Email log statuses.
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

type EmailLog struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	UserID       string        `bson:"user_id"`
	CampaignID   string        `bson:"campaign_id"`
	Recipient    string        `bson:"recipient"`
	Sender       string        `bson:"sender"`
	Provider     string        `bson:"provider"`
	Status       string        `bson:"status"`
	MessageID    string        `bson:"message_id,omitempty"`
	ErrorCode    string        `bson:"error_code,omitempty"`
	ErrorMessage string        `bson:"error_message,omitempty"`
	SentAt       time.Time     `bson:"sent_at"`
}

type SubscriptionLog struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	UserID     string        `bson:"user_id"`
	OldPlan    string        `bson:"old_plan"`
	NewPlan    string        `bson:"new_plan"`
	ChangeType string        `bson:"change_type"`
	Cycle      string        `bson:"billing_cycle"`
	Timestamp  time.Time     `bson:"timestamp"`
}

type Template struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	UserID    string        `bson:"user_id"`
	Name      string        `bson:"name"`
	Subject   string        `bson:"subject"`
	Body      string        `bson:"body"`
	Variables []string      `bson:"variables"`
	IsActive  bool          `bson:"is_active"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

// Sender verification statuses. Deleted senders are kept for history and
// do not count toward the sender limit.
const (
	SenderPending  = "pending"
	SenderVerified = "verified"
	SenderFailed   = "failed"
	SenderDeleted  = "deleted"
)

type Sender struct {
	ID                 bson.ObjectID `bson:"_id,omitempty"`
	UserID             string        `bson:"user_id"`
	Email              string        `bson:"email"`
	DisplayName        string        `bson:"display_name,omitempty"`
	Provider           string        `bson:"provider"`
	VerificationStatus string        `bson:"verification_status"`
	CreatedAt          time.Time     `bson:"created_at"`
	UpdatedAt          time.Time     `bson:"updated_at"`
}

// ContactFile is an uploaded recipient list with its parsed rows.
type ContactFile struct {
	ID         bson.ObjectID       `bson:"_id,omitempty"`
	UserID     string              `bson:"user_id"`
	Filename   string              `bson:"filename"`
	StorageKey string              `bson:"storage_key"`
	Size       int64               `bson:"size"`
	Columns    []string            `bson:"columns"`
	Contacts   []map[string]string `bson:"contacts"`
	RowCount   int                 `bson:"row_count"`
	CreatedAt  time.Time           `bson:"created_at"`
}

// Campaign statuses.
const (
	CampaignSending   = "sending"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

type Campaign struct {
	ID              bson.ObjectID `bson:"_id,omitempty"`
	UserID          string        `bson:"user_id"`
	TemplateID      string        `bson:"template_id"`
	FileID          string        `bson:"file_id"`
	SenderEmail     string        `bson:"sender_email"`
	Provider        string        `bson:"provider"`
	Status          string        `bson:"status"`
	TotalEmails     int           `bson:"total_emails"`
	SuccessfulSends int           `bson:"successful_sends"`
	FailedSends     int           `bson:"failed_sends"`
	FailureReason   string        `bson:"failure_reason,omitempty"`
	StartTime       time.Time     `bson:"start_time"`
	EndTime         *time.Time    `bson:"end_time,omitempty"`
	DurationSeconds float64       `bson:"duration_seconds"`
	CreatedAt       time.Time     `bson:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at"`
}
