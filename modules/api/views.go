package api

import (
	"time"

	"github.com/kathanp/emailbot/svc/account"
	"github.com/kathanp/emailbot/svc/store"
)

type userView struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Plan         string    `json:"plan"`
	GoogleLinked bool      `json:"google_linked"`
	GoogleEmail  string    `json:"google_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newUserView(u *store.User) userView {
	return userView{
		ID:           u.Key(),
		Email:        u.Email,
		Name:         u.Name,
		Plan:         u.Plan,
		GoogleLinked: u.GoogleID != "",
		GoogleEmail:  u.GoogleEmail,
		CreatedAt:    u.CreatedAt,
	}
}

type sessionView struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        userView  `json:"user"`
}

func newSessionView(s *account.Session) sessionView {
	return sessionView{
		AccessToken: s.Token,
		TokenType:   "Bearer",
		ExpiresAt:   s.ExpiresAt,
		User:        newUserView(s.User),
	}
}

type fileView struct {
	ID        string              `json:"id"`
	Filename  string              `json:"filename"`
	Size      int64               `json:"size"`
	Columns   []string            `json:"columns"`
	RowCount  int                 `json:"row_count"`
	Contacts  []map[string]string `json:"contacts,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// newFileView includes the parsed rows only when withContacts is set.
func newFileView(f *store.ContactFile, withContacts bool) fileView {
	v := fileView{
		ID:        f.ID.Hex(),
		Filename:  f.Filename,
		Size:      f.Size,
		Columns:   f.Columns,
		RowCount:  f.RowCount,
		CreatedAt: f.CreatedAt,
	}
	if withContacts {
		v.Contacts = f.Contacts
	}
	return v
}

type templateView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Variables []string  `json:"variables"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newTemplateView(t *store.Template) templateView {
	return templateView{
		ID:        t.ID.Hex(),
		Name:      t.Name,
		Subject:   t.Subject,
		Body:      t.Body,
		Variables: t.Variables,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

type senderView struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	DisplayName        string    `json:"display_name,omitempty"`
	Provider           string    `json:"provider"`
	VerificationStatus string    `json:"verification_status"`
	CreatedAt          time.Time `json:"created_at"`
}

func newSenderView(s *store.Sender) senderView {
	return senderView{
		ID:                 s.ID.Hex(),
		Email:              s.Email,
		DisplayName:        s.DisplayName,
		Provider:           s.Provider,
		VerificationStatus: s.VerificationStatus,
		CreatedAt:          s.CreatedAt,
	}
}

type campaignView struct {
	ID              string     `json:"id"`
	TemplateID      string     `json:"template_id"`
	FileID          string     `json:"file_id"`
	SenderEmail     string     `json:"sender_email"`
	Provider        string     `json:"provider"`
	Status          string     `json:"status"`
	TotalEmails     int        `json:"total_emails"`
	SuccessfulSends int        `json:"successful_sends"`
	FailedSends     int        `json:"failed_sends"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
}

func newCampaignView(c *store.Campaign) campaignView {
	return campaignView{
		ID:              c.ID.Hex(),
		TemplateID:      c.TemplateID,
		FileID:          c.FileID,
		SenderEmail:     c.SenderEmail,
		Provider:        c.Provider,
		Status:          c.Status,
		TotalEmails:     c.TotalEmails,
		SuccessfulSends: c.SuccessfulSends,
		FailedSends:     c.FailedSends,
		FailureReason:   c.FailureReason,
		StartTime:       c.StartTime,
		EndTime:         c.EndTime,
		DurationSeconds: c.DurationSeconds,
	}
}

type emailLogView struct {
	Recipient    string    `json:"recipient"`
	Status       string    `json:"status"`
	MessageID    string    `json:"message_id,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

func newEmailLogView(l *store.EmailLog) emailLogView {
	return emailLogView{
		Recipient:    l.Recipient,
		Status:       l.Status,
		MessageID:    l.MessageID,
		ErrorCode:    l.ErrorCode,
		ErrorMessage: l.ErrorMessage,
		SentAt:       l.SentAt,
	}
}

// viewAll maps a slice of documents through fn, never returning nil.
func viewAll[T, V any](items []T, fn func(*T) V) []V {
	out := make([]V, len(items))
	for i := range items {
		out[i] = fn(&items[i])
	}
	return out
}
