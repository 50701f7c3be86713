package delivery

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mrz1836/postmark"
)

type PostmarkConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
}

// PostmarkClient is the subset of the Postmark API used by Postmark.
type PostmarkClient interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type PostmarkOption func(*Postmark)

func WithPostmarkClient(c PostmarkClient) PostmarkOption {
	return func(p *Postmark) { p.client = c }
}

// Postmark sends through Postmark's transactional API. Used for account notifications.
type Postmark struct {
	client PostmarkClient
}

func NewPostmark(cfg PostmarkConfig, opts ...PostmarkOption) (*Postmark, error) {
	p := &Postmark{}
	for _, opt := range opts {
		opt(p)
	}
	if p.client != nil {
		return p, nil
	}
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: POSTMARK_SERVER_TOKEN is required", ErrInvalidConfig)
	}
	p.client = postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	return p, nil
}

func (p *Postmark) Kind() Kind { return KindPostmark }

func (p *Postmark) Send(ctx context.Context, sender string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := contextError(ctx.Err()); err != nil {
		return "", err
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       sender,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Text,
		TrackOpens: true,
	})
	if err != nil {
		if ce := contextError(err); ce != nil {
			return "", ce
		}
		return "", &Error{Code: CodeUnavailable, Temporary: true, Err: err}
	}
	if resp.ErrorCode > 0 {
		return "", classifyPostmarkCode(resp.ErrorCode, resp.Message)
	}
	return resp.MessageID, nil
}

// Postmark API error codes: https://postmarkapp.com/developer/api/overview#error-codes
func classifyPostmarkCode(code int64, message string) error {
	e := &Error{Message: message}
	switch code {
	case 300, 406:
		e.Code = CodeInvalidRecipient
	case 400, 401:
		e.Code = CodeSenderNotVerified
	case 10:
		e.Code = CodeAuthFailed
	case 405, 429:
		e.Code = CodeThrottled
		e.Temporary = true
	default:
		e.Code = CodeRejected
	}
	if e.Message == "" {
		e.Message = "postmark error " + strconv.FormatInt(code, 10)
	}
	return e
}
