package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailSendFunc submits a base64url-encoded RFC 5322 message and returns its id.
type GmailSendFunc func(ctx context.Context, raw string) (string, error)

// Gmail sends as the account that owns the OAuth token.
type Gmail struct {
	send GmailSendFunc
}

// NewGmail builds a provider on top of the Gmail API using ts for authorization.
func NewGmail(ctx context.Context, ts oauth2.TokenSource) (*Gmail, error) {
	if ts == nil {
		return nil, fmt.Errorf("%w: gmail token source is required", ErrInvalidConfig)
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return NewGmailWithSendFunc(func(ctx context.Context, raw string) (string, error) {
		m, err := svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
		if err != nil {
			return "", err
		}
		return m.Id, nil
	}), nil
}

// NewGmailWithSendFunc wires a custom submit function.
func NewGmailWithSendFunc(fn GmailSendFunc) *Gmail {
	return &Gmail{send: fn}
}

func (g *Gmail) Kind() Kind { return KindGmail }

func (g *Gmail) Send(ctx context.Context, sender string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := contextError(ctx.Err()); err != nil {
		return "", err
	}

	m, _ := compose(sender, msg)
	raw, err := encode(m)
	if err != nil {
		return "", &Error{Code: CodeInvalidMessage, Message: "failed to encode message", Err: err}
	}

	id, err := g.send(ctx, base64.URLEncoding.EncodeToString(raw))
	if err != nil {
		return "", classifyGmailError(err)
	}
	return id, nil
}

func classifyGmailError(err error) error {
	if ce := contextError(err); ce != nil {
		return ce
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return &Error{Code: CodeAuthFailed, Message: "gmail authorization expired or was revoked", Err: err}
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &Error{Code: CodeUnknown, Err: err}
	}

	e := &Error{Message: gerr.Message, Err: err}
	switch {
	case rateLimited(gerr):
		e.Code = CodeThrottled
		e.Temporary = true
	case gerr.Code == http.StatusBadRequest:
		e.Code = CodeInvalidMessage
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		e.Code = CodeAuthFailed
	case gerr.Code == http.StatusTooManyRequests:
		e.Code = CodeThrottled
		e.Temporary = true
	case gerr.Code >= http.StatusInternalServerError:
		e.Code = CodeUnavailable
		e.Temporary = true
	default:
		e.Code = CodeUnknown
	}
	if e.Message == "" {
		e.Message = http.StatusText(gerr.Code)
	}
	return e
}

func rateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
