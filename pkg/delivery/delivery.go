// Package delivery sends single emails through the supported backends.
//
// Every backend implements Provider. Providers are stateless with respect to
// the sender: the From address is passed on each call so one provider value
// can serve many verified senders.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Kind names a delivery backend.
type Kind string

const (
	KindSES      Kind = "ses"
	KindGmail    Kind = "gmail"
	KindSMTP     Kind = "smtp"
	KindPostmark Kind = "postmark"
	KindDev      Kind = "dev"
)

// ParseKind accepts a backend name in any case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindSES, KindGmail, KindSMTP, KindPostmark, KindDev:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Message is one rendered email for one recipient.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tag     string
}

// Validate checks the fields every backend needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return &Error{Code: CodeInvalidRecipient, Message: "recipient address is empty"}
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return &Error{Code: CodeInvalidRecipient, Message: fmt.Sprintf("invalid recipient %q", m.To), Err: err}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return &Error{Code: CodeInvalidMessage, Message: "subject is empty"}
	}
	if m.HTML == "" && m.Text == "" {
		return &Error{Code: CodeInvalidMessage, Message: "body is empty"}
	}
	return nil
}

// Provider delivers one message from sender to msg.To.
// On success it returns the backend's message id. Failures are *Error values.
type Provider interface {
	Kind() Kind
	Send(ctx context.Context, sender string, msg Message) (string, error)
}

// Failure codes reported in dispatch results and email logs.
const (
	CodeInvalidRecipient  = "invalid_recipient"
	CodeInvalidMessage    = "invalid_message"
	CodeRejected          = "message_rejected"
	CodeSenderNotVerified = "sender_not_verified"
	CodeThrottled         = "throttled"
	CodeAuthFailed        = "auth_failed"
	CodeUnavailable       = "service_unavailable"
	CodeTimeout           = "timeout"
	CodeCanceled          = "canceled"
	CodePanic             = "panic"
	CodeUnknown           = "send_failed"
)

// Error is a classified delivery failure.
type Error struct {
	Code      string
	Message   string
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the failure code carried by err, or CodeUnknown.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	}
	return CodeUnknown
}

// MessageOf returns the human-readable part of err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// contextError maps a cancelled or expired context to an *Error.
func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTimeout, Message: "deadline exceeded before send", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Code: CodeCanceled, Message: "send canceled", Err: err}
	}
	return nil
}
