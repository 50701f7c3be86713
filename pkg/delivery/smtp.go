package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"

	mail "gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	// ImplicitTLS dials with TLS from the start (port 465). Otherwise STARTTLS is used when offered.
	ImplicitTLS bool `env:"SMTP_IMPLICIT_TLS" envDefault:"false"`
	SkipVerify  bool `env:"SMTP_SKIP_VERIFY" envDefault:"false"`
}

// SMTPDialer opens a connection per call and sends the messages over it.
type SMTPDialer interface {
	DialAndSend(m ...*mail.Message) error
}

type SMTPOption func(*SMTP)

// WithSMTPDialer replaces the gomail dialer, mostly for tests.
func WithSMTPDialer(d SMTPDialer) SMTPOption {
	return func(s *SMTP) { s.dialer = d }
}

// SMTP relays through an SMTP server. gomail applies its own socket timeout per dial.
type SMTP struct {
	dialer SMTPDialer
}

func NewSMTP(cfg SMTPConfig, opts ...SMTPOption) (*SMTP, error) {
	s := &SMTP{}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer != nil {
		return s, nil
	}
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("%w: SMTP host and port are required", ErrInvalidConfig)
	}
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.ImplicitTLS
	if cfg.SkipVerify {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: true} //nolint:gosec
	}
	s.dialer = d
	return s, nil
}

func (s *SMTP) Kind() Kind { return KindSMTP }

func (s *SMTP) Send(ctx context.Context, sender string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := contextError(ctx.Err()); err != nil {
		return "", err
	}

	m, id := compose(sender, msg)
	if err := s.dialer.DialAndSend(m); err != nil {
		return "", classifySMTPError(err)
	}
	return id, nil
}

func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		e := &Error{Message: tpErr.Msg, Err: err}
		switch {
		case tpErr.Code == 535 || tpErr.Code == 530:
			e.Code = CodeAuthFailed
		case tpErr.Code == 550 || tpErr.Code == 551 || tpErr.Code == 553:
			e.Code = CodeInvalidRecipient
		case tpErr.Code == 421 || tpErr.Code == 450 || tpErr.Code == 451 || tpErr.Code == 452:
			e.Code = CodeThrottled
			e.Temporary = true
		case tpErr.Code >= 500:
			e.Code = CodeRejected
		default:
			e.Code = CodeUnknown
			e.Temporary = tpErr.Code >= 400
		}
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Code: CodeTimeout, Message: "smtp connection timed out", Temporary: true, Err: err}
		}
		return &Error{Code: CodeUnavailable, Message: "smtp server unreachable", Temporary: true, Err: err}
	}
	return &Error{Code: CodeUnknown, Err: err}
}
