package delivery

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mail "gopkg.in/gomail.v2"
)

// compose builds the MIME message shared by the SMTP and Gmail backends.
// The generated Message-Id is returned so callers can report it.
func compose(sender string, msg Message) (*mail.Message, string) {
	id := newMessageID(sender)

	m := mail.NewMessage()
	m.SetHeader("From", sender)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-Id", "<"+id+">")
	if msg.Tag != "" {
		m.SetHeader("X-Campaign-Tag", msg.Tag)
	}

	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m, id
}

// encode renders the message to RFC 5322 bytes.
func encode(m *mail.Message) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return buf.Bytes(), nil
}

func newMessageID(sender string) string {
	domain := "emailbot.local"
	if at := strings.LastIndexByte(sender, '@'); at >= 0 && at < len(sender)-1 {
		domain = strings.Trim(sender[at+1:], "<> ")
	}
	return uuid.NewString() + "@" + domain
}
