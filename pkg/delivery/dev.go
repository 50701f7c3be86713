package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dev writes each message to a directory as an .html body plus a .json envelope.
type Dev struct {
	dir string
	now func() time.Time
}

func NewDev(dir string) *Dev {
	return &Dev{dir: dir, now: time.Now}
}

func (d *Dev) Kind() Kind { return KindDev }

type devEnvelope struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
	Text      string `json:"text,omitempty"`
}

func (d *Dev) Send(ctx context.Context, sender string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := contextError(ctx.Err()); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", &Error{Code: CodeUnavailable, Message: "create output directory", Err: err}
	}

	id := uuid.NewString()
	now := d.now()
	base := filepath.Join(d.dir, fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), safeName(msg.To), id[:8]))

	if err := os.WriteFile(base+".html", []byte(msg.HTML), 0o644); err != nil {
		return "", &Error{Code: CodeUnavailable, Message: "write body", Err: err}
	}
	env, err := json.MarshalIndent(devEnvelope{
		ID:        id,
		Timestamp: now.Format(time.RFC3339),
		From:      sender,
		To:        msg.To,
		Subject:   msg.Subject,
		Tag:       msg.Tag,
		Text:      msg.Text,
	}, "", "  ")
	if err != nil {
		return "", &Error{Code: CodeInvalidMessage, Message: "encode envelope", Err: err}
	}
	if err := os.WriteFile(base+".json", env, 0o644); err != nil {
		return "", &Error{Code: CodeUnavailable, Message: "write envelope", Err: err}
	}
	return id, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func safeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.ReplaceAll(s, "@", "_at_"), "")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		return "message"
	}
	return strings.ToLower(s)
}
