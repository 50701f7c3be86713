package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Option configures New.
type Option func(*options)

type options struct {
	level      slog.Level
	json       bool
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
}

func WithLevel(l slog.Level) Option {
	return func(o *options) { o.level = l }
}

// WithLevelName parses "debug", "info", "warn" or "error". Unknown names keep the current level.
func WithLevelName(name string) Option {
	return func(o *options) {
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToUpper(name))); err == nil {
			o.level = l
		}
	}
}

func WithJSON() Option {
	return func(o *options) { o.json = true }
}

func WithText() Option {
	return func(o *options) { o.json = false }
}

// WithOutput ignores nil writers.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

func WithAttr(attrs ...slog.Attr) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(o *options) {
		for _, ex := range extractors {
			if ex != nil {
				o.extractors = append(o.extractors, ex)
			}
		}
	}
}

// WithEnvironment picks format and level for the deployment environment:
// text at debug level for development, JSON at info level for anything else.
func WithEnvironment(env, service string) Option {
	return func(o *options) {
		switch strings.ToLower(env) {
		case "production", "prod", "staging", "stage":
			o.json = true
			o.level = slog.LevelInfo
		default:
			o.json = false
			o.level = slog.LevelDebug
		}
		if service != "" {
			o.attrs = append(o.attrs, slog.String("service", service), slog.String("env", env))
		}
	}
}

// New builds a slog.Logger whose handler pulls request-scoped attributes
// out of the context on every record.
func New(opts ...Option) *slog.Logger {
	o := &options{level: slog.LevelInfo, json: true, output: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	ho := &slog.HandlerOptions{Level: o.level}
	var h slog.Handler
	if o.json {
		h = slog.NewJSONHandler(o.output, ho)
	} else {
		h = slog.NewTextHandler(o.output, ho)
	}
	if len(o.attrs) > 0 {
		h = h.WithAttrs(o.attrs)
	}
	return slog.New(NewContextHandler(h, o.extractors...))
}

// Discard returns a logger that drops every record. Services use it when no logger is supplied.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Ctx key helpers used by the HTTP layer.
type ctxKey struct{ name string }

var (
	requestIDKey = ctxKey{"request_id"}
	userIDKey    = ctxKey{"user_id"}
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// RequestIDExtractor adds request_id to records logged with a request context.
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return RequestID(id), true
	}
	return slog.Attr{}, false
}

// UserIDExtractor adds user_id to records logged with an authenticated context.
func UserIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		return UserID(id), true
	}
	return slog.Attr{}, false
}
