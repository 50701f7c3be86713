// Package handler turns typed request handlers into http.HandlerFunc values
// that bind input, run decorators and render JSON.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/kathanp/emailbot/pkg/binder"
)

// Context carries the request and its writer alongside the request context.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
}

type requestContext struct {
	context.Context
	w http.ResponseWriter
	r *http.Request
}

func NewContext(w http.ResponseWriter, r *http.Request) Context {
	return requestContext{Context: r.Context(), w: w, r: r}
}

func (c requestContext) Request() *http.Request              { return c.r }
func (c requestContext) ResponseWriter() http.ResponseWriter { return c.w }

// HandlerFunc handles a bound request of type R.
type HandlerFunc[R any] func(ctx Context, req R) Response

// Response renders itself. A returned error is passed to the ErrorHandler.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Bind parses the request into v.
type Bind func(r *http.Request, v any) error

type ErrorHandler func(ctx Context, err error)

// Decorator wraps a HandlerFunc. The first decorator given is the outermost.
type Decorator[R any] func(HandlerFunc[R]) HandlerFunc[R]

type WrapOption[R any] func(*wrapConfig[R])

type wrapConfig[R any] struct {
	binders    []Bind
	onError    ErrorHandler
	decorators []Decorator[R]
}

// WithBinders applies binders in order. Binders returning
// binder.ErrBinderNotApplicable are skipped.
func WithBinders[R any](binders ...Bind) WrapOption[R] {
	return func(c *wrapConfig[R]) { c.binders = append(c.binders, binders...) }
}

func WithErrorHandler[R any](h ErrorHandler) WrapOption[R] {
	return func(c *wrapConfig[R]) {
		if h != nil {
			c.onError = h
		}
	}
}

func WithDecorators[R any](decorators ...Decorator[R]) WrapOption[R] {
	return func(c *wrapConfig[R]) { c.decorators = append(c.decorators, decorators...) }
}

func renderDefault(ctx Context, err error) {
	status, detail := DefaultClassifier(err)
	_ = ErrorResponse(status, detail).Render(ctx.ResponseWriter(), ctx.Request())
}

// Wrap converts h to an http.HandlerFunc.
func Wrap[R any](h HandlerFunc[R], opts ...WrapOption[R]) http.HandlerFunc {
	cfg := wrapConfig[R]{onError: renderDefault}
	for _, opt := range opts {
		opt(&cfg)
	}
	for i := len(cfg.decorators) - 1; i >= 0; i-- {
		h = cfg.decorators[i](h)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(w, r)

		var req R
		for _, bind := range cfg.binders {
			err := bind(r, &req)
			if errors.Is(err, binder.ErrBinderNotApplicable) {
				continue
			}
			if err != nil {
				cfg.onError(ctx, err)
				return
			}
		}

		resp := h(ctx, req)
		if resp == nil {
			cfg.onError(ctx, ErrNilResponse)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.onError(ctx, err)
		}
	}
}

type errorResponse struct{ err error }

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error { return e.err }

// Error defers err to the ErrorHandler so domain errors are classified in one place.
func Error(err error) Response {
	return errorResponse{err: err}
}

type noContent struct{}

func (noContent) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Empty responds 204 No Content.
func Empty() Response { return noContent{} }
