package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/pkg/logger"
)

// route wraps h with the shared error handler and struct validation.
func route[R any](a *API, h handler.HandlerFunc[R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[R](binders...),
		handler.WithErrorHandler[R](a.onError),
		handler.WithDecorators(validated[R](a.validate)),
	)
}

// status renders a fixed error through the shared error handler.
func (a *API) status(err error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.onError(handler.NewContext(w, r), err)
	}
}

func (a *API) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	a.onError(handler.NewContext(w, r), unauthorizedError{err: err})
}

func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.log.ErrorContext(r.Context(), "panic serving request",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("path", r.URL.Path),
				)
				_ = handler.ErrorResponse(http.StatusInternalServerError, &handler.ErrorDetail{
					Code:    handler.ErrInternalServerError.Key,
					Message: "an error occurred processing your request",
				}).Render(w, r)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", statusOf(ww)),
			slog.Int("bytes", ww.BytesWritten()),
			logger.Duration(time.Since(start)),
		)
	})
}

// observe counts requests by route pattern so ids do not explode label cardinality.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		pattern := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		a.deps.Metrics.ObserveRequest(r.Method, pattern, statusOf(ww))
	})
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
