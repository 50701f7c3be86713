package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kathanp/emailbot/pkg/binder"
	"github.com/kathanp/emailbot/pkg/logger"
)

// Classifier maps an error to a status code and a client-facing detail.
type Classifier func(err error) (int, *ErrorDetail)

// DefaultClassifier understands HTTPError and ValidationError. Anything else is
// a 500 whose message does not leak the underlying error.
func DefaultClassifier(err error) (int, *ErrorDetail) {
	var verr ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, &ErrorDetail{
			Code:    "validation_error",
			Message: "request validation failed",
			Details: map[string][]string(verr),
		}
	}
	var herr HTTPError
	if errors.As(err, &herr) {
		return herr.Code, &ErrorDetail{Code: herr.Key, Message: http.StatusText(herr.Code)}
	}
	switch {
	case errors.Is(err, binder.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, &ErrorDetail{Code: ErrUnsupportedMediaType.Key, Message: err.Error()}
	case errors.Is(err, binder.ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge, &ErrorDetail{Code: ErrRequestEntityTooLarge.Key, Message: err.Error()}
	case errors.Is(err, binder.ErrInvalidRequest):
		return http.StatusBadRequest, &ErrorDetail{Code: ErrBadRequest.Key, Message: err.Error()}
	}
	return http.StatusInternalServerError, &ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: "an error occurred processing your request",
	}
}

// NewErrorHandler logs the error and writes a JSON error envelope. Client
// errors log at warn, server errors at error. classify falls back to
// DefaultClassifier when nil.
func NewErrorHandler(log *slog.Logger, classify Classifier) ErrorHandler {
	if log == nil {
		log = logger.Discard()
	}
	if classify == nil {
		classify = DefaultClassifier
	}
	return func(ctx Context, err error) {
		status, detail := classify(err)
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		r := ctx.Request()
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)
		if rerr := ErrorResponse(status, detail).Render(ctx.ResponseWriter(), r); rerr != nil {
			log.ErrorContext(r.Context(), "failed to render error", logger.Error(rerr))
		}
	}
}
