package api

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/pkg/binder"
	"github.com/kathanp/emailbot/pkg/jwt"
)

var (
	jsonBody   handler.Bind = binder.JSON()
	pathParams handler.Bind = binder.Path()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validated rejects requests whose struct tags fail before the handler runs.
func validated[R any](v *validator.Validate) handler.Decorator[R] {
	return func(next handler.HandlerFunc[R]) handler.HandlerFunc[R] {
		return func(ctx handler.Context, req R) handler.Response {
			if err := validateStruct(ctx, v, req); err != nil {
				return handler.Error(err)
			}
			return next(ctx, req)
		}
	}
}

func validateStruct(ctx context.Context, v *validator.Validate, req any) error {
	rv := reflect.ValueOf(req)
	if rv.Kind() != reflect.Struct {
		return nil
	}
	err := v.StructCtx(ctx, req)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := handler.ValidationError{}
	for _, fe := range fieldErrs {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}

// unauthorizedError makes token failures render as 401 regardless of cause.
type unauthorizedError struct{ err error }

func (e unauthorizedError) Error() string { return e.err.Error() }
func (e unauthorizedError) Unwrap() error { return e.err }

// userID is the subject set by the jwt middleware on authenticated routes.
func userID(ctx context.Context) string {
	return jwt.Subject(ctx)
}
