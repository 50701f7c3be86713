package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/pkg/binder"
)

type createReq struct {
	Name string `json:"name"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.Envelope {
	t.Helper()
	var env handler.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestWrapBindsAndRenders(t *testing.T) {
	t.Parallel()

	h := handler.Wrap(func(ctx handler.Context, req createReq) handler.Response {
		return handler.Created(map[string]string{"name": req.Name})
	}, handler.WithBinders[createReq](binder.JSON()))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	env := decode(t, rec)
	assert.Equal(t, map[string]any{"name": "alice"}, env.Data)
	assert.Nil(t, env.Error)
}

func TestWrapBindError(t *testing.T) {
	t.Parallel()

	called := false
	h := handler.Wrap(func(ctx handler.Context, req createReq) handler.Response {
		called = true
		return handler.Empty()
	}, handler.WithBinders[createReq](binder.JSON()))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode(t, rec).Error.Code)
}

func TestWrapDecoratorsOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) handler.Decorator[struct{}] {
		return func(next handler.HandlerFunc[struct{}]) handler.HandlerFunc[struct{}] {
			return func(ctx handler.Context, req struct{}) handler.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h := handler.Wrap(func(handler.Context, struct{}) handler.Response {
		order = append(order, "handler")
		return handler.Empty()
	}, handler.WithDecorators(mark("outer"), mark("inner")))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestErrorResponsesUseClassifier(t *testing.T) {
	t.Parallel()

	errTeapot := errors.New("teapot")
	classify := func(err error) (int, *handler.ErrorDetail) {
		if errors.Is(err, errTeapot) {
			return http.StatusTeapot, &handler.ErrorDetail{Code: "teapot", Message: "short and stout"}
		}
		return handler.DefaultClassifier(err)
	}
	eh := handler.NewErrorHandler(nil, classify)

	tests := []struct {
		name   string
		resp   handler.Response
		status int
		code   string
	}{
		{"domain", handler.Error(errTeapot), http.StatusTeapot, "teapot"},
		{"http error", handler.Error(handler.ErrNotFound), http.StatusNotFound, "not_found"},
		{"unknown", handler.Error(errors.New("db down")), http.StatusInternalServerError, "internal_server_error"},
		{"nil", nil, http.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := handler.Wrap(func(handler.Context, struct{}) handler.Response { return tt.resp },
				handler.WithErrorHandler[struct{}](eh))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.status, rec.Code)
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotContains(t, env.Error.Message, "db down")
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	verr := handler.NewValidationError()
	assert.True(t, verr.IsEmpty())
	verr.Add("email", "is required")
	verr.Add("name", "too long")
	assert.Equal(t, "is required", verr.Get("email"))
	assert.Equal(t, "validation failed: email: is required, name: too long", verr.Error())

	rec := httptest.NewRecorder()
	require.NoError(t, handler.JSONError(verr).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Equal(t, map[string]any{"email": []any{"is required"}, "name": []any{"too long"}}, env.Error.Details)
}

func TestJSONMeta(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	resp := handler.JSON([]int{1, 2}, handler.WithJSONMeta(map[string]any{"total": 2}))
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	env := decode(t, rec)
	assert.Equal(t, []any{1.0, 2.0}, env.Data)
	assert.Equal(t, map[string]any{"total": 2.0}, env.Meta)
}
