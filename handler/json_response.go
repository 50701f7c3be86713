package handler

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   Envelope
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

type JSONOption func(*jsonResponse)

func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) { r.body.Meta = meta }
}

// JSON wraps v in the data field. An error argument is rendered through
// JSONError with its default classification.
func JSON(v any, opts ...JSONOption) Response {
	if err, ok := v.(error); ok {
		return JSONError(err, opts...)
	}
	r := &jsonResponse{status: http.StatusOK, body: Envelope{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Created responds 201 with v as data.
func Created(v any) Response {
	return JSON(v, WithJSONStatus(http.StatusCreated))
}

// JSONError renders an error envelope. Callers wanting domain mappings
// should return the error from the handler and let the ErrorHandler classify it.
func JSONError(err error, opts ...JSONOption) Response {
	status, detail := DefaultClassifier(err)
	r := &jsonResponse{status: status, body: Envelope{Error: detail}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ErrorResponse renders a pre-classified error.
func ErrorResponse(status int, detail *ErrorDetail) Response {
	return &jsonResponse{status: status, body: Envelope{Error: detail}}
}
