package billing

import "errors"

var (
	ErrUserNotFound       = errors.New("billing: user not found")
	ErrPriceNotConfigured = errors.New("billing: no stripe price for plan and cycle")
	ErrInvalidPrices      = errors.New("billing: invalid price mapping")
	ErrPaymentFailed      = errors.New("billing: payment provider request failed")
	ErrInvalidSignature   = errors.New("billing: invalid webhook signature")
	ErrInvalidPayload     = errors.New("billing: invalid webhook payload")
	ErrWebhookDisabled    = errors.New("billing: webhook secret is not configured")
)
