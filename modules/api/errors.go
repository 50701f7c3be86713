package api

import (
	"errors"
	"net/http"

	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/pkg/contacts"
	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/jwt"
	"github.com/kathanp/emailbot/pkg/plans"
	"github.com/kathanp/emailbot/svc/account"
	"github.com/kathanp/emailbot/svc/billing"
	"github.com/kathanp/emailbot/svc/campaign"
	svccontacts "github.com/kathanp/emailbot/svc/contacts"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/senders"
	"github.com/kathanp/emailbot/svc/store"
	"github.com/kathanp/emailbot/svc/templates"
)

type mapping struct {
	err     error
	status  int
	code    string
	message string
}

// mappings is checked in order with errors.Is; the first match wins.
var mappings = []mapping{
	{account.ErrEmailTaken, http.StatusConflict, "email_taken", "an account with this email already exists"},
	{account.ErrInvalidEmail, http.StatusUnprocessableEntity, "invalid_email", "invalid email address"},
	{account.ErrWeakPassword, http.StatusUnprocessableEntity, "weak_password", "password must be between 8 and 72 characters"},
	{account.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid email or password"},
	{account.ErrPasswordNotSet, http.StatusUnauthorized, "password_not_set", "this account signs in with Google"},
	{account.ErrGoogleDisabled, http.StatusNotFound, "google_disabled", "Google sign-in is not configured"},
	{account.ErrInvalidState, http.StatusUnauthorized, "invalid_oauth_state", "sign-in request expired or was tampered with"},
	{account.ErrInvalidCode, http.StatusUnauthorized, "invalid_oauth_code", "Google rejected the authorization code"},
	{account.ErrUnverifiedEmail, http.StatusForbidden, "unverified_email", "the Google account email is not verified"},
	{account.ErrNoEmail, http.StatusUnprocessableEntity, "no_email", "the Google account has no email address"},

	{account.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{billing.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{quota.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{senders.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{campaign.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},

	{plans.ErrUnknownPlan, http.StatusUnprocessableEntity, "unknown_plan", "unknown plan"},
	{quota.ErrInvalidCycle, http.StatusUnprocessableEntity, "invalid_billing_cycle", "billing cycle must be monthly or yearly"},
	{quota.ErrUsageUnavailable, http.StatusServiceUnavailable, "usage_unavailable", "usage could not be determined, try again later"},
	{billing.ErrPriceNotConfigured, http.StatusUnprocessableEntity, "plan_not_purchasable", "this plan cannot be purchased for the selected billing cycle"},
	{billing.ErrPaymentFailed, http.StatusPaymentRequired, "payment_failed", "the payment provider rejected the request"},
	{billing.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed"},
	{billing.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload", "webhook payload could not be parsed"},
	{billing.ErrWebhookDisabled, http.StatusServiceUnavailable, "webhook_disabled", "webhooks are not configured"},

	{svccontacts.ErrFileNotFound, http.StatusNotFound, "file_not_found", "contact file not found"},
	{svccontacts.ErrUnsupportedFormat, http.StatusUnprocessableEntity, "unsupported_file_format", "only CSV contact files are supported"},
	{svccontacts.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "file_too_large", "contact file exceeds the upload limit"},
	{contacts.ErrEmptyFile, http.StatusUnprocessableEntity, "empty_file", "contact file is empty"},
	{contacts.ErrMalformedFile, http.StatusUnprocessableEntity, "malformed_file", "contact file is not valid CSV"},
	{contacts.ErrInvalidHeader, http.StatusUnprocessableEntity, "invalid_header", "contact file header is invalid"},
	{contacts.ErrNoEmailColumn, http.StatusUnprocessableEntity, "no_email_column", "contact file has no email column"},
	{contacts.ErrTooManyRows, http.StatusUnprocessableEntity, "too_many_rows", "contact file has too many rows"},

	{templates.ErrTemplateNotFound, http.StatusNotFound, "template_not_found", "template not found"},
	{templates.ErrFileNotFound, http.StatusNotFound, "file_not_found", "contact file not found"},
	{templates.ErrEmptyTemplate, http.StatusUnprocessableEntity, "empty_template", "subject and body are required"},

	{senders.ErrSenderNotFound, http.StatusNotFound, "sender_not_found", "sender not found"},
	{senders.ErrInvalidEmail, http.StatusUnprocessableEntity, "invalid_email", "invalid sender email address"},
	{senders.ErrDuplicateSender, http.StatusConflict, "duplicate_sender", "this sender already exists"},
	{senders.ErrNotVerified, http.StatusConflict, "sender_not_verified", "the sender has not been verified"},
	{senders.ErrProviderUnavailable, http.StatusUnprocessableEntity, "provider_unavailable", "this delivery provider is not configured"},
	{senders.ErrGmailNotLinked, http.StatusUnprocessableEntity, "gmail_not_linked", "link a Google account before adding a Gmail sender"},
	{senders.ErrGmailMismatch, http.StatusUnprocessableEntity, "gmail_mismatch", "Gmail senders must use the linked Google account address"},
	{senders.ErrVerificationFailed, http.StatusBadGateway, "verification_failed", "the provider could not start sender verification"},
	{delivery.ErrUnknownKind, http.StatusUnprocessableEntity, "unknown_provider", "unknown delivery provider"},

	{campaign.ErrTemplateNotFound, http.StatusNotFound, "template_not_found", "template not found"},
	{campaign.ErrFileNotFound, http.StatusNotFound, "file_not_found", "contact file not found"},
	{campaign.ErrSenderNotFound, http.StatusNotFound, "sender_not_found", "sender not found"},
	{campaign.ErrCampaignNotFound, http.StatusNotFound, "campaign_not_found", "campaign not found"},
	{campaign.ErrSenderNotReady, http.StatusConflict, "sender_not_verified", "the sender has not been verified"},
	{campaign.ErrNoRecipients, http.StatusUnprocessableEntity, "no_recipients", "the contact file has no email addresses"},
	{campaign.ErrSetupFailed, http.StatusBadGateway, "dispatch_failed", "the campaign could not be dispatched"},

	{store.ErrNotFound, http.StatusNotFound, handler.ErrNotFound.Key, "not found"},
	{store.ErrInvalidID, http.StatusNotFound, handler.ErrNotFound.Key, "not found"},
}

// classify maps domain errors to responses. Typed errors carry their details
// to the client; everything unknown falls through to handler.DefaultClassifier.
func classify(err error) (int, *handler.ErrorDetail) {
	var unauth unauthorizedError
	if errors.As(err, &unauth) {
		code := handler.ErrUnauthorized.Key
		if errors.Is(err, jwt.ErrExpiredToken) {
			code = "token_expired"
		}
		return http.StatusUnauthorized, &handler.ErrorDetail{Code: code, Message: "a valid bearer token is required"}
	}

	var denied *quota.DeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, &handler.ErrorDetail{
			Code:    "limit_reached",
			Message: denied.Error(),
			Details: map[string]any{
				"resource":   denied.Resource,
				"used":       denied.Used,
				"limit":      denied.Limit,
				"plan":       denied.Plan,
				"suggestion": denied.Suggestion,
			},
		}
	}

	var blocked *quota.DowngradeError
	if errors.As(err, &blocked) {
		return http.StatusConflict, &handler.ErrorDetail{
			Code:    "downgrade_blocked",
			Message: blocked.Error(),
			Details: map[string]any{
				"from":       blocked.From,
				"to":         blocked.To,
				"violations": blocked.Violations,
			},
		}
	}

	var missing *campaign.ValidationError
	if errors.As(err, &missing) {
		return http.StatusUnprocessableEntity, &handler.ErrorDetail{
			Code:    "template_variables_missing",
			Message: missing.Error(),
			Details: missing.Result,
		}
	}

	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return m.status, &handler.ErrorDetail{Code: m.code, Message: m.message}
		}
	}
	return handler.DefaultClassifier(err)
}
