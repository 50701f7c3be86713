package api

import (
	"io"
	"net/http"

	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/svc/billing"
)

// maxWebhookBytes matches the payload limit Stripe documents for events.
const maxWebhookBytes = 65536

func (a *API) plans(ctx handler.Context, _ struct{}) handler.Response {
	return handler.JSON(a.deps.Quota.Catalog().Plans())
}

func (a *API) usage(ctx handler.Context, _ struct{}) handler.Response {
	report, err := a.deps.Quota.Usage(ctx, userID(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(report)
}

func (a *API) changePlan(ctx handler.Context, req billing.ChangeRequest) handler.Response {
	change, err := a.deps.Billing.ChangePlan(ctx, userID(ctx), req)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(change)
}

func (a *API) cancelSubscription(ctx handler.Context, _ struct{}) handler.Response {
	change, err := a.deps.Billing.Cancel(ctx, userID(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(change)
}

func (a *API) paymentMethods(ctx handler.Context, _ struct{}) handler.Response {
	methods, err := a.deps.Billing.PaymentMethods(ctx, userID(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(methods)
}

// stripeWebhook needs the raw body for signature verification, so it skips
// the JSON binder.
func (a *API) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := handler.NewContext(w, r)
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		a.onError(ctx, handler.ErrBadRequest)
		return
	}
	if len(payload) > maxWebhookBytes {
		a.onError(ctx, handler.ErrRequestEntityTooLarge)
		return
	}
	if err := a.deps.Billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		a.onError(ctx, err)
		return
	}
	_ = handler.JSON(map[string]bool{"received": true}).Render(w, r)
}
