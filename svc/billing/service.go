// Package billing keeps Stripe subscriptions in step with plan changes.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/plans"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/store"
)

type Users interface {
	ByID(ctx context.Context, id string) (*store.User, error)
	ByStripeCustomer(ctx context.Context, customerID string) (*store.User, error)
	SetStripeCustomer(ctx context.Context, id, customerID string) error
	SetStripeSubscription(ctx context.Context, id, subscriptionID string) error
}

// Plans applies plan changes. *quota.Engine implements it.
type Plans interface {
	Catalog() *plans.Catalog
	CheckDowngrade(ctx context.Context, userID, planID string) ([]quota.Violation, error)
	UpdateSubscription(ctx context.Context, userID, planID string, cycle plans.Cycle) (*quota.PlanChange, error)
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithGateway enables Stripe. Without it plan changes apply locally only.
func WithGateway(gw Gateway, prices *Prices) Option {
	return func(s *Service) {
		s.gw = gw
		s.prices = prices
	}
}

func WithWebhookSecret(secret string) Option {
	return func(s *Service) { s.webhookSecret = secret }
}

type Service struct {
	users         Users
	plans         Plans
	gw            Gateway
	prices        *Prices
	webhookSecret string
	log           *slog.Logger
}

func New(users Users, p Plans, opts ...Option) *Service {
	s := &Service{users: users, plans: p, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing"))
	return s
}

// ChangeRequest is the input for ChangePlan.
type ChangeRequest struct {
	PlanID          string      `json:"plan_id" validate:"required"`
	Cycle           plans.Cycle `json:"billing_cycle" validate:"omitempty,oneof=monthly yearly"`
	PaymentMethodID string      `json:"payment_method_id"`
}

// ChangePlan moves the user to another plan. A blocked downgrade is refused
// before Stripe is touched. Paid targets create or reprice the Stripe
// subscription; the free plan cancels it.
func (s *Service) ChangePlan(ctx context.Context, userID string, req ChangeRequest) (*quota.PlanChange, error) {
	if req.Cycle == "" {
		req.Cycle = plans.Monthly
	}
	if !req.Cycle.Valid() {
		return nil, fmt.Errorf("%w: %q", quota.ErrInvalidCycle, req.Cycle)
	}
	catalog := s.plans.Catalog()
	target, err := catalog.Get(req.PlanID)
	if err != nil {
		return nil, err
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	vs, err := s.plans.CheckDowngrade(ctx, userID, target.ID)
	if err != nil {
		return nil, err
	}
	if len(vs) > 0 {
		return nil, &quota.DowngradeError{From: catalog.Resolve(user.Plan).ID, To: target.ID, Violations: vs}
	}

	if s.gw != nil {
		if err := s.syncStripe(ctx, user, target, req); err != nil {
			return nil, err
		}
	}
	return s.plans.UpdateSubscription(ctx, userID, target.ID, req.Cycle)
}

// Cancel moves the user to the free plan.
func (s *Service) Cancel(ctx context.Context, userID string) (*quota.PlanChange, error) {
	return s.ChangePlan(ctx, userID, ChangeRequest{PlanID: plans.FreePlanID})
}

func (s *Service) syncStripe(ctx context.Context, u *store.User, target plans.Plan, req ChangeRequest) error {
	log := s.log.With(logger.UserID(u.Key()), slog.String("plan", target.ID))

	if target.IsFree() {
		if u.StripeSubscriptionID == "" {
			return nil
		}
		if err := s.gw.CancelSubscription(ctx, u.StripeSubscriptionID); err != nil {
			return errors.Join(ErrPaymentFailed, err)
		}
		log.InfoContext(ctx, "stripe subscription canceled", slog.String("subscription_id", u.StripeSubscriptionID))
		return s.users.SetStripeSubscription(ctx, u.Key(), "")
	}

	price, ok := s.prices.For(target.ID, req.Cycle)
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrPriceNotConfigured, target.ID, req.Cycle)
	}
	customerID, err := s.EnsureCustomer(ctx, u)
	if err != nil {
		return err
	}
	if req.PaymentMethodID != "" {
		if err := s.gw.AttachPaymentMethod(ctx, customerID, req.PaymentMethodID); err != nil {
			return errors.Join(ErrPaymentFailed, err)
		}
	}

	sub, err := s.upsertSubscription(ctx, u, customerID, price, req.PaymentMethodID)
	if err != nil {
		return errors.Join(ErrPaymentFailed, err)
	}
	log.InfoContext(ctx, "stripe subscription updated",
		slog.String("subscription_id", sub.ID), slog.String("price_id", price))
	if sub.ID != u.StripeSubscriptionID {
		return s.users.SetStripeSubscription(ctx, u.Key(), sub.ID)
	}
	return nil
}

func (s *Service) upsertSubscription(ctx context.Context, u *store.User, customerID, price, pm string) (*stripe.Subscription, error) {
	if u.StripeSubscriptionID != "" {
		sub, err := s.gw.Subscription(ctx, u.StripeSubscriptionID)
		if err != nil {
			return nil, err
		}
		if sub.Status != stripe.SubscriptionStatusCanceled && sub.Status != stripe.SubscriptionStatusIncompleteExpired {
			return s.gw.ChangePrice(ctx, sub, price)
		}
	}
	return s.gw.CreateSubscription(ctx, customerID, price, pm, u.Key())
}

// EnsureCustomer returns the user's Stripe customer id, creating the customer on first use.
func (s *Service) EnsureCustomer(ctx context.Context, u *store.User) (string, error) {
	if u.StripeCustomerID != "" {
		return u.StripeCustomerID, nil
	}
	if s.gw == nil {
		return "", ErrPaymentFailed
	}
	id, err := s.gw.CreateCustomer(ctx, u.Email, u.Name, u.Key())
	if err != nil {
		return "", errors.Join(ErrPaymentFailed, err)
	}
	if err := s.users.SetStripeCustomer(ctx, u.Key(), id); err != nil {
		return "", fmt.Errorf("billing: store customer id: %w", err)
	}
	u.StripeCustomerID = id
	return id, nil
}

// PaymentMethod is a saved card.
type PaymentMethod struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// PaymentMethods lists the user's cards. Users without a customer have none.
func (s *Service) PaymentMethods(ctx context.Context, userID string) ([]PaymentMethod, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []PaymentMethod{}
	if s.gw == nil || u.StripeCustomerID == "" {
		return out, nil
	}
	pms, err := s.gw.PaymentMethods(ctx, u.StripeCustomerID)
	if err != nil {
		return nil, errors.Join(ErrPaymentFailed, err)
	}
	for _, pm := range pms {
		m := PaymentMethod{ID: pm.ID}
		if pm.Card != nil {
			m.Brand = string(pm.Card.Brand)
			m.Last4 = pm.Card.Last4
			m.ExpMonth = pm.Card.ExpMonth
			m.ExpYear = pm.Card.ExpYear
		}
		out = append(out, m)
	}
	return out, nil
}

// HandleWebhook verifies and applies a Stripe event. Events for unknown
// users or prices are logged and acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookSecret == "" {
		return ErrWebhookDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	log := s.log.With(slog.String("event_id", event.ID), slog.String("event_type", string(event.Type)))
	log.InfoContext(ctx, "stripe webhook received")

	switch event.Type {
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return errors.Join(ErrInvalidPayload, err)
		}
		return s.subscriptionDeleted(ctx, log, &sub)
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return errors.Join(ErrInvalidPayload, err)
		}
		return s.subscriptionUpdated(ctx, log, &sub)
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return errors.Join(ErrInvalidPayload, err)
		}
		log.WarnContext(ctx, "invoice payment failed",
			slog.String("invoice_id", inv.ID), slog.String("customer_id", customerID(inv.Customer)))
	default:
		log.DebugContext(ctx, "stripe webhook ignored")
	}
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, log *slog.Logger, sub *stripe.Subscription) error {
	u, err := s.eventUser(ctx, sub.Metadata, customerID(sub.Customer))
	if errors.Is(err, ErrUserNotFound) {
		log.WarnContext(ctx, "subscription deleted for unknown user", slog.String("subscription_id", sub.ID))
		return nil
	}
	if err != nil {
		return err
	}
	log = log.With(logger.UserID(u.Key()))
	if u.StripeSubscriptionID != "" && u.StripeSubscriptionID != sub.ID {
		log.InfoContext(ctx, "ignoring deletion of a replaced subscription", slog.String("subscription_id", sub.ID))
		return nil
	}
	if err := s.users.SetStripeSubscription(ctx, u.Key(), ""); err != nil {
		return err
	}

	_, err = s.plans.UpdateSubscription(ctx, u.Key(), plans.FreePlanID, plans.Monthly)
	var de *quota.DowngradeError
	if errors.As(err, &de) {
		// Usage still exceeds the free plan; the account keeps its plan until the user cleans up.
		log.ErrorContext(ctx, "subscription ended but downgrade is blocked", logger.Error(err))
		return nil
	}
	return err
}

func (s *Service) subscriptionUpdated(ctx context.Context, log *slog.Logger, sub *stripe.Subscription) error {
	if sub.Status == stripe.SubscriptionStatusCanceled || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	item := sub.Items.Data[0]
	if item.Price == nil {
		return nil
	}
	planID, cycle, ok := s.prices.Plan(item.Price.ID)
	if !ok {
		log.WarnContext(ctx, "subscription uses an unmapped price", slog.String("price_id", item.Price.ID))
		return nil
	}

	u, err := s.eventUser(ctx, sub.Metadata, customerID(sub.Customer))
	if errors.Is(err, ErrUserNotFound) {
		log.WarnContext(ctx, "subscription updated for unknown user", slog.String("subscription_id", sub.ID))
		return nil
	}
	if err != nil {
		return err
	}
	if u.Plan == planID {
		return nil
	}

	_, err = s.plans.UpdateSubscription(ctx, u.Key(), planID, cycle)
	var de *quota.DowngradeError
	if errors.As(err, &de) {
		log.ErrorContext(ctx, "stripe plan change is blocked by usage", logger.UserID(u.Key()), logger.Error(err))
		return nil
	}
	return err
}

func (s *Service) eventUser(ctx context.Context, meta map[string]string, customer string) (*store.User, error) {
	if id := meta["user_id"]; id != "" {
		return s.user(ctx, id)
	}
	if customer == "" {
		return nil, ErrUserNotFound
	}
	u, err := s.users.ByStripeCustomer(ctx, customer)
	if store.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Service) user(ctx context.Context, id string) (*store.User, error) {
	u, err := s.users.ByID(ctx, id)
	if store.IsNotFound(err) || errors.Is(err, store.ErrInvalidID) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: find user: %w", err)
	}
	return u, nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
