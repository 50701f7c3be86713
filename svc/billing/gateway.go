package billing

import (
	"context"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentmethod"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Gateway is the subset of Stripe the billing service calls.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name, userID string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	PaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error)
	Subscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID, userID string) (*stripe.Subscription, error)
	ChangePrice(ctx context.Context, sub *stripe.Subscription, priceID string) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string) error
}

// StripeGateway calls the Stripe API with the package-level client.
type StripeGateway struct{}

// NewStripeGateway sets the process-wide Stripe key.
func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

func (StripeGateway) CreateCustomer(ctx context.Context, email, name, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: map[string]string{"user_id": userID},
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.Context = ctx
	c, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// AttachPaymentMethod attaches the method and makes it the invoice default.
func (StripeGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = ctx
	if _, err := paymentmethod.Attach(paymentMethodID, attach); err != nil {
		return err
	}
	update := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	update.Context = ctx
	_, err := customer.Update(customerID, update)
	return err
}

func (StripeGateway) PaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx
	it := paymentmethod.List(params)
	var out []*stripe.PaymentMethod
	for it.Next() {
		out = append(out, it.PaymentMethod())
	}
	return out, it.Err()
}

func (StripeGateway) Subscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(id, params)
}

func (StripeGateway) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID, userID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items:    []*stripe.SubscriptionItemsParams{{Price: stripe.String(priceID)}},
		Metadata: map[string]string{"user_id": userID},
	}
	if paymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(paymentMethodID)
	}
	params.Context = ctx
	return subscription.New(params)
}

// ChangePrice swaps the first item's price, prorating the difference.
func (StripeGateway) ChangePrice(ctx context.Context, sub *stripe.Subscription, priceID string) (*stripe.Subscription, error) {
	item := &stripe.SubscriptionItemsParams{Price: stripe.String(priceID)}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item.ID = stripe.String(sub.Items.Data[0].ID)
	}
	params := &stripe.SubscriptionParams{
		Items:             []*stripe.SubscriptionItemsParams{item},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	return subscription.Update(sub.ID, params)
}

func (StripeGateway) CancelSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := subscription.Cancel(id, params)
	return err
}
