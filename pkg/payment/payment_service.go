// Package payment provides the card-payment gateway used as an alternative
// to the mobile-money STK push flow.
package payment

import (
	"context"
	"fmt"

	"parcel-dispatch/internal/models"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeGateway charges cards through Stripe PaymentIntents. It satisfies
// the same gateway contract as the M-Pesa client: the PaymentIntent id
// stands in for the checkout id.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway creates a Stripe-backed gateway.
func NewStripeGateway(apiKey string) *StripeGateway {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeGateway{api: api}
}

// InitiatePush opens a PaymentIntent for the amount. The phone number is not
// used by the card flow; the reference is attached for reconciliation.
func (g *StripeGateway) InitiatePush(ctx context.Context, amount float64, phone, reference string) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(int64(amount * 100)), // minor units
		Currency: stripe.String(string(stripe.CurrencyKES)),
	}
	params.AddMetadata("tx_ref", reference)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", "", fmt.Errorf("payment.InitiatePush: %w: %v", models.ErrGatewayUnavailable, err)
	}
	return pi.ID, pi.ID, nil
}

// QueryStatus maps the PaymentIntent state onto the shared gateway status
// vocabulary.
func (g *StripeGateway) QueryStatus(ctx context.Context, checkoutID string) (string, error) {
	pi, err := g.api.PaymentIntents.Get(checkoutID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return "", fmt.Errorf("payment.QueryStatus: %w: %v", models.ErrGatewayUnavailable, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return "completed", nil
	case stripe.PaymentIntentStatusCanceled:
		return "cancelled", nil
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		return "pending", nil
	default:
		return "unknown", nil
	}
}
