package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// Stripe captures by creating and confirming a PaymentIntent in one call.
type Stripe struct {
	SecretKey string
	// Backend overrides the API backend; nil uses stripe's default.
	Backend stripe.Backend
}

// Capture implements Capturer.
func (s Stripe) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	if strings.TrimSpace(s.SecretKey) == "" {
		return CaptureResult{}, errors.New("payment: stripe secret key not configured")
	}
	backend := s.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	client := paymentintent.Client{B: backend, Key: s.SecretKey}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.Token),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.AddMetadata("checkout_session_id", req.SessionID)

	intent, err := client.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return CaptureResult{}, fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
		}
		return CaptureResult{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return CaptureResult{}, fmt.Errorf("%w: payment intent %s is %s", ErrDeclined, intent.ID, intent.Status)
	}
	return CaptureResult{Provider: "stripe", TransactionRef: intent.ID}, nil
}
