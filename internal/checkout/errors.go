package checkout

import (
	"errors"

	"github.com/noah-isme/acp-checkout/internal/catalog"
	"github.com/noah-isme/acp-checkout/internal/pricing"
)

var (
	ErrSessionNotFound          = errors.New("checkout session not found")
	ErrProductNotFound          = catalog.ErrProductNotFound
	ErrProductUnavailable       = pricing.ErrProductUnavailable
	ErrInvalidQuantity          = pricing.ErrInvalidQuantity
	ErrNotReadyForPayment       = errors.New("checkout session is not ready for payment")
	ErrPaymentCaptureFailed     = errors.New("payment capture failed")
	ErrInvalidFulfillmentOption = errors.New("unknown fulfillment option")
	ErrSessionClosed            = errors.New("checkout session is closed")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrCatalogUnavailable       = errors.New("catalog unavailable")
)

// PaymentFailedError is returned by Complete when capture fails. Session is
// the persisted snapshot carrying the payment_failed message.
type PaymentFailedError struct {
	Session Session
	Err     error
}

func (e *PaymentFailedError) Error() string {
	if e.Err == nil {
		return ErrPaymentCaptureFailed.Error()
	}
	return ErrPaymentCaptureFailed.Error() + ": " + e.Err.Error()
}

func (e *PaymentFailedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPaymentCaptureFailed}
	}
	return []error{ErrPaymentCaptureFailed, e.Err}
}
