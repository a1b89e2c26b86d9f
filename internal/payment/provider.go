package payment

import (
	"context"
	"errors"
)

var (
	// ErrDeclined means the gateway refused the charge.
	ErrDeclined = errors.New("payment declined")
	// ErrMissingPaymentMethod means no payment method token was supplied.
	ErrMissingPaymentMethod = errors.New("no payment method provided")
	// ErrTimeout means the gateway did not answer within the capture timeout.
	ErrTimeout = errors.New("payment capture timed out")
)

// CaptureRequest charges Amount minor units of Currency against Token.
type CaptureRequest struct {
	SessionID string
	Token     string
	Amount    int64
	Currency  string
}

// CaptureResult identifies a successful charge at the gateway.
type CaptureResult struct {
	Provider       string
	TransactionRef string
}

// Capturer charges a payment method in one synchronous step.
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error)
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(ctx context.Context, req CaptureRequest) (CaptureResult, error)

// Capture implements Capturer.
func (f CapturerFunc) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	return f(ctx, req)
}
