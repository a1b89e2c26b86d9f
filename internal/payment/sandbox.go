package payment

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// DeclineToken is declined by a default Sandbox, mirroring Stripe's test card.
const DeclineToken = "pm_card_chargeDeclined"

// Sandbox is an offline gateway for development and tests.
type Sandbox struct {
	declined map[string]struct{}
	// Delay simulates gateway latency.
	Delay time.Duration
	seq   atomic.Uint64
}

// NewSandbox declines the given tokens, or DeclineToken when none are given.
func NewSandbox(declined ...string) *Sandbox {
	if len(declined) == 0 {
		declined = []string{DeclineToken}
	}
	s := &Sandbox{declined: make(map[string]struct{}, len(declined))}
	for _, tok := range declined {
		s.declined[tok] = struct{}{}
	}
	return s
}

// Capture implements Capturer.
func (s *Sandbox) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return CaptureResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if req.Token == "" {
		return CaptureResult{}, ErrMissingPaymentMethod
	}
	if _, ok := s.declined[req.Token]; ok {
		return CaptureResult{}, fmt.Errorf("%w: card declined", ErrDeclined)
	}
	return CaptureResult{
		Provider:       "sandbox",
		TransactionRef: fmt.Sprintf("pi_sandbox_%d", s.seq.Add(1)),
	}, nil
}

// Captures reports how many charges succeeded.
func (s *Sandbox) Captures() uint64 { return s.seq.Load() }
