package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/acp-checkout/internal/obs"
	"github.com/noah-isme/acp-checkout/internal/resilience"
)

const defaultCaptureTimeout = 15 * time.Second

// Service wraps a gateway with a capture timeout, a breaker, tracing and metrics.
type Service struct {
	Provider     Capturer
	ProviderName string
	Timeout      time.Duration
	Breaker      *resilience.Breaker
	Logger       zerolog.Logger
}

// NewBreaker returns a breaker that only trips on gateway faults, not declines.
func NewBreaker(logger zerolog.Logger) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "payment",
		MinRequests:  5,
		FailureRatio: 0.5,
		OpenFor:      30 * time.Second,
		Logger:       logger,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, ErrDeclined) && !errors.Is(err, ErrMissingPaymentMethod)
		},
	})
}

// Capture charges req through the provider.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	if s == nil || s.Provider == nil {
		return CaptureResult{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Capture")
	defer span.End()

	start := time.Now()
	provider := normaliseLabel(s.ProviderName)
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", provider),
			attribute.String("checkout.session_id", req.SessionID),
			attribute.Int64("payment.amount", req.Amount),
			attribute.String("payment.currency", req.Currency),
			attribute.String("payment.capture.result", result),
		)
		if obs.PaymentCaptureTotal != nil {
			obs.PaymentCaptureTotal.WithLabelValues(provider, result).Inc()
		}
		if obs.PaymentCaptureLatency != nil {
			obs.PaymentCaptureLatency.WithLabelValues(provider).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	if strings.TrimSpace(req.Token) == "" {
		result = "missing_method"
		return CaptureResult{}, ErrMissingPaymentMethod
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res CaptureResult
	err := s.Breaker.Execute(callCtx, func(ctx context.Context) error {
		var err error
		res, err = s.Provider.Capture(ctx, req)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDeclined):
			result = "declined"
		case errors.Is(err, resilience.ErrOpenCircuit):
			result = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil:
			result = "timeout"
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		s.Logger.Warn().Err(err).Str("session_id", req.SessionID).Str("provider", provider).Str("result", result).Msg("payment_capture_failed")
		return CaptureResult{}, err
	}

	result = "success"
	if res.Provider == "" {
		res.Provider = provider
	}
	s.Logger.Info().Str("session_id", req.SessionID).Str("provider", provider).Str("transaction_ref", res.TransactionRef).Int64("amount", req.Amount).Msg("payment_captured")
	return res, nil
}

func normaliseLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
