package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/acp-checkout/internal/catalog"
	"github.com/noah-isme/acp-checkout/internal/events"
	"github.com/noah-isme/acp-checkout/internal/lock"
	"github.com/noah-isme/acp-checkout/internal/obs"
	"github.com/noah-isme/acp-checkout/internal/payment"
	"github.com/noah-isme/acp-checkout/internal/pricing"
)

const (
	DefaultCurrency       = "usd"
	DefaultLockTTL        = 30 * time.Second
	DefaultCaptureTimeout = 20 * time.Second

	lockKeyPrefix = "checkout:lock:"

	OptionStandard = "standard"
	OptionExpress  = "express"

	PaymentFailedContent = "Payment failed. Please try again with a different payment method."
)

// Store persists sessions by id. Get returns ErrSessionNotFound for unknown ids.
type Store interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, sessionID string, payload any) (events.Event, error)
}

var (
	defaultValidator = validator.New(validator.WithRequiredStructEnabled())
	processLocks     = &lock.Local{}
)

// DefaultFulfillmentOptions returns the shipping methods offered once an
// address is known, with standard selected.
func DefaultFulfillmentOptions() []FulfillmentOption {
	return []FulfillmentOption{
		{
			ID:           OptionStandard,
			Type:         "shipping",
			DisplayText:  "Standard Shipping (5-7 business days)",
			Amount:       500,
			Selected:     true,
			Carrier:      "USPS",
			ServiceLevel: "standard",
		},
		{
			ID:           OptionExpress,
			Type:         "shipping",
			DisplayText:  "Express Shipping (2-3 business days)",
			Amount:       1500,
			Carrier:      "FedEx",
			ServiceLevel: "express",
		},
	}
}

// DefaultPaymentProvider is advertised on sessions when none is configured.
func DefaultPaymentProvider() PaymentProvider {
	return PaymentProvider{
		Provider:                "stripe",
		SupportedPaymentMethods: []string{"card", "apple_pay", "google_pay"},
	}
}

// Service runs the checkout session state machine.
type Service struct {
	Store     Store
	Catalog   catalog.Lookup
	Payments  payment.Capturer
	Pricing   pricing.Calculator
	Validator *validator.Validate
	IDs       IDGenerator
	Events    Emitter
	Logger    zerolog.Logger

	// Locker serialises mutations per session; an in-process lock is used when nil.
	Locker         lock.Locker
	LockTTL        time.Duration
	CaptureTimeout time.Duration

	Currency        string
	PaymentProvider *PaymentProvider
	Links           []Link
}

// Create opens a session from req.
func (s *Service) Create(ctx context.Context, req CreateRequest) (sess Session, err error) {
	ctx, done := s.begin(ctx, "create")
	defer func() { done(sess.ID, err) }()

	if err = s.configured(); err != nil {
		return Session{}, err
	}
	if err = s.validate(req); err != nil {
		return Session{}, err
	}
	lines, err := s.lineItems(ctx, req.Items)
	if err != nil {
		return Session{}, err
	}

	provider := DefaultPaymentProvider()
	if s.PaymentProvider != nil {
		provider = *s.PaymentProvider
	}
	sess = Session{
		ID:                 s.ids().SessionID(),
		Status:             StatusNotReadyForPayment,
		Currency:           s.currency(),
		PaymentProvider:    &provider,
		LineItems:          lines,
		FulfillmentOptions: []FulfillmentOption{},
		Messages:           []Message{},
		Links:              cloneSlice(s.Links),
	}
	if req.BuyerEmail != nil {
		sess.BuyerEmail = *req.BuyerEmail
	}
	if req.BuyerPhone != nil {
		sess.BuyerPhone = *req.BuyerPhone
	}
	if req.FulfillmentAddress != nil {
		addr := *req.FulfillmentAddress
		sess.FulfillmentAddress = &addr
	}
	// A street line alone is enough at creation time.
	if sess.FulfillmentAddress.HasStreetLine() {
		sess.FulfillmentOptions = DefaultFulfillmentOptions()
		sess.SelectedFulfillmentOptionID = OptionStandard
		sess.Status = StatusReadyForPayment
	}
	reprice(&sess)

	if err = s.Store.Put(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("persist session: %w", err)
	}
	s.logTransition("checkout_session_created", sess)
	s.emit(ctx, events.TopicSessionCreated, sess, "")
	return sess.Clone(), nil
}

// Get returns the stored session.
func (s *Service) Get(ctx context.Context, id string) (sess Session, err error) {
	ctx, done := s.begin(ctx, "get")
	defer func() { done(id, err) }()

	if err = s.configured(); err != nil {
		return Session{}, err
	}
	return s.Store.Get(ctx, id)
}

// Update applies req to the session. Either every change applies or none does.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (sess Session, err error) {
	ctx, done := s.begin(ctx, "update")
	defer func() { done(id, err) }()

	if err = s.configured(); err != nil {
		return Session{}, err
	}
	if err = s.validate(req); err != nil {
		return Session{}, err
	}
	err = s.locked(ctx, id, func(ctx context.Context) error {
		current, err := s.open(ctx, id)
		if err != nil {
			return err
		}
		next := current.Clone()

		if req.Items != nil {
			lines, err := s.lineItems(ctx, req.Items)
			if err != nil {
				return err
			}
			next.LineItems = lines
		}
		if req.BuyerEmail != nil {
			next.BuyerEmail = *req.BuyerEmail
		}
		if req.BuyerPhone != nil {
			next.BuyerPhone = *req.BuyerPhone
		}
		if req.FulfillmentAddress != nil {
			addr := *req.FulfillmentAddress
			next.FulfillmentAddress = &addr
		}
		if next.FulfillmentAddress.HasStreetLine() && len(next.FulfillmentOptions) == 0 {
			next.FulfillmentOptions = DefaultFulfillmentOptions()
			next.SelectedFulfillmentOptionID = OptionStandard
		}
		if req.SelectedFulfillmentOptionID != nil && *req.SelectedFulfillmentOptionID != "" {
			if err := selectOption(&next, *req.SelectedFulfillmentOptionID); err != nil {
				return err
			}
		}
		reprice(&next)
		next.Status = readiness(next)

		if err := s.Store.Put(ctx, next); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		sess = next
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.logTransition("checkout_session_updated", sess)
	s.emit(ctx, events.TopicSessionUpdated, sess, "")
	return sess.Clone(), nil
}

// Complete captures payment for the session total. On capture failure the
// session keeps its status, carries a payment_failed message and is returned
// inside a *PaymentFailedError.
func (s *Service) Complete(ctx context.Context, id string, req CompleteRequest) (sess Session, err error) {
	ctx, done := s.begin(ctx, "complete")
	defer func() { done(id, err) }()

	if err = s.configured(); err != nil {
		return Session{}, err
	}

	var captureErr error
	err = s.locked(ctx, id, func(ctx context.Context) error {
		current, err := s.open(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusReadyForPayment {
			return ErrNotReadyForPayment
		}
		next := current.Clone()

		var token string
		if req.PaymentData != nil {
			token = strings.TrimSpace(req.PaymentData.StripePaymentMethodID)
		}
		if token == "" {
			captureErr = payment.ErrMissingPaymentMethod
		} else {
			_, captureErr = s.capture(ctx, next, token)
		}

		// The charge may already have happened; record the outcome even if
		// the caller has gone away.
		persistCtx := context.WithoutCancel(ctx)
		if captureErr != nil {
			next.Messages = []Message{{
				Type:        "error",
				Code:        "payment_failed",
				ContentType: "plain",
				Content:     PaymentFailedContent,
			}}
		} else {
			next.Status = StatusCompleted
			next.OrderID = s.ids().OrderID()
			next.PaymentData = &PaymentData{StripePaymentMethodID: token}
			next.Messages = []Message{}
		}
		if err := s.Store.Put(persistCtx, next); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		sess = next
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	if captureErr != nil {
		s.Logger.Warn().Err(captureErr).Str("session_id", sess.ID).Int64("total", sess.Total()).Msg("checkout_payment_failed")
		s.emit(ctx, events.TopicPaymentFailed, sess, captureErr.Error())
		return sess.Clone(), &PaymentFailedError{Session: sess.Clone(), Err: captureErr}
	}
	s.logTransition("checkout_session_completed", sess)
	s.emit(ctx, events.TopicSessionCompleted, sess, "")
	return sess.Clone(), nil
}

// Cancel moves an open session to canceled.
func (s *Service) Cancel(ctx context.Context, id string) (sess Session, err error) {
	ctx, done := s.begin(ctx, "cancel")
	defer func() { done(id, err) }()

	if err = s.configured(); err != nil {
		return Session{}, err
	}
	err = s.locked(ctx, id, func(ctx context.Context) error {
		current, err := s.open(ctx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		next.Status = StatusCanceled
		if err := s.Store.Put(ctx, next); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		sess = next
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.logTransition("checkout_session_canceled", sess)
	s.emit(ctx, events.TopicSessionCanceled, sess, "")
	return sess.Clone(), nil
}

func (s *Service) configured() error {
	if s == nil || s.Store == nil || s.Catalog == nil {
		return errors.New("checkout service not configured")
	}
	return nil
}

// open loads a session that still accepts mutations.
func (s *Service) open(ctx context.Context, id string) (Session, error) {
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if current.Status.Terminal() {
		return Session{}, fmt.Errorf("%w: %s is %s", ErrSessionClosed, id, current.Status)
	}
	return current, nil
}

func (s *Service) locked(ctx context.Context, id string, fn func(context.Context) error) error {
	locker := s.Locker
	if locker == nil {
		locker = processLocks
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return locker.WithLock(ctx, lockKeyPrefix+id, ttl, fn)
}

func (s *Service) capture(ctx context.Context, sess Session, token string) (payment.CaptureResult, error) {
	if s.Payments == nil {
		return payment.CaptureResult{}, errors.New("payments not configured")
	}
	timeout := s.CaptureTimeout
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	res, err := s.Payments.Capture(callCtx, payment.CaptureRequest{
		SessionID: sess.ID,
		Token:     token,
		Amount:    sess.Total(),
		Currency:  sess.Currency,
	})
	if err != nil && callCtx.Err() != nil && !errors.Is(err, payment.ErrTimeout) {
		err = fmt.Errorf("%w: %w", payment.ErrTimeout, err)
	}
	return res, err
}

func (s *Service) lineItems(ctx context.Context, items []Item) ([]LineItem, error) {
	lines, err := s.Pricing.ComputeLineItems(ctx, items, s.Catalog, s.ids().LineItemID)
	if err == nil {
		return lines, nil
	}
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrProductUnavailable),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
}

func (s *Service) validate(req any) error {
	v := s.Validator
	if v == nil {
		v = defaultValidator
	}
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		for _, fe := range fields {
			if fe.Field() == "Quantity" {
				return fmt.Errorf("%w: %w", ErrInvalidQuantity, err)
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

func (s *Service) ids() IDGenerator {
	if s.IDs != nil {
		return s.IDs
	}
	return UUIDGenerator{}
}

func (s *Service) currency() string {
	if c := strings.TrimSpace(s.Currency); c != "" {
		return strings.ToLower(c)
	}
	return DefaultCurrency
}

func (s *Service) emit(ctx context.Context, topic string, sess Session, reason string) {
	if s.Events == nil {
		return
	}
	summary := events.SessionSummary{
		Status:   string(sess.Status),
		Currency: sess.Currency,
		Total:    sess.Total(),
		OrderID:  sess.OrderID,
		Reason:   reason,
	}
	if _, err := s.Events.Emit(context.WithoutCancel(ctx), topic, sess.ID, summary); err != nil {
		s.Logger.Warn().Err(err).Str("session_id", sess.ID).Str("topic", topic).Msg("checkout_event_publish_failed")
	}
}

func (s *Service) logTransition(msg string, sess Session) {
	s.Logger.Info().
		Str("session_id", sess.ID).
		Str("status", string(sess.Status)).
		Int64("total", sess.Total()).
		Msg(msg)
}

// begin opens a span for op and returns the func that closes it and records metrics.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(id string, err error)) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService."+strings.ToUpper(op[:1])+op[1:])
	start := time.Now()
	return ctx, func(id string, err error) {
		finish(span, op, id, start, err)
	}
}

func finish(span trace.Span, op, id string, start time.Time, err error) {
	result := resultLabel(err)
	span.SetAttributes(
		attribute.String("checkout.session_id", id),
		attribute.String("checkout.result", result),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	span.End()
	if obs.CheckoutOperationsTotal != nil {
		obs.CheckoutOperationsTotal.WithLabelValues(op, result).Inc()
	}
	if obs.CheckoutOperationLatency != nil {
		obs.CheckoutOperationLatency.WithLabelValues(op).Observe(obs.DurationMillis(time.Since(start)))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPaymentCaptureFailed):
		return "payment_failed"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionClosed):
		return "closed"
	case errors.Is(err, ErrNotReadyForPayment):
		return "not_ready"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidFulfillmentOption),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrProductUnavailable):
		return "rejected"
	default:
		return "error"
	}
}

func selectOption(sess *Session, id string) error {
	found := false
	for _, opt := range sess.FulfillmentOptions {
		if opt.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrInvalidFulfillmentOption, id)
	}
	for i := range sess.FulfillmentOptions {
		sess.FulfillmentOptions[i].Selected = sess.FulfillmentOptions[i].ID == id
	}
	sess.SelectedFulfillmentOptionID = id
	return nil
}

func reprice(sess *Session) {
	var shipping *pricing.Money
	if opt, ok := sess.SelectedOption(); ok {
		amount := opt.Amount
		shipping = &amount
	}
	sess.Totals = pricing.ComputeTotals(sess.LineItems, shipping)
}

func readiness(sess Session) Status {
	if sess.FulfillmentAddress.HasStreetLine() && sess.BuyerEmail != "" && len(sess.FulfillmentOptions) > 0 {
		return StatusReadyForPayment
	}
	return StatusNotReadyForPayment
}
