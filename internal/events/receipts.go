package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// SessionSummary is the payload carried by checkout events.
type SessionSummary struct {
	Status   string `json:"status"`
	Currency string `json:"currency"`
	Total    int64  `json:"total"`
	OrderID  string `json:"order_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Receipts consumes checkout events from asynq and logs order receipts.
type Receipts struct {
	Logger zerolog.Logger
}

// Register binds every checkout topic on mux.
func (r Receipts) Register(mux *asynq.ServeMux) {
	for _, topic := range AllTopics() {
		mux.HandleFunc(topic, r.Handle)
	}
}

// Handle processes one task. Malformed payloads are skipped without retry.
func (r Receipts) Handle(_ context.Context, t *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("decode event: %v: %w", err, asynq.SkipRetry)
	}
	var summary SessionSummary
	if err := json.Unmarshal(ev.Payload, &summary); err != nil {
		return fmt.Errorf("decode summary: %v: %w", err, asynq.SkipRetry)
	}

	switch t.Type() {
	case TopicSessionCompleted:
		r.Logger.Info().
			Str("session_id", ev.SessionID).
			Str("order_id", summary.OrderID).
			Int64("total", summary.Total).
			Str("currency", summary.Currency).
			Msg("order_receipt")
	case TopicPaymentFailed:
		r.Logger.Warn().
			Str("session_id", ev.SessionID).
			Int64("total", summary.Total).
			Str("reason", summary.Reason).
			Msg("payment_failed")
	default:
		r.Logger.Debug().Str("session_id", ev.SessionID).Str("topic", t.Type()).Str("status", summary.Status).Msg("checkout_event")
	}
	return nil
}
