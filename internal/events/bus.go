package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/acp-checkout/internal/obs"
)

// Event is the envelope handed to every publisher.
type Event struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	SessionID  string          `json:"session_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher delivers events to one backend.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Bus fans events out to every publisher.
type Bus struct {
	Publishers []Publisher
	Now        func() time.Time
}

// Emit builds an event and publishes it everywhere. Publisher failures are
// joined; the event is returned either way.
func (b *Bus) Emit(ctx context.Context, topic, sessionID string, payload any) (Event, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b != nil && b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		SessionID:  sessionID,
		OccurredAt: now().UTC(),
		Payload:    encoded,
	}
	if b == nil {
		return ev, nil
	}

	var joined error
	for _, p := range b.Publishers {
		if p == nil {
			continue
		}
		result := "success"
		if pubErr := p.Publish(ctx, ev); pubErr != nil {
			result = "error"
			joined = errors.Join(joined, fmt.Errorf("events: %s: %w", p.Name(), pubErr))
		}
		if obs.EventsPublishedTotal != nil {
			obs.EventsPublishedTotal.WithLabelValues(p.Name(), result).Inc()
		}
	}
	return ev, joined
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}
