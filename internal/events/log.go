package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the application log.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (LogPublisher) Name() string { return "log" }

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Logger.Info().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("session_id", ev.SessionID).
		RawJSON("payload", ev.Payload).
		Msg("domain_event")
	return nil
}
