package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acp-checkout/internal/events"
)

type capturePublisher struct {
	name   string
	err    error
	events []events.Event
}

func (c *capturePublisher) Name() string { return c.name }

func (c *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestBusFansOutAndJoinsErrors(t *testing.T) {
	ok := &capturePublisher{name: "ok"}
	broken := &capturePublisher{name: "broken", err: errors.New("down")}
	fixed := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	bus := &events.Bus{Publishers: []events.Publisher{ok, broken}, Now: func() time.Time { return fixed }}

	ev, err := bus.Emit(context.Background(), events.TopicSessionCreated, "cs_1", events.SessionSummary{Status: "not_ready_for_payment", Total: 2200})
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
	require.Equal(t, "cs_1", ev.SessionID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.Len(t, ok.events, 1)
	require.Len(t, broken.events, 1)
	require.JSONEq(t, `{"status":"not_ready_for_payment","currency":"","total":2200}`, string(ok.events[0].Payload))
}

func TestBusRejectsEmptyTopic(t *testing.T) {
	_, err := (&events.Bus{}).Emit(context.Background(), " ", "cs_1", nil)
	require.Error(t, err)
}

func TestAsynqPublisherUsesTopicAsTaskType(t *testing.T) {
	enq := &fakeEnqueuer{}
	bus := &events.Bus{Publishers: []events.Publisher{events.AsynqPublisher{Client: enq}}}
	_, err := bus.Emit(context.Background(), events.TopicSessionCompleted, "cs_2", events.SessionSummary{OrderID: "order_1"})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, events.TopicSessionCompleted, enq.tasks[0].Type())

	var ev events.Event
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &ev))
	require.Equal(t, "cs_2", ev.SessionID)
}

func TestKafkaPublisherKeysBySession(t *testing.T) {
	w := &fakeWriter{}
	bus := &events.Bus{Publishers: []events.Publisher{events.KafkaPublisher{Writer: w}}}
	_, err := bus.Emit(context.Background(), events.TopicSessionCanceled, "cs_3", nil)
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, []byte("cs_3"), w.msgs[0].Key)
	require.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	require.Equal(t, events.TopicSessionCanceled, string(w.msgs[0].Headers[0].Value))
}

func TestReceiptsLogsCompletedOrders(t *testing.T) {
	var buf bytes.Buffer
	receipts := events.Receipts{Logger: zerolog.New(&buf)}

	payload, err := json.Marshal(events.Event{
		ID:        "ev_1",
		Topic:     events.TopicSessionCompleted,
		SessionID: "cs_4",
		Payload:   json.RawMessage(`{"status":"completed","currency":"usd","total":3700,"order_id":"order_9"}`),
	})
	require.NoError(t, err)

	require.NoError(t, receipts.Handle(context.Background(), asynq.NewTask(events.TopicSessionCompleted, payload)))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "order_receipt", line["message"])
	require.Equal(t, "order_9", line["order_id"])
	require.Equal(t, float64(3700), line["total"])
}

func TestReceiptsSkipsMalformedPayload(t *testing.T) {
	receipts := events.Receipts{Logger: zerolog.Nop()}
	err := receipts.Handle(context.Background(), asynq.NewTask(events.TopicSessionCompleted, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func TestReceiptsConsumeKafkaRoundTrip(t *testing.T) {
	w := &fakeWriter{}
	bus := &events.Bus{Publishers: []events.Publisher{events.KafkaPublisher{Writer: w}}}
	_, err := bus.Emit(context.Background(), events.TopicSessionCompleted, "cs_5",
		events.SessionSummary{Status: "completed", Currency: "usd", Total: 2700, OrderID: "order_5"})
	require.NoError(t, err)

	msgs := append(w.msgs, kafka.Message{Offset: 1, Value: []byte("garbage")})
	msgs[0].Offset = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{msgs: msgs, cancel: cancel}

	var buf bytes.Buffer
	receipts := events.Receipts{Logger: zerolog.New(&buf)}
	require.NoError(t, receipts.ConsumeKafka(ctx, reader))

	require.Equal(t, []int64{0, 1}, reader.committed)
	require.Contains(t, buf.String(), `"order_id":"order_5"`)
	require.Contains(t, buf.String(), "kafka_event_skipped")
}
