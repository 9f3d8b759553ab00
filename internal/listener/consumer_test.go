package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ewallet-webhook-go/internal/events"
	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/reconcile"
	"ewallet-webhook-go/internal/retry"
	"ewallet-webhook-go/internal/store"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	messages chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{messages: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.messages <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.messages:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeProcessor struct {
	mu    sync.Mutex
	errs  map[string][]error
	calls map[string]int
}

func (p *fakeProcessor) Handle(_ context.Context, env events.Envelope) (*reconcile.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref := env.Reference()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[ref]++
	if queued := p.errs[ref]; len(queued) > 0 {
		err := queued[0]
		p.errs[ref] = queued[1:]
		return nil, err
	}
	return &reconcile.Outcome{Event: env.Event, Reference: ref, Status: reconcile.StatusApplied}, nil
}

type memorySink struct {
	mu      sync.Mutex
	letters []models.DeadLetter
	err     error
}

func (m *memorySink) SaveDeadLetter(_ context.Context, letter models.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.letters = append(m.letters, letter)
	return nil
}

type processedCall struct {
	id       string
	attempts int
	err      error
}

type fakeDeliveries struct {
	mu    sync.Mutex
	calls []processedCall
}

func (d *fakeDeliveries) MarkWebhookProcessed(_ context.Context, id string, attempts int, processErr error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, processedCall{id, attempts, processErr})
	return nil
}

func message(logId, reference, body string) kafka.Message {
	return kafka.Message{
		Key:   []byte(reference),
		Value: []byte(body),
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte("nip")},
			{Key: headerWebhookLogId, Value: []byte(logId)},
		},
	}
}

func nipBody(reference string) string {
	return `{"event":"nip","data":{"accountNumber":"001","reference":"` + reference + `","amount":500}}`
}

func setupConsumer(reader messageReader, processor Processor, sink retry.Sink) (*EventConsumer, *fakeDeliveries) {
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	deliveries := &fakeDeliveries{}
	consumer := newEventConsumer(reader, EventConsumerConfig{
		Kafka:      models.KafkaConfig{EventsTopic: "embedly.webhooks"},
		Processor:  processor,
		Supervisor: retry.NewSupervisor(policy, reconcile.IsTerminal, sink),
		Deliveries: deliveries,
	})
	consumer.fetchDelay = time.Millisecond
	return consumer, deliveries
}

func TestHandleMessage_Success(t *testing.T) {
	processor := &fakeProcessor{}
	consumer, deliveries := setupConsumer(newFakeReader(), processor, &memorySink{})

	err := consumer.handleMessage(context.Background(), message("log-1", "R1", nipBody("R1")))
	require.NoError(t, err)
	require.Len(t, deliveries.calls, 1)
	assert.Equal(t, processedCall{id: "log-1", attempts: 1}, deliveries.calls[0])
}

func TestHandleMessage_TransientRetried(t *testing.T) {
	processor := &fakeProcessor{errs: map[string][]error{"R1": {errors.New("database is locked")}}}
	consumer, deliveries := setupConsumer(newFakeReader(), processor, &memorySink{})

	require.NoError(t, consumer.handleMessage(context.Background(), message("log-1", "R1", nipBody("R1"))))
	assert.Equal(t, 2, processor.calls["R1"])
	assert.Equal(t, 2, deliveries.calls[0].attempts)
	assert.NoError(t, deliveries.calls[0].err)
}

func TestHandleMessage_TerminalDeadLettered(t *testing.T) {
	processor := &fakeProcessor{errs: map[string][]error{"R1": {store.ErrAccountNotFound}}}
	sink := &memorySink{}
	consumer, deliveries := setupConsumer(newFakeReader(), processor, sink)

	require.NoError(t, consumer.handleMessage(context.Background(), message("log-1", "R1", nipBody("R1"))))
	assert.Equal(t, 1, processor.calls["R1"])
	require.Len(t, sink.letters, 1)
	assert.True(t, sink.letters[0].Terminal)
	assert.Equal(t, "R1", sink.letters[0].Reference)
	assert.ErrorIs(t, deliveries.calls[0].err, store.ErrAccountNotFound)
}

func TestHandleMessage_MalformedDeadLettered(t *testing.T) {
	processor := &fakeProcessor{}
	sink := &memorySink{}
	consumer, _ := setupConsumer(newFakeReader(), processor, sink)

	require.NoError(t, consumer.handleMessage(context.Background(), message("log-1", "R1", `{"data":{}}`)))
	assert.Empty(t, processor.calls)
	require.Len(t, sink.letters, 1)
	assert.Equal(t, "nip", sink.letters[0].EventType)
	assert.True(t, sink.letters[0].Terminal)
}

func TestHandleMessage_SinkFailureNotCommitted(t *testing.T) {
	processor := &fakeProcessor{errs: map[string][]error{"R1": {store.ErrInsufficientFunds}}}
	consumer, deliveries := setupConsumer(newFakeReader(), processor, &memorySink{err: errors.New("sink down")})

	err := consumer.handleMessage(context.Background(), message("log-1", "R1", nipBody("R1")))
	require.Error(t, err)
	assert.Empty(t, deliveries.calls)
}

func TestConsumerStartStop(t *testing.T) {
	reader := newFakeReader(
		message("log-1", "R1", nipBody("R1")),
		message("log-2", "R2", nipBody("R2")),
	)
	processor := &fakeProcessor{}
	consumer, _ := setupConsumer(reader, processor, &memorySink{})

	consumer.Start(context.Background())
	require.Eventually(t, func() bool { return reader.commitCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	consumer.Stop()
	assert.True(t, reader.closed)
	select {
	case <-consumer.Done():
	default:
		t.Fatal("consume loop still running after Stop")
	}
}

func TestConsumerStopWithoutStart(t *testing.T) {
	reader := newFakeReader(message("log-1", "R1", nipBody("R1")))
	consumer, _ := setupConsumer(reader, &fakeProcessor{}, &memorySink{})

	stopped := make(chan struct{})
	go func() {
		consumer.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a consumer that was never started")
	}
	assert.True(t, reader.closed)

	// Start after Stop does not launch a loop
	consumer.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, reader.commitCount())
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublisher(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &Publisher{writer: writer, topic: "embedly.webhooks"}

	require.NoError(t, publisher.Publish(context.Background(), "log-1", "nip", "R1", []byte(nipBody("R1"))))
	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "R1", string(msg.Key))
	assert.Equal(t, "nip", header(msg, headerEventType))
	assert.Equal(t, "log-1", header(msg, headerWebhookLogId))
	assert.Empty(t, header(msg, "missing"))

	writer.err = errors.New("broker unavailable")
	assert.Error(t, publisher.Publish(context.Background(), "log-2", "nip", "R2", nil))
}
