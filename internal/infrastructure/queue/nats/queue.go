package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

// fetcher is the part of a JetStream consumer the queue pulls from.
type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Queue is a pull-based work queue on a JetStream durable consumer. Messages
// stay pending on the server until Ack; unacknowledged ones are redelivered
// after the consumer's ack wait.
type Queue struct {
	conn      *nats.Conn
	js        jetstream.JetStream
	consumer  fetcher
	subject   string
	fetchWait time.Duration
	executor  *resilience.Executor
	logger    *slog.Logger
	now       func() time.Time
	ackWait   time.Duration

	mu      sync.Mutex
	pending map[string]pendingMsg
	// bySeq maps a stream sequence to the receipt of its latest delivery.
	bySeq   map[uint64]string
}

type pendingMsg struct {
	msg        jetstream.Msg
	seq        uint64
	receivedAt time.Time
}

type Options struct {
	Stream               string
	Consumer             string
	AckWait              time.Duration
	// MaxDeliver caps redeliveries of one message before the server stops
	// handing it out.
	MaxDeliver           int
	FetchWait            time.Duration
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func (o Options) normalize() Options {
	out := o
	if out.Stream == "" {
		out.Stream = "FILE_EVENTS"
	}
	if out.Consumer == "" {
		out.Consumer = "filemeta-worker"
	}
	if out.AckWait <= 0 {
		out.AckWait = 10 * time.Minute
	}
	if out.MaxDeliver <= 0 {
		out.MaxDeliver = 5
	}
	if out.FetchWait <= 0 {
		out.FetchWait = 5 * time.Second
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 2 * time.Second
	}
	if out.ReconnectWait <= 0 {
		out.ReconnectWait = 2 * time.Second
	}
	if out.MaxReconnects <= 0 {
		out.MaxReconnects = 60
	}
	if out.ResilienceExecutor == nil {
		out.ResilienceExecutor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

func New(ctx context.Context, url, subject string, options Options) (*Queue, error) {
	opts := options.normalize()
	retryOnFailedConnect := true
	if opts.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *opts.RetryOnFailedConnect
	}
	logger := opts.Logger

	conn, err := nats.Connect(
		url,
		nats.Name("filemeta-worker"),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     opts.Stream,
		Subjects: []string{subject},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", opts.Stream, err)
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, opts.Stream, jetstream.ConsumerConfig{
		Durable:       opts.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
		FilterSubject: subject,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure consumer %s: %w", opts.Consumer, err)
	}

	q := newQueue(consumer, subject, opts)
	q.conn = conn
	q.js = js
	return q, nil
}

func newQueue(consumer fetcher, subject string, opts Options) *Queue {
	return &Queue{
		consumer:  consumer,
		subject:   subject,
		fetchWait: opts.FetchWait,
		executor:  opts.ResilienceExecutor,
		logger:    opts.Logger,
		now:       time.Now,
		ackWait:   opts.AckWait,
		pending:   make(map[string]pendingMsg),
		bySeq:     make(map[uint64]string),
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Receive(ctx context.Context, maxMessages int) ([]ports.Delivery, error) {
	batch, err := resilience.Do(ctx, q.executor, "nats.fetch", func(ctx context.Context) (jetstream.MessageBatch, error) {
		return q.consumer.Fetch(max(maxMessages, 1), jetstream.FetchMaxWait(q.fetchWait))
	}, classifyNATSError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("nats fetch", err)
	}

	receivedAt := q.now()
	q.evictExpired(receivedAt)
	var deliveries []ports.Delivery
	for msg := range batch.Messages() {
		id, seq := messageID(msg)
		receipt := uuid.NewString()
		q.track(receipt, pendingMsg{msg: msg, seq: seq, receivedAt: receivedAt})
		deliveries = append(deliveries, ports.Delivery{
			ID:         id,
			Body:       msg.Data(),
			Receipt:    receipt,
			ReceivedAt: receivedAt,
		})
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		q.logger.Warn("nats_fetch_incomplete", "received", len(deliveries), "error", err)
	}
	return deliveries, nil
}

func (q *Queue) Ack(ctx context.Context, delivery ports.Delivery) error {
	entry, ok := q.lookup(delivery.Receipt)
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "nats ack", fmt.Errorf("no pending message for delivery %s", delivery.ID))
	}

	err := q.executor.Execute(ctx, "nats.ack", func(ctx context.Context) error {
		return entry.msg.DoubleAck(ctx)
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded("nats ack", err)
	}

	q.forget(delivery.Receipt)
	return nil
}

// Reject terminates a delivery so the server never redelivers it.
func (q *Queue) Reject(ctx context.Context, delivery ports.Delivery, reason string) error {
	entry, ok := q.lookup(delivery.Receipt)
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "nats term", fmt.Errorf("no pending message for delivery %s", delivery.ID))
	}

	err := q.executor.Execute(ctx, "nats.term", func(context.Context) error {
		return entry.msg.TermWithReason(reason)
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded("nats term", err)
	}

	q.forget(delivery.Receipt)
	return nil
}

func (q *Queue) lookup(receipt string) (pendingMsg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.pending[receipt]
	return entry, ok
}

// track records a delivery. A redelivery of the same stream sequence replaces
// the receipt handed out earlier.
func (q *Queue) track(receipt string, entry pendingMsg) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry.seq != 0 {
		if previous, ok := q.bySeq[entry.seq]; ok {
			delete(q.pending, previous)
		}
		q.bySeq[entry.seq] = receipt
	}
	q.pending[receipt] = entry
}

func (q *Queue) forget(receipt string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.forgetLocked(receipt)
}

func (q *Queue) forgetLocked(receipt string) {
	entry, ok := q.pending[receipt]
	if !ok {
		return
	}
	delete(q.pending, receipt)
	if entry.seq != 0 && q.bySeq[entry.seq] == receipt {
		delete(q.bySeq, entry.seq)
	}
}

// evictExpired drops deliveries older than the ack wait; the server has
// already made them available again.
func (q *Queue) evictExpired(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for receipt, entry := range q.pending {
		if now.Sub(entry.receivedAt) > q.ackWait {
			q.forgetLocked(receipt)
		}
	}
}

// Publish stores a notification on the stream subject. Used by local tooling.
func (q *Queue) Publish(ctx context.Context, body []byte) error {
	if q.js == nil {
		return fmt.Errorf("nats publish: jetstream not initialised")
	}
	err := q.executor.Execute(ctx, "nats.publish", func(ctx context.Context) error {
		_, err := q.js.Publish(ctx, q.subject, body)
		return err
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded("nats publish", err)
	}
	return nil
}

func messageID(msg jetstream.Msg) (string, uint64) {
	meta, err := msg.Metadata()
	if err != nil || meta == nil {
		return uuid.NewString(), 0
	}
	return fmt.Sprintf("%s:%d", meta.Stream, meta.Sequence.Stream), meta.Sequence.Stream
}
