package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
)

const ackTimeout = 10 * time.Second

type PollerConfig struct {
	BatchSize      int
	Interval       time.Duration
	Concurrency    int
	AnalyzeTimeout time.Duration
}

func (c PollerConfig) normalize() PollerConfig {
	out := c
	if out.BatchSize <= 0 {
		out.BatchSize = 10
	}
	if out.Interval <= 0 {
		out.Interval = 20 * time.Second
	}
	if out.Concurrency <= 0 {
		out.Concurrency = 1
	}
	if out.AnalyzeTimeout <= 0 {
		out.AnalyzeTimeout = 5 * time.Minute
	}
	return out
}

// Poller pulls upload notifications and acknowledges each one after the
// analyzer has returned, whatever the outcome.
type Poller struct {
	queue    ports.MessageQueue
	analyzer ports.FileAnalyzer
	cfg      PollerConfig
	logger   *slog.Logger
	recorder PollRecorder
	after    func(time.Duration) <-chan time.Time
	locks    *fileLocks
}

type PollerOption func(*Poller)

func WithPollLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

func WithPollRecorder(recorder PollRecorder) PollerOption {
	return func(p *Poller) { p.recorder = recorder }
}

// WithAfter replaces time.After for the delay between cycles.
func WithAfter(after func(time.Duration) <-chan time.Time) PollerOption {
	return func(p *Poller) { p.after = after }
}

func NewPoller(queue ports.MessageQueue, analyzer ports.FileAnalyzer, cfg PollerConfig, opts ...PollerOption) *Poller {
	p := &Poller{
		queue:    queue,
		analyzer: analyzer,
		cfg:      cfg.normalize(),
		logger:   slog.Default(),
		recorder: noopRecorder{},
		after:    time.After,
		locks:    newFileLocks(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one batch, waits for the configured delay and repeats until
// ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller_started",
		"batch_size", p.cfg.BatchSize,
		"interval", p.cfg.Interval.String(),
		"concurrency", p.cfg.Concurrency,
	)
	for {
		if ctx.Err() != nil {
			return nil
		}
		p.RunOnce(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("poller_stopped")
			return nil
		case <-p.after(p.cfg.Interval):
		}
	}
}

// RunOnce receives a single batch and returns the number of acknowledged
// deliveries.
func (p *Poller) RunOnce(ctx context.Context) int {
	deliveries, err := p.queue.Receive(ctx, p.cfg.BatchSize)
	p.recorder.ObserveReceive(len(deliveries), err)
	if err != nil {
		p.logger.Error("poll_failed", "error", err)
		return 0
	}
	if len(deliveries) == 0 {
		return 0
	}

	var (
		mu    sync.Mutex
		acked int
	)
	var skipped atomic.Int32
	// Deliveries not started before shutdown stay unacknowledged and are
	// redelivered by the queue.
	handle := func(delivery ports.Delivery) {
		if ctx.Err() != nil {
			skipped.Add(1)
			return
		}
		if p.process(ctx, delivery) {
			mu.Lock()
			acked++
			mu.Unlock()
		}
	}

	if p.cfg.Concurrency == 1 {
		for _, delivery := range deliveries {
			handle(delivery)
		}
	} else {
		var group errgroup.Group
		group.SetLimit(p.cfg.Concurrency)
		for _, delivery := range deliveries {
			group.Go(func() error {
				handle(delivery)
				return nil
			})
		}
		_ = group.Wait()
	}

	if n := skipped.Load(); n > 0 {
		p.logger.Info("batch_interrupted", "left_for_redelivery", n, "acked", acked)
	}
	return acked
}

func (p *Poller) process(ctx context.Context, delivery ports.Delivery) bool {
	file, err := DecodeFileReference(delivery.Body)
	if err != nil {
		p.logger.Error("message_decode_failed", "message_id", delivery.ID, "body", string(delivery.Body), "error", err)
		p.reject(ctx, delivery, err)
		return false
	}
	p.logger.Info("file_event_received", "message_id", delivery.ID, "file_id", file.ID, "mime_type", file.MIME())
	if !file.UpdatedAt.IsZero() && !delivery.ReceivedAt.IsZero() {
		p.recorder.ObserveQueueLag(delivery.ReceivedAt.Sub(file.UpdatedAt))
	}

	unlock := p.locks.lock(file.ID)
	defer unlock()
	if ctx.Err() != nil {
		p.logger.Info("message_left_for_redelivery", "message_id", delivery.ID, "file_id", file.ID)
		return false
	}

	// A started analysis runs to completion even if shutdown begins.
	analyzeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.AnalyzeTimeout)
	outcome := p.analyzer.Analyze(analyzeCtx, file)
	cancel()

	ackCtx, cancelAck := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancelAck()
	err = p.queue.Ack(ackCtx, delivery)
	p.recorder.ObserveAck(err)
	if err != nil {
		p.logger.Error("message_ack_failed", "message_id", delivery.ID, "file_id", file.ID, "error", err)
		return false
	}
	p.logger.Debug("message_acknowledged", "message_id", delivery.ID, "file_id", file.ID, "outcome", outcome.Status)
	return true
}

// reject hands an undecodable delivery back to queues that can dead-letter
// it. Other queues leave it to their redelivery policy.
func (p *Poller) reject(ctx context.Context, delivery ports.Delivery, cause error) {
	rejecter, ok := p.queue.(ports.MessageRejecter)
	if !ok {
		return
	}
	rejectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := rejecter.Reject(rejectCtx, delivery, cause.Error()); err != nil {
		p.logger.Error("message_reject_failed", "message_id", delivery.ID, "error", err)
		return
	}
	p.logger.Warn("message_rejected", "message_id", delivery.ID)
}

// DecodeFileReference parses and validates one notification payload.
func DecodeFileReference(body []byte) (domain.FileReference, error) {
	var file domain.FileReference
	if err := json.Unmarshal(body, &file); err != nil {
		return domain.FileReference{}, domain.WrapError(domain.ErrInvalidInput, "decode file reference", err)
	}
	if err := file.Validate(); err != nil {
		return domain.FileReference{}, fmt.Errorf("validate file reference: %w", err)
	}
	return file, nil
}

// fileLocks serializes concurrent attempts on the same file id.
type fileLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*fileLock
}

type fileLock struct {
	mu   sync.Mutex
	refs int
}

func newFileLocks() *fileLocks {
	return &fileLocks{entries: make(map[uuid.UUID]*fileLock)}
}

func (l *fileLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &fileLock{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
