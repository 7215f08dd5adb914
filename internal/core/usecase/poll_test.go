package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
)

type queueFake struct {
	mu         sync.Mutex
	batches    [][]ports.Delivery
	receiveErr error
	ackErr     error
	receives   int
	maxAsked   int
	acked      []string
	events     *[]string
}

func (q *queueFake) Receive(_ context.Context, maxMessages int) ([]ports.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.receives++
	q.maxAsked = maxMessages
	if q.receiveErr != nil {
		return nil, q.receiveErr
	}
	if len(q.batches) == 0 {
		return nil, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch, nil
}

func (q *queueFake) Ack(_ context.Context, delivery ports.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.events != nil {
		*q.events = append(*q.events, "ack:"+delivery.ID)
	}
	if q.ackErr != nil {
		return q.ackErr
	}
	q.acked = append(q.acked, delivery.ID)
	return nil
}

type analyzerFake struct {
	mu       sync.Mutex
	status   domain.OutcomeStatus
	files    []domain.FileReference
	events   *[]string
	delay    time.Duration
	inFlight map[uuid.UUID]int
	overlap  atomic.Bool
}

func (a *analyzerFake) Analyze(_ context.Context, file domain.FileReference) domain.Outcome {
	a.mu.Lock()
	a.files = append(a.files, file)
	if a.events != nil {
		*a.events = append(*a.events, "analyze:"+file.ID.String())
	}
	if a.inFlight == nil {
		a.inFlight = make(map[uuid.UUID]int)
	}
	a.inFlight[file.ID]++
	if a.inFlight[file.ID] > 1 {
		a.overlap.Store(true)
	}
	a.mu.Unlock()

	time.Sleep(a.delay)

	a.mu.Lock()
	a.inFlight[file.ID]--
	a.mu.Unlock()
	return domain.Outcome{FileID: file.ID, Status: a.status}
}

func delivery(id string, fileID uuid.UUID, mimeType string) ports.Delivery {
	body := fmt.Sprintf(`{"id":%q,"name":"a","mimeType":%q,"s3Key":"k/%s","fileSize":10}`, fileID, mimeType, id)
	return ports.Delivery{ID: id, Body: []byte(body), Receipt: "r-" + id}
}

func TestRunOnceAcksAfterEveryOutcome(t *testing.T) {
	for _, status := range []domain.OutcomeStatus{domain.OutcomeCompleted, domain.OutcomeFailed, domain.OutcomeSkipped} {
		t.Run(string(status), func(t *testing.T) {
			var events []string
			fileID := uuid.New()
			queue := &queueFake{batches: [][]ports.Delivery{{delivery("m1", fileID, "text/plain")}}, events: &events}
			analyzer := &analyzerFake{status: status, events: &events}
			poller := NewPoller(queue, analyzer, PollerConfig{})

			if acked := poller.RunOnce(context.Background()); acked != 1 {
				t.Fatalf("RunOnce() = %d, want 1", acked)
			}
			want := []string{"analyze:" + fileID.String(), "ack:m1"}
			if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
				t.Fatalf("unexpected order: %v", events)
			}
		})
	}
}

func TestRunOnceUsesBatchSize(t *testing.T) {
	queue := &queueFake{}
	poller := NewPoller(queue, &analyzerFake{}, PollerConfig{BatchSize: 3})
	poller.RunOnce(context.Background())
	if queue.maxAsked != 3 {
		t.Fatalf("expected batch size 3, got %d", queue.maxAsked)
	}

	queue = &queueFake{}
	NewPoller(queue, &analyzerFake{}, PollerConfig{}).RunOnce(context.Background())
	if queue.maxAsked != 10 {
		t.Fatalf("expected default batch size 10, got %d", queue.maxAsked)
	}
}

func TestRunOnceLeavesUndecodableMessages(t *testing.T) {
	queue := &queueFake{batches: [][]ports.Delivery{{
		{ID: "bad-json", Body: []byte("{not json")},
		{ID: "missing-key", Body: []byte(fmt.Sprintf(`{"id":%q,"fileSize":1}`, uuid.New()))},
		delivery("good", uuid.New(), "image/png"),
	}}}
	analyzer := &analyzerFake{status: domain.OutcomeCompleted}
	poller := NewPoller(queue, analyzer, PollerConfig{})

	if acked := poller.RunOnce(context.Background()); acked != 1 {
		t.Fatalf("RunOnce() = %d, want 1", acked)
	}
	if len(queue.acked) != 1 || queue.acked[0] != "good" {
		t.Fatalf("unexpected acks: %v", queue.acked)
	}
	if len(analyzer.files) != 1 {
		t.Fatalf("expected only the valid message to be analyzed")
	}
}

func TestRunOnceReceiveError(t *testing.T) {
	queue := &queueFake{receiveErr: errors.New("network down")}
	analyzer := &analyzerFake{}
	poller := NewPoller(queue, analyzer, PollerConfig{})

	if acked := poller.RunOnce(context.Background()); acked != 0 {
		t.Fatalf("RunOnce() = %d, want 0", acked)
	}
	if len(analyzer.files) != 0 {
		t.Fatalf("expected no analysis")
	}
}

func TestRunOnceAckFailureIsNotCounted(t *testing.T) {
	queue := &queueFake{
		batches: [][]ports.Delivery{{delivery("m1", uuid.New(), "text/plain")}},
		ackErr:  errors.New("receipt expired"),
	}
	poller := NewPoller(queue, &analyzerFake{status: domain.OutcomeCompleted}, PollerConfig{})
	if acked := poller.RunOnce(context.Background()); acked != 0 {
		t.Fatalf("RunOnce() = %d, want 0", acked)
	}
}

func TestRunOnceConcurrentSerializesSameFile(t *testing.T) {
	shared := uuid.New()
	queue := &queueFake{batches: [][]ports.Delivery{{
		delivery("m1", shared, "text/plain"),
		delivery("m2", shared, "text/plain"),
		delivery("m3", uuid.New(), "text/plain"),
		delivery("m4", uuid.New(), "text/plain"),
	}}}
	analyzer := &analyzerFake{status: domain.OutcomeCompleted, delay: 20 * time.Millisecond}
	poller := NewPoller(queue, analyzer, PollerConfig{Concurrency: 4})

	if acked := poller.RunOnce(context.Background()); acked != 4 {
		t.Fatalf("RunOnce() = %d, want 4", acked)
	}
	if analyzer.overlap.Load() {
		t.Fatalf("expected deliveries for the same file to run one at a time")
	}
	if len(poller.locks.entries) != 0 {
		t.Fatalf("expected lock entries to be released, got %d", len(poller.locks.entries))
	}
}

func TestRunRepeatsUntilCancelled(t *testing.T) {
	queue := &queueFake{batches: [][]ports.Delivery{
		{delivery("m1", uuid.New(), "text/plain")},
		{delivery("m2", uuid.New(), "image/png")},
	}}
	analyzer := &analyzerFake{status: domain.OutcomeCompleted}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		cycles int
		delays []time.Duration
	)
	after := func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		cycles++
		if cycles == 3 {
			cancel()
		}
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	poller := NewPoller(queue, analyzer, PollerConfig{Interval: time.Second}, WithAfter(after))

	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
	if len(queue.acked) != 2 {
		t.Fatalf("expected both batches acked, got %v", queue.acked)
	}
	for _, d := range delays {
		if d != time.Second {
			t.Fatalf("expected fixed delay of 1s, got %v", d)
		}
	}
}

// cancellingAnalyzer cancels the poller's context during its first call,
// simulating a shutdown signal while a batch is in flight.
type cancellingAnalyzer struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	delay   time.Duration
	ctxErrs []error
}

func (a *cancellingAnalyzer) Analyze(ctx context.Context, file domain.FileReference) domain.Outcome {
	a.mu.Lock()
	first := len(a.ctxErrs) == 0
	a.mu.Unlock()
	if first {
		a.cancel()
	}
	time.Sleep(a.delay)

	a.mu.Lock()
	a.ctxErrs = append(a.ctxErrs, ctx.Err())
	a.mu.Unlock()
	return domain.Outcome{FileID: file.ID, Status: domain.OutcomeCompleted}
}

func TestRunOnceStopsStartingDeliveriesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := &queueFake{batches: [][]ports.Delivery{{
		delivery("m1", uuid.New(), "text/plain"),
		delivery("m2", uuid.New(), "text/plain"),
		delivery("m3", uuid.New(), "text/plain"),
	}}}
	analyzer := &cancellingAnalyzer{cancel: cancel}
	poller := NewPoller(queue, analyzer, PollerConfig{})

	if acked := poller.RunOnce(ctx); acked != 1 {
		t.Fatalf("RunOnce() = %d, want 1", acked)
	}
	if len(analyzer.ctxErrs) != 1 {
		t.Fatalf("expected only the in-flight delivery to be analyzed, got %d", len(analyzer.ctxErrs))
	}
	if analyzer.ctxErrs[0] != nil {
		t.Fatalf("expected in-flight analysis to keep a live context, got %v", analyzer.ctxErrs[0])
	}
	if len(queue.acked) != 1 || queue.acked[0] != "m1" {
		t.Fatalf("expected only m1 to be acked, got %v", queue.acked)
	}
}

func TestRunOnceConcurrentStopsStartingDeliveriesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var batch []ports.Delivery
	for i := 1; i <= 6; i++ {
		batch = append(batch, delivery(fmt.Sprintf("m%d", i), uuid.New(), "text/plain"))
	}
	queue := &queueFake{batches: [][]ports.Delivery{batch}}
	analyzer := &cancellingAnalyzer{cancel: cancel, delay: 20 * time.Millisecond}
	poller := NewPoller(queue, analyzer, PollerConfig{Concurrency: 2})

	acked := poller.RunOnce(ctx)

	if len(analyzer.ctxErrs) == 0 || len(analyzer.ctxErrs) > 2 {
		t.Fatalf("expected at most the two in-flight deliveries to be analyzed, got %d", len(analyzer.ctxErrs))
	}
	for _, err := range analyzer.ctxErrs {
		if err != nil {
			t.Fatalf("expected analyses to run on a live context, got %v", err)
		}
	}
	if acked != len(analyzer.ctxErrs) || len(queue.acked) != acked {
		t.Fatalf("expected one ack per analysis: acked=%d analyzed=%d queue=%v", acked, len(analyzer.ctxErrs), queue.acked)
	}
}

type rejectingQueueFake struct {
	queueFake
	rejected []string
	reasons  []string
}

func (q *rejectingQueueFake) Reject(_ context.Context, delivery ports.Delivery, reason string) error {
	q.rejected = append(q.rejected, delivery.ID)
	q.reasons = append(q.reasons, reason)
	return nil
}

func TestRunOnceRejectsUndecodableWhenSupported(t *testing.T) {
	queue := &rejectingQueueFake{queueFake: queueFake{batches: [][]ports.Delivery{{
		{ID: "bad-json", Body: []byte("{not json")},
		delivery("good", uuid.New(), "text/plain"),
	}}}}
	poller := NewPoller(queue, &analyzerFake{status: domain.OutcomeCompleted}, PollerConfig{})

	if acked := poller.RunOnce(context.Background()); acked != 1 {
		t.Fatalf("RunOnce() = %d, want 1", acked)
	}
	if len(queue.rejected) != 1 || queue.rejected[0] != "bad-json" {
		t.Fatalf("expected bad-json to be rejected, got %v", queue.rejected)
	}
	if queue.reasons[0] == "" {
		t.Fatalf("expected a reject reason")
	}
	if len(queue.acked) != 1 || queue.acked[0] != "good" {
		t.Fatalf("unexpected acks: %v", queue.acked)
	}
}

type orderedStorage struct {
	storageFake
	events *[]string
}

func (s *orderedStorage) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	*s.events = append(*s.events, "fetch:"+key)
	return s.storageFake.Fetch(ctx, bucket, key)
}

type orderedExtractor struct {
	extractorFake
	events *[]string
}

func (e *orderedExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	*e.events = append(*e.events, "extract")
	return e.extractorFake.Extract(ctx, data)
}

type orderedMetadataRepo struct {
	metadataRepoFake
	events *[]string
}

func (r *orderedMetadataRepo) Insert(ctx context.Context, metadata domain.Metadata) error {
	*r.events = append(*r.events, "insert:"+metadata.FileID.String())
	return r.metadataRepoFake.Insert(ctx, metadata)
}

func TestRunOnceOrdersExtractPersistAck(t *testing.T) {
	var events []string
	fileID := uuid.New()
	storage := &orderedStorage{storageFake: storageFake{data: map[string][]byte{"k/m1": []byte("quarterly results")}}, events: &events}
	repo := &orderedMetadataRepo{events: &events}
	extractor := &orderedExtractor{events: &events}
	generator := &generatorFake{responses: map[string]string{
		summaryMarker:      "Quarterly results.",
		tagsMarker:         "finance, report",
		sensitiveMarker:    "false",
		confidentialMarker: "true",
	}}
	classifier := NewContentClassifier(generator, nil, nil)
	analyzer := NewAnalyzeFileUseCase(
		NewImageStrategy(&visionFake{}, classifier, "uploads"),
		NewDocumentStrategy(storage, extractor, classifier, "uploads"),
		NewMetadataAssembler(nil, nil),
		repo,
		AnalyzeOptions{},
	)
	queue := &queueFake{batches: [][]ports.Delivery{{delivery("m1", fileID, "text/plain")}}, events: &events}

	if acked := NewPoller(queue, analyzer, PollerConfig{}).RunOnce(context.Background()); acked != 1 {
		t.Fatalf("RunOnce() = %d, want 1", acked)
	}
	want := []string{"fetch:k/m1", "extract", "insert:" + fileID.String(), "ack:m1"}
	if len(events) != len(want) {
		t.Fatalf("unexpected events: %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q (all: %v)", i, events[i], want[i], events)
		}
	}
	if len(repo.inserted) != 1 || !repo.inserted[0].ConfidentialFlag || len(repo.inserted[0].AITags) != 2 {
		t.Fatalf("unexpected metadata: %+v", repo.inserted)
	}
}
