package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
)

type generatorCall struct {
	prompt string
	params domain.GenerationParams
}

// generatorFake answers prompts by matching a marker substring.
type generatorFake struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	failOn    string
	calls     []generatorCall
}

func (f *generatorFake) Invoke(_ context.Context, prompt string, params domain.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generatorCall{prompt: prompt, params: params})
	if f.err != nil && (f.failOn == "" || strings.Contains(prompt, f.failOn)) {
		return "", f.err
	}
	for marker, response := range f.responses {
		if strings.Contains(prompt, marker) {
			return response, nil
		}
	}
	return f.fallback, nil
}

const (
	summaryMarker      = "Summarize the document"
	tagsMarker         = "comma separated 5 tags"
	sensitiveMarker    = "sensitive information"
	confidentialMarker = "confidential business information"
	descriptionMarker  = "concise description"
)

type visionFake struct {
	labels        []domain.Label
	moderation    []domain.ModerationLabel
	text          []domain.TextDetection
	labelsErr     error
	moderationErr error
	textErr       error

	maxLabels     int
	minConfidence float32
	images        []domain.ImageRef
}

func (f *visionFake) DetectLabels(_ context.Context, image domain.ImageRef, maxLabels int) ([]domain.Label, error) {
	f.maxLabels = maxLabels
	f.images = append(f.images, image)
	return f.labels, f.labelsErr
}

func (f *visionFake) DetectModerationLabels(_ context.Context, _ domain.ImageRef, minConfidence float32) ([]domain.ModerationLabel, error) {
	f.minConfidence = minConfidence
	return f.moderation, f.moderationErr
}

func (f *visionFake) DetectText(context.Context, domain.ImageRef) ([]domain.TextDetection, error) {
	return f.text, f.textErr
}

type storageFake struct {
	data   map[string][]byte
	err    error
	bucket string
	key    string
}

func (f *storageFake) Fetch(_ context.Context, bucket, key string) ([]byte, error) {
	f.bucket = bucket
	f.key = key
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch", errors.New(key))
	}
	return data, nil
}

type extractorFake struct {
	err error
}

func (f *extractorFake) Extract(_ context.Context, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return string(data), nil
}

type metadataRepoFake struct {
	mu       sync.Mutex
	inserted []domain.Metadata
	err      error
}

func (f *metadataRepoFake) Insert(_ context.Context, metadata domain.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, metadata)
	return nil
}

type jobUpdate struct {
	id     uuid.UUID
	status domain.JobStatus
}

type jobRepoFake struct {
	created   []domain.Job
	updates   []jobUpdate
	createErr error
	updateErr error
}

func (f *jobRepoFake) Create(_ context.Context, job domain.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job)
	return nil
}

func (f *jobRepoFake) UpdateStatus(_ context.Context, id uuid.UUID, status domain.JobStatus, _ time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, jobUpdate{id: id, status: status})
	return nil
}

type strategyFake struct {
	result domain.AnalysisResult
	err    error
	panics bool
	calls  int
}

func (f *strategyFake) Analyze(context.Context, domain.FileReference) (domain.AnalysisResult, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.result, f.err
}

var _ ports.ObjectStorage = (*storageFake)(nil)
var _ ports.VisionAnalyzer = (*visionFake)(nil)
var _ ports.TextGenerator = (*generatorFake)(nil)

func mimePtr(v string) *string { return &v }

func fileRef(mimeType string) domain.FileReference {
	ref := domain.FileReference{
		ID:         uuid.New(),
		Name:       "report",
		StorageKey: "uploads/report",
		FileSize:   128,
	}
	if mimeType != "" {
		ref.MimeType = mimePtr(mimeType)
	}
	return ref
}
