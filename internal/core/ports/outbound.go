package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

// ObjectStorage fetches raw file bytes.
type ObjectStorage interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// VisionAnalyzer reads images directly from storage.
type VisionAnalyzer interface {
	DetectLabels(ctx context.Context, image domain.ImageRef, maxLabels int) ([]domain.Label, error)
	DetectModerationLabels(ctx context.Context, image domain.ImageRef, minConfidence float32) ([]domain.ModerationLabel, error)
	DetectText(ctx context.Context, image domain.ImageRef) ([]domain.TextDetection, error)
}

// TextGenerator invokes a generative model and returns its raw text output.
type TextGenerator interface {
	Invoke(ctx context.Context, prompt string, params domain.GenerationParams) (string, error)
}

// TextExtractor turns document bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// MetadataRepository persists analysis records.
type MetadataRepository interface {
	Insert(ctx context.Context, metadata domain.Metadata) error
}

// JobRepository persists job state transitions.
type JobRepository interface {
	Create(ctx context.Context, job domain.Job) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, updatedAt time.Time) error
}

// FileRepository reads file descriptors owned by the file-management service.
type FileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.FileReference, error)
	ExistsByNameAndFolder(ctx context.Context, name string, folderID uuid.UUID) (bool, error)
}

// Delivery is one message received from the notification queue.
type Delivery struct {
	ID         string
	Body       []byte
	Receipt    string
	ReceivedAt time.Time
}

// MessageQueue receives and acknowledges upload notifications.
type MessageQueue interface {
	Receive(ctx context.Context, maxMessages int) ([]Delivery, error)
	Ack(ctx context.Context, delivery Delivery) error
}

// MessageRejecter is implemented by queues that can permanently discard a
// delivery that will never decode, instead of redelivering it.
type MessageRejecter interface {
	Reject(ctx context.Context, delivery Delivery, reason string) error
}
