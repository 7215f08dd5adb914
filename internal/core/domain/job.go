package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobInProgress
	case JobInProgress:
		return next.Terminal()
	default:
		return false
	}
}

type FileType string

const (
	FileTypePDF   FileType = "PDF"
	FileTypeTXT   FileType = "TXT"
	FileTypeImage FileType = "IMAGE"
	FileTypeOther FileType = "OTHER"
)

// FileTypeFromMIME classifies a content type for job bookkeeping. Unlike
// routing it is case-insensitive for the exact types.
func FileTypeFromMIME(mimeType string) FileType {
	switch {
	case strings.EqualFold(mimeType, "application/pdf"):
		return FileTypePDF
	case strings.EqualFold(mimeType, "text/plain"):
		return FileTypeTXT
	case strings.HasPrefix(mimeType, "image/"):
		return FileTypeImage
	default:
		return FileTypeOther
	}
}

// Job is one delivery-to-completion unit of work.
type Job struct {
	ID        uuid.UUID `json:"id"`
	FileID    uuid.UUID `json:"fileId"`
	FileType  FileType  `json:"fileType"`
	Status    JobStatus `json:"jobStatus"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewJob(fileID uuid.UUID, fileType FileType, now time.Time) Job {
	return Job{
		ID:        uuid.New(),
		FileID:    fileID,
		FileType:  fileType,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the job to next, rejecting illegal transitions.
func (j *Job) Advance(next JobStatus, now time.Time) error {
	if !j.Status.CanTransition(next) {
		return WrapError(ErrInvalidInput, "advance job", fmt.Errorf("%s -> %s", j.Status, next))
	}
	j.Status = next
	j.UpdatedAt = now
	return nil
}
