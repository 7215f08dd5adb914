package usecase

import (
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

// MetadataAssembler maps a merged result onto a fresh Metadata record.
type MetadataAssembler struct {
	now   func() time.Time
	newID func() uuid.UUID
}

func NewMetadataAssembler(now func() time.Time, newID func() uuid.UUID) *MetadataAssembler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if newID == nil {
		newID = uuid.New
	}
	return &MetadataAssembler{now: now, newID: newID}
}

func (a *MetadataAssembler) Assemble(fileID uuid.UUID, result domain.AnalysisResult) domain.Metadata {
	now := a.now()
	tags := make([]string, len(result.Tags))
	copy(tags, result.Tags)

	return domain.Metadata{
		ID:               a.newID(),
		FileID:           fileID,
		AITags:           tags,
		Summary:          result.Summary,
		SensitiveFlag:    result.Sensitive,
		ConfidentialFlag: result.Confidential,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
