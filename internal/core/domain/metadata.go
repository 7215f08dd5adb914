package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisResult is the merged signal set produced by one strategy run.
type AnalysisResult struct {
	Summary      *string
	Tags         []string
	Sensitive    bool
	Confidential bool
}

// Metadata is the persisted analysis record for one file. Records are
// insert-only: re-analysis produces a new row.
type Metadata struct {
	ID               uuid.UUID `json:"id"`
	FileID           uuid.UUID `json:"fileId"`
	AITags           []string  `json:"aiTag"`
	Summary          *string   `json:"summary"`
	SensitiveFlag    bool      `json:"sensitiveFlag"`
	ConfidentialFlag bool      `json:"confidentialFlag"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
