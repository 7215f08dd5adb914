package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "COMPLETED"
	OutcomeFailed    OutcomeStatus = "FAILED"
	// OutcomeSkipped marks a file whose content type has no strategy.
	OutcomeSkipped OutcomeStatus = "SKIPPED"
)

// Stage names the pipeline step an attempt failed in.
type Stage string

const (
	StageExtract Stage = "extract"
	StagePersist Stage = "persist"
)

type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyImage    Strategy = "image"
	StrategyDocument Strategy = "document"
)

// Outcome is the terminal status of one analysis attempt.
type Outcome struct {
	FileID     uuid.UUID
	Strategy   Strategy
	Status     OutcomeStatus
	Stage      Stage
	Err        error
	MetadataID uuid.UUID
}

func Completed(fileID uuid.UUID, strategy Strategy, metadataID uuid.UUID) Outcome {
	return Outcome{FileID: fileID, Strategy: strategy, Status: OutcomeCompleted, MetadataID: metadataID}
}

func Failed(fileID uuid.UUID, strategy Strategy, stage Stage, err error) Outcome {
	return Outcome{FileID: fileID, Strategy: strategy, Status: OutcomeFailed, Stage: stage, Err: err}
}

func Skipped(fileID uuid.UUID) Outcome {
	return Outcome{FileID: fileID, Strategy: StrategyNone, Status: OutcomeSkipped}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		FileID     uuid.UUID     `json:"fileId"`
		Strategy   Strategy      `json:"strategy"`
		Status     OutcomeStatus `json:"status"`
		Stage      Stage         `json:"stage,omitempty"`
		Error      string        `json:"error,omitempty"`
		MetadataID *uuid.UUID    `json:"metadataId,omitempty"`
	}{
		FileID:   o.FileID,
		Strategy: o.Strategy,
		Status:   o.Status,
		Stage:    o.Stage,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	if o.MetadataID != uuid.Nil {
		id := o.MetadataID
		out.MetadataID = &id
	}
	return json.Marshal(out)
}
