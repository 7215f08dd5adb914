package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
)

// ContentStrategy extracts and classifies one kind of content.
type ContentStrategy interface {
	Analyze(ctx context.Context, file domain.FileReference) (domain.AnalysisResult, error)
}

// Route picks the strategy for a declared content type. Matching is case
// sensitive.
func Route(mimeType string) domain.Strategy {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.StrategyImage
	// PDF matches by prefix so parameterized types such as
	// "application/pdf; version=1.7" still route; text/plain must be exact.
	case strings.HasPrefix(mimeType, "application/pdf"), mimeType == "text/plain":
		return domain.StrategyDocument
	default:
		return domain.StrategyNone
	}
}

type AnalyzeFileUseCase struct {
	image     ContentStrategy
	document  ContentStrategy
	assembler *MetadataAssembler
	metadata  ports.MetadataRepository
	jobs      ports.JobRepository
	logger    *slog.Logger
	recorder  AnalysisRecorder
	now       func() time.Time
}

type AnalyzeOptions struct {
	// Jobs enables job state tracking when non-nil.
	Jobs     ports.JobRepository
	Logger   *slog.Logger
	Recorder AnalysisRecorder
	Now      func() time.Time
}

func NewAnalyzeFileUseCase(
	image ContentStrategy,
	document ContentStrategy,
	assembler *MetadataAssembler,
	metadata ports.MetadataRepository,
	opts AnalyzeOptions,
) *AnalyzeFileUseCase {
	uc := &AnalyzeFileUseCase{
		image:     image,
		document:  document,
		assembler: assembler,
		metadata:  metadata,
		jobs:      opts.Jobs,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		now:       opts.Now,
	}
	if uc.logger == nil {
		uc.logger = slog.Default()
	}
	if uc.recorder == nil {
		uc.recorder = noopRecorder{}
	}
	if uc.now == nil {
		uc.now = func() time.Time { return time.Now().UTC() }
	}
	return uc
}

// Analyze never panics or returns an error to the caller; every failure is
// reported through the Outcome and the log.
func (uc *AnalyzeFileUseCase) Analyze(ctx context.Context, file domain.FileReference) (outcome domain.Outcome) {
	strategyName := Route(file.MIME())
	if strategyName == domain.StrategyNone {
		uc.logger.Debug("analysis_skipped", "file_id", file.ID, "mime_type", file.MIME())
		return domain.Skipped(file.ID)
	}

	start := time.Now()
	uc.recorder.StartAnalysis()
	job := uc.startJob(ctx, file)
	defer func() {
		if r := recover(); r != nil {
			outcome = uc.fail(file, strategyName, domain.StageExtract, fmt.Errorf("panic: %v", r))
		}
		uc.finishJob(context.WithoutCancel(ctx), job, outcome.Status)
		uc.recorder.FinishAnalysis(strategyName, outcome.Status, time.Since(start))
	}()

	strategy := uc.document
	if strategyName == domain.StrategyImage {
		strategy = uc.image
	}

	result, err := strategy.Analyze(ctx, file)
	if err != nil {
		return uc.fail(file, strategyName, domain.StageExtract, err)
	}

	metadata := uc.assembler.Assemble(file.ID, result)
	if err := uc.metadata.Insert(ctx, metadata); err != nil {
		return uc.fail(file, strategyName, domain.StagePersist, fmt.Errorf("insert metadata: %w", err))
	}

	uc.logger.Info("analysis_completed",
		"file_id", file.ID,
		"mime_type", file.MIME(),
		"metadata_id", metadata.ID,
		"tags", len(metadata.AITags),
		"sensitive", metadata.SensitiveFlag,
		"confidential", metadata.ConfidentialFlag,
	)
	return domain.Completed(file.ID, strategyName, metadata.ID)
}

func (uc *AnalyzeFileUseCase) fail(file domain.FileReference, strategy domain.Strategy, stage domain.Stage, err error) domain.Outcome {
	uc.logger.Error("analysis_failed",
		"file_id", file.ID,
		"mime_type", file.MIME(),
		"stage", stage,
		"error", err.Error(),
	)
	return domain.Failed(file.ID, strategy, stage, err)
}

func (uc *AnalyzeFileUseCase) startJob(ctx context.Context, file domain.FileReference) *domain.Job {
	if uc.jobs == nil {
		return nil
	}
	job := domain.NewJob(file.ID, domain.FileTypeFromMIME(file.MIME()), uc.now())
	if err := uc.jobs.Create(ctx, job); err != nil {
		uc.logger.Warn("job_create_failed", "file_id", file.ID, "error", err)
		return nil
	}
	if !uc.advanceJob(ctx, &job, domain.JobInProgress) {
		return nil
	}
	return &job
}

func (uc *AnalyzeFileUseCase) finishJob(ctx context.Context, job *domain.Job, status domain.OutcomeStatus) {
	if job == nil {
		return
	}
	next := domain.JobCompleted
	if status != domain.OutcomeCompleted {
		next = domain.JobFailed
	}
	uc.advanceJob(ctx, job, next)
}

func (uc *AnalyzeFileUseCase) advanceJob(ctx context.Context, job *domain.Job, next domain.JobStatus) bool {
	if err := job.Advance(next, uc.now()); err != nil {
		uc.logger.Warn("job_transition_rejected", "job_id", job.ID, "error", err)
		return false
	}
	if err := uc.jobs.UpdateStatus(ctx, job.ID, job.Status, job.UpdatedAt); err != nil {
		uc.logger.Warn("job_update_failed", "job_id", job.ID, "status", job.Status, "error", err)
		return false
	}
	return true
}
