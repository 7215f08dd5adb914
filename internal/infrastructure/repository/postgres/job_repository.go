package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO details.job (id, file_id, file_type, job_status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, job.ID, job.FileID, string(job.FileType), string(job.Status), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE details.job
SET job_status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), updatedAt)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update job status", fmt.Errorf("job %s", id))
	}
	return nil
}
