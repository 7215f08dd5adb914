package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

type MetadataRepository struct {
	db *sql.DB
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Insert writes the record and its ordered tags atomically.
func (r *MetadataRepository) Insert(ctx context.Context, metadata domain.Metadata) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO filesystem.metadata (id, file_id, summary, sensitive_flag, confidential_flag, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, metadata.ID, metadata.FileID, metadata.Summary, metadata.SensitiveFlag, metadata.ConfidentialFlag, metadata.CreatedAt, metadata.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}

	for position, tag := range metadata.AITags {
		_, err := tx.ExecContext(ctx, `
INSERT INTO filesystem.metadata_ai_tag (metadata_id, position, ai_tag)
VALUES ($1,$2,$3)
`, metadata.ID, position, tag)
		if err != nil {
			return fmt.Errorf("insert metadata tag %d: %w", position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metadata tx: %w", err)
	}
	return nil
}
