package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

// FileRepository reads the upstream file table. The worker never writes it.
type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.FileReference, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, file_url, mime_type, file_size, owner_id, folder_id, folder_path, s3_key, created_at, updated_at
FROM filesystem.file
WHERE id = $1
`, id)

	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FileReference{}, domain.WrapError(domain.ErrNotFound, "get file", fmt.Errorf("file %s", id))
		}
		return domain.FileReference{}, fmt.Errorf("get file by id: %w", err)
	}
	return file, nil
}

func (r *FileRepository) ExistsByNameAndFolder(ctx context.Context, name string, folderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM filesystem.file WHERE name = $1 AND folder_id = $2)
`, name, folderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check file exists: %w", err)
	}
	return exists, nil
}

type fileScanner interface {
	Scan(dest ...any) error
}

func scanFile(row fileScanner) (domain.FileReference, error) {
	var (
		file     domain.FileReference
		mimeType sql.NullString
		folderID uuid.NullUUID
	)
	err := row.Scan(
		&file.ID,
		&file.Name,
		&file.FileURL,
		&mimeType,
		&file.FileSize,
		&file.OwnerID,
		&folderID,
		&file.FolderPath,
		&file.StorageKey,
		&file.CreatedAt,
		&file.UpdatedAt,
	)
	if err != nil {
		return domain.FileReference{}, err
	}
	if mimeType.Valid {
		file.MimeType = &mimeType.String
	}
	if folderID.Valid {
		file.FolderID = &folderID.UUID
	}
	return file, nil
}
