package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileReference describes a stored file pending analysis. It is owned by the
// upstream file-management service and never mutated by the worker.
type FileReference struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	FileURL    string     `json:"fileUrl,omitempty"`
	MimeType   *string    `json:"mimeType"`
	FileSize   int64      `json:"fileSize"`
	OwnerID    uuid.UUID  `json:"ownerId"`
	FolderID   *uuid.UUID `json:"folderId,omitempty"`
	FolderPath string     `json:"folderPath,omitempty"`
	StorageKey string     `json:"s3Key"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// MIME returns the declared content type or an empty string when absent.
func (f FileReference) MIME() string {
	if f.MimeType == nil {
		return ""
	}
	return *f.MimeType
}

// Validate enforces the constraints a decoded notification must satisfy
// before it is handed to the analyzer.
func (f FileReference) Validate() error {
	var errs []error
	if f.ID == uuid.Nil {
		errs = append(errs, &ValidationError{Field: "id", Message: "file id cannot be null"})
	}
	if strings.TrimSpace(f.StorageKey) == "" {
		errs = append(errs, &ValidationError{Field: "s3Key", Message: "storage key cannot be blank"})
	}
	if f.FileSize < 0 {
		errs = append(errs, &ValidationError{Field: "fileSize", Message: "file size cannot be negative"})
	}
	return errors.Join(errs...)
}

// NewFileReference builds a validated reference.
func NewFileReference(id uuid.UUID, name, mimeType, storageKey string, size int64) (FileReference, error) {
	ref := FileReference{
		ID:         id,
		Name:       name,
		StorageKey: storageKey,
		FileSize:   size,
	}
	if mimeType != "" {
		ref.MimeType = &mimeType
	}
	if err := ref.Validate(); err != nil {
		return FileReference{}, err
	}
	return ref, nil
}

// UnmarshalJSON accepts the upstream service's local date-time encodings in
// addition to RFC 3339.
func (f *FileReference) UnmarshalJSON(data []byte) error {
	type alias FileReference
	var aux struct {
		alias
		CreatedAt localDateTime `json:"createdAt"`
		UpdatedAt localDateTime `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = FileReference(aux.alias)
	f.CreatedAt = time.Time(aux.CreatedAt)
	f.UpdatedAt = time.Time(aux.UpdatedAt)
	return nil
}

var localDateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// localDateTime is a zone-less timestamp interpreted as UTC.
type localDateTime time.Time

func (t *localDateTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = localDateTime{}
		return nil
	}

	if data[0] == '[' {
		var parts []int
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("parse date-time array: %w", err)
		}
		if len(parts) < 3 {
			return fmt.Errorf("parse date-time array: want at least 3 fields, got %d", len(parts))
		}
		fields := make([]int, 7)
		copy(fields, parts)
		*t = localDateTime(time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5], fields[6], time.UTC))
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse date-time: %w", err)
	}
	for _, layout := range localDateTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			*t = localDateTime(parsed)
			return nil
		}
	}
	return fmt.Errorf("parse date-time %q: unsupported layout", raw)
}
