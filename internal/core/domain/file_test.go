package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFileReferenceDecodesUpstreamTimestamps(t *testing.T) {
	id := uuid.New()
	want := time.Date(2024, 3, 9, 14, 5, 7, 123000000, time.UTC)
	cases := map[string]string{
		"local string": `"2024-03-09T14:05:07.123"`,
		"rfc3339":      `"2024-03-09T14:05:07.123Z"`,
		"space":        `"2024-03-09 14:05:07.123"`,
		"array":        `[2024,3,9,14,5,7,123000000]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			body := `{"id":"` + id.String() + `","s3Key":"k","fileSize":1,"createdAt":` + raw + `,"updatedAt":` + raw + `}`
			var ref FileReference
			if err := json.Unmarshal([]byte(body), &ref); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !ref.CreatedAt.Equal(want) || !ref.UpdatedAt.Equal(want) {
				t.Fatalf("unexpected timestamps: %v %v", ref.CreatedAt, ref.UpdatedAt)
			}
		})
	}
}

func TestFileReferenceDecodesOptionalFields(t *testing.T) {
	folder := uuid.New()
	body := `{"id":"` + uuid.NewString() + `","name":"scan.png","mimeType":"image/png","fileSize":42,` +
		`"folderId":"` + folder.String() + `","s3Key":"a/b","createdAt":null,"unknown":true}`

	var ref FileReference
	if err := json.Unmarshal([]byte(body), &ref); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ref.MIME() != "image/png" || ref.StorageKey != "a/b" || ref.FileSize != 42 {
		t.Fatalf("unexpected reference: %+v", ref)
	}
	if ref.FolderID == nil || *ref.FolderID != folder {
		t.Fatalf("unexpected folder id: %v", ref.FolderID)
	}
	if !ref.CreatedAt.IsZero() {
		t.Fatalf("expected zero created time for null")
	}
}

func TestFileReferenceRejectsBadTimestamp(t *testing.T) {
	body := `{"id":"` + uuid.NewString() + `","s3Key":"k","createdAt":"yesterday"}`
	var ref FileReference
	if err := json.Unmarshal([]byte(body), &ref); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFileReferenceMIMEWhenAbsent(t *testing.T) {
	var ref FileReference
	if ref.MIME() != "" {
		t.Fatalf("expected empty mime type")
	}
}

func TestFileReferenceValidate(t *testing.T) {
	valid := FileReference{ID: uuid.New(), StorageKey: "k", FileSize: 0}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	invalid := FileReference{StorageKey: "  ", FileSize: -1}
	err := invalid.Validate()
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "id" {
		t.Fatalf("expected first violation on id, got %v", err)
	}
}

func TestNewFileReference(t *testing.T) {
	ref, err := NewFileReference(uuid.New(), "a.txt", "text/plain", "k", 10)
	if err != nil {
		t.Fatalf("NewFileReference() error = %v", err)
	}
	if ref.MIME() != "text/plain" {
		t.Fatalf("unexpected mime: %q", ref.MIME())
	}

	ref, err = NewFileReference(uuid.New(), "a", "", "k", 0)
	if err != nil || ref.MimeType != nil {
		t.Fatalf("expected nil mime type, got %v err=%v", ref.MimeType, err)
	}

	if _, err := NewFileReference(uuid.Nil, "a", "", "k", 0); err == nil {
		t.Fatalf("expected error for nil id")
	}
}
