package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

type fileGetterFake struct {
	file      domain.FileReference
	err       error
	got       uuid.UUID
	exists    bool
	existsErr error
	checked   []string
}

func (f *fileGetterFake) GetByID(_ context.Context, id uuid.UUID) (domain.FileReference, error) {
	f.got = id
	return f.file, f.err
}

func (f *fileGetterFake) ExistsByNameAndFolder(_ context.Context, name string, folderID uuid.UUID) (bool, error) {
	f.checked = append(f.checked, name+"@"+folderID.String())
	return f.exists, f.existsErr
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"run", "analyze", "migrate", "enqueue"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (%v)", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("expected persistent --config flag")
	}
}

func TestAnalyzeRequiresExactlyOneSource(t *testing.T) {
	for _, args := range [][]string{
		{"analyze"},
		{"analyze", "--payload", "a.json", "--file-id", uuid.NewString()},
	} {
		root := newRootCommand()
		root.SetArgs(args)
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		err := root.Execute()
		if err == nil || !strings.Contains(err.Error(), "exactly one of") {
			t.Fatalf("args %v: expected source validation error, got %v", args, err)
		}
	}
}

func TestEnqueueRequiresPayload(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"enqueue"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "--payload") {
		t.Fatalf("expected payload error, got %v", err)
	}
}

func TestReadFileReference(t *testing.T) {
	id := uuid.New()
	path := filepath.Join(t.TempDir(), "file.json")
	payload := `{"id":"` + id.String() + `","name":"report.pdf","mimeType":"application/pdf","fileSize":10,"ownerId":"` + uuid.NewString() + `","s3Key":"reports/report.pdf","createdAt":"2024-05-01T10:00:00","updatedAt":"2024-05-01T10:00:00"}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	file, err := readFileReference(path)
	if err != nil {
		t.Fatalf("readFileReference() error = %v", err)
	}
	if file.ID != id || file.MIME() != "application/pdf" || file.StorageKey != "reports/report.pdf" {
		t.Fatalf("unexpected file: %+v", file)
	}

	if _, err := readFileReference(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing payload")
	}
}

func TestLoadFileReference(t *testing.T) {
	id := uuid.New()
	repo := &fileGetterFake{file: domain.FileReference{ID: id, Name: "a.txt"}}

	file, err := loadFileReference(context.Background(), repo, id.String())
	if err != nil {
		t.Fatalf("loadFileReference() error = %v", err)
	}
	if repo.got != id || file.Name != "a.txt" {
		t.Fatalf("unexpected lookup: %v %+v", repo.got, file)
	}

	if _, err := loadFileReference(context.Background(), repo, "not-a-uuid"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	repo.err = domain.WrapError(domain.ErrNotFound, "get file", errors.New("no rows"))
	if _, err := loadFileReference(context.Background(), repo, id.String()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWriteOutcome(t *testing.T) {
	fileID := uuid.New()
	var buf bytes.Buffer
	if err := writeOutcome(&buf, domain.Skipped(fileID)); err != nil {
		t.Fatalf("writeOutcome() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if decoded["status"] != "SKIPPED" || decoded["fileId"] != fileID.String() {
		t.Fatalf("unexpected outcome json: %v", decoded)
	}

	buf.Reset()
	err := writeOutcome(&buf, domain.Failed(fileID, domain.StrategyDocument, domain.StageExtract, errors.New("boom")))
	if err == nil || !strings.Contains(err.Error(), "extract") {
		t.Fatalf("expected failure error, got %v", err)
	}
	if !strings.Contains(buf.String(), `"status": "FAILED"`) {
		t.Fatalf("expected failed outcome to still be printed, got %s", buf.String())
	}
}

func TestCheckRegistered(t *testing.T) {
	folder := uuid.New()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	repo := &fileGetterFake{}
	if !checkRegistered(context.Background(), repo, domain.FileReference{ID: uuid.New(), Name: "loose.txt"}, logger) {
		t.Fatalf("files without a folder should not be checked")
	}
	if len(repo.checked) != 0 {
		t.Fatalf("unexpected lookups: %v", repo.checked)
	}

	file := domain.FileReference{ID: uuid.New(), Name: "q3.pdf", FolderID: &folder}
	if checkRegistered(context.Background(), repo, file, logger) {
		t.Fatalf("expected unregistered file to be reported")
	}
	if len(repo.checked) != 1 || repo.checked[0] != "q3.pdf@"+folder.String() {
		t.Fatalf("unexpected lookups: %v", repo.checked)
	}
	if !strings.Contains(logs.String(), "file_not_registered") {
		t.Fatalf("expected warning, got %s", logs.String())
	}

	repo.exists = true
	if !checkRegistered(context.Background(), repo, file, logger) {
		t.Fatalf("expected registered file to pass")
	}

	repo.existsErr = errors.New("connection refused")
	repo.exists = false
	if !checkRegistered(context.Background(), repo, file, logger) {
		t.Fatalf("lookup failures should not block analysis")
	}
}
