package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

func TestDocumentStrategyDecodesKeyAndClassifies(t *testing.T) {
	storage := &storageFake{data: map[string][]byte{"folder/my report.txt": []byte("SSN: 123-45-6789")}}
	gen := &generatorFake{responses: map[string]string{
		summaryMarker:      "Personal record",
		tagsMarker:         "identity, record",
		sensitiveMarker:    "true",
		confidentialMarker: "false",
	}}
	strategy := NewDocumentStrategy(storage, &extractorFake{}, NewContentClassifier(gen, nil, nil), "uploads")

	file := fileRef("text/plain")
	file.StorageKey = "folder/my+report%2Etxt"
	result, err := strategy.Analyze(context.Background(), file)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if storage.bucket != "uploads" || storage.key != "folder/my report.txt" {
		t.Fatalf("unexpected fetch: bucket=%q key=%q", storage.bucket, storage.key)
	}
	if !result.Sensitive || result.Confidential {
		t.Fatalf("unexpected flags: %+v", result)
	}
	if result.Summary == nil || *result.Summary != "Personal record" {
		t.Fatalf("unexpected summary: %v", result.Summary)
	}
}

func TestDocumentStrategyRejectsMalformedKey(t *testing.T) {
	strategy := NewDocumentStrategy(&storageFake{}, &extractorFake{}, NewContentClassifier(&generatorFake{}, nil, nil), "b")
	file := fileRef("application/pdf")
	file.StorageKey = "bad%zzkey"

	_, err := strategy.Analyze(context.Background(), file)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestDocumentStrategyPropagatesDownloadAndExtractErrors(t *testing.T) {
	classifier := NewContentClassifier(&generatorFake{}, nil, nil)

	download := NewDocumentStrategy(&storageFake{err: errors.New("access denied")}, &extractorFake{}, classifier, "b")
	if _, err := download.Analyze(context.Background(), fileRef("application/pdf")); err == nil {
		t.Fatalf("expected download error")
	}

	storage := &storageFake{data: map[string][]byte{"uploads/report": []byte("%PDF-broken")}}
	extract := NewDocumentStrategy(storage, &extractorFake{err: domain.ErrUnsupportedFormat}, classifier, "b")
	_, err := extract.Analyze(context.Background(), fileRef("application/pdf"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestDocumentStrategyClassifierFailureIsNotAnError(t *testing.T) {
	storage := &storageFake{data: map[string][]byte{"uploads/report": []byte("text")}}
	gen := &generatorFake{err: errors.New("throttled")}
	strategy := NewDocumentStrategy(storage, &extractorFake{}, NewContentClassifier(gen, nil, nil), "b")

	result, err := strategy.Analyze(context.Background(), fileRef("text/plain"))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Summary != nil || len(result.Tags) != 0 || result.Sensitive || result.Confidential {
		t.Fatalf("expected fallback result, got %+v", result)
	}
}
