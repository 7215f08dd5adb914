package usecase

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
)

// DocumentStrategy downloads a document, extracts its text and hands it to the
// classifier.
type DocumentStrategy struct {
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	classifier *ContentClassifier
	bucket     string
}

func NewDocumentStrategy(
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	classifier *ContentClassifier,
	bucket string,
) *DocumentStrategy {
	return &DocumentStrategy{
		storage:    storage,
		extractor:  extractor,
		classifier: classifier,
		bucket:     bucket,
	}
}

func (s *DocumentStrategy) Analyze(ctx context.Context, file domain.FileReference) (domain.AnalysisResult, error) {
	data, err := s.download(ctx, file.StorageKey)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	text, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("extract text: %w", err)
	}

	return s.classifier.AnalyzeContent(ctx, text, DocumentWordLimit), nil
}

func (s *DocumentStrategy) download(ctx context.Context, storageKey string) ([]byte, error) {
	key, err := url.QueryUnescape(storageKey)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode storage key", err)
	}
	data, err := s.storage.Fetch(ctx, s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return data, nil
}
