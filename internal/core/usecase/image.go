package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
)

const (
	maxVisionLabels         = 10
	minLabelConfidence      = float32(95.0)
	minModerationConfidence = float32(90.0)
)

// ImageStrategy analyzes images in place through the vision backend.
type ImageStrategy struct {
	vision     ports.VisionAnalyzer
	classifier *ContentClassifier
	bucket     string
}

func NewImageStrategy(vision ports.VisionAnalyzer, classifier *ContentClassifier, bucket string) *ImageStrategy {
	return &ImageStrategy{
		vision:     vision,
		classifier: classifier,
		bucket:     bucket,
	}
}

func (s *ImageStrategy) Analyze(ctx context.Context, file domain.FileReference) (domain.AnalysisResult, error) {
	image := domain.ImageRef{Bucket: s.bucket, Key: file.StorageKey}

	labels, err := s.detectLabels(ctx, image)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	sensitive, err := s.detectModeration(ctx, image)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	text, err := s.detectText(ctx, image)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	var (
		confidential bool
		summary      string
	)
	if text != "" {
		confidential = LooksConfidential(text)
		summary = s.classifier.Describe(ctx, text, DescriptionWordLimit)
	} else {
		summary = s.classifier.Describe(ctx, formatLabelList(labels), DescriptionWordLimit)
	}

	return domain.AnalysisResult{
		Summary:      &summary,
		Tags:         labels,
		Sensitive:    sensitive,
		Confidential: confidential,
	}, nil
}

func (s *ImageStrategy) detectLabels(ctx context.Context, image domain.ImageRef) ([]string, error) {
	labels, err := s.vision.DetectLabels(ctx, image, maxVisionLabels)
	if err != nil {
		return nil, fmt.Errorf("detect labels: %w", err)
	}
	return confidentLabelNames(labels, minLabelConfidence), nil
}

func (s *ImageStrategy) detectModeration(ctx context.Context, image domain.ImageRef) (bool, error) {
	labels, err := s.vision.DetectModerationLabels(ctx, image, minModerationConfidence)
	if err != nil {
		return false, fmt.Errorf("detect moderation labels: %w", err)
	}
	return anyModerationAtLeast(labels, minModerationConfidence), nil
}

func (s *ImageStrategy) detectText(ctx context.Context, image domain.ImageRef) (string, error) {
	detections, err := s.vision.DetectText(ctx, image)
	if err != nil {
		return "", fmt.Errorf("detect text: %w", err)
	}
	return joinLines(detections), nil
}

func confidentLabelNames(labels []domain.Label, minConfidence float32) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		if label.Confidence >= minConfidence {
			names = append(names, label.Name)
		}
	}
	return names
}

// anyModerationAtLeast re-checks the per-label confidence even though the
// request already carried the same minimum.
func anyModerationAtLeast(labels []domain.ModerationLabel, minConfidence float32) bool {
	for _, label := range labels {
		if label.Confidence >= minConfidence {
			return true
		}
	}
	return false
}

func joinLines(detections []domain.TextDetection) string {
	var b strings.Builder
	for _, detection := range detections {
		if detection.Type != domain.TextDetectionLine {
			continue
		}
		b.WriteString(detection.Text)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

// formatLabelList renders labels as "[A, B]".
func formatLabelList(labels []string) string {
	return "[" + strings.Join(labels, ", ") + "]"
}
