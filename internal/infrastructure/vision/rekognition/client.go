package rekognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

// API is the subset of the Rekognition client used by the analyzer.
type API interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	DetectModerationLabels(ctx context.Context, params *rekognition.DetectModerationLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error)
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Analyzer reads images directly from the object store, so nothing is
// downloaded by the worker.
type Analyzer struct {
	api  API
	exec *resilience.Executor
}

func New(api API, exec *resilience.Executor) *Analyzer {
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Analyzer{api: api, exec: exec}
}

func (a *Analyzer) DetectLabels(ctx context.Context, image domain.ImageRef, maxLabels int) ([]domain.Label, error) {
	output, err := resilience.Do(ctx, a.exec, "rekognition.detect_labels", func(ctx context.Context) (*rekognition.DetectLabelsOutput, error) {
		return a.api.DetectLabels(ctx, &rekognition.DetectLabelsInput{
			Image:     s3Image(image),
			MaxLabels: aws.Int32(int32(maxLabels)),
		})
	}, resilience.ClassifyAWSError)
	if err != nil {
		return nil, wrapError("detect labels", err)
	}

	labels := make([]domain.Label, 0, len(output.Labels))
	for _, label := range output.Labels {
		labels = append(labels, domain.Label{
			Name:       aws.ToString(label.Name),
			Confidence: aws.ToFloat32(label.Confidence),
		})
	}
	return labels, nil
}

func (a *Analyzer) DetectModerationLabels(ctx context.Context, image domain.ImageRef, minConfidence float32) ([]domain.ModerationLabel, error) {
	output, err := resilience.Do(ctx, a.exec, "rekognition.detect_moderation_labels", func(ctx context.Context) (*rekognition.DetectModerationLabelsOutput, error) {
		return a.api.DetectModerationLabels(ctx, &rekognition.DetectModerationLabelsInput{
			Image:         s3Image(image),
			MinConfidence: aws.Float32(minConfidence),
		})
	}, resilience.ClassifyAWSError)
	if err != nil {
		return nil, wrapError("detect moderation labels", err)
	}

	labels := make([]domain.ModerationLabel, 0, len(output.ModerationLabels))
	for _, label := range output.ModerationLabels {
		labels = append(labels, domain.ModerationLabel{
			Name:       aws.ToString(label.Name),
			ParentName: aws.ToString(label.ParentName),
			Confidence: aws.ToFloat32(label.Confidence),
		})
	}
	return labels, nil
}

func (a *Analyzer) DetectText(ctx context.Context, image domain.ImageRef) ([]domain.TextDetection, error) {
	output, err := resilience.Do(ctx, a.exec, "rekognition.detect_text", func(ctx context.Context) (*rekognition.DetectTextOutput, error) {
		return a.api.DetectText(ctx, &rekognition.DetectTextInput{Image: s3Image(image)})
	}, resilience.ClassifyAWSError)
	if err != nil {
		return nil, wrapError("detect text", err)
	}

	detections := make([]domain.TextDetection, 0, len(output.TextDetections))
	for _, detection := range output.TextDetections {
		detections = append(detections, domain.TextDetection{
			Text:       aws.ToString(detection.DetectedText),
			Type:       textType(detection.Type),
			Confidence: aws.ToFloat32(detection.Confidence),
		})
	}
	return detections, nil
}

func s3Image(image domain.ImageRef) *types.Image {
	return &types.Image{
		S3Object: &types.S3Object{
			Bucket: aws.String(image.Bucket),
			Name:   aws.String(image.Key),
		},
	}
}

func textType(t types.TextTypes) domain.TextDetectionType {
	if t == types.TextTypesLine {
		return domain.TextDetectionLine
	}
	return domain.TextDetectionWord
}

func wrapError(operation string, err error) error {
	var notFound *types.InvalidS3ObjectException
	if errors.As(err, &notFound) {
		return domain.WrapError(domain.ErrNotFound, operation, err)
	}
	var badFormat *types.InvalidImageFormatException
	if errors.As(err, &badFormat) {
		return domain.WrapError(domain.ErrUnsupportedFormat, operation, err)
	}
	if resilience.ClassifyAWSError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return fmt.Errorf("rekognition %s: %w", operation, err)
}
