package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

// DefaultMaxObjectBytes caps how much of a single object is read into memory.
const DefaultMaxObjectBytes = 64 << 20

type GetObjectAPI interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

type Storage struct {
	client   GetObjectAPI
	exec     *resilience.Executor
	maxBytes int64
}

func New(client GetObjectAPI, exec *resilience.Executor, maxBytes int64) *Storage {
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	return &Storage{client: client, exec: exec, maxBytes: maxBytes}
}

func (s *Storage) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := resilience.Do(ctx, s.exec, "s3.get_object", func(ctx context.Context) ([]byte, error) {
		output, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer output.Body.Close()
		return s.readAll(output.Body)
	}, resilience.ClassifyAWSError)
	if err != nil {
		return nil, mapError(bucket, key, err)
	}
	return data, nil
}

func (s *Storage) readAll(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read object body", fmt.Errorf("object exceeds %d bytes", s.maxBytes))
	}
	return data, nil
}

func mapError(bucket, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return domain.WrapError(domain.ErrNotFound, fmt.Sprintf("get object s3://%s/%s", bucket, key), err)
	}
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	if resilience.ClassifyAWSError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "get object", err)
	}
	return fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
}
