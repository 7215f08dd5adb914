package minio

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Storage reads objects from a MinIO or other S3-compatible server.
type Storage struct {
	client *minio.Client
	exec   *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Storage{client: client, exec: exec}, nil
}

func (s *Storage) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := resilience.Do(ctx, s.exec, "minio.get_object", func(ctx context.Context) ([]byte, error) {
		obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		defer obj.Close()
		return io.ReadAll(obj)
	}, classifyMinioError)
	if err != nil {
		return nil, mapError(bucket, key, err)
	}
	return data, nil
}

// BucketExists backs the readiness probe when MinIO is the configured backend.
func (s *Storage) BucketExists(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		return domain.WrapError(domain.ErrNotFound, "check bucket", fmt.Errorf("bucket %s does not exist", bucket))
	}
	return nil
}

func classifyMinioError(err error) resilience.ErrorClassification {
	response := minio.ToErrorResponse(err)
	if response.StatusCode != 0 {
		if resilience.IsRetryableHTTPStatus(response.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ClassifyHTTPError(err)
}

func mapError(bucket, key string, err error) error {
	response := minio.ToErrorResponse(err)
	if response.Code == "NoSuchKey" || response.Code == "NoSuchBucket" || response.StatusCode == http.StatusNotFound {
		return domain.WrapError(domain.ErrNotFound, fmt.Sprintf("get object %s/%s", bucket, key), err)
	}
	if classifyMinioError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "get object", err)
	}
	return fmt.Errorf("get object %s/%s: %w", bucket, key, err)
}
