package minio

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

func TestMapErrorNoSuchKey(t *testing.T) {
	err := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound, Message: "The specified key does not exist."}
	if got := mapError("uploads", "a.pdf", err); !domain.IsKind(got, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", got)
	}
}

func TestMapErrorServerBusy(t *testing.T) {
	err := minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}
	if got := mapError("uploads", "a.pdf", err); !domain.IsKind(got, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", got)
	}
}

func TestMapErrorAccessDenied(t *testing.T) {
	err := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	got := mapError("uploads", "a.pdf", err)
	if domain.IsKind(got, domain.ErrTemporary) || domain.IsKind(got, domain.ErrNotFound) {
		t.Fatalf("unexpected kind: %v", got)
	}
	if classifyMinioError(err).Retryable {
		t.Fatalf("403 must not be retried")
	}
}

func TestClassifyPlainError(t *testing.T) {
	if classifyMinioError(errors.New("boom")).Retryable {
		t.Fatalf("unknown errors must not be retried")
	}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	if _, err := New(Config{Endpoint: "http://localhost:9000"}, nil); err == nil {
		t.Fatalf("expected error for endpoint with scheme")
	}
}
