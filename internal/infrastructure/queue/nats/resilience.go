package nats

import (
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

var (
	retryableNATSErrors = []error{
		nats.ErrNoServers,
		nats.ErrTimeout,
		nats.ErrConnectionClosed,
		nats.ErrDisconnected,
		jetstream.ErrNoHeartbeat,
	}
	// A message acked twice has already been removed from the stream.
	benignNATSErrors = []error{
		jetstream.ErrMsgAlreadyAckd,
	}
)

func classifyNATSError(err error) resilience.ErrorClassification {
	return resilience.ClassifySentinels(err, retryableNATSErrors, benignNATSErrors)
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
