package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

// maxBatch is the SQS limit for a single ReceiveMessage call.
const maxBatch = 10

type API interface {
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

type Options struct {
	// WaitTime enables long polling when positive.
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	Executor          *resilience.Executor
	Now               func() time.Time
}

type Queue struct {
	api      API
	queueURL string
	opts     Options
}

func New(api API, queueURL string, opts Options) *Queue {
	if opts.Executor == nil {
		opts.Executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{api: api, queueURL: queueURL, opts: opts}
}

func (q *Queue) Receive(ctx context.Context, maxMessages int) ([]ports.Delivery, error) {
	input := &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(min(max(maxMessages, 1), maxBatch)),
		WaitTimeSeconds:     int32(q.opts.WaitTime / time.Second),
	}
	if q.opts.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(q.opts.VisibilityTimeout / time.Second)
	}

	output, err := resilience.Do(ctx, q.opts.Executor, "sqs.receive_message", func(ctx context.Context) (*awssqs.ReceiveMessageOutput, error) {
		return q.api.ReceiveMessage(ctx, input)
	}, resilience.ClassifyAWSError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("sqs receive message", err)
	}

	receivedAt := q.opts.Now()
	deliveries := make([]ports.Delivery, 0, len(output.Messages))
	for _, msg := range output.Messages {
		deliveries = append(deliveries, ports.Delivery{
			ID:         aws.ToString(msg.MessageId),
			Body:       []byte(aws.ToString(msg.Body)),
			Receipt:    aws.ToString(msg.ReceiptHandle),
			ReceivedAt: receivedAt,
		})
	}
	return deliveries, nil
}

// Ack deletes the message so it is not redelivered.
func (q *Queue) Ack(ctx context.Context, delivery ports.Delivery) error {
	if delivery.Receipt == "" {
		return domain.WrapError(domain.ErrInvalidInput, "sqs delete message", fmt.Errorf("message %s has no receipt handle", delivery.ID))
	}
	err := q.opts.Executor.Execute(ctx, "sqs.delete_message", func(ctx context.Context) error {
		_, err := q.api.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: aws.String(delivery.Receipt),
		})
		return err
	}, resilience.ClassifyAWSError)
	if err != nil {
		return wrapTemporaryIfNeeded("sqs delete message", err)
	}
	return nil
}

// Publish enqueues a raw notification body. Used by local tooling.
func (q *Queue) Publish(ctx context.Context, body []byte) error {
	err := q.opts.Executor.Execute(ctx, "sqs.send_message", func(ctx context.Context) error {
		_, err := q.api.SendMessage(ctx, &awssqs.SendMessageInput{
			QueueUrl:    aws.String(q.queueURL),
			MessageBody: aws.String(string(body)),
		})
		return err
	}, resilience.ClassifyAWSError)
	if err != nil {
		return wrapTemporaryIfNeeded("sqs send message", err)
	}
	return nil
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.ClassifyAWSError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
