package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/filemeta-worker/internal/config"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
	"github.com/kirillkom/filemeta-worker/internal/core/usecase"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/extractor/document"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/llm/bedrock"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/llm/ollama"
	natsqueue "github.com/kirillkom/filemeta-worker/internal/infrastructure/queue/nats"
	sqsqueue "github.com/kirillkom/filemeta-worker/internal/infrastructure/queue/sqs"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/storage/localfs"
	miniostorage "github.com/kirillkom/filemeta-worker/internal/infrastructure/storage/minio"
	s3storage "github.com/kirillkom/filemeta-worker/internal/infrastructure/storage/s3"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/vision/rekognition"
	"github.com/kirillkom/filemeta-worker/internal/observability/metrics"
)

// Publisher sends a raw notification payload to the configured queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.WorkerMetrics

	Queue     ports.MessageQueue
	Publisher Publisher
	Files     ports.FileRepository
	Analyzer  ports.FileAnalyzer
	Poller    *usecase.Poller
	Ready     *postgres.Pinger

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	exec := resilience.NewExecutor(resilienceConfig(cfg), resilience.WithLogger(logger))
	llmExec := resilience.NewExecutor(
		resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithLimiter(newLimiter(cfg.LLMRequestsPerSecond, cfg.LLMBurst)),
	)

	clients, err := newAWSClients(ctx, cfg)
	if err != nil {
		closeAll()
		return nil, err
	}

	storage, err := newStorage(cfg, clients, exec)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	generator, err := newGenerator(cfg, clients, llmExec)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init text generator: %w", err)
	}

	workerMetrics := metrics.NewWorkerMetrics(cfg.ServiceName)
	analyzer := newAnalyzer(cfg, db, storage, rekognition.New(clients.rekognition, exec), generator, workerMetrics, logger)

	queue, publisher, closeQueue, err := newQueue(ctx, cfg, clients, exec, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	if closeQueue != nil {
		closers = append(closers, closeQueue)
	}

	poller := usecase.NewPoller(queue, analyzer, pollerConfig(cfg),
		usecase.WithPollLogger(logger),
		usecase.WithPollRecorder(workerMetrics),
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: workerMetrics,

		Queue:     queue,
		Publisher: publisher,
		Files:     postgres.NewFileRepository(db),
		Analyzer:  analyzer,
		Poller:    poller,
		Ready:     postgres.NewPinger(db, 3*time.Second),

		closeFn: closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newAnalyzer(
	cfg config.Config,
	db *sql.DB,
	storage ports.ObjectStorage,
	vision ports.VisionAnalyzer,
	generator ports.TextGenerator,
	workerMetrics *metrics.WorkerMetrics,
	logger *slog.Logger,
) *usecase.AnalyzeFileUseCase {
	classifier := usecase.NewContentClassifier(generator, logger, workerMetrics)
	image := usecase.NewImageStrategy(vision, classifier, cfg.S3Bucket)
	doc := usecase.NewDocumentStrategy(storage, document.NewExtractor(), classifier, cfg.S3Bucket)

	opts := usecase.AnalyzeOptions{
		Logger:   logger,
		Recorder: workerMetrics,
	}
	if cfg.JobTrackingEnabled {
		opts.Jobs = postgres.NewJobRepository(db)
	}
	return usecase.NewAnalyzeFileUseCase(
		image,
		doc,
		usecase.NewMetadataAssembler(nil, nil),
		postgres.NewMetadataRepository(db),
		opts,
	)
}

func newStorage(cfg config.Config, clients awsClients, exec *resilience.Executor) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return s3storage.New(clients.s3, exec, s3storage.DefaultMaxObjectBytes), nil
	case config.StorageMinio:
		return miniostorage.New(miniostorage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.AWSRegion,
		}, exec)
	case config.StorageLocalFS:
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

func newGenerator(cfg config.Config, clients awsClients, exec *resilience.Executor) (ports.TextGenerator, error) {
	switch cfg.LLMProvider {
	case config.LLMBedrock:
		return bedrock.New(clients.bedrock, cfg.BedrockModelID, exec), nil
	case config.LLMOllama:
		return ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, ollama.WithExecutor(exec)), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

func newQueue(
	ctx context.Context,
	cfg config.Config,
	clients awsClients,
	exec *resilience.Executor,
	logger *slog.Logger,
) (ports.MessageQueue, Publisher, func(), error) {
	switch cfg.QueueBackend {
	case config.QueueSQS:
		q := sqsqueue.New(clients.sqs, cfg.SQSQueueURL, sqsqueue.Options{
			WaitTime:          time.Duration(cfg.SQSWaitSeconds) * time.Second,
			VisibilityTimeout: time.Duration(cfg.SQSVisibilityTimeoutSeconds) * time.Second,
			Executor:          exec,
		})
		return q, q, nil, nil
	case config.QueueNATS:
		q, err := natsqueue.New(ctx, cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			Stream:             cfg.NATSStream,
			Consumer:           cfg.NATSConsumer,
			AckWait:            cfg.AnalyzeTimeout * 2,
			MaxDeliver:         cfg.NATSMaxDeliver,
			ResilienceExecutor: exec,
			Logger:             logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return q, q, q.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported queue backend %q", cfg.QueueBackend)
	}
}
