package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/filemeta-worker/internal/adapters/http"
	"github.com/kirillkom/filemeta-worker/internal/bootstrap"
	"github.com/kirillkom/filemeta-worker/internal/config"
	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/usecase"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/filemeta-worker/internal/observability/logging"
)

var configFile string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filemeta-worker",
		Short: "Analyze uploaded files and store AI-derived metadata",
		Long: `filemeta-worker consumes upload notifications, runs image or document analysis
and persists a metadata record for each file. Without a subcommand it runs the worker loop.`,
		SilenceUsage: true,
		RunE:         runWorker,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("CONFIG_FILE"), "YAML config file; environment variables override it")
	cmd.AddCommand(
		newRunCmd(),
		newAnalyzeCmd(),
		newMigrateCmd(),
		newEnqueueCmd(),
	)
	return cmd
}

func loadConfig() (config.Config, error) {
	if configFile == "" {
		return config.Load(), nil
	}
	return config.LoadFile(configFile)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the queue and analyze files until interrupted",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.NewJSONLogger(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := cmd.Context()
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(app.Ready, app.Metrics.Handler(), logger, app.Metrics.Middleware)
	server := httpadapter.NewServer(":"+cfg.WorkerMetricsPort, router.Handler(), logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})
	group.Go(func() error {
		return app.Poller.Run(groupCtx)
	})
	return group.Wait()
}

func newAnalyzeCmd() *cobra.Command {
	var (
		payloadPath string
		fileID      string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a single file and print the outcome as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (payloadPath == "") == (fileID == "") {
				return errors.New("exactly one of --payload or --file-id is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.ServiceName, cfg.LogLevel)

			ctx := cmd.Context()
			app, err := bootstrap.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			var file domain.FileReference
			if payloadPath != "" {
				file, err = readFileReference(payloadPath)
				if err == nil {
					checkRegistered(ctx, app.Files, file, logger)
				}
			} else {
				file, err = loadFileReference(ctx, app.Files, fileID)
			}
			if err != nil {
				return err
			}

			outcome := app.Analyzer.Analyze(ctx, file)
			return writeOutcome(cmd.OutOrStdout(), outcome)
		},
	}
	cmd.Flags().StringVar(&payloadPath, "payload", "", "Path to a JSON file reference payload")
	cmd.Flags().StringVar(&fileID, "file-id", "", "ID of a row in filesystem.file")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.ServiceName, cfg.LogLevel)
			return postgres.Migrate(cfg.PostgresDSN, logger)
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var payloadPath string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a file reference payload to the configured queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if payloadPath == "" {
				return errors.New("--payload is required")
			}
			body, err := os.ReadFile(payloadPath)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			file, err := usecase.DecodeFileReference(body)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.ServiceName, cfg.LogLevel)

			app, err := bootstrap.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			if err := app.Publisher.Publish(cmd.Context(), body); err != nil {
				return fmt.Errorf("publish file reference: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued file %s\n", file.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&payloadPath, "payload", "", "Path to a JSON file reference payload")
	return cmd
}

func readFileReference(path string) (domain.FileReference, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return domain.FileReference{}, fmt.Errorf("read payload: %w", err)
	}
	return usecase.DecodeFileReference(body)
}

type fileGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.FileReference, error)
}

type fileIndex interface {
	ExistsByNameAndFolder(ctx context.Context, name string, folderID uuid.UUID) (bool, error)
}

// checkRegistered warns when a hand-written payload names a file its folder
// does not hold. The analysis still runs.
func checkRegistered(ctx context.Context, files fileIndex, file domain.FileReference, logger *slog.Logger) bool {
	if file.FolderID == nil {
		return true
	}
	exists, err := files.ExistsByNameAndFolder(ctx, file.Name, *file.FolderID)
	if err != nil {
		logger.Warn("file_registration_check_failed", "file_id", file.ID, "error", err)
		return true
	}
	if !exists {
		logger.Warn("file_not_registered", "file_id", file.ID, "name", file.Name, "folder_id", *file.FolderID)
	}
	return exists
}

func loadFileReference(ctx context.Context, files fileGetter, rawID string) (domain.FileReference, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return domain.FileReference{}, domain.WrapError(domain.ErrInvalidInput, "parse file id", err)
	}
	file, err := files.GetByID(ctx, id)
	if err != nil {
		return domain.FileReference{}, fmt.Errorf("load file %s: %w", id, err)
	}
	return file, nil
}

func writeOutcome(w io.Writer, outcome domain.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if outcome.Status == domain.OutcomeFailed {
		return fmt.Errorf("analysis failed at %s stage", outcome.Stage)
	}
	return nil
}
