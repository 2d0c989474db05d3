package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"swift2s3/api"
	"swift2s3/pkg/config"
	"swift2s3/pkg/core"
	"swift2s3/pkg/dest"
	"swift2s3/pkg/logging"
	"swift2s3/pkg/models"
	"swift2s3/pkg/scheduler"
	"swift2s3/pkg/source"
)

var flags struct {
	openStackContainer string
	s3Bucket           string
	maxWorkers         int
	regionName         string
	bandwidthLimitMb   int
	dryRun             bool
	schedule           string
	statusAddr         string
	logLevel           string
	maxAttempts        int
}

var rootCmd = &cobra.Command{
	Use:           "swift2s3",
	Short:         "Transfer objects from an OpenStack Swift container to an AWS S3 bucket",
	Long:          "swift2s3 copies every object missing or changed in the destination bucket, verified by content checksum, under bounded concurrency and bandwidth.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&flags.openStackContainer, "openStackContainer", "", "Name of the OpenStack container")
	rootCmd.Flags().StringVar(&flags.s3Bucket, "s3Bucket", "", "Name of the S3 bucket")
	rootCmd.Flags().IntVar(&flags.maxWorkers, "maxWorkers", 0, "Number of workers for concurrent transfers (minimum: 1)")
	rootCmd.Flags().StringVar(&flags.regionName, "regionName", "", "AWS region name")
	rootCmd.Flags().IntVar(&flags.bandwidthLimitMb, "bandwidthLimitMb", 0, "Maximum aggregate upload bandwidth in MB/s (minimum: 1)")
	rootCmd.Flags().BoolVar(&flags.dryRun, "dryRun", false, "List and diff without transferring anything")
	rootCmd.Flags().StringVar(&flags.schedule, "schedule", "", "Cron expression for recurring transfer runs")
	rootCmd.Flags().StringVar(&flags.statusAddr, "statusAddr", "", "Listen address for the HTTP status API (e.g. :8080)")
	rootCmd.Flags().StringVar(&flags.logLevel, "logLevel", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.Flags().IntVar(&flags.maxAttempts, "maxAttempts", 3, "Upload retry attempts per object")

	for _, name := range []string{"openStackContainer", "s3Bucket", "maxWorkers", "regionName", "bandwidthLimitMb"} {
		cobra.CheckErr(rootCmd.MarkFlagRequired(name))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if flags.maxWorkers < 1 {
		return fmt.Errorf("maxWorkers must be at least 1, got %d", flags.maxWorkers)
	}
	if flags.bandwidthLimitMb < 1 {
		return fmt.Errorf("bandwidthLimitMb must be at least 1, got %d", flags.bandwidthLimitMb)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Container: flags.openStackContainer,
		Bucket:    flags.s3Bucket,
		Level:     flags.logLevel,
		NoFile:    flags.dryRun,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req := models.TransferRequest{
		Container:        flags.openStackContainer,
		Bucket:           flags.s3Bucket,
		Region:           flags.regionName,
		MaxWorkers:       flags.maxWorkers,
		BandwidthLimitMb: flags.bandwidthLimitMb,
		DryRun:           flags.dryRun,
	}

	coordinator, err := buildCoordinator(ctx, req, logger)
	if err != nil {
		return err
	}

	if flags.schedule != "" {
		return runScheduled(ctx, coordinator, req, logger)
	}

	return runOnce(ctx, coordinator, req, logger)
}

func buildCoordinator(ctx context.Context, req models.TransferRequest, logger zerolog.Logger) (*core.Coordinator, error) {
	swiftCreds, err := config.LoadSwiftCredentials(req.Region)
	if err != nil {
		return nil, err
	}

	swiftStore, err := source.NewSwiftStore(ctx, swiftCreds)
	if err != nil {
		return nil, err
	}

	awsCreds := config.LoadAWSCredentials(req.Region)
	s3Store, err := dest.NewS3Store(ctx, awsCreds, req.BandwidthBytesPerSec())
	if err != nil {
		return nil, err
	}

	credSource := &config.PromptCredentialSource{Region: req.Region}

	opts := core.Options{MaxAttempts: flags.maxAttempts}

	return core.NewCoordinator(swiftStore, s3Store, credSource, opts, logger), nil
}

func runOnce(ctx context.Context, coordinator *core.Coordinator, req models.TransferRequest, logger zerolog.Logger) error {
	server := startStatusAPI(coordinator, nil, logger)
	if server != nil {
		server.SetRunning(req)
	}

	result, err := coordinator.Run(ctx, req)
	if server != nil {
		server.SetResult(result, err)
	}
	if err != nil {
		return err
	}

	reportResult(result, logger)
	return nil
}

func runScheduled(ctx context.Context, coordinator *core.Coordinator, req models.TransferRequest, logger zerolog.Logger) error {
	executor := &scheduledExecutor{coordinator: coordinator, logger: logger}
	sched := scheduler.NewScheduler(executor, logger)
	executor.server = startStatusAPI(coordinator, sched, logger)

	if err := sched.Set(ctx, flags.schedule, req); err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}

	logger.Info().Str("cron", flags.schedule).Msg("scheduler started, waiting for runs")

	<-ctx.Done()
	logger.Info().Msg("shutting down scheduler")
	return sched.Stop()
}

// scheduledExecutor adapts the coordinator to the scheduler's Runner
// interface and mirrors run state into the status API.
type scheduledExecutor struct {
	coordinator *core.Coordinator
	server      *api.Server
	logger      zerolog.Logger
}

func (e *scheduledExecutor) Execute(ctx context.Context, req models.TransferRequest) error {
	if e.server != nil {
		e.server.SetRunning(req)
	}

	result, err := e.coordinator.Run(ctx, req)
	if e.server != nil {
		e.server.SetResult(result, err)
	}
	if err != nil {
		return err
	}

	reportResult(result, e.logger)
	return nil
}

func startStatusAPI(coordinator *core.Coordinator, sched *scheduler.Scheduler, logger zerolog.Logger) *api.Server {
	if flags.statusAddr == "" {
		return nil
	}

	server := api.NewServer(coordinator, sched)
	router := api.SetupRouter(server)

	go func() {
		if err := router.Run(flags.statusAddr); err != nil {
			logger.Error().Err(err).Msg("status API server stopped")
		}
	}()

	logger.Info().Str("addr", flags.statusAddr).Msg("status API listening")
	return server
}

func reportResult(result *core.RunResult, logger zerolog.Logger) {
	if result.DryRun {
		logger.Info().
			Int("source_count", result.SourceCount).
			Int("destination_count", result.DestinationCount).
			Strs("would_upload", result.WouldUpload).
			Msg("dry run report")
		return
	}

	logger.Info().
		Int64("uploaded", result.Uploaded).
		Int64("skipped_up_to_date", result.SkippedUpToDate).
		Int64("markers_created", result.MarkersCreated).
		Int64("failed", result.Failed).
		Str("reconciliation", string(result.Reconciliation)).
		Str("elapsed", result.ElapsedTime).
		Msg("transfer summary")
}
