package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"swift2s3/pkg/config"
	"swift2s3/pkg/models"
	"swift2s3/pkg/pool"
	"swift2s3/pkg/progress"
	"swift2s3/pkg/staging"
)

// Coordinator owns one transfer run: it lists the source, fans objects out to
// a bounded worker pool, aggregates outcomes and reconciles counts after the
// batch drains. Per-object failures never abort the batch; only setup
// failures (missing bucket, listing errors) do.
type Coordinator struct {
	source  Source
	dest    Destination
	creds   config.CredentialSource
	opts    Options
	log     zerolog.Logger
	tracker *progress.Tracker
	mu      sync.RWMutex
}

// NewCoordinator wires a coordinator. creds may be nil for unattended runs;
// credential expiry then fails the affected objects instead of prompting.
func NewCoordinator(source Source, destination Destination, creds config.CredentialSource, opts Options, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		source: source,
		dest:   destination,
		creds:  creds,
		opts:   opts.withDefaults(),
		log:    log,
	}
}

// Tracker returns the live progress tracker of the current run, or nil when
// no run has started. The status API reads it concurrently.
func (c *Coordinator) Tracker() *progress.Tracker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tracker
}

// Run executes a full transfer pass and returns the aggregated result.
func (c *Coordinator) Run(ctx context.Context, req models.TransferRequest) (*RunResult, error) {
	runID := uuid.NewString()
	log := c.log.With().Str("run_id", runID).Logger()
	startTime := time.Now()

	log.Info().
		Str("container", req.Container).
		Str("bucket", req.Bucket).
		Int("max_workers", req.MaxWorkers).
		Int("bandwidth_limit_mb", req.BandwidthLimitMb).
		Msg("starting OpenStack to S3 transfer")

	if req.MaxWorkers < 1 {
		return nil, fmt.Errorf("max workers must be at least 1, got %d", req.MaxWorkers)
	}

	if err := c.dest.EnsureBucket(ctx, req.Bucket); err != nil {
		return nil, fmt.Errorf("destination bucket check failed: %w", err)
	}

	sourceObjects, err := c.source.List(ctx, req.Container)
	if err != nil {
		return nil, fmt.Errorf("source listing failed: %w", err)
	}

	result := &RunResult{
		RunID:       runID,
		SourceCount: len(sourceObjects),
		FailedKeys:  make(map[string]string),
		DryRun:      req.DryRun,
	}

	if len(sourceObjects) == 0 {
		log.Warn().Msg("no objects found in source container")
		result.Reconciliation = VerdictMatched
		result.ElapsedTime = time.Since(startTime).String()
		return result, nil
	}

	var totalSize int64
	for _, obj := range sourceObjects {
		totalSize += obj.Size
	}
	log.Info().Int("objects", len(sourceObjects)).Int64("total_bytes", totalSize).
		Msg("retrieved source listing")

	tracker := progress.NewTracker(int64(len(sourceObjects)), totalSize)
	c.mu.Lock()
	c.tracker = tracker
	c.mu.Unlock()

	if req.DryRun {
		return c.dryRun(ctx, req, sourceObjects, result, startTime)
	}

	stagingDir, err := staging.New()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := stagingDir.Remove(); err != nil {
			log.Warn().Err(err).Msg("failed to remove staging directory")
		} else {
			log.Info().Msg("temporary files have been removed")
		}
	}()

	refresher := NewRefresher(c.creds, c.dest, log)
	uploader := NewRetryingUploader(c.dest, refresher, req.Bucket, c.opts, log)
	buffers := pool.NewBufferPool(c.opts.CopyBufferSize)

	worker := &transferWorker{
		source:    c.source,
		dest:      c.dest,
		uploader:  uploader,
		refresher: refresher,
		staging:   stagingDir,
		buffers:   buffers,
		container: req.Container,
		bucket:    req.Bucket,
		log:       log,
	}

	workers := pool.NewWorkerPool(ctx, req.MaxWorkers)

	var failedMu sync.Mutex

	for _, obj := range sourceObjects {
		obj := obj
		workers.Submit(func(taskCtx context.Context) error {
			outcome, err := worker.run(taskCtx, obj)

			switch outcome {
			case OutcomeUploaded:
				tracker.RecordUploaded(obj.Size)
			case OutcomeSkippedUpToDate:
				tracker.RecordSkipped()
			case OutcomeMarkerCreated:
				tracker.RecordMarker()
			case OutcomeFailed:
				tracker.RecordFailed()
				log.Error().Err(err).Str("key", obj.Key).Msg("object transfer failed")

				failedMu.Lock()
				result.FailedKeys[obj.Key] = err.Error()
				failedMu.Unlock()
			}

			return err
		})
	}

	// Barrier: reconciliation strictly happens after the whole batch drains.
	workers.Drain()

	stats := tracker.GetStats()
	result.Uploaded = stats.Uploaded
	result.SkippedUpToDate = stats.SkippedUpToDate
	result.MarkersCreated = stats.MarkersCreated
	result.Failed = stats.Failed

	destObjects, err := c.dest.List(ctx, req.Bucket)
	if err != nil {
		return nil, fmt.Errorf("destination listing failed: %w", err)
	}
	result.DestinationCount = len(destObjects)
	result.Reconciliation = Reconcile(result.SourceCount, result.DestinationCount)

	log.Info().Int("source_count", result.SourceCount).
		Int("destination_count", result.DestinationCount).
		Msg("post-transfer object counts")

	if result.Reconciliation == VerdictMatched {
		log.Info().Msg("object count matches between source container and destination bucket")
	} else {
		log.Warn().Msg("object count mismatch between source container and destination bucket")
	}

	result.ElapsedTime = time.Since(startTime).String()
	log.Info().Str("elapsed", result.ElapsedTime).Msg("transfer process completed")

	return result, nil
}

// dryRun diffs the listing against the destination without moving bytes.
// Comparison is key-presence only: without downloading there is no local
// digest, so changed content cannot be detected here.
func (c *Coordinator) dryRun(
	ctx context.Context,
	req models.TransferRequest,
	sourceObjects []models.SourceObject,
	result *RunResult,
	startTime time.Time,
) (*RunResult, error) {
	destObjects, err := c.dest.List(ctx, req.Bucket)
	if err != nil {
		return nil, fmt.Errorf("destination listing failed: %w", err)
	}

	existing := make(map[string]struct{}, len(destObjects))
	for _, obj := range destObjects {
		existing[obj.Key] = struct{}{}
	}

	for _, obj := range sourceObjects {
		if _, ok := existing[obj.Key]; !ok {
			result.WouldUpload = append(result.WouldUpload, obj.Key)
		}
	}
	sort.Strings(result.WouldUpload)

	result.DestinationCount = len(destObjects)
	result.Reconciliation = Reconcile(result.SourceCount, result.DestinationCount)
	result.ElapsedTime = time.Since(startTime).String()

	c.log.Info().Int("would_upload", len(result.WouldUpload)).
		Msg("dry run finished, no objects were transferred")

	return result, nil
}
