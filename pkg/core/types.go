package core

import (
	"context"
	"io"
	"time"

	"swift2s3/pkg/config"
	"swift2s3/pkg/models"
)

// Source is the read side of a transfer. Implementations must be safe for
// concurrent use: one instance is shared by every worker in the pool.
type Source interface {
	List(ctx context.Context, container string) ([]models.SourceObject, error)
	Download(ctx context.Context, container, key string) (io.ReadCloser, error)
}

// Destination is the write side of a transfer. HeadDigest must signal a
// missing key with a dest.NotFoundError so callers can tell "needs upload"
// apart from transient failures, and Upload/PutMarker must surface
// dest.ErrCredentialsExpired on token expiry.
type Destination interface {
	EnsureBucket(ctx context.Context, bucket string) error
	List(ctx context.Context, bucket string) ([]models.RemoteObject, error)
	HeadDigest(ctx context.Context, bucket, key string) (string, error)
	Upload(ctx context.Context, bucket, key, localPath string) error
	PutMarker(ctx context.Context, bucket, key string) error
	Rebuild(ctx context.Context, creds config.AWSCredentials) error
}

// Outcome is the terminal state of one object's transfer.
type Outcome int

const (
	OutcomeUploaded Outcome = iota
	OutcomeSkippedUpToDate
	OutcomeMarkerCreated
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeSkippedUpToDate:
		return "skipped-up-to-date"
	case OutcomeMarkerCreated:
		return "marker-created"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Verdict is the reconciliation signal. It is a sanity check on counts, not a
// correctness proof: it cannot see same-count content divergence.
type Verdict string

const (
	VerdictMatched    Verdict = "matched"
	VerdictMismatched Verdict = "mismatched"
)

// RunResult aggregates a finished transfer run.
type RunResult struct {
	RunID            string            `json:"run_id"`
	Uploaded         int64             `json:"uploaded"`
	SkippedUpToDate  int64             `json:"skipped_up_to_date"`
	MarkersCreated   int64             `json:"markers_created"`
	Failed           int64             `json:"failed"`
	FailedKeys       map[string]string `json:"failed_keys,omitempty"`
	SourceCount      int               `json:"source_count"`
	DestinationCount int               `json:"destination_count"`
	Reconciliation   Verdict           `json:"reconciliation"`
	ElapsedTime      string            `json:"elapsed_time"`
	DryRun           bool              `json:"dry_run"`
	WouldUpload      []string          `json:"would_upload,omitempty"`
}

// Options tunes coordinator behavior. Zero values fall back to defaults.
type Options struct {
	MaxAttempts    int           // upload retry budget, default 3
	BackoffUnit    time.Duration // backoff time-unit, default 1s
	MaxBackoff     time.Duration // backoff ceiling, default 30s
	CopyBufferSize int           // download copy buffer, default 64KiB
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffUnit <= 0 {
		o.BackoffUnit = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.CopyBufferSize <= 0 {
		o.CopyBufferSize = 64 * 1024
	}
	return o
}

// Reconcile compares post-run object counts between the stores.
func Reconcile(sourceCount, destCount int) Verdict {
	if sourceCount == destCount {
		return VerdictMatched
	}
	return VerdictMismatched
}
