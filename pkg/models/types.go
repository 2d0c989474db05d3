package models

import (
	"strings"
	"time"
)

// SourceObject is a snapshot entry from the Swift container listing. It is
// created by the lister and never mutated afterwards.
type SourceObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// IsDirectoryMarker reports whether the object is a zero-content "folder"
// placeholder rather than real content. Swift represents empty directories as
// objects whose key ends with the path separator.
func (o SourceObject) IsDirectoryMarker() bool {
	return strings.HasSuffix(o.Key, "/")
}

// RemoteObject is a destination-side object as reported by the S3 listing or
// a metadata probe. ETag is the remote-reported digest, already unquoted.
type RemoteObject struct {
	Key  string `json:"key"`
	ETag string `json:"etag"`
	Size int64  `json:"size"`
}

// TransferRequest holds everything a single transfer run needs.
type TransferRequest struct {
	Container        string `json:"container"`
	Bucket           string `json:"bucket"`
	Region           string `json:"region"`
	MaxWorkers       int    `json:"max_workers"`
	BandwidthLimitMb int    `json:"bandwidth_limit_mb"`
	DryRun           bool   `json:"dry_run"`
}

// BandwidthBytesPerSec converts the configured MB/s cap to bytes/sec.
func (r TransferRequest) BandwidthBytesPerSec() int {
	return r.BandwidthLimitMb * 1024 * 1024
}

// RunStatus is a point-in-time snapshot of a running or finished transfer,
// served by the status API.
type RunStatus struct {
	RunID           string    `json:"run_id"`
	State           string    `json:"state"` // pending, running, completed, failed
	Container       string    `json:"container"`
	Bucket          string    `json:"bucket"`
	TotalObjects    int64     `json:"total_objects"`
	Uploaded        int64     `json:"uploaded"`
	SkippedUpToDate int64     `json:"skipped_up_to_date"`
	MarkersCreated  int64     `json:"markers_created"`
	Failed          int64     `json:"failed"`
	CopiedSizeMB    float64   `json:"copied_size_mb"`
	SpeedMB         float64   `json:"speed_mb"`
	ETA             string    `json:"eta"`
	StartTime       time.Time `json:"start_time"`
	LastUpdateTime  time.Time `json:"last_update_time"`
}
