// Package progress tracks per-outcome counts for a running transfer.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker tracks transfer progress. Updates come concurrently from every
// worker, so counters are atomics and the speed window is mutex-guarded.
type Tracker struct {
	totalObjects   int64
	totalSize      int64
	uploaded       atomic.Int64
	skipped        atomic.Int64
	markers        atomic.Int64
	failed         atomic.Int64
	copiedSize     atomic.Int64
	startTime      time.Time
	lastUpdateTime time.Time
	transferSpeeds []float64
	mu             sync.RWMutex
}

// NewTracker creates a tracker for a batch of totalObjects totaling totalSize
// bytes.
func NewTracker(totalObjects, totalSize int64) *Tracker {
	return &Tracker{
		totalObjects:   totalObjects,
		totalSize:      totalSize,
		startTime:      time.Now(),
		lastUpdateTime: time.Now(),
		transferSpeeds: make([]float64, 0, 10),
	}
}

// RecordUploaded notes a completed upload of objectSize bytes.
func (t *Tracker) RecordUploaded(objectSize int64) {
	t.uploaded.Add(1)
	t.copiedSize.Add(objectSize)
	t.noteSpeed(objectSize)
}

// RecordSkipped notes an object that was already up to date.
func (t *Tracker) RecordSkipped() {
	t.skipped.Add(1)
}

// RecordMarker notes a created directory marker.
func (t *Tracker) RecordMarker() {
	t.markers.Add(1)
}

// RecordFailed notes a terminal per-object failure.
func (t *Tracker) RecordFailed() {
	t.failed.Add(1)
}

func (t *Tracker) noteSpeed(objectSize int64) {
	now := time.Now()

	t.mu.Lock()
	elapsed := now.Sub(t.lastUpdateTime).Seconds()
	if elapsed > 0 && objectSize > 0 {
		speed := float64(objectSize) / elapsed
		t.transferSpeeds = append(t.transferSpeeds, speed)
		if len(t.transferSpeeds) > 10 {
			t.transferSpeeds = t.transferSpeeds[1:]
		}
	}
	t.lastUpdateTime = now
	t.mu.Unlock()
}

// Stats is a point-in-time snapshot of progress.
type Stats struct {
	ProgressPct     float64
	Uploaded        int64
	SkippedUpToDate int64
	MarkersCreated  int64
	Failed          int64
	TotalObjects    int64
	CopiedSizeMB    float64
	TotalSizeMB     float64
	ElapsedTime     string
	TransferSpeedMB float64
	ETA             string
}

// GetStats returns current progress statistics.
func (t *Tracker) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	uploaded := t.uploaded.Load()
	skipped := t.skipped.Load()
	markers := t.markers.Load()
	failed := t.failed.Load()
	copiedSize := t.copiedSize.Load()

	var avgSpeed float64
	if len(t.transferSpeeds) > 0 {
		var sum float64
		for _, speed := range t.transferSpeeds {
			sum += speed
		}
		avgSpeed = sum / float64(len(t.transferSpeeds))
	}

	remainingSize := t.totalSize - copiedSize
	eta := "calculating..."
	if avgSpeed > 0 {
		eta = time.Duration(float64(remainingSize) / avgSpeed * float64(time.Second)).String()
	}

	done := uploaded + skipped + markers + failed
	progressPct := 0.0
	if t.totalObjects > 0 {
		progressPct = float64(done) / float64(t.totalObjects) * 100
	}

	return Stats{
		ProgressPct:     progressPct,
		Uploaded:        uploaded,
		SkippedUpToDate: skipped,
		MarkersCreated:  markers,
		Failed:          failed,
		TotalObjects:    t.totalObjects,
		CopiedSizeMB:    float64(copiedSize) / (1024 * 1024),
		TotalSizeMB:     float64(t.totalSize) / (1024 * 1024),
		ElapsedTime:     time.Since(t.startTime).String(),
		TransferSpeedMB: avgSpeed / (1024 * 1024),
		ETA:             eta,
	}
}

// FormatProgress formats current progress as a single log-friendly line.
func (t *Tracker) FormatProgress() string {
	stats := t.GetStats()
	return fmt.Sprintf(
		"progress: %.1f%% (%d uploaded, %d skipped, %d markers, %d failed of %d) | %.1f/%.1f MB | %.1f MB/s | ETA: %s",
		stats.ProgressPct,
		stats.Uploaded,
		stats.SkippedUpToDate,
		stats.MarkersCreated,
		stats.Failed,
		stats.TotalObjects,
		stats.CopiedSizeMB,
		stats.TotalSizeMB,
		stats.TransferSpeedMB,
		stats.ETA,
	)
}
