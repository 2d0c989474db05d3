// Package api exposes a read-only HTTP status surface for a transfer run.
// Transfers are started by the CLI, never over HTTP; the API only reports.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"swift2s3/pkg/core"
	"swift2s3/pkg/models"
	"swift2s3/pkg/scheduler"
)

// Server holds the observable state of the current and last run.
type Server struct {
	mu          sync.RWMutex
	coordinator *core.Coordinator
	scheduler   *scheduler.Scheduler // nil when no schedule is configured

	runID     string
	state     string
	request   models.TransferRequest
	startTime time.Time
	result    *core.RunResult
	runErr    string
}

// NewServer creates a status server around a coordinator. sched may be nil.
func NewServer(coordinator *core.Coordinator, sched *scheduler.Scheduler) *Server {
	return &Server{
		coordinator: coordinator,
		scheduler:   sched,
		state:       "pending",
	}
}

// SetRunning marks a run as started.
func (s *Server) SetRunning(req models.TransferRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runID = ""
	s.state = "running"
	s.request = req
	s.startTime = time.Now()
	s.result = nil
	s.runErr = ""
}

// SetResult records a finished run.
func (s *Server) SetResult(result *core.RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = "failed"
		s.runErr = err.Error()
		return
	}

	s.state = "completed"
	s.result = result
	s.runID = result.RunID
}

// HealthCheck reports liveness.
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

// GetStatus returns a live progress snapshot of the current run.
func (s *Server) GetStatus(c *gin.Context) {
	s.mu.RLock()
	status := models.RunStatus{
		RunID:     s.runID,
		State:     s.state,
		Container: s.request.Container,
		Bucket:    s.request.Bucket,
		StartTime: s.startTime,
	}
	s.mu.RUnlock()

	if tracker := s.coordinator.Tracker(); tracker != nil {
		stats := tracker.GetStats()
		status.TotalObjects = stats.TotalObjects
		status.Uploaded = stats.Uploaded
		status.SkippedUpToDate = stats.SkippedUpToDate
		status.MarkersCreated = stats.MarkersCreated
		status.Failed = stats.Failed
		status.CopiedSizeMB = stats.CopiedSizeMB
		status.SpeedMB = stats.TransferSpeedMB
		status.ETA = stats.ETA
	}
	status.LastUpdateTime = time.Now()

	c.JSON(http.StatusOK, status)
}

// GetResult returns the last completed run report.
func (s *Server) GetResult(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.runErr != "" {
		c.JSON(http.StatusOK, gin.H{"state": s.state, "error": s.runErr})
		return
	}

	if s.result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed run yet"})
		return
	}

	c.JSON(http.StatusOK, s.result)
}

// GetSchedule returns the recurring-run bookkeeping, if one is configured.
func (s *Server) GetSchedule(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no schedule configured"})
		return
	}

	snapshot, ok := s.scheduler.Snapshot()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no schedule configured"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
