// Package memory provides in-memory stores for development and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

// JobStore keeps jobs in a map. The service tracks a single active job at a
// time, so the store also remembers the most recently created one.
type JobStore struct {
	mu       sync.RWMutex
	jobs     map[string]scrape.Job
	latestID string
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]scrape.Job),
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job scrape.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	s.latestID = job.ID
	return nil
}

// UpdateJobStatus updates the status and counters for a job.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status scrape.JobStatus,
	errText string,
	counters scrape.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.ErrNotFound
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := time.Now().UTC()
	if status == scrape.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if isTerminal(status) {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// AppendWarnings adds extraction warnings to a job record.
func (s *JobStore) AppendWarnings(_ context.Context, jobID string, warnings ...string) error {
	if len(warnings) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.ErrNotFound
	}
	job.Warnings = append(job.Warnings, warnings...)
	s.jobs[jobID] = job
	return nil
}

// SetChannelResults records the per-channel outcome of a channels job.
func (s *JobStore) SetChannelResults(_ context.Context, jobID string, results []scrape.ChannelResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.ErrNotFound
	}
	job.Channels = append([]scrape.ChannelResult(nil), results...)
	s.jobs[jobID] = job
	return nil
}

// SetVideoResult records the outcome of a video job.
func (s *JobStore) SetVideoResult(_ context.Context, jobID string, result scrape.VideoResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.ErrNotFound
	}
	video := result
	job.Video = &video
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.Job{}, scrape.ErrNotFound
	}
	return job, nil
}

// LatestJob returns the most recently created job.
func (s *JobStore) LatestJob(_ context.Context) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latestID == "" {
		return scrape.Job{}, scrape.ErrNotFound
	}
	return s.jobs[s.latestID], nil
}

// Reset drops all job history.
func (s *JobStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]scrape.Job)
	s.latestID = ""
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status scrape.JobStatus) bool {
	switch status {
	case scrape.JobStatusSucceeded, scrape.JobStatusFailed, scrape.JobStatusCanceled:
		return true
	default:
		return false
	}
}
