// Package scrape defines core types shared across subsystems.
package scrape

import (
	"net/http"
	"time"
)

// JobKind distinguishes the two scrape pipelines.
type JobKind string

// Job kinds accepted by the API.
const (
	JobKindChannels JobKind = "channels"
	JobKindVideo    JobKind = "video"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// ChannelTarget names one channel to scrape.
type ChannelTarget struct {
	Name string `json:"name" mapstructure:"name"`
	URL  string `json:"url" mapstructure:"url"`
}

// JobParameters captures per-job configuration requested by the client.
type JobParameters struct {
	Kind        JobKind         `json:"kind"`
	Channels    []ChannelTarget `json:"channels,omitempty"`
	VideoURL    string          `json:"video_url,omitempty"`
	ChannelName string          `json:"channel_name,omitempty"`
	MaxComments int             `json:"max_comments"`
}

// ChannelResult is the per-channel outcome of a channels job.
type ChannelResult struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	VideoCount int    `json:"video_count"`
	ChannelID  int64  `json:"channel_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Comment is one extracted comment before persistence.
type Comment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// VideoResult is the outcome of a video job.
type VideoResult struct {
	ChannelID int64     `json:"channel_id"`
	VideoID   int64     `json:"video_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Details   string    `json:"details"`
	Likes     int       `json:"likes"`
	Comments  []Comment `json:"comments"`
}

// Job represents the metadata persisted for each submitted scrape request.
type Job struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"kind"`
	Status     JobStatus       `json:"status"`
	Submitted  time.Time       `json:"submitted_at"`
	Started    *time.Time      `json:"started_at,omitempty"`
	Finished   *time.Time      `json:"finished_at,omitempty"`
	ErrorText  string          `json:"error_text,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	Parameters JobParameters   `json:"parameters"`
	Channels   []ChannelResult `json:"channels,omitempty"`
	Video      *VideoResult    `json:"video,omitempty"`
	Counters   JobCounters     `json:"counters"`
}

// JobCounters tracks success/failure stats per job.
type JobCounters struct {
	PagesSucceeded  int `json:"pages_succeeded"`
	PagesFailed     int `json:"pages_failed"`
	FieldsDefaulted int `json:"fields_defaulted"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Attempt   int
	Submitted int64
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	JobID        string
	URL          string
	UseHeadless  bool
	Headers      http.Header
	ScrollPasses int
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ChannelRecord is a persisted channel row.
type ChannelRecord struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	VideoCount int       `json:"video_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// VideoRecord is a persisted video row.
type VideoRecord struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Details   string    `json:"details"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentRecord is a persisted comment row.
type CommentRecord struct {
	ID        int64     `json:"id"`
	VideoID   int64     `json:"video_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// VideoListing pairs a video row with its comments for the results endpoint.
type VideoListing struct {
	Video    VideoRecord     `json:"video"`
	Comments []CommentRecord `json:"comments"`
}

// ChannelListing pairs a channel row with its videos.
type ChannelListing struct {
	Channel ChannelRecord  `json:"channel"`
	Videos  []VideoListing `json:"videos"`
}

// JobResult is returned by the API result endpoint.
type JobResult struct {
	Job      Job             `json:"job"`
	Channels []ChannelResult `json:"channels,omitempty"`
	Video    *VideoResult    `json:"video,omitempty"`
}
