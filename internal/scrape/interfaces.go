package scrape

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// JobStore persists job metadata and results.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	AppendWarnings(ctx context.Context, jobID string, warnings ...string) error
	SetChannelResults(ctx context.Context, jobID string, results []ChannelResult) error
	SetVideoResult(ctx context.Context, jobID string, result VideoResult) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	LatestJob(ctx context.Context) (Job, error)
	Reset(ctx context.Context) error
}

// CatalogStore persists channel, video, and comment rows.
type CatalogStore interface {
	UpsertChannel(ctx context.Context, name, url string, videoCount int) (int64, error)
	ChannelIDByName(ctx context.Context, name string) (int64, error)
	InsertVideo(ctx context.Context, video VideoRecord) (int64, error)
	InsertComments(ctx context.Context, videoID int64, comments []Comment) error
	ListChannels(ctx context.Context) ([]ChannelRecord, error)
	ListVideos(ctx context.Context, channelID int64) ([]VideoRecord, error)
	ListComments(ctx context.Context, videoID int64) ([]CommentRecord, error)
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PromotionDetector decides whether a headless fetch is warranted.
type PromotionDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Gate admits at most one scrape job at a time.
type Gate interface {
	TryAcquire() bool
	Release()
}

// Hasher computes digests for snapshot deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
