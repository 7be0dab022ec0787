package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	item := scrape.QueueItem{JobID: "job-1", Params: scrape.JobParameters{Kind: scrape.JobKindVideo}}

	require.NoError(t, q.Enqueue(context.Background(), item))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", got.JobID)
	require.Equal(t, scrape.JobKindVideo, got.Params.Kind)
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), scrape.QueueItem{JobID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, scrape.QueueItem{JobID: "b"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	q.Close()

	_, err := q.Dequeue(context.Background())
	require.EqualError(t, err, "queue closed")
}
