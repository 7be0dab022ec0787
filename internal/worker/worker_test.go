package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tubewatch/yt-scraper/internal/clock/system"
	sha "github.com/tubewatch/yt-scraper/internal/hash/sha256"
	pubmem "github.com/tubewatch/yt-scraper/internal/publisher/memory"
	storemem "github.com/tubewatch/yt-scraper/internal/storage/memory"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

const channelPage = `<html><body>
<yt-formatted-string id="videos-count"><span class="yt-core-attributed-string">1.4K videos</span></yt-formatted-string>
</body></html>`

const watchPage = `<html><body>
<h1 class="ytd-watch-metadata"><yt-formatted-string>Intro to Go</yt-formatted-string></h1>
<div id="description-inline-expander">A gentle introduction to the language.</div>
<ytd-segmented-like-dislike-button-renderer>
  <button aria-label="like this video along with 1.2K other people"></button>
</ytd-segmented-like-dislike-button-renderer>
<ytd-video-owner-renderer><div id="channel-name"><a>Krish Naik</a></div></ytd-video-owner-renderer>
<ytd-comment-thread-renderer>
  <a id="author-text">viewer one</a>
  <yt-formatted-string id="content-text">great explanation of the basics</yt-formatted-string>
</ytd-comment-thread-renderer>
<ytd-comment-thread-renderer>
  <a id="author-text">viewer two</a>
  <yt-formatted-string id="content-text">looking forward to the next part</yt-formatted-string>
</ytd-comment-thread-renderer>
</body></html>`

type stubFetcher struct {
	body []byte
	err  error
	reqs []scrape.FetchRequest
}

func (f *stubFetcher) Fetch(_ context.Context, req scrape.FetchRequest) (scrape.FetchResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return scrape.FetchResponse{}, f.err
	}
	return scrape.FetchResponse{
		URL:        req.URL,
		StatusCode: 200,
		Body:       f.body,
	}, nil
}

type stubGate struct{ released int }

func (g *stubGate) TryAcquire() bool { return true }
func (g *stubGate) Release()         { g.released++ }

type fixture struct {
	worker    *Worker
	jobs      *storemem.JobStore
	catalog   *storemem.CatalogStore
	blobs     *storemem.BlobStore
	publisher *pubmem.Publisher
	gate      *stubGate
}

func newFixture(t *testing.T, probe, headless scrape.Fetcher) *fixture {
	t.Helper()
	f := &fixture{
		jobs:      storemem.NewJobStore(),
		catalog:   storemem.NewCatalogStore(),
		blobs:     storemem.NewBlobStore(),
		publisher: pubmem.New(),
		gate:      &stubGate{},
	}
	f.worker = New(
		nil,
		f.jobs,
		f.catalog,
		f.blobs,
		f.publisher,
		sha.New(),
		system.New(),
		probe,
		headless,
		nil,
		f.gate,
		Config{Topic: "scrape-events", BlobPrefix: "snapshots"},
		zap.NewNop(),
	)
	return f
}

func (f *fixture) createJob(t *testing.T, params scrape.JobParameters) scrape.QueueItem {
	t.Helper()
	job := scrape.Job{
		ID:         "job-1",
		Kind:       params.Kind,
		Status:     scrape.JobStatusQueued,
		Parameters: params,
	}
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))
	return scrape.QueueItem{JobID: job.ID, Params: params}
}

func TestChannelsJobSucceeds(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{body: []byte(channelPage)}
	f := newFixture(t, probe, nil)
	item := f.createJob(t, scrape.JobParameters{
		Kind: scrape.JobKindChannels,
		Channels: []scrape.ChannelTarget{
			{Name: "iNeuron", URL: "https://www.youtube.com/@iNeuroniNtelligence"},
			{Name: "Krish Naik", URL: "https://www.youtube.com/@krishnaik06"},
		},
	})

	f.worker.processJob(context.Background(), item)

	job, err := f.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.Equal(t, 2, job.Counters.PagesSucceeded)
	require.Len(t, job.Channels, 2)
	require.Equal(t, 1400, job.Channels[0].VideoCount)
	require.Empty(t, job.Channels[0].Error)

	channels, err := f.catalog.ListChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 2)

	require.Equal(t, 2, f.blobs.Len())
	require.Len(t, f.publisher.Messages(), 2)
	require.Equal(t, 1, f.gate.released)
}

func TestChannelsJobDefaultsVideoCount(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{body: []byte("<html><body><p>nothing countable here</p></body></html>")}
	f := newFixture(t, probe, nil)
	item := f.createJob(t, scrape.JobParameters{
		Kind:     scrape.JobKindChannels,
		Channels: []scrape.ChannelTarget{{Name: "iNeuron", URL: "https://www.youtube.com/@iNeuroniNtelligence"}},
	})

	f.worker.processJob(context.Background(), item)

	job, err := f.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.Equal(t, scrape.DefaultVideoCount, job.Channels[0].VideoCount)
	require.Equal(t, 1, job.Counters.FieldsDefaulted)
	require.NotEmpty(t, job.Warnings)
}

func TestChannelsJobFetchFailure(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{err: errors.New("connection refused")}
	f := newFixture(t, probe, nil)
	item := f.createJob(t, scrape.JobParameters{
		Kind:     scrape.JobKindChannels,
		Channels: []scrape.ChannelTarget{{Name: "iNeuron", URL: "https://www.youtube.com/@iNeuroniNtelligence"}},
	})

	f.worker.processJob(context.Background(), item)

	job, err := f.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusFailed, job.Status)
	require.Equal(t, 1, job.Counters.PagesFailed)
	require.NotEmpty(t, job.Channels[0].Error)
	require.Equal(t, 1, f.gate.released)
}

func TestVideoJobExtractsAndPersists(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{body: []byte(watchPage)}
	f := newFixture(t, probe, nil)
	item := f.createJob(t, scrape.JobParameters{
		Kind:     scrape.JobKindVideo,
		VideoURL: "https://www.youtube.com/watch?v=abc123xyz00",
	})

	f.worker.processJob(context.Background(), item)

	job, err := f.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.Video)
	require.Equal(t, "Intro to Go", job.Video.Title)
	require.Equal(t, 1200, job.Video.Likes)
	require.Len(t, job.Video.Comments, 2)

	// Owner name from the page became the channel row.
	chID, err := f.catalog.ChannelIDByName(context.Background(), "Krish Naik")
	require.NoError(t, err)
	require.Equal(t, job.Video.ChannelID, chID)

	videos, err := f.catalog.ListVideos(context.Background(), chID)
	require.NoError(t, err)
	require.Len(t, videos, 1)

	comments, err := f.catalog.ListComments(context.Background(), videos[0].ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.Equal(t, "viewer one", comments[0].Author)
}

func TestVideoJobAllDefaultsStillSucceeds(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{body: []byte("<html><body><p>bare</p></body></html>")}
	f := newFixture(t, probe, nil)
	item := f.createJob(t, scrape.JobParameters{
		Kind:        scrape.JobKindVideo,
		VideoURL:    "https://www.youtube.com/watch?v=abc123xyz00",
		ChannelName: "College Wallah",
	})

	f.worker.processJob(context.Background(), item)

	job, err := f.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.Video)
	require.Equal(t, scrape.DefaultTitle, job.Video.Title)
	require.Equal(t, scrape.DefaultDetails, job.Video.Details)
	require.Equal(t, 0, job.Video.Likes)
	require.Equal(t, scrape.PlaceholderComments(), job.Video.Comments)
	require.GreaterOrEqual(t, job.Counters.FieldsDefaulted, 4)
	require.GreaterOrEqual(t, len(job.Warnings), 4)

	// Client-supplied channel name wins over extraction.
	_, err = f.catalog.ChannelIDByName(context.Background(), "College Wallah")
	require.NoError(t, err)
}

func TestVideoJobHeadlessFallbackOnProbeError(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{err: errors.New("403 forbidden")}
	headless := &stubFetcher{body: []byte(watchPage)}
	f := newFixture(t, probe, headless)
	item := f.createJob(t, scrape.JobParameters{
		Kind:     scrape.JobKindVideo,
		VideoURL: "https://www.youtube.com/watch?v=abc123xyz00",
	})

	f.worker.processJob(context.Background(), item)

	job, err := f.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.Len(t, headless.reqs, 1)
	require.True(t, headless.reqs[0].UseHeadless)
	require.Equal(t, 3, headless.reqs[0].ScrollPasses)
}

func TestUnknownJobKindFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubFetcher{}, nil)
	item := f.createJob(t, scrape.JobParameters{Kind: scrape.JobKind("bogus")})

	f.worker.processJob(context.Background(), item)

	job, err := f.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorText, "unknown job kind")
}

func TestDeriveFinalStatusCanceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubFetcher{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, errText := f.worker.deriveFinalStatus(ctx, scrape.JobCounters{}, "")
	require.Equal(t, scrape.JobStatusCanceled, status)
	require.NotEmpty(t, errText)
}

func TestBuildBlobPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubFetcher{}, nil)
	require.Equal(t, "snapshots/job-1/abc.html", f.worker.buildBlobPath("job-1", "abc"))

	f.worker.cfg.BlobPrefix = ""
	require.Equal(t, "job-1/abc.html", f.worker.buildBlobPath("job-1", "abc"))
}

func TestPolitenessDelayBetweenFetches(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{body: []byte(channelPage)}
	f := newFixture(t, probe, nil)
	f.worker.cfg.Delay = 30 * time.Millisecond
	f.worker.limiter = rate.NewLimiter(rate.Every(30*time.Millisecond), 1)

	item := f.createJob(t, scrape.JobParameters{
		Kind: scrape.JobKindChannels,
		Channels: []scrape.ChannelTarget{
			{Name: "a", URL: "https://www.youtube.com/@a"},
			{Name: "b", URL: "https://www.youtube.com/@b"},
		},
	})

	start := time.Now()
	f.worker.processJob(context.Background(), item)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
