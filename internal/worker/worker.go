// Package worker implements the scrape pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tubewatch/yt-scraper/internal/metrics"
	"github.com/tubewatch/yt-scraper/internal/scrape"
)

// Config controls Worker behavior.
type Config struct {
	ContentType  string
	BlobPrefix   string
	Topic        string
	MaxComments  int
	ScrollPasses int
	// Delay is the politeness pause enforced between page fetches.
	Delay time.Duration
}

// Worker consumes queue items and executes the scrape pipeline.
type Worker struct {
	queue           scrape.Queue
	jobStore        scrape.JobStore
	catalog         scrape.CatalogStore
	blobStore       scrape.BlobStore
	publisher       scrape.Publisher
	hasher          scrape.Hasher
	clock           scrape.Clock
	probeFetcher    scrape.Fetcher
	headlessFetcher scrape.Fetcher
	detector        scrape.PromotionDetector
	gate            scrape.Gate
	limiter         *rate.Limiter
	cfg             Config
	logger          *zap.Logger
}

// New constructs a Worker.
func New(
	queue scrape.Queue,
	jobStore scrape.JobStore,
	catalog scrape.CatalogStore,
	blobStore scrape.BlobStore,
	publisher scrape.Publisher,
	hasher scrape.Hasher,
	clock scrape.Clock,
	probe scrape.Fetcher,
	headless scrape.Fetcher,
	detector scrape.PromotionDetector,
	gate scrape.Gate,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.MaxComments <= 0 {
		cfg.MaxComments = scrape.DefaultMaxComments
	}
	if cfg.ScrollPasses <= 0 {
		cfg.ScrollPasses = 3
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	return &Worker{
		queue:           queue,
		jobStore:        jobStore,
		catalog:         catalog,
		blobStore:       blobStore,
		publisher:       publisher,
		hasher:          hasher,
		clock:           clock,
		probeFetcher:    probe,
		headlessFetcher: headless,
		detector:        detector,
		gate:            gate,
		limiter:         limiter,
		cfg:             cfg,
		logger:          logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.String("kind", string(item.Params.Kind)))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item scrape.QueueItem) {
	if w.gate != nil {
		defer w.gate.Release()
	}

	counters := scrape.JobCounters{}
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, scrape.JobStatusRunning, "", counters); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	started := w.clock.Now()
	var errText string
	switch item.Params.Kind {
	case scrape.JobKindChannels:
		errText = w.runChannelsJob(ctx, item, &counters)
	case scrape.JobKindVideo:
		errText = w.runVideoJob(ctx, item, &counters)
	default:
		errText = fmt.Sprintf("unknown job kind %q", item.Params.Kind)
	}

	status, errText := w.deriveFinalStatus(ctx, counters, errText)
	metrics.ObserveJob(string(item.Params.Kind), string(status), w.clock.Now().Sub(started))

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.logger.Info("job finished",
		zap.String("job_id", item.JobID),
		zap.String("kind", string(item.Params.Kind)),
		zap.String("status", string(status)),
		zap.Int("pages_succeeded", counters.PagesSucceeded),
		zap.Int("pages_failed", counters.PagesFailed),
	)
}

func (w *Worker) runChannelsJob(ctx context.Context, item scrape.QueueItem, counters *scrape.JobCounters) string {
	var (
		results []scrape.ChannelResult
		errText string
	)
	for _, target := range item.Params.Channels {
		result := w.scrapeChannel(ctx, item, target, counters)
		if result.Error != "" {
			errText = result.Error
		}
		results = append(results, result)
		if ctx.Err() != nil {
			break
		}
	}
	if err := w.jobStore.SetChannelResults(ctx, item.JobID, results); err != nil {
		w.logger.Error("store channel results failed", zap.String("job_id", item.JobID), zap.Error(err))
		return err.Error()
	}
	return errText
}

func (w *Worker) scrapeChannel(
	ctx context.Context,
	item scrape.QueueItem,
	target scrape.ChannelTarget,
	counters *scrape.JobCounters,
) scrape.ChannelResult {
	result := scrape.ChannelResult{Name: target.Name, URL: target.URL}

	resp, err := w.fetchPage(ctx, item.JobID, target.URL, 0)
	if err != nil {
		counters.PagesFailed++
		metrics.ObservePage(string(item.Params.Kind), "failed")
		w.logger.Error("channel fetch failed",
			zap.String("job_id", item.JobID),
			zap.String("channel", target.Name),
			zap.Error(err),
		)
		result.Error = err.Error()
		return result
	}

	doc, err := scrape.ParseDocument(resp.Body)
	if err != nil {
		counters.PagesFailed++
		metrics.ObservePage(string(item.Params.Kind), "failed")
		result.Error = err.Error()
		return result
	}

	count, ok := doc.VideoCount()
	if !ok {
		count = scrape.DefaultVideoCount
		counters.FieldsDefaulted++
		metrics.ObserveFallback(scrape.FieldVideoCount)
		w.warn(ctx, item.JobID, fmt.Sprintf("channel %s: video count defaulted to %d", target.Name, count))
	}
	result.VideoCount = count

	channelID, err := w.catalog.UpsertChannel(ctx, target.Name, target.URL, count)
	if err != nil {
		counters.PagesFailed++
		metrics.ObservePage(string(item.Params.Kind), "failed")
		result.Error = fmt.Sprintf("upsert channel: %v", err)
		return result
	}
	result.ChannelID = channelID

	if err := w.persistAndPublish(ctx, item.JobID, target.URL, resp); err != nil {
		w.logger.Warn("snapshot persist failed",
			zap.String("job_id", item.JobID),
			zap.String("channel", target.Name),
			zap.Error(err),
		)
	}

	counters.PagesSucceeded++
	metrics.ObservePage(string(item.Params.Kind), "succeeded")
	return result
}

func (w *Worker) runVideoJob(ctx context.Context, item scrape.QueueItem, counters *scrape.JobCounters) string {
	resp, err := w.fetchPage(ctx, item.JobID, item.Params.VideoURL, w.cfg.ScrollPasses)
	if err != nil {
		counters.PagesFailed++
		metrics.ObservePage(string(item.Params.Kind), "failed")
		return fmt.Sprintf("video fetch: %v", err)
	}

	doc, err := scrape.ParseDocument(resp.Body)
	if err != nil {
		counters.PagesFailed++
		metrics.ObservePage(string(item.Params.Kind), "failed")
		return err.Error()
	}

	maxComments := item.Params.MaxComments
	if maxComments <= 0 {
		maxComments = w.cfg.MaxComments
	}
	fields := doc.ExtractVideoFields(maxComments)
	for _, field := range fields.Defaulted {
		counters.FieldsDefaulted++
		metrics.ObserveFallback(field)
		w.warn(ctx, item.JobID, fmt.Sprintf("video field %s fell back to its default", field))
	}

	channelID, err := w.resolveChannel(ctx, item, doc)
	if err != nil {
		counters.PagesFailed++
		metrics.ObservePage(string(item.Params.Kind), "failed")
		return fmt.Sprintf("resolve channel: %v", err)
	}

	videoID, err := w.catalog.InsertVideo(ctx, scrape.VideoRecord{
		ChannelID: channelID,
		Title:     fields.Title,
		URL:       item.Params.VideoURL,
		Details:   fields.Details,
		Likes:     fields.Likes,
	})
	if err != nil {
		counters.PagesFailed++
		metrics.ObservePage(string(item.Params.Kind), "failed")
		return fmt.Sprintf("insert video: %v", err)
	}
	if err := w.catalog.InsertComments(ctx, videoID, fields.Comments); err != nil {
		w.warn(ctx, item.JobID, fmt.Sprintf("comments not persisted: %v", err))
	}

	if err := w.persistAndPublish(ctx, item.JobID, item.Params.VideoURL, resp); err != nil {
		w.logger.Warn("snapshot persist failed",
			zap.String("job_id", item.JobID),
			zap.String("url", item.Params.VideoURL),
			zap.Error(err),
		)
	}

	result := scrape.VideoResult{
		ChannelID: channelID,
		VideoID:   videoID,
		Title:     fields.Title,
		URL:       item.Params.VideoURL,
		Details:   fields.Details,
		Likes:     fields.Likes,
		Comments:  fields.Comments,
	}
	if err := w.jobStore.SetVideoResult(ctx, item.JobID, result); err != nil {
		return fmt.Sprintf("store video result: %v", err)
	}

	counters.PagesSucceeded++
	metrics.ObservePage(string(item.Params.Kind), "succeeded")
	return ""
}

// resolveChannel finds the channel a video belongs to. The client-supplied
// name wins; otherwise the owner name from the rendered page is used. A
// channel row is created when none exists yet.
func (w *Worker) resolveChannel(ctx context.Context, item scrape.QueueItem, doc *scrape.Document) (int64, error) {
	name := strings.TrimSpace(item.Params.ChannelName)
	if name == "" {
		if owner, ok := doc.OwnerName(); ok {
			name = owner
		} else {
			name = scrape.DefaultChannel
			metrics.ObserveFallback(scrape.FieldOwner)
			w.warn(ctx, item.JobID, "channel owner could not be extracted")
		}
	}

	id, err := w.catalog.ChannelIDByName(ctx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, scrape.ErrNotFound) {
		return 0, err
	}
	return w.catalog.UpsertChannel(ctx, name, fallbackChannelURL(name), 0)
}

// fallbackChannelURL derives a stable placeholder URL for channels first seen
// through one of their videos. The row gets its real URL on the next
// channels job that covers it.
func fallbackChannelURL(name string) string {
	handle := strings.ReplaceAll(strings.TrimSpace(name), " ", "")
	return fmt.Sprintf("https://www.youtube.com/@%s", handle)
}

func (w *Worker) fetchPage(ctx context.Context, jobID, url string, scrollPasses int) (scrape.FetchResponse, error) {
	if w.probeFetcher == nil {
		return scrape.FetchResponse{}, fmt.Errorf("no probe fetcher configured")
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return scrape.FetchResponse{}, fmt.Errorf("politeness wait: %w", err)
	}

	resp, err := w.probeFetcher.Fetch(ctx, scrape.FetchRequest{
		JobID: jobID,
		URL:   url,
	})
	if err != nil {
		// YouTube often refuses plain clients outright; the headless path
		// is the fallback, not just a promotion.
		if w.headlessFetcher == nil {
			return scrape.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
		}
		w.logger.Debug("probe failed, falling back to headless",
			zap.String("job_id", jobID),
			zap.String("url", url),
			zap.Error(err),
		)
		return w.fetchHeadless(ctx, jobID, url, scrollPasses)
	}

	if w.detector != nil && w.headlessFetcher != nil && w.detector.ShouldPromote(resp) {
		metrics.ObserveHeadlessPromotion()
		w.logger.Info("headless promotion applied", zap.String("job_id", jobID), zap.String("url", url))
		headlessResp, err := w.fetchHeadless(ctx, jobID, url, scrollPasses)
		if err != nil {
			w.logger.Warn("headless promotion failed",
				zap.String("job_id", jobID),
				zap.String("url", url),
				zap.Error(err),
			)
			return resp, nil
		}
		return headlessResp, nil
	}
	return resp, nil
}

func (w *Worker) fetchHeadless(ctx context.Context, jobID, url string, scrollPasses int) (scrape.FetchResponse, error) {
	resp, err := w.headlessFetcher.Fetch(ctx, scrape.FetchRequest{
		JobID:        jobID,
		URL:          url,
		UseHeadless:  true,
		ScrollPasses: scrollPasses,
	})
	if err != nil {
		return scrape.FetchResponse{}, fmt.Errorf("headless fetch: %w", err)
	}
	resp.UsedHeadless = true
	return resp, nil
}

func (w *Worker) persistAndPublish(ctx context.Context, jobID, url string, resp scrape.FetchResponse) error {
	if w.blobStore == nil {
		return nil
	}
	hash, err := w.hasher.Hash(resp.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}

	blobPath := w.buildBlobPath(jobID, hash)
	uri, err := w.blobStore.PutObject(ctx, blobPath, w.cfg.ContentType, resp.Body)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"job_id":    jobID,
		"url":       url,
		"blob_uri":  uri,
		"hash":      hash,
		"timestamp": w.clock.Now().Format(time.RFC3339),
		"status":    resp.StatusCode,
		"headless":  resp.UsedHeadless,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Info("page published",
		zap.String("job_id", jobID),
		zap.String("url", url),
		zap.String("blob_uri", uri),
		zap.Bool("headless", resp.UsedHeadless),
	)
	return nil
}

func (w *Worker) buildBlobPath(jobID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, hash)
}

func (w *Worker) warn(ctx context.Context, jobID, message string) {
	if err := w.jobStore.AppendWarnings(ctx, jobID, message); err != nil {
		w.logger.Error("append warning failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	counters scrape.JobCounters,
	errText string,
) (scrape.JobStatus, string) {
	if counters.PagesSucceeded == 0 && errText == "" {
		errText = "no pages were scraped"
	}

	switch {
	case ctx.Err() != nil:
		return scrape.JobStatusCanceled, errText
	case counters.PagesSucceeded == 0:
		return scrape.JobStatusFailed, errText
	default:
		return scrape.JobStatusSucceeded, errText
	}
}
