package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

// CatalogStore keeps channels, videos, and comments in memory. It mirrors
// the relational store closely enough to back the full API in development.
type CatalogStore struct {
	mu       sync.RWMutex
	nextID   int64
	channels map[int64]scrape.ChannelRecord
	videos   map[int64]scrape.VideoRecord
	comments map[int64][]scrape.CommentRecord
}

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		nextID:   1,
		channels: make(map[int64]scrape.ChannelRecord),
		videos:   make(map[int64]scrape.VideoRecord),
		comments: make(map[int64][]scrape.CommentRecord),
	}
}

// UpsertChannel inserts a channel or, when the URL already exists, updates
// its name and video count. The channel URL is the identity key.
func (s *CatalogStore) UpsertChannel(_ context.Context, name, url string, videoCount int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.channels {
		if ch.URL == url {
			ch.Name = name
			ch.VideoCount = videoCount
			s.channels[id] = ch
			return id, nil
		}
	}
	id := s.allocateID()
	s.channels[id] = scrape.ChannelRecord{
		ID:         id,
		Name:       name,
		URL:        url,
		VideoCount: videoCount,
		CreatedAt:  time.Now().UTC(),
	}
	return id, nil
}

// ChannelIDByName looks up a channel by its display name.
func (s *CatalogStore) ChannelIDByName(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.channels {
		if ch.Name == name {
			return id, nil
		}
	}
	return 0, scrape.ErrNotFound
}

// InsertVideo stores a scraped video row.
func (s *CatalogStore) InsertVideo(_ context.Context, video scrape.VideoRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[video.ChannelID]; !ok {
		return 0, scrape.ErrNotFound
	}
	id := s.allocateID()
	video.ID = id
	video.CreatedAt = time.Now().UTC()
	s.videos[id] = video
	return id, nil
}

// InsertComments stores comment rows for a video.
func (s *CatalogStore) InsertComments(_ context.Context, videoID int64, comments []scrape.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[videoID]; !ok {
		return scrape.ErrNotFound
	}
	now := time.Now().UTC()
	for _, c := range comments {
		s.comments[videoID] = append(s.comments[videoID], scrape.CommentRecord{
			ID:        s.allocateID(),
			VideoID:   videoID,
			Author:    c.Author,
			Body:      c.Body,
			CreatedAt: now,
		})
	}
	return nil
}

// ListChannels returns all channels ordered by ID.
func (s *CatalogStore) ListChannels(_ context.Context) ([]scrape.ChannelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.ChannelRecord, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListVideos returns all videos for a channel ordered by ID.
func (s *CatalogStore) ListVideos(_ context.Context, channelID int64) ([]scrape.VideoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrape.VideoRecord
	for _, v := range s.videos {
		if v.ChannelID == channelID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListComments returns all comments for a video in insertion order.
func (s *CatalogStore) ListComments(_ context.Context, videoID int64) ([]scrape.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := s.comments[videoID]
	out := make([]scrape.CommentRecord, len(comments))
	copy(out, comments)
	return out, nil
}

func (s *CatalogStore) allocateID() int64 {
	id := s.nextID
	s.nextID++
	return id
}
