package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

func newMockStore(t *testing.T) (*CatalogStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewCatalogStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestUpsertChannelReturnsID(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO channels").
		WithArgs("iNeuron", "https://www.youtube.com/@iNeuroniNtelligence", 120).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.UpsertChannel(context.Background(), "iNeuron", "https://www.youtube.com/@iNeuroniNtelligence", 120)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChannelRequiresURL(t *testing.T) {
	t.Parallel()
	store, _ := newMockStore(t)

	_, err := store.UpsertChannel(context.Background(), "name", "", 0)
	require.Error(t, err)
}

func TestChannelIDByName(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM channels").
		WithArgs("Krish Naik").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := store.ChannelIDByName(context.Background(), "Krish Naik")
	require.NoError(t, err)
	require.Equal(t, int64(3), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelIDByNameNotFound(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM channels").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.ChannelIDByName(context.Background(), "missing")
	require.ErrorIs(t, err, scrape.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVideo(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	video := scrape.VideoRecord{
		ChannelID: 7,
		Title:     "Intro to Go",
		URL:       "https://www.youtube.com/watch?v=abc123xyz00",
		Details:   "course intro",
		Likes:     1200,
	}

	mock.ExpectQuery("INSERT INTO videos").
		WithArgs(video.ChannelID, video.Title, video.URL, video.Details, video.Likes).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.InsertVideo(context.Background(), video)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVideoRequiresChannel(t *testing.T) {
	t.Parallel()
	store, _ := newMockStore(t)

	_, err := store.InsertVideo(context.Background(), scrape.VideoRecord{Title: "orphan"})
	require.Error(t, err)
}

func TestInsertCommentsBatches(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	comments := []scrape.Comment{
		{Author: "viewer one", Body: "great explanation of the basics"},
		{Author: "viewer two", Body: "looking forward to the next part"},
	}

	batch := mock.ExpectBatch()
	batch.ExpectExec("INSERT INTO comments").
		WithArgs(int64(42), comments[0].Author, comments[0].Body).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	batch.ExpectExec("INSERT INTO comments").
		WithArgs(int64(42), comments[1].Author, comments[1].Body).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertComments(context.Background(), 42, comments))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCommentsEmptyIsNoop(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	require.NoError(t, store.InsertComments(context.Background(), 42, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListChannels(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT id, name, url, video_count, created_at FROM channels").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "url", "video_count", "created_at"}).
			AddRow(int64(1), "iNeuron", "https://www.youtube.com/@iNeuroniNtelligence", 120, now).
			AddRow(int64(2), "Krish Naik", "https://www.youtube.com/@krishnaik06", 90, now))

	channels, err := store.ListChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 2)
	require.Equal(t, "iNeuron", channels[0].Name)
	require.Equal(t, 90, channels[1].VideoCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListVideos(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT id, channel_id, title, url, details, likes, created_at").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "channel_id", "title", "url", "details", "likes", "created_at"}).
			AddRow(int64(10), int64(1), "Intro to Go", "https://www.youtube.com/watch?v=abc123xyz00", "course intro", 1200, now))

	videos, err := store.ListVideos(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	require.Equal(t, "Intro to Go", videos[0].Title)
	require.Equal(t, 1200, videos[0].Likes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListComments(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT id, video_id, author, body, created_at").
		WithArgs(int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "video_id", "author", "body", "created_at"}).
			AddRow(int64(100), int64(10), "viewer one", "great explanation of the basics", now))

	comments, err := store.ListComments(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, "viewer one", comments[0].Author)
	require.NoError(t, mock.ExpectationsWereMet())
}
