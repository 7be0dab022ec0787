package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

func TestFetchReturnsBodyAndHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-bot/1.0", r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-bot/1.0", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), scrape.FetchRequest{JobID: "job-1", URL: srv.URL})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "hello")
	require.Equal(t, "text/html", resp.Headers.Get("Content-Type"))
	require.False(t, resp.UsedHeadless)
}

func TestFetchPropagatesExtraHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "en-US", r.Header.Get("Accept-Language"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), scrape.FetchRequest{
		URL:     srv.URL,
		Headers: http.Header{"Accept-Language": {"en-US"}},
	})
	require.NoError(t, err)
}

func TestFetchReportsServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), scrape.FetchRequest{URL: srv.URL})
	require.Error(t, err)
}

func TestFetchInvalidURL(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), scrape.FetchRequest{URL: "http://127.0.0.1:0/nope"})
	require.Error(t, err)
}
