package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, scraperJobsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserversDoNotPanic(t *testing.T) {
	Init()

	ObserveJob("video", "succeeded", 3*time.Second)
	ObservePage("channels", "failed")
	ObserveFallback("title")
	ObserveParseFailure("likes")
	ObserveHeadlessPromotion()
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	Init()

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveJob("channels", "succeeded", time.Second)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scraper_jobs_total")
}
