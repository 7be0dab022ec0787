package headless

import (
	"context"
	"errors"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

// ErrHeadlessDisabled is returned by the noop fetcher.
var ErrHeadlessDisabled = errors.New("headless fetching disabled")

// Noop satisfies scrape.Fetcher when headless rendering is turned off.
type Noop struct{}

// NewNoop returns a disabled headless fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrHeadlessDisabled.
func (Noop) Fetch(_ context.Context, _ scrape.FetchRequest) (scrape.FetchResponse, error) {
	return scrape.FetchResponse{}, ErrHeadlessDisabled
}
