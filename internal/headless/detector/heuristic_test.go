package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	padding := strings.Repeat("<p>static content here</p>", 200)

	tests := []struct {
		name string
		resp scrape.FetchResponse
		want bool
	}{
		{
			name: "non-200 never promotes",
			resp: scrape.FetchResponse{StatusCode: 503, Body: []byte("ytInitialData")},
			want: false,
		},
		{
			name: "empty body promotes",
			resp: scrape.FetchResponse{StatusCode: 200, Body: nil},
			want: true,
		},
		{
			name: "watch page shell promotes",
			resp: scrape.FetchResponse{
				StatusCode: 200,
				Body:       []byte(`<html><script>var ytInitialPlayerResponse = {};</script>` + padding + `</html>`),
			},
			want: true,
		},
		{
			name: "polymer app root promotes",
			resp: scrape.FetchResponse{
				StatusCode: 200,
				Body:       []byte(`<html><body><ytd-app>` + padding + `</ytd-app></body></html>`),
			},
			want: true,
		},
		{
			name: "short script-heavy body promotes",
			resp: scrape.FetchResponse{
				StatusCode: 200,
				Body:       []byte(`<html><script>boot();boot();boot();boot();</script><p>x</p></html>`),
			},
			want: true,
		},
		{
			name: "plain static page stays",
			resp: scrape.FetchResponse{
				StatusCode: 200,
				Body:       []byte("<html><body>" + padding + "</body></html>"),
			},
			want: false,
		},
	}

	d := NewHeuristic(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, d.ShouldPromote(tt.resp))
		})
	}
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2048, NewHeuristic(0).BodyLengthThreshold)
	require.Equal(t, 512, NewHeuristic(512).BodyLengthThreshold)
}

func TestScriptDensityHigh(t *testing.T) {
	t.Parallel()

	require.False(t, scriptDensityHigh([]byte("<html><body>hello world, plain page</body></html>")))
	require.True(t, scriptDensityHigh([]byte(`<script>lots and lots of js</script><p>x</p>`)))
	// unterminated script counts through end of document
	require.True(t, scriptDensityHigh([]byte(`<p>x</p><script>never closes`)))
}
