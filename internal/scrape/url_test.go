package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases host and strips fragment",
			in:   "https://WWW.YouTube.com/watch?v=abc#t=42",
			want: "https://www.youtube.com/watch?v=abc",
		},
		{
			name: "removes default https port",
			in:   "https://www.youtube.com:443/@somechannel",
			want: "https://www.youtube.com/@somechannel",
		},
		{
			name: "adds scheme when missing",
			in:   "www.youtube.com/watch?v=abc",
			want: "https://www.youtube.com/watch?v=abc",
		},
		{
			name: "sorts query parameters",
			in:   "https://www.youtube.com/watch?t=10&v=abc",
			want: "https://www.youtube.com/watch?t=10&v=abc",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWatchVideoID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "watch query param", in: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "short link", in: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "shorts path", in: "https://www.youtube.com/shorts/abc123", want: "abc123"},
		{name: "channel url has no id", in: "https://www.youtube.com/@somechannel", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := WatchVideoID(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
