package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseDir: "  "})
	require.Error(t, err)
}

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "nested", "snapshots")
	_, err := New(Config{BaseDir: base})
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	s, err := New(Config{BaseDir: base})
	require.NoError(t, err)

	uri, err := s.PutObject(context.Background(), "job-1/page.html", "text/html", []byte("<html>ok</html>"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(base, "job-1", "page.html"), uri)

	data, err := os.ReadFile(filepath.Join(base, "job-1", "page.html"))
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), "../escape.html", "text/html", []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "traversal")
}

func TestPutObjectRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), "", "text/html", []byte("x"))
	require.Error(t, err)
}
