package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tag-bridge/internal/entity"
)

type fakeDownloader struct {
	body string
	err  error
	urls []string
}

func (d *fakeDownloader) Download(ctx context.Context, url string, dst io.Writer) (int64, error) {
	d.urls = append(d.urls, url)
	if d.err != nil {
		return 0, d.err
	}
	n, err := io.Copy(dst, strings.NewReader(d.body))
	return n, err
}

func TestFileStager_StageAndCleanup(t *testing.T) {
	root := t.TempDir()
	tmp := filepath.Join(root, "temp")
	input := filepath.Join(root, "input")
	d := &fakeDownloader{body: "jpeg-bytes"}
	s := NewFileStager(tmp, input, d, nil)

	st, err := s.Stage(context.Background(), entity.WorkItem{ID: "pin/42", SourceURL: "http://img/42.jpg"})
	require.NoError(t, err)

	assert.Equal(t, []string{"http://img/42.jpg"}, d.urls)
	assert.Equal(t, "pin_42.jpg", st.EngineName)
	assert.Equal(t, filepath.Join(tmp, "pin_42.jpg"), st.LocalPath)
	assert.Equal(t, filepath.Join(input, "pin_42.jpg"), st.EnginePath)

	for _, p := range []string{st.LocalPath, st.EnginePath} {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(b))
	}

	s.Cleanup(st)
	assert.NoFileExists(t, st.LocalPath)
	assert.NoFileExists(t, st.EnginePath)

	// second cleanup is a no-op
	s.Cleanup(st)
}

func TestFileStager_NoInputDirUsesLocalPath(t *testing.T) {
	tmp := t.TempDir()
	s := NewFileStager(tmp, "", &fakeDownloader{body: "x"}, nil)

	st, err := s.Stage(context.Background(), entity.WorkItem{ID: "7", SourceURL: "http://img/7"})
	require.NoError(t, err)
	assert.Empty(t, st.EnginePath)
	assert.Equal(t, st.LocalPath, st.EngineName)
	assert.FileExists(t, st.LocalPath)
}

func TestFileStager_DownloadFailureLeavesNothing(t *testing.T) {
	tmp := t.TempDir()
	s := NewFileStager(tmp, "", &fakeDownloader{err: errors.New("404")}, nil)

	_, err := s.Stage(context.Background(), entity.WorkItem{ID: "1", SourceURL: "http://img/1"})
	require.Error(t, err)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStager_EmptyBodyIsError(t *testing.T) {
	tmp := t.TempDir()
	s := NewFileStager(tmp, "", &fakeDownloader{}, nil)

	_, err := s.Stage(context.Background(), entity.WorkItem{ID: "1", SourceURL: "http://img/1"})
	require.ErrorContains(t, err, "empty body")
	assert.NoFileExists(t, filepath.Join(tmp, "1.jpg"))
}

func TestSafeFileName(t *testing.T) {
	cases := map[string]string{
		"12345":         "12345",
		"abc-DEF_9":     "abc-DEF_9",
		"../etc/passwd": "_._etc_passwd",
		"a.b":           "a.b",
		"  ":            "item",
		"pin 1":         "pin_1",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeFileName(in), "input %q", in)
	}
}
