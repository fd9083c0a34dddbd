package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestStorageFS(t *testing.T) {
	ctx := context.Background()
	log := logs.NewTestingLog(t)
	fs, err := NewStorageFS(log, filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	require.NoError(t, WriteFile(ctx, fs, "a/b/hello.txt", bytes.NewReader([]byte("hello"))))
	_, err = os.Stat(fs.Location("a/b/hello.txt") + ".partial")
	require.True(t, os.IsNotExist(err))

	f, err := fs.ReadFile(ctx, "a/b/hello.txt")
	require.NoError(t, err)
	require.EqualValues(t, 5, f.Size)
	data, err := io.ReadAll(f.Reader)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	f.Reader.Close()

	require.NoError(t, fs.DeleteFile(ctx, "a/b/hello.txt"))
	_, err = fs.ReadFile(ctx, "a/b/hello.txt")
	require.True(t, errors.Is(err, os.ErrNotExist))

	for _, bad := range []string{"", "../escape", "/abs", "a/../../b"} {
		_, err = fs.WriteFile(ctx, bad)
		require.ErrorIs(t, err, ErrInvalidName, bad)
	}
}

func TestPublishToDirectory(t *testing.T) {
	ctx := context.Background()
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "20240315_134501_a.mp4")
	require.NoError(t, os.WriteFile(local, []byte("video"), 0644))

	pub, err := Open(ctx, log, filepath.Join(dir, "published"))
	require.NoError(t, err)
	defer pub.Close()
	where, err := pub.Publish(ctx, local, filepath.Base(local))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "published", "20240315_134501_a.mp4"), where)
	data, err := os.ReadFile(where)
	require.NoError(t, err)
	require.Equal(t, "video", string(data))

	_, err = pub.Publish(ctx, filepath.Join(dir, "missing.mp4"), "missing.mp4")
	require.Error(t, err)
}

func TestPublisherPrefix(t *testing.T) {
	log := logs.NewTestingLog(t)
	fs, err := NewStorageFS(log, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "x.mp4", NewPublisher(log, fs, "").ObjectName("x.mp4"))
	require.Equal(t, "runs/2024/x.mp4", NewPublisher(log, fs, "/runs/2024/").ObjectName("x.mp4"))
}

func TestOpenBadTargets(t *testing.T) {
	ctx := context.Background()
	log := logs.NewTestingLog(t)
	_, err := Open(ctx, log, "gs://")
	require.Error(t, err)
	_, err = Open(ctx, log, "")
	require.Error(t, err)
}

// Storage that silently loses everything after the first few bytes of a file
type lossyStorage struct {
	*StorageFS
}

type lossyWriter struct {
	io.WriteCloser
	remaining int
}

func (w *lossyWriter) Write(p []byte) (int, error) {
	n := min(len(p), w.remaining)
	w.remaining -= n
	if _, err := w.WriteCloser.Write(p[:n]); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s lossyStorage) WriteFile(ctx context.Context, name string) (io.WriteCloser, error) {
	w, err := s.StorageFS.WriteFile(ctx, name)
	if err != nil {
		return nil, err
	}
	return &lossyWriter{WriteCloser: w, remaining: 2}, nil
}

func TestPublishDeletesIncompleteUpload(t *testing.T) {
	ctx := context.Background()
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(local, []byte("video"), 0644))

	fs, err := NewStorageFS(log, filepath.Join(dir, "published"))
	require.NoError(t, err)
	pub := NewPublisher(log, lossyStorage{fs}, "")
	_, err = pub.Publish(ctx, local, "a.mp4")
	require.ErrorIs(t, err, ErrSizeMismatch)
	_, err = fs.ReadFile(ctx, "a.mp4")
	require.ErrorIs(t, err, os.ErrNotExist)
}
