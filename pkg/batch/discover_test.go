package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"zebra.MP4", "apple.mov", "b.Avi", "c.mkv", "d.wmv", "e.txt", "f.mp4.part", "noext"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub.mp4", "nested.mp4"), []byte("x"), 0644))

	files, err := Discover(dir, DefaultExtensions)
	require.NoError(t, err)
	names := []string{}
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	require.Equal(t, []string{"apple.mov", "b.Avi", "c.mkv", "d.wmv", "zebra.MP4"}, names)

	again, err := Discover(dir, DefaultExtensions)
	require.NoError(t, err)
	require.Equal(t, files, again)

	only, err := Discover(dir, []string{".MKV"})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "c.mkv")}, only)

	_, err = Discover(filepath.Join(dir, "missing"), DefaultExtensions)
	require.Error(t, err)
}

func TestOutputName(t *testing.T) {
	t1 := time.Date(2024, 3, 15, 13, 45, 1, 0, time.Local)
	require.Equal(t, "20240315_134501_cars.mp4", OutputName(t1, "/videos/input/cars.mp4"))
	// Sub-second differences collapse, but different seconds never collide
	require.Equal(t, OutputName(t1, "cars.mp4"), OutputName(t1.Add(500*time.Millisecond), "cars.mp4"))
	require.NotEqual(t, OutputName(t1, "cars.mp4"), OutputName(t1.Add(time.Second), "cars.mp4"))
	require.NotEqual(t, OutputName(t1, "a.mp4"), OutputName(t1, "b.mp4"))
}

func TestVideoState(t *testing.T) {
	require.Equal(t, "SkippedOpenFailure", StateSkippedOpenFailure.String())
	require.Equal(t, "Streaming", StateStreaming.String())
	require.Equal(t, "Unknown", VideoState(99).String())
	require.True(t, StateTruncated.IsTerminal())
	require.True(t, StateTruncated.HasOutput())
	require.False(t, StateStreaming.IsTerminal())
	require.False(t, StateFailed.HasOutput())
}
