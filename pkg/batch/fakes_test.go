package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidannotate/pkg/nn"
	"github.com/stretchr/testify/require"
)

var errCorrupt = errors.New("corrupt container")

// A video that fakeMedia can "decode"
type fakeVideo struct {
	info        SourceInfo
	frames      int   // Number of frames that are actually decodable
	openErr     error // Returned by OpenReader
	decodeErr   error // Returned instead of frame number 'decodeErrAt'
	decodeErrAt int
}

type fakeReader struct {
	media  *fakeMedia
	video  *fakeVideo
	next   int
	closed int
}

func (r *fakeReader) Info() SourceInfo {
	return r.video.info
}

func (r *fakeReader) NextFrame() (*cimg.Image, error) {
	if r.video.decodeErr != nil && r.next == r.video.decodeErrAt {
		return nil, r.video.decodeErr
	}
	if r.next >= r.video.frames {
		return nil, io.EOF
	}
	img := cimg.NewImage(r.video.info.Width, r.video.info.Height, cimg.PixelFormatRGBA)
	img.Pixels[0] = byte(r.next)
	r.next++
	return img, nil
}

func (r *fakeReader) Close() error {
	r.closed++
	r.media.openReaders.Add(-1)
	return nil
}

type fakeWriter struct {
	media  *fakeMedia
	path   string
	codec  string
	width  int
	height int
	fps    float64
	frames []byte // First pixel of every frame, so that we can check ordering
	closed int
	file   *os.File
}

func (w *fakeWriter) WriteFrame(frame *cimg.Image) error {
	if w.closed != 0 {
		return errors.New("write after close")
	}
	if frame.Width != w.width || frame.Height != w.height {
		return errors.New("dimension mismatch")
	}
	if w.media.failWriteAt >= 0 && len(w.frames) == w.media.failWriteAt {
		return errors.New("disk full")
	}
	w.frames = append(w.frames, frame.Pixels[0])
	_, err := w.file.Write(frame.Pixels[:1])
	return err
}

func (w *fakeWriter) Close() error {
	w.closed++
	if w.closed == 1 {
		w.media.openWriters.Add(-1)
		return w.file.Close()
	}
	return nil
}

// fakeMedia opens fakeVideos by base name, and writes a 1 byte per frame file for every output
type fakeMedia struct {
	lock        sync.Mutex
	videos      map[string]*fakeVideo
	readers     []*fakeReader
	writers     []*fakeWriter
	writerErr   error
	failWriteAt int // -1 to disable

	openReaders    atomic.Int32
	openWriters    atomic.Int32
	maxOpenReaders atomic.Int32
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		videos:      map[string]*fakeVideo{},
		failWriteAt: -1,
	}
}

func (m *fakeMedia) OpenReader(path string) (VideoReader, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	v := m.videos[filepath.Base(path)]
	if v == nil {
		return nil, fmt.Errorf("%v: %w", path, os.ErrNotExist)
	}
	if v.openErr != nil {
		return nil, v.openErr
	}
	r := &fakeReader{media: m, video: v}
	m.readers = append(m.readers, r)
	n := m.openReaders.Add(1)
	if n > m.maxOpenReaders.Load() {
		m.maxOpenReaders.Store(n)
	}
	return r, nil
}

func (m *fakeMedia) OpenWriter(path, codec string, width, height int, fps float64) (VideoWriter, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.writerErr != nil {
		return nil, m.writerErr
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &fakeWriter{media: m, path: path, codec: codec, width: width, height: height, fps: fps, file: f}
	m.writers = append(m.writers, w)
	m.openWriters.Add(1)
	return w, nil
}

// fakeDetector finds one object per frame, and fails on call number 'failAt' (zero based)
type fakeDetector struct {
	calls  atomic.Int32
	failAt int32
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{failAt: -1}
}

func (d *fakeDetector) Infer(frame *cimg.Image) ([]nn.ObjectDetection, error) {
	n := d.calls.Add(1) - 1
	if n == d.failAt {
		return nil, errors.New("accelerator fell over")
	}
	return []nn.ObjectDetection{{Class: 0, Confidence: 0.9, Box: nn.MakeRect(0, 0, 4, 4)}}, nil
}

func (d *fakeDetector) Render(frame *cimg.Image, detections []nn.ObjectDetection) (*cimg.Image, error) {
	return frame.Clone(), nil
}

type recordingObserver struct {
	lock     sync.Mutex
	states   map[string][]VideoState
	progress []int
	fps      []float64
	recent   []float64
	done     []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{states: map[string][]VideoState{}}
}

func (o *recordingObserver) OnStateChange(index int, input string, state VideoState) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.states[filepath.Base(input)] = append(o.states[filepath.Base(input)], state)
}

func (o *recordingObserver) OnProgress(index int, input string, frames, total int, fps, recentFPS float64) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.progress = append(o.progress, frames)
	o.fps = append(o.fps, fps)
	o.recent = append(o.recent, recentFPS)
}

func (o *recordingObserver) OnVideoDone(result *VideoResult) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.done = append(o.done, filepath.Base(result.Input))
}

// A clock that advances by 'step' every time it is read
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var lock sync.Mutex
	now := start
	return func() time.Time {
		lock.Lock()
		defer lock.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

// Create empty input files, and return a config pointing at them
func makeInputDir(t *testing.T, names ...string) Config {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.InputDir = filepath.Join(root, "input")
	cfg.OutputDir = filepath.Join(root, "output")
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDir, n), []byte("x"), 0644))
	}
	return cfg
}

func listOutputs(t *testing.T, cfg Config) []string {
	entries, err := os.ReadDir(cfg.OutputDir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
