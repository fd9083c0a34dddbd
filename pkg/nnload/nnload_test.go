package nnload

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidannotate/pkg/nn"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	config *nn.ModelConfig
	file   string
}

func (s *stubDetector) Close() {}

func (s *stubDetector) Config() *nn.ModelConfig {
	return s.config
}

func (s *stubDetector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	return nil, nil
}

func useStubBackend(t *testing.T) {
	orig := openONNX
	openONNX = func(config *nn.ModelConfig, onnxFile string) (nn.ObjectDetector, error) {
		return &stubDetector{config: config, file: onnxFile}, nil
	}
	t.Cleanup(func() { openONNX = orig })
}

// Serves /<name> for each entry in files, and 404 for everything else
func modelServer(t *testing.T, files map[string]string, hits *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadLocalModel(t *testing.T) {
	useStubBackend(t)
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	onnx := filepath.Join(dir, "best.onnx")
	require.NoError(t, os.WriteFile(onnx, []byte("weights"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "best.names"), []byte("mango\n\ntree\n"), 0644))

	model, err := LoadModel(log, onnx, Options{CacheDir: filepath.Join(dir, "cache")})
	require.NoError(t, err)
	require.Equal(t, onnx, model.(*stubDetector).file)
	require.Equal(t, []string{"mango", "tree"}, model.Config().Classes)
	require.Equal(t, 640, model.Config().Width)
}

func TestLoadModelConfigJSON(t *testing.T) {
	dir := t.TempDir()
	onnx := filepath.Join(dir, "small.onnx")
	require.NoError(t, os.WriteFile(onnx, []byte("weights"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.json"), []byte(`{"architecture": "yolov8", "width": 320, "height": 256}`), 0644))
	config, err := LoadConfigFor(onnx)
	require.NoError(t, err)
	require.Equal(t, 320, config.Width)
	require.Equal(t, 256, config.Height)
	require.Equal(t, nn.COCOClasses, config.Classes)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.json"), []byte(`{not json`), 0644))
	_, err = LoadConfigFor(onnx)
	require.Error(t, err)
}

func TestLoadMissingModel(t *testing.T) {
	useStubBackend(t)
	log := logs.NewTestingLog(t)
	dir := t.TempDir()

	_, err := LoadModel(log, filepath.Join(dir, "nope", "best.onnx"), Options{CacheDir: dir})
	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))

	empty := filepath.Join(dir, "empty.onnx")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = LoadModel(log, empty, Options{CacheDir: dir})
	require.True(t, errors.As(err, &loadErr))

	_, err = LoadModel(log, "", Options{CacheDir: dir})
	require.True(t, errors.As(err, &loadErr))
}

func TestDownloadStockModel(t *testing.T) {
	useStubBackend(t)
	log := logs.NewTestingLog(t)
	hits := atomic.Int32{}
	srv := modelServer(t, map[string]string{
		"/yolov8n.onnx": "weights",
		"/yolov8n.json": `{"width": 320, "height": 320}`,
	}, &hits)
	cache := t.TempDir()
	opt := Options{CacheDir: cache, BaseURL: srv.URL}

	model, err := LoadModel(log, "yolov8n", opt)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cache, "yolov8n.onnx"), model.(*stubDetector).file)
	require.Equal(t, 320, model.Config().Width)
	// .onnx, .json, and a 404 for .names
	require.Equal(t, int32(3), hits.Load())

	// Second load comes from the cache
	_, err = LoadModel(log, "yolov8n", opt)
	require.NoError(t, err)
	require.Equal(t, int32(3), hits.Load())
}

func TestDownloadURL(t *testing.T) {
	useStubBackend(t)
	log := logs.NewTestingLog(t)
	hits := atomic.Int32{}
	srv := modelServer(t, map[string]string{
		"/custom/best.onnx": "weights",
	}, &hits)
	cache := t.TempDir()

	model, err := LoadModel(log, srv.URL+"/custom/best.onnx", Options{CacheDir: cache})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cache, "best.onnx"), model.(*stubDetector).file)

	_, err = LoadModel(log, srv.URL+"/custom/missing.onnx", Options{CacheDir: cache})
	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))
	_, statErr := os.Stat(filepath.Join(cache, "missing.onnx"))
	require.True(t, os.IsNotExist(statErr))
}

func TestUnreachableServer(t *testing.T) {
	useStubBackend(t)
	log := logs.NewTestingLog(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := LoadModel(log, "yolov8n", Options{CacheDir: t.TempDir(), BaseURL: url})
	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))
}
