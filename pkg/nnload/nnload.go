package nnload

// Package nnload wraps up our 'nn' interface layer, and has concrete references to our
// neural network implementation (OpenCV DNN), so that you can just call one function to
// load a model, and not need to know about the implementation details.
//
// A model identifier can be:
//   - A path to an .onnx file on disk (eg "best.onnx")
//   - An http(s) URL of an .onnx file, which is downloaded into the model cache
//   - The name of a stock model (eg "yolov8n"), which is downloaded from BaseURL into the model cache
//
// Next to the .onnx file, we look for an optional "<stub>.json" ModelConfig, and an optional
// "<stub>.names" file with one class name per line. If neither exists, the model is assumed
// to be a 640x640 COCO YOLOv8 model.

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidannotate/pkg/nn"
	"github.com/cyclopcam/vidannotate/pkg/ocvdnn"
)

const DefaultBaseURL = "https://models.cyclopcam.org/onnx"

// ModelLoadError is returned for any failure to resolve, fetch, or load a model.
// It is always fatal to a batch.
type ModelLoadError struct {
	Identifier string
	Err        error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("Failed to load model '%v': %v", e.Identifier, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

type Options struct {
	CacheDir string // Where downloaded models are stored. Defaults to "models".
	BaseURL  string // Where stock models are downloaded from. Defaults to DefaultBaseURL.
	Client   *http.Client
}

func (o *Options) withDefaults() Options {
	c := *o
	if c.CacheDir == "" {
		c.CacheDir = "models"
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	return c
}

// Constructs the actual detector. Replaced in unit tests.
var openONNX = func(config *nn.ModelConfig, onnxFile string) (nn.ObjectDetector, error) {
	return ocvdnn.NewDetector(config, onnxFile)
}

// LoadModel resolves the model identifier to a file on disk (downloading it if necessary),
// loads its config, and creates the detector.
// All errors are of type *ModelLoadError.
func LoadModel(logs logs.Log, identifier string, options Options) (nn.ObjectDetector, error) {
	wrap := func(err error) error {
		return &ModelLoadError{Identifier: identifier, Err: err}
	}
	opt := options.withDefaults()

	onnxFile, err := ResolveModel(logs, identifier, opt)
	if err != nil {
		return nil, wrap(err)
	}

	config, err := LoadConfigFor(onnxFile)
	if err != nil {
		return nil, wrap(err)
	}

	logs.Infof("Loading %v model %v (%vx%v, %v classes)", config.Architecture, onnxFile, config.Width, config.Height, len(config.Classes))
	model, err := openONNX(config, onnxFile)
	if err != nil {
		return nil, wrap(err)
	}
	return model, nil
}

// ResolveModel returns the path of the .onnx file on disk, downloading it first if necessary.
func ResolveModel(logs logs.Log, identifier string, options Options) (string, error) {
	opt := options.withDefaults()
	if identifier == "" {
		return "", errors.New("No model specified")
	}

	if isURL(identifier) {
		u, err := url.Parse(identifier)
		if err != nil {
			return "", err
		}
		return fetchModel(logs, opt, identifier, path.Base(u.Path))
	}

	if st, err := os.Stat(identifier); err == nil {
		if st.IsDir() {
			return "", fmt.Errorf("'%v' is a directory", identifier)
		}
		if st.Size() == 0 {
			return "", fmt.Errorf("Model file '%v' is empty", identifier)
		}
		return identifier, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	// A path that doesn't exist is only treated as a stock model name if it looks like one
	if strings.ContainsAny(identifier, `/\`) {
		return "", fmt.Errorf("Model file '%v' not found", identifier)
	}
	name := identifier
	if filepath.Ext(name) != ".onnx" {
		name += ".onnx"
	}
	return fetchModel(logs, opt, strings.TrimSuffix(opt.BaseURL, "/")+"/"+name, name)
}

// LoadConfigFor loads the ModelConfig that sits next to the given .onnx file.
func LoadConfigFor(onnxFile string) (*nn.ModelConfig, error) {
	stub := strings.TrimSuffix(onnxFile, filepath.Ext(onnxFile))

	config := nn.DefaultModelConfig()
	if _, err := os.Stat(stub + ".json"); err == nil {
		config, err = nn.LoadModelConfig(stub + ".json")
		if err != nil {
			return nil, fmt.Errorf("Invalid model config %v: %w", stub+".json", err)
		}
	}

	if _, err := os.Stat(stub + ".names"); err == nil {
		classes, err := nn.LoadClassFile(stub + ".names")
		if err != nil {
			return nil, err
		}
		config.Classes = classes
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// If the model is not yet in the cache, then download it now, along with its optional sidecar files.
// Returns immediately if the model is already downloaded.
func fetchModel(logs logs.Log, opt Options, srcUrl, filename string) (string, error) {
	if filename == "" || filename == "." || filename == "/" {
		return "", fmt.Errorf("Cannot derive a model filename from '%v'", srcUrl)
	}
	diskPath := filepath.Join(opt.CacheDir, filename)
	if _, err := os.Stat(diskPath); err == nil {
		return diskPath, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	logs.Infof("Downloading %v to %v", srcUrl, diskPath)
	if err := downloadFile(opt.Client, srcUrl, diskPath); err != nil {
		return "", fmt.Errorf("Download failed: %w", err)
	}

	// Sidecar files are optional, so a 404 is fine
	srcStub := strings.TrimSuffix(srcUrl, path.Ext(srcUrl))
	diskStub := strings.TrimSuffix(diskPath, filepath.Ext(diskPath))
	for _, ext := range []string{".json", ".names"} {
		err := downloadFile(opt.Client, srcStub+ext, diskStub+ext)
		if err != nil && !errors.Is(err, errNotFound) {
			return "", fmt.Errorf("Download of %v failed: %w", srcStub+ext, err)
		}
	}
	return diskPath, nil
}

var errNotFound = errors.New("Not found")

func downloadFile(client *http.Client, srcUrl, targetFile string) error {
	tempFile := targetFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(targetFile), 0755); err != nil {
		return err
	}
	resp, err := client.Get(srcUrl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("HTTP error %v", resp.Status)
	}
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}
	defer file.Close()
	n, err := io.Copy(file, resp.Body)
	if err != nil {
		os.Remove(tempFile)
		return err
	}
	if n == 0 {
		os.Remove(tempFile)
		return fmt.Errorf("Empty response from %v", srcUrl)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}
	return os.Rename(tempFile, targetFile)
}
