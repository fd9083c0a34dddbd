package batch

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cyclopcam/vidannotate/pkg/fourcc"
	"github.com/cyclopcam/vidannotate/pkg/nn"
	"gopkg.in/yaml.v3"
)

// FallbackFPS is the output frame rate for inputs that don't declare one
const FallbackFPS = 30.0

// DefaultExtensions is the allow-list of input container extensions
var DefaultExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv"}

// Config controls a batch run. The zero value is not useful, start from DefaultConfig().
type Config struct {
	InputDir   string   `yaml:"input"`
	OutputDir  string   `yaml:"output"`
	Extensions []string `yaml:"extensions"` // Lowercase, with leading dot

	// FourCC used for every output file. Ignored if CodecPerExtension is true.
	Codec string `yaml:"codec"`
	// Choose the FourCC from the output file extension (eg MJPG for .avi)
	CodecPerExtension bool `yaml:"codecPerExtension"`

	ProgressInterval int `yaml:"progressInterval"` // Emit a throughput sample every N frames
	Workers          int `yaml:"workers"`          // Number of videos processed at once

	// If true, the first inference/render/write error inside a video's frame loop aborts the whole batch.
	// Otherwise only that video fails.
	AbortOnStreamError bool `yaml:"abortOnStreamError"`
	// Keep the partially written output of a failed video
	KeepPartial bool `yaml:"keepPartial"`
	// A video is Truncated if it yields more than this many frames fewer than the container claims
	TruncationSlack int `yaml:"truncationSlack"`

	ProbabilityThreshold float32 `yaml:"threshold"`
	NmsIouThreshold      float32 `yaml:"nms"`
	Tiled                bool    `yaml:"tiled"` // Split frames that are larger than the NN input into tiles
}

func DefaultConfig() Config {
	return Config{
		InputDir:             "videos/input",
		OutputDir:            "videos/output",
		Extensions:           append([]string{}, DefaultExtensions...),
		Codec:                fourcc.DefaultCodec,
		ProgressInterval:     30,
		Workers:              1,
		TruncationSlack:      1,
		ProbabilityThreshold: nn.DefaultProbabilityThreshold,
		NmsIouThreshold:      nn.DefaultNmsIouThreshold,
	}
}

func (c *Config) Validate() error {
	if c.InputDir == "" {
		return errors.New("Input directory is empty")
	}
	if c.OutputDir == "" {
		return errors.New("Output directory is empty")
	}
	if len(c.Extensions) == 0 {
		return errors.New("No input extensions")
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("Invalid extension '%v': must start with a dot", ext)
		}
		c.Extensions[i] = strings.ToLower(ext)
	}
	if !c.CodecPerExtension {
		if _, err := fourcc.Parse(c.Codec); err != nil {
			return err
		}
	}
	if c.ProgressInterval < 1 {
		return fmt.Errorf("Progress interval must be at least 1, not %v", c.ProgressInterval)
	}
	if c.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1, not %v", c.Workers)
	}
	if c.TruncationSlack < 0 {
		return fmt.Errorf("Truncation slack may not be negative")
	}
	if c.ProbabilityThreshold < 0 || c.ProbabilityThreshold > 1 {
		return fmt.Errorf("Threshold %v is outside of [0,1]", c.ProbabilityThreshold)
	}
	if c.NmsIouThreshold < 0 || c.NmsIouThreshold > 1 {
		return fmt.Errorf("NMS IoU threshold %v is outside of [0,1]", c.NmsIouThreshold)
	}
	return nil
}

// DetectionParams returns the NN parameters derived from the config
func (c *Config) DetectionParams() *nn.DetectionParams {
	p := nn.NewDetectionParams()
	if c.ProbabilityThreshold > 0 {
		p.ProbabilityThreshold = c.ProbabilityThreshold
	}
	if c.NmsIouThreshold > 0 {
		p.NmsIouThreshold = c.NmsIouThreshold
	}
	return p
}

// LoadConfigFile reads a YAML config file over DefaultConfig().
// Fields that are absent from the file keep their defaults.
// The result is not validated, so that command line overrides can be applied first.
func LoadConfigFile(filename string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("Failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("Failed to parse config file %v: %w", filename, err)
	}
	return cfg, nil
}

// Overrides are settings from the command line, which take precedence over the config file.
// Zero values and nil pointers mean "not specified".
type Overrides struct {
	InputDir             string
	OutputDir            string
	Codec                string
	ProgressInterval     int
	Workers              int
	ProbabilityThreshold float32
	NmsIouThreshold      float32
	Tiled                *bool
	AbortOnStreamError   *bool
	KeepPartial          *bool
	CodecPerExtension    *bool
}

// Switch turns a pair of --x and --no-x flags into an override.
// Returns nil if neither was given.
func Switch(name string, on, off bool) (*bool, error) {
	switch {
	case on && off:
		return nil, fmt.Errorf("--%v and --no-%v are mutually exclusive", name, name)
	case on:
		return &on, nil
	case off:
		v := false
		return &v, nil
	}
	return nil, nil
}

func (o *Overrides) Apply(c *Config) {
	if o.InputDir != "" {
		c.InputDir = o.InputDir
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.Codec != "" {
		c.Codec = o.Codec
		c.CodecPerExtension = false
	}
	if o.ProgressInterval != 0 {
		c.ProgressInterval = o.ProgressInterval
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.ProbabilityThreshold != 0 {
		c.ProbabilityThreshold = o.ProbabilityThreshold
	}
	if o.NmsIouThreshold != 0 {
		c.NmsIouThreshold = o.NmsIouThreshold
	}
	setBool(&c.Tiled, o.Tiled)
	setBool(&c.AbortOnStreamError, o.AbortOnStreamError)
	setBool(&c.KeepPartial, o.KeepPartial)
	setBool(&c.CodecPerExtension, o.CodecPerExtension)
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
