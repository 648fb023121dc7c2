package rendergraph

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/rendergraph/frame"
	"github.com/gogpu/rendergraph/resource"
)

// ErrInvalidConfig is returned for configurations that fail validation or
// cannot be parsed.
var ErrInvalidConfig = errors.New("rendergraph: invalid config")

// MaxFramesInFlight bounds Config.FramesInFlight.
const MaxFramesInFlight = 16

// Config configures a Renderer.
type Config struct {
	// FramesInFlight is how many frames the CPU may record ahead of the
	// GPU. It is also the retention window of deferred destroys.
	FramesInFlight uint64

	// WaitTimeout bounds the frame-pacing wait. A GPU that does not finish
	// a frame within it is treated as lost.
	WaitTimeout time.Duration

	// Pool limits; 0 means unlimited.
	MaxBuffers    int
	MaxImages     int
	MaxImageViews int

	// StrictResources makes graphs panic when a declared resource cannot be
	// resolved instead of skipping the pass.
	StrictResources bool

	// GraphCacheSize is the number of compiled graphs Renderer.Compile
	// keeps. 0 means unlimited.
	GraphCacheSize int

	// ShaderCacheSize is the number of shader modules Renderer.ShaderModule
	// keeps. 0 means unlimited.
	ShaderCacheSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FramesInFlight:  frame.DefaultFramesInFlight,
		WaitTimeout:     frame.DefaultWaitTimeout,
		GraphCacheSize:  8,
		ShaderCacheSize: 64,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.FramesInFlight == 0 || c.FramesInFlight > MaxFramesInFlight:
		return fmt.Errorf("%w: frames_in_flight %d not in [1, %d]", ErrInvalidConfig, c.FramesInFlight, MaxFramesInFlight)
	case c.WaitTimeout <= 0:
		return fmt.Errorf("%w: wait_timeout %v must be positive", ErrInvalidConfig, c.WaitTimeout)
	case c.MaxBuffers < 0 || c.MaxImages < 0 || c.MaxImageViews < 0:
		return fmt.Errorf("%w: pool limits must not be negative", ErrInvalidConfig)
	case c.GraphCacheSize < 0 || c.ShaderCacheSize < 0:
		return fmt.Errorf("%w: cache sizes must not be negative", ErrInvalidConfig)
	}
	return nil
}

// PoolConfig returns the resource pool part of c.
func (c Config) PoolConfig() resource.PoolConfig {
	return resource.PoolConfig{
		FramesInFlight: c.FramesInFlight,
		MaxBuffers:     c.MaxBuffers,
		MaxImages:      c.MaxImages,
		MaxImageViews:  c.MaxImageViews,
	}
}

// FrameConfig returns the frame pacing part of c.
func (c Config) FrameConfig() frame.Config {
	return frame.Config{
		FramesInFlight: c.FramesInFlight,
		WaitTimeout:    c.WaitTimeout,
	}
}

// tomlConfig is the file representation of Config.
type tomlConfig struct {
	FramesInFlight  uint64 `toml:"frames_in_flight"`
	WaitTimeout     string `toml:"wait_timeout"`
	MaxBuffers      int    `toml:"max_buffers"`
	MaxImages       int    `toml:"max_images"`
	MaxImageViews   int    `toml:"max_image_views"`
	StrictResources bool   `toml:"strict_resources"`
	GraphCacheSize  int    `toml:"graph_cache_size"`
	ShaderCacheSize int    `toml:"shader_cache_size"`
}

// ParseConfig reads a TOML configuration. Keys that are absent keep their
// defaults; unknown keys are an error.
//
//	frames_in_flight = 2
//	wait_timeout = "5s"
//	strict_resources = true
func ParseConfig(data []byte) (Config, error) {
	d := DefaultConfig()
	tc := tomlConfig{
		FramesInFlight:  d.FramesInFlight,
		WaitTimeout:     d.WaitTimeout.String(),
		MaxBuffers:      d.MaxBuffers,
		MaxImages:       d.MaxImages,
		MaxImageViews:   d.MaxImageViews,
		StrictResources: d.StrictResources,
		GraphCacheSize:  d.GraphCacheSize,
		ShaderCacheSize: d.ShaderCacheSize,
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tc); err != nil {
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			keys := make([]string, 0, len(serr.Errors))
			for _, e := range serr.Errors {
				keys = append(keys, strings.Join(e.Key(), "."))
			}
			return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
		}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("%w: line %d column %d: %v", ErrInvalidConfig, row, col, derr)
		}
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	timeout, err := time.ParseDuration(tc.WaitTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("%w: wait_timeout: %v", ErrInvalidConfig, err)
	}
	c := Config{
		FramesInFlight:  tc.FramesInFlight,
		WaitTimeout:     timeout,
		MaxBuffers:      tc.MaxBuffers,
		MaxImages:       tc.MaxImages,
		MaxImageViews:   tc.MaxImageViews,
		StrictResources: tc.StrictResources,
		GraphCacheSize:  tc.GraphCacheSize,
		ShaderCacheSize: tc.ShaderCacheSize,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("rendergraph: load config: %w", err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
