// Package config - Immutable detection configuration with partial updates.
package config

import (
	"image/color"
	"slices"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/pkg/errors"
)

// ErrInvalid is returned when a configuration or an update to it is rejected.
var ErrInvalid = errors.New("invalid configuration")

// DefaultColors is the built-in palette, cycled by class id.
var DefaultColors = []string{
	"#FF3838", "#FF9D97", "#FF701F", "#FFB21D", "#CFD231",
	"#48F90A", "#92CC17", "#3DDB86", "#1A9334", "#00D4BB",
	"#2C99A8", "#00C2FF", "#344593", "#6473FF", "#0018EC",
	"#8438FF", "#520085", "#CB38FF", "#FF95C8", "#FF37C7",
}

// Config holds everything a detection pipeline reads per frame.
//
// A Config is never modified after construction. Merge returns a new value, so
// a pointer to a Config can be shared freely between goroutines.
type Config struct {
	// ModelURL locates the model, as an http(s) URL, a file URL or a path.
	ModelURL string `json:"modelUrl" yaml:"modelUrl"`
	// ModelInputWidth is used when the model does not declare a fixed width.
	ModelInputWidth int `json:"modelInputWidth" yaml:"modelInputWidth"`
	// ModelInputHeight is used when the model does not declare a fixed height.
	ModelInputHeight int `json:"modelInputHeight" yaml:"modelInputHeight"`
	// Labels names each class id.
	Labels models.LabelSet `json:"labels" yaml:"labels"`
	// Colors is the palette as hex strings.
	Colors []string `json:"colors" yaml:"colors"`
	// DisplayLabels restricts rendering and payloads to these labels; empty means all.
	DisplayLabels []string `json:"displayLabels" yaml:"displayLabels"`
	// ScoreThreshold is the minimum score a detection needs to be displayed.
	ScoreThreshold float32 `json:"scoreThreshold" yaml:"scoreThreshold"`
	// BoxLineWidth is the stroke width of rendered boxes.
	BoxLineWidth float64 `json:"boxLineWidth" yaml:"boxLineWidth"`
	// NMS configures suppression.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// TickInterval is the pause between the end of one frame and the start of the next.
	TickInterval time.Duration `json:"tickInterval" yaml:"tickInterval"`

	palette []color.Color
	display map[string]struct{}
}

// DefaultConfig returns the default configuration: COCO labels, the built-in
// palette, display threshold 0.5, line width 2 and the default NMS settings.
func DefaultConfig() *Config {
	cfg := &Config{
		Labels:         models.COCOLabels.Clone(),
		Colors:         slices.Clone(DefaultColors),
		ScoreThreshold: 0.5,
		BoxLineWidth:   2,
		NMS:            postprocess.DefaultNMSConfig(),
		TickInterval:   33 * time.Millisecond,
	}
	if err := cfg.finalize(); err != nil {
		panic(err)
	}
	return cfg
}

// New returns the default configuration with the options applied.
//
// Arguments:
//   - opts: The options to apply.
//
// Returns:
//   - *Config: The configuration.
//   - error: An error wrapping ErrInvalid if the result is not valid.
//
// @example
// cfg, err := New(Options{ModelURL: Ptr("file:///models/yolov8n.onnx")})
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func New(opts Options) (*Config, error) {
	return DefaultConfig().Merge(opts)
}

// Merge returns a copy of c with every field set in opts replaced.
//
// Fields left nil in opts keep their current value. When the result is not
// valid, Merge returns an error wrapping ErrInvalid and c is unaffected.
//
// Arguments:
//   - opts: The partial update.
//
// Returns:
//   - *Config: The new configuration.
//   - error: An error wrapping ErrInvalid if the result is not valid.
func (c *Config) Merge(opts Options) (*Config, error) {
	next := c.clone()
	if err := opts.apply(next); err != nil {
		return nil, err
	}
	if err := next.finalize(); err != nil {
		return nil, err
	}
	return next, nil
}

// Validate checks every field of the configuration.
//
// Returns:
//   - error: An error wrapping ErrInvalid describing the first problem found.
func (c *Config) Validate() error {
	switch {
	case c.ModelInputWidth < 0 || c.ModelInputHeight < 0:
		return errors.Wrapf(ErrInvalid, "model input %dx%d", c.ModelInputWidth, c.ModelInputHeight)
	case !inUnit(c.ScoreThreshold):
		return errors.Wrapf(ErrInvalid, "scoreThreshold %v outside [0, 1]", c.ScoreThreshold)
	case !(c.BoxLineWidth > 0):
		return errors.Wrapf(ErrInvalid, "boxLineWidth %v must be positive", c.BoxLineWidth)
	case c.NMS.MaxOutputs <= 0:
		return errors.Wrapf(ErrInvalid, "nms.maxOutputs %d must be positive", c.NMS.MaxOutputs)
	case !inUnit(c.NMS.IoUThreshold):
		return errors.Wrapf(ErrInvalid, "nms.iouThreshold %v outside [0, 1]", c.NMS.IoUThreshold)
	case !inUnit(c.NMS.ScoreThreshold):
		return errors.Wrapf(ErrInvalid, "nms.scoreThreshold %v outside [0, 1]", c.NMS.ScoreThreshold)
	case c.TickInterval <= 0:
		return errors.Wrapf(ErrInvalid, "tickInterval %v must be positive", c.TickInterval)
	case len(c.Colors) == 0:
		return errors.Wrap(ErrInvalid, "colors must not be empty")
	}
	if _, err := ParsePalette(c.Colors); err != nil {
		return err
	}
	return nil
}

// Visible reports whether a detection passes the display gate: its score is at
// least ScoreThreshold and, when DisplayLabels is set, its label is listed.
func (c *Config) Visible(d postprocess.Detection) bool {
	if d.Score < c.ScoreThreshold {
		return false
	}
	if len(c.display) == 0 {
		return true
	}
	_, ok := c.display[d.Label]
	return ok
}

// Color returns the palette color for a class id, cycling through the palette.
func (c *Config) Color(class int) color.Color {
	n := len(c.palette)
	if n == 0 {
		return color.White
	}
	return c.palette[((class%n)+n)%n]
}

// Palette returns a copy of the parsed palette.
func (c *Config) Palette() []color.Color {
	return slices.Clone(c.palette)
}

// ParsePalette parses hex color strings such as "#FF3838".
//
// Arguments:
//   - colors: The hex strings.
//
// Returns:
//   - []color.Color: The parsed colors, fully opaque.
//   - error: An error wrapping ErrInvalid naming the first unparsable entry.
func ParsePalette(colors []string) ([]color.Color, error) {
	palette := make([]color.Color, 0, len(colors))
	for i, hex := range colors {
		parsed, err := colorful.Hex(hex)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "colors[%d] %q: %v", i, hex, err)
		}
		r, g, b := parsed.RGB255()
		palette = append(palette, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return palette, nil
}

func (c *Config) clone() *Config {
	next := *c
	next.Labels = c.Labels.Clone()
	next.Colors = slices.Clone(c.Colors)
	next.DisplayLabels = slices.Clone(c.DisplayLabels)
	next.palette = nil
	next.display = nil
	return &next
}

// finalize validates the config and builds the derived lookup tables.
func (c *Config) finalize() error {
	if err := c.Validate(); err != nil {
		return err
	}
	palette, err := ParsePalette(c.Colors)
	if err != nil {
		return err
	}
	c.palette = palette
	if len(c.DisplayLabels) > 0 {
		c.display = make(map[string]struct{}, len(c.DisplayLabels))
		for _, l := range c.DisplayLabels {
			c.display[l] = struct{}{}
		}
	}
	return nil
}

func inUnit(v float32) bool {
	return v >= 0 && v <= 1
}
