package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/nvr-ai/go-detect/models"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options is a partial configuration update. Nil fields leave the current value untouched.
type Options struct {
	ModelURL         *string        `json:"modelUrl,omitempty" yaml:"modelUrl,omitempty"`
	ModelInputWidth  *int           `json:"modelInputWidth,omitempty" yaml:"modelInputWidth,omitempty"`
	ModelInputHeight *int           `json:"modelInputHeight,omitempty" yaml:"modelInputHeight,omitempty"`
	Labels           *[]string      `json:"labels,omitempty" yaml:"labels,omitempty"`
	// LabelFamily selects a built-in label set; Labels wins when both are set.
	LabelFamily    *string        `json:"labelFamily,omitempty" yaml:"labelFamily,omitempty"`
	Colors         *[]string      `json:"colors,omitempty" yaml:"colors,omitempty"`
	DisplayLabels  *[]string      `json:"displayLabels,omitempty" yaml:"displayLabels,omitempty"`
	ScoreThreshold *float32       `json:"scoreThreshold,omitempty" yaml:"scoreThreshold,omitempty"`
	BoxLineWidth   *float64       `json:"boxLineWidth,omitempty" yaml:"boxLineWidth,omitempty"`
	NMS            *NMSOptions    `json:"nms,omitempty" yaml:"nms,omitempty"`
	TickInterval   *time.Duration `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`
}

// NMSOptions is a partial update of the suppression settings.
type NMSOptions struct {
	MaxOutputs     *int     `json:"maxOutputs,omitempty" yaml:"maxOutputs,omitempty"`
	IoUThreshold   *float32 `json:"iouThreshold,omitempty" yaml:"iouThreshold,omitempty"`
	ScoreThreshold *float32 `json:"scoreThreshold,omitempty" yaml:"scoreThreshold,omitempty"`
	ClassAware     *bool    `json:"classAware,omitempty" yaml:"classAware,omitempty"`
}

// Ptr returns a pointer to v, for building Options literals.
func Ptr[T any](v T) *T {
	return &v
}

func (o Options) apply(c *Config) error {
	set(&c.ModelURL, o.ModelURL)
	set(&c.ModelInputWidth, o.ModelInputWidth)
	set(&c.ModelInputHeight, o.ModelInputHeight)
	if o.LabelFamily != nil {
		labels, err := models.LookupFamily(models.Family(*o.LabelFamily))
		if err != nil {
			return errors.Wrapf(ErrInvalid, "labelFamily: %v", err)
		}
		c.Labels = labels
	}
	if o.Labels != nil {
		c.Labels = models.LabelSet(*o.Labels).Clone()
	}
	if o.Colors != nil {
		c.Colors = append([]string(nil), *o.Colors...)
	}
	if o.DisplayLabels != nil {
		c.DisplayLabels = append([]string(nil), *o.DisplayLabels...)
	}
	set(&c.ScoreThreshold, o.ScoreThreshold)
	set(&c.BoxLineWidth, o.BoxLineWidth)
	set(&c.TickInterval, o.TickInterval)
	if o.NMS != nil {
		set(&c.NMS.MaxOutputs, o.NMS.MaxOutputs)
		set(&c.NMS.IoUThreshold, o.NMS.IoUThreshold)
		set(&c.NMS.ScoreThreshold, o.NMS.ScoreThreshold)
		set(&c.NMS.ClassAware, o.NMS.ClassAware)
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Decode reads YAML options. Unknown keys are rejected.
//
// Arguments:
//   - r: The YAML document.
//
// Returns:
//   - Options: The decoded options.
//   - error: An error wrapping ErrInvalid if the document cannot be decoded.
func Decode(r io.Reader) (Options, error) {
	var opts Options
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, errors.Wrapf(ErrInvalid, "decode yaml: %v", err)
	}
	return opts, nil
}

// LoadFile reads YAML options from a file.
//
// @example
// opts, err := LoadFile("detect.yaml")
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// cfg, err := New(opts)
func LoadFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrapf(err, "read config %s", path)
	}
	return Decode(bytes.NewReader(data))
}
