// Package preprocess - Converts frames into letterboxed model-input tensors.
package preprocess

import (
	"image"
	"image/draw"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Channels is the number of color channels in a model-input tensor.
const Channels = 3

// ColorMode defines the channel order written into the tensor.
type ColorMode int

const (
	// ColorModeRGB writes channels as R, G, B.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR writes channels as B, G, R (common for OpenCV-trained models).
	ColorModeBGR
)

// Config defines how frames are turned into tensors.
type Config struct {
	// PadValue is the normalized value written into letterbox padding.
	PadValue float32 `json:"padValue" yaml:"padValue"`
	// ColorMode is the channel order of the tensor.
	ColorMode ColorMode `json:"colorMode" yaml:"colorMode"`
}

// Preprocessor handles frame preprocessing for detection models.
//
// A Preprocessor holds no per-frame state and is safe for concurrent use.
type Preprocessor struct {
	config Config
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The preprocessing configuration.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//
// @example
// p := NewPreprocessor(Config{})
// lb, _ := images.ComputeLetterbox(frame.Width, frame.Height, 640, 640)
// input, err := p.Preprocess(frame, lb)
func NewPreprocessor(config Config) *Preprocessor {
	return &Preprocessor{config: config}
}

// Preprocess letterboxes a frame into a [1, H, W, 3] float32 tensor.
//
// The frame is resized with bilinear interpolation to the letterbox's resized
// dimensions, scaled into [0, 1] and placed at (PadX, PadY) inside a tensor of
// exactly the model input size. Everything outside the resized image holds
// PadValue. Identical inputs yield identical tensors.
//
// Arguments:
//   - frame: The source frame.
//   - lb: The letterbox computed for this frame and the model input.
//
// Returns:
//   - *tensor.Dense: The model-input tensor.
//   - error: An error if the frame is invalid or does not match the letterbox.
func (p *Preprocessor) Preprocess(frame images.Frame, lb images.Letterbox) (*tensor.Dense, error) {
	if err := frame.Validate(); err != nil {
		return nil, errors.Wrap(err, "input validation failed")
	}
	if frame.Width != lb.SourceWidth || frame.Height != lb.SourceHeight {
		return nil, errors.Errorf("frame is %dx%d but letterbox expects %dx%d",
			frame.Width, frame.Height, lb.SourceWidth, lb.SourceHeight)
	}
	if lb.ResizedWidth <= 0 || lb.ResizedHeight <= 0 ||
		lb.PadX+lb.ResizedWidth > lb.ModelWidth || lb.PadY+lb.ResizedHeight > lb.ModelHeight {
		return nil, errors.Errorf("letterbox %dx%d at (%d, %d) does not fit model input %dx%d",
			lb.ResizedWidth, lb.ResizedHeight, lb.PadX, lb.PadY, lb.ModelWidth, lb.ModelHeight)
	}

	resized := toRGBA(images.ResizeBilinear(frame.RGBA(), lb.ResizedWidth, lb.ResizedHeight))

	data := make([]float32, lb.ModelHeight*lb.ModelWidth*Channels)
	if p.config.PadValue != 0 {
		for i := range data {
			data[i] = p.config.PadValue
		}
	}

	r, b := 0, 2
	if p.config.ColorMode == ColorModeBGR {
		r, b = 2, 0
	}

	bounds := resized.Bounds()
	for y := 0; y < lb.ResizedHeight; y++ {
		row := (y + lb.PadY) * lb.ModelWidth
		for x := 0; x < lb.ResizedWidth; x++ {
			src := resized.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			dst := (row + x + lb.PadX) * Channels
			data[dst+r] = float32(resized.Pix[src]) / 255
			data[dst+1] = float32(resized.Pix[src+1]) / 255
			data[dst+b] = float32(resized.Pix[src+2]) / 255
		}
	}

	return tensor.New(
		tensor.WithShape(1, lb.ModelHeight, lb.ModelWidth, Channels),
		tensor.WithBacking(data),
	), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}
