package images

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Letterbox is the scale and padding that maps original-image coordinates into
// model-input coordinates while preserving the aspect ratio.
//
// A Letterbox is computed once per frame and never modified afterwards. The
// preprocessor uses it in the forward direction, the coordinate remapper in the
// inverse direction.
type Letterbox struct {
	// Scale is the uniform resize factor applied to the source image.
	Scale float32 `json:"scale" yaml:"scale"`
	// PadX is the number of padding columns on the left of the resized image.
	PadX int `json:"padX" yaml:"padX"`
	// PadY is the number of padding rows above the resized image.
	PadY int `json:"padY" yaml:"padY"`
	// ResizedWidth is the width of the source image after scaling.
	ResizedWidth int `json:"resizedWidth" yaml:"resizedWidth"`
	// ResizedHeight is the height of the source image after scaling.
	ResizedHeight int `json:"resizedHeight" yaml:"resizedHeight"`
	// SourceWidth is the width of the original image.
	SourceWidth int `json:"sourceWidth" yaml:"sourceWidth"`
	// SourceHeight is the height of the original image.
	SourceHeight int `json:"sourceHeight" yaml:"sourceHeight"`
	// ModelWidth is the width of the model input.
	ModelWidth int `json:"modelWidth" yaml:"modelWidth"`
	// ModelHeight is the height of the model input.
	ModelHeight int `json:"modelHeight" yaml:"modelHeight"`
}

// ComputeLetterbox computes the letterbox mapping of a source image onto a model input.
//
// The resized image is centered; when the leftover is odd the extra row or
// column ends up on the trailing (right/bottom) side.
//
// Arguments:
//   - sourceWidth: The width of the original image.
//   - sourceHeight: The height of the original image.
//   - modelWidth: The width of the model input.
//   - modelHeight: The height of the model input.
//
// Returns:
//   - Letterbox: The transform.
//   - error: An error if any dimension is not positive.
//
// @example
// lb, _ := ComputeLetterbox(800, 600, 640, 640)
// // lb.Scale == 0.8, lb.ResizedWidth == 640, lb.ResizedHeight == 480, lb.PadX == 0, lb.PadY == 80
func ComputeLetterbox(sourceWidth, sourceHeight, modelWidth, modelHeight int) (Letterbox, error) {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return Letterbox{}, errors.Errorf("invalid source dimensions: %dx%d", sourceWidth, sourceHeight)
	}
	if modelWidth <= 0 || modelHeight <= 0 {
		return Letterbox{}, errors.Errorf("invalid model dimensions: %dx%d", modelWidth, modelHeight)
	}

	scale := math32.Min(
		float32(modelWidth)/float32(sourceWidth),
		float32(modelHeight)/float32(sourceHeight),
	)

	resizedWidth := clampInt(int(math32.Round(float32(sourceWidth)*scale)), 1, modelWidth)
	resizedHeight := clampInt(int(math32.Round(float32(sourceHeight)*scale)), 1, modelHeight)

	return Letterbox{
		Scale:         scale,
		PadX:          (modelWidth - resizedWidth) / 2,
		PadY:          (modelHeight - resizedHeight) / 2,
		ResizedWidth:  resizedWidth,
		ResizedHeight: resizedHeight,
		SourceWidth:   sourceWidth,
		SourceHeight:  sourceHeight,
		ModelWidth:    modelWidth,
		ModelHeight:   modelHeight,
	}, nil
}

// Forward maps a box from original-image space into model-input space.
func (l Letterbox) Forward(b Box) Box {
	padX := float32(l.PadX)
	padY := float32(l.PadY)
	return Box{
		Y1: b.Y1*l.Scale + padY,
		X1: b.X1*l.Scale + padX,
		Y2: b.Y2*l.Scale + padY,
		X2: b.X2*l.Scale + padX,
	}
}

// Invert maps a box from model-input space back into original-image space.
//
// Each coordinate is clamped to [0, SourceWidth] or [0, SourceHeight], so the
// result never lies outside the original image. Clamping is the only edge-case
// policy; Invert never fails.
func (l Letterbox) Invert(b Box) Box {
	if l.Scale <= 0 {
		return Box{}
	}
	padX := float32(l.PadX)
	padY := float32(l.PadY)
	maxX := float32(l.SourceWidth)
	maxY := float32(l.SourceHeight)
	return Box{
		Y1: clamp32((b.Y1-padY)/l.Scale, 0, maxY),
		X1: clamp32((b.X1-padX)/l.Scale, 0, maxX),
		Y2: clamp32((b.Y2-padY)/l.Scale, 0, maxY),
		X2: clamp32((b.X2-padX)/l.Scale, 0, maxX),
	}
}

func clamp32(v, lo, hi float32) float32 {
	// NaN compares false everywhere; pin it to the lower bound.
	if math32.IsNaN(v) {
		return lo
	}
	return math32.Max(lo, math32.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
