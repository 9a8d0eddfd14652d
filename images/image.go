// Package images - Frame definition for processing utilities.
package images

import (
	"image"
	"image/draw"

	"github.com/pkg/errors"
)

// Frame is a single decoded picture handed over by a frame provider.
//
// Pix holds RGBA pixels, row-major, with a stride of 4*Width bytes.
type Frame struct {
	// The width of the frame.
	Width int `json:"width" yaml:"width"`
	// The height of the frame.
	Height int `json:"height" yaml:"height"`
	// The RGBA pixel buffer of the frame.
	Pix []byte `json:"-" yaml:"-"`
}

// Validate checks that the frame has positive dimensions and a large enough buffer.
//
// Returns:
//   - error: An error describing the first problem found, nil otherwise.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Errorf("invalid frame dimensions: %dx%d", f.Width, f.Height)
	}
	if need := 4 * f.Width * f.Height; len(f.Pix) < need {
		return errors.Errorf("frame buffer holds %d bytes, needs %d", len(f.Pix), need)
	}
	return nil
}

// RGBA wraps the frame's pixel buffer in an *image.RGBA without copying.
func (f Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// FrameFromImage converts any image.Image into a Frame.
//
// *image.RGBA values anchored at the origin are shared; all other images are
// copied into a fresh RGBA buffer.
//
// Arguments:
//   - img: The source image.
//
// Returns:
//   - Frame: The frame.
//
// @example
// img, _ := png.Decode(r)
// frame := FrameFromImage(img)
func FrameFromImage(img image.Image) Frame {
	bounds := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) && rgba.Stride == 4*bounds.Dx() {
		return Frame{Width: bounds.Dx(), Height: bounds.Dy(), Pix: rgba.Pix}
	}

	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return Frame{Width: bounds.Dx(), Height: bounds.Dy(), Pix: dst.Pix}
}
