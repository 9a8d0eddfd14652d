// Package render - Draws detections onto a 2D canvas.
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Canvas is a 2D drawing surface.
//
// Coordinates are in pixels with the origin at the top-left corner. Text is
// drawn with its baseline at y.
type Canvas interface {
	// Resize sets the surface size; the content is undefined afterwards.
	Resize(width, height int) error
	// Clear makes the whole surface transparent.
	Clear()
	// StrokeRect outlines a rectangle.
	StrokeRect(x, y, width, height float64, c color.Color, lineWidth float64) error
	// FillRect fills a rectangle.
	FillRect(x, y, width, height float64, c color.Color) error
	// DrawText draws a single line of text.
	DrawText(text string, x, y float64, c color.Color) error
	// MeasureText returns the width and line height of the text.
	MeasureText(text string) (width, height float64)
}

// DefaultFontSize is the point size used for label tags.
const DefaultFontSize = 14

var regular *truetype.Font

func init() {
	var err error
	regular, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// ImageCanvas is a Canvas backed by an in-memory RGBA image.
type ImageCanvas struct {
	dc   *gg.Context
	face font.Face
}

// NewImageCanvas creates a 1x1 canvas drawing text in the Go regular font.
//
// Arguments:
//   - fontSize: The font size in points; non-positive values use DefaultFontSize.
//
// Returns:
//   - *ImageCanvas: The canvas.
func NewImageCanvas(fontSize float64) *ImageCanvas {
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	c := &ImageCanvas{face: truetype.NewFace(regular, &truetype.Options{Size: fontSize})}
	c.dc = c.newContext(1, 1)
	return c
}

func (c *ImageCanvas) newContext(width, height int) *gg.Context {
	dc := gg.NewContext(width, height)
	dc.SetFontFace(c.face)
	return dc
}

// Resize implements Canvas. Resizing to the current size keeps the surface.
func (c *ImageCanvas) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid canvas size %dx%d", width, height)
	}
	if c.dc.Width() == width && c.dc.Height() == height {
		return nil
	}
	c.dc = c.newContext(width, height)
	return nil
}

// Clear implements Canvas.
func (c *ImageCanvas) Clear() {
	c.dc.SetColor(color.Transparent)
	c.dc.Clear()
}

// StrokeRect implements Canvas.
func (c *ImageCanvas) StrokeRect(x, y, width, height float64, col color.Color, lineWidth float64) error {
	if err := checkRect(x, y, width, height); err != nil {
		return err
	}
	c.dc.SetColor(col)
	c.dc.SetLineWidth(lineWidth)
	c.dc.DrawRectangle(x, y, width, height)
	c.dc.Stroke()
	return nil
}

// FillRect implements Canvas.
func (c *ImageCanvas) FillRect(x, y, width, height float64, col color.Color) error {
	if err := checkRect(x, y, width, height); err != nil {
		return err
	}
	c.dc.SetColor(col)
	c.dc.DrawRectangle(x, y, width, height)
	c.dc.Fill()
	return nil
}

// DrawText implements Canvas.
func (c *ImageCanvas) DrawText(text string, x, y float64, col color.Color) error {
	if !finite(x) || !finite(y) {
		return errors.Errorf("invalid text position (%v, %v)", x, y)
	}
	c.dc.SetColor(col)
	c.dc.DrawString(text, x, y)
	return nil
}

// MeasureText implements Canvas.
func (c *ImageCanvas) MeasureText(text string) (float64, float64) {
	return c.dc.MeasureString(text)
}

// Image returns the current surface. The image is reused by later draws.
func (c *ImageCanvas) Image() image.Image {
	return c.dc.Image()
}

func checkRect(x, y, width, height float64) error {
	if !finite(x) || !finite(y) || !finite(width) || !finite(height) || width < 0 || height < 0 {
		return errors.Errorf("invalid rectangle (%v, %v, %v, %v)", x, y, width, height)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
