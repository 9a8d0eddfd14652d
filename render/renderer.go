package render

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"go.uber.org/multierr"
)

// TagPadding is the space between a tag's border and its text.
const TagPadding = 2

// Renderer draws detections as labeled boxes.
type Renderer struct {
	padding float64
}

// NewRenderer creates a renderer with the default tag padding.
func NewRenderer() *Renderer {
	return &Renderer{padding: TagPadding}
}

// Tag formats the label tag of a detection, e.g. "person - 87.5%".
func Tag(d postprocess.Detection) string {
	return fmt.Sprintf("%s - %.1f%%", d.Label, d.Score*100)
}

// Render resizes and clears the canvas, then draws every visible detection.
//
// A detection is visible when cfg.Visible accepts it. Each one gets an outline
// in its class color and a filled tag above its top-left corner. Tags are
// kept inside the surface. Drawing continues after a failed primitive; all
// failures are returned together.
//
// Arguments:
//   - canvas: The surface to draw on.
//   - width: The surface width, normally the source frame width.
//   - height: The surface height, normally the source frame height.
//   - detections: Detections in frame coordinates.
//   - cfg: The configuration supplying the display gate, palette and line width.
//
// Returns:
//   - error: The combined drawing errors, nil if everything was drawn.
//
// @example
// canvas := NewImageCanvas(0)
// err := NewRenderer().Render(canvas, frame.Width, frame.Height, result.Detections, cfg)
func (r *Renderer) Render(
	canvas Canvas,
	width, height int,
	detections []postprocess.Detection,
	cfg *config.Config,
) error {
	if err := canvas.Resize(width, height); err != nil {
		// Never leave the previous frame's boxes on the surface.
		canvas.Clear()
		return err
	}
	canvas.Clear()

	var errs error
	for _, d := range detections {
		if !cfg.Visible(d) {
			continue
		}
		errs = multierr.Append(errs, r.draw(canvas, float64(width), d, cfg))
	}
	return errs
}

func (r *Renderer) draw(canvas Canvas, surfaceWidth float64, d postprocess.Detection, cfg *config.Config) error {
	c := cfg.Color(d.Class)
	x, y := float64(d.Box.X1), float64(d.Box.Y1)

	err := canvas.StrokeRect(x, y, float64(d.Box.Width()), float64(d.Box.Height()), c, cfg.BoxLineWidth)

	text := Tag(d)
	textWidth, textHeight := canvas.MeasureText(text)
	tagWidth := textWidth + 2*r.padding
	tagHeight := textHeight + 2*r.padding

	tagX := max(0, min(x, surfaceWidth-tagWidth))
	tagY := max(0, y-tagHeight)

	err = multierr.Append(err, canvas.FillRect(tagX, tagY, tagWidth, tagHeight, c))
	err = multierr.Append(err, canvas.DrawText(text, tagX+r.padding, tagY+r.padding+textHeight, textColor(c)))
	return err
}

// textColor picks black or white text, whichever reads better on the background.
func textColor(background color.Color) color.Color {
	cf, ok := colorful.MakeColor(background)
	if !ok {
		return color.White
	}
	if l, _, _ := cf.Lab(); l > 0.6 {
		return color.Black
	}
	return color.White
}
