// Package postprocess - Decoding, suppression and remapping of raw detector output.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-detect/images"
)

// RawCandidate is one undecoded prediction in model-input space.
type RawCandidate struct {
	// CenterX is the horizontal center of the box.
	CenterX float32 `json:"cx"`
	// CenterY is the vertical center of the box.
	CenterY float32 `json:"cy"`
	// Width is the width of the box.
	Width float32 `json:"w"`
	// Height is the height of the box.
	Height float32 `json:"h"`
	// Scores holds one score per class.
	Scores []float32 `json:"scores"`
}

// Box converts the center/size form into corner form.
func (c RawCandidate) Box() images.Box {
	halfW := c.Width / 2
	halfH := c.Height / 2
	return images.Box{
		Y1: c.CenterY - halfH,
		X1: c.CenterX - halfW,
		Y2: c.CenterY + halfH,
		X2: c.CenterX + halfW,
	}
}

// Best returns the highest class score and its class id.
//
// The first maximum wins on ties. A candidate without scores returns (0, -1).
func (c RawCandidate) Best() (float32, int) {
	if len(c.Scores) == 0 {
		return 0, -1
	}
	best := 0
	for i := 1; i < len(c.Scores); i++ {
		if c.Scores[i] > c.Scores[best] {
			best = i
		}
	}
	return c.Scores[best], best
}

// Detection is a final detection in original-image coordinates.
type Detection struct {
	// Box is the bounding box in original-image pixels.
	Box images.Box `json:"box"`
	// Score is the confidence of the detection.
	Score float32 `json:"score"`
	// Class is the predicted class id.
	Class int `json:"class"`
	// Label is the human-readable class name.
	Label string `json:"label"`
}

// String returns a human-readable representation of the detection.
func (d Detection) String() string {
	return fmt.Sprintf("%s %.1f%% %s", d.Label, d.Score*100, d.Box)
}
