package detector

import (
	"time"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	// Detections holds every detection kept by suppression, highest score first.
	Detections []postprocess.Detection `json:"detections"`
	// Width is the width of the source frame.
	Width int `json:"width"`
	// Height is the height of the source frame.
	Height int `json:"height"`
	// Letterbox is the transform used to preprocess the frame.
	Letterbox images.Letterbox `json:"letterbox"`
	// Sequence numbers frames within one stream, starting at 1. It is 0 for one-shot calls.
	Sequence uint64 `json:"sequence"`
	// Elapsed is the time spent processing the frame.
	Elapsed time.Duration `json:"elapsed"`
}

// Payload is the per-frame callback payload in parallel-array form.
type Payload struct {
	// Boxes holds four values per detection: y1, x1, y2, x2 in frame pixels.
	Boxes []float32 `json:"boxes"`
	// Scores holds one score per detection.
	Scores []float32 `json:"scores"`
	// Classes holds one class id per detection.
	Classes []int `json:"classes"`
	// Labels holds one label per detection.
	Labels []string `json:"labels"`
}

// Len returns the number of detections in the payload.
func (p Payload) Len() int {
	return len(p.Scores)
}

// Payload builds the callback payload from the detections that pass the display gate.
//
// Arguments:
//   - cfg: The configuration supplying the display threshold and filter.
//
// Returns:
//   - Payload: The visible detections, in result order.
func (r *FrameResult) Payload(cfg *config.Config) Payload {
	p := Payload{
		Boxes:   []float32{},
		Scores:  []float32{},
		Classes: []int{},
		Labels:  []string{},
	}
	for _, d := range r.Detections {
		if !cfg.Visible(d) {
			continue
		}
		p.Boxes = append(p.Boxes, d.Box.Y1, d.Box.X1, d.Box.Y2, d.Box.X2)
		p.Scores = append(p.Scores, d.Score)
		p.Classes = append(p.Classes, d.Class)
		p.Labels = append(p.Labels, d.Label)
	}
	return p
}
