package postprocess

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
)

// Remap converts kept candidates into detections in original-image coordinates.
//
// Boxes are mapped through the inverse letterbox and clamped to the source
// image. Class ids outside labels are named models.UnknownLabel. Indices in
// kept that do not address a candidate are skipped.
//
// Arguments:
//   - raw: The decoded candidates.
//   - kept: Indices returned by Suppress, in output order.
//   - lb: The letterbox used to preprocess the frame.
//   - labels: The class labels.
//
// Returns:
//   - []Detection: One detection per valid kept index, in the order of kept.
func Remap(raw []RawCandidate, kept []int, lb images.Letterbox, labels models.LabelSet) []Detection {
	detections := make([]Detection, 0, len(kept))
	for _, i := range kept {
		if i < 0 || i >= len(raw) {
			continue
		}
		score, class := raw[i].Best()
		detections = append(detections, Detection{
			Box:   lb.Invert(raw[i].Box()),
			Score: score,
			Class: class,
			Label: labels.Name(class),
		})
	}
	return detections
}
