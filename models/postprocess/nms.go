package postprocess

import (
	"cmp"
	"slices"

	"github.com/nvr-ai/go-detect/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// MaxOutputs is the maximum number of boxes kept.
	MaxOutputs int `json:"maxOutputs" yaml:"maxOutputs"`
	// IoUThreshold is the overlap above which a lower-scored box is suppressed.
	IoUThreshold float32 `json:"iouThreshold" yaml:"iouThreshold"`
	// ScoreThreshold drops candidates scoring below it before suppression.
	ScoreThreshold float32 `json:"scoreThreshold" yaml:"scoreThreshold"`
	// ClassAware restricts suppression to boxes of the same class.
	ClassAware bool `json:"classAware" yaml:"classAware"`
}

// DefaultNMSConfig returns the class-agnostic defaults: 500 outputs, IoU 0.45, score 0.2.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{
		MaxOutputs:     500,
		IoUThreshold:   0.45,
		ScoreThreshold: 0.2,
	}
}

// Apply runs Suppress or SuppressByClass depending on config.ClassAware.
func Apply(boxes []images.Box, scores []float32, classes []int, config NMSConfig) []int {
	if config.ClassAware {
		return SuppressByClass(boxes, scores, classes, config)
	}
	return Suppress(boxes, scores, config)
}

// Suppress performs class-agnostic greedy Non-Maximum Suppression.
//
// Candidates scoring below config.ScoreThreshold are dropped. The rest are
// visited by descending score, equal scores in ascending index order. A
// candidate is kept unless its IoU with an already kept box exceeds
// config.IoUThreshold. Selection stops after config.MaxOutputs boxes.
//
// Arguments:
//   - boxes: Candidate boxes.
//   - scores: One score per box.
//   - config: NMS configuration.
//
// Returns:
//   - []int: Indices of kept boxes, highest score first.
//
// @example
// kept := Suppress(boxes, scores, DefaultNMSConfig())
//
//	for _, i := range kept {
//	    fmt.Println(boxes[i], scores[i])
//	}
func Suppress(boxes []images.Box, scores []float32, config NMSConfig) []int {
	return greedy(boxes, scores, nil, config)
}

// SuppressByClass performs greedy Non-Maximum Suppression within each class.
//
// It behaves like Suppress, except that a box is only suppressed by kept boxes
// of the same class. MaxOutputs bounds the total across all classes.
func SuppressByClass(boxes []images.Box, scores []float32, classes []int, config NMSConfig) []int {
	if len(classes) < min(len(boxes), len(scores)) {
		return Suppress(boxes, scores, config)
	}
	return greedy(boxes, scores, classes, config)
}

func greedy(boxes []images.Box, scores []float32, classes []int, config NMSConfig) []int {
	n := min(len(boxes), len(scores))
	if n == 0 || config.MaxOutputs <= 0 {
		return []int{}
	}

	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		// Written as a negation so NaN scores are dropped too.
		if !(scores[i] >= config.ScoreThreshold) {
			continue
		}
		order = append(order, i)
	}

	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	kept := make([]int, 0, min(len(order), config.MaxOutputs))
	for _, i := range order {
		if len(kept) == config.MaxOutputs {
			break
		}
		suppressed := false
		for _, k := range kept {
			if classes != nil && classes[i] != classes[k] {
				continue
			}
			if images.CalculateIoU(boxes[k], boxes[i]) > config.IoUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, i)
		}
	}
	return kept
}
