package postprocess

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrShapeMismatch is returned when a model output does not have a supported layout.
var ErrShapeMismatch = errors.New("output shape mismatch")

// boxAttributes is the number of leading box values per candidate (cx, cy, w, h).
const boxAttributes = 4

// Decode turns a raw detector output into candidates.
//
// Supported layouts are [1, N, 4+C] and its transpose [1, 4+C, N]. When numClasses
// is positive the attribute axis is the one equal to 4+numClasses; otherwise the
// smaller trailing dimension is taken as the attribute axis. When both trailing
// dimensions match, the [1, N, 4+C] layout is assumed. The output tensor is never
// modified.
//
// Arguments:
//   - output: The model output, float32.
//   - numClasses: The number of classes, or 0 to infer it from the shape.
//
// Returns:
//   - []RawCandidate: The candidates in output order.
//   - error: ErrShapeMismatch if the layout is not supported.
//
// @example
// raw, err := Decode(output, len(labels))
//
//	if errors.Is(err, ErrShapeMismatch) {
//	    log.Printf("unexpected model output: %v", err)
//	}
func Decode(output tensor.Tensor, numClasses int) ([]RawCandidate, error) {
	if output == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "nil output")
	}
	if output.Dtype() != tensor.Float32 {
		return nil, errors.Wrapf(ErrShapeMismatch, "dtype %v, want float32", output.Dtype())
	}

	shape := output.Shape()
	if len(shape) != 3 || shape[0] != 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "shape %v, want [1, N, 4+C] or [1, 4+C, N]", shape)
	}

	transposed, attrs, err := layout(shape[1], shape[2], numClasses)
	if err != nil {
		return nil, errors.Wrapf(err, "shape %v", shape)
	}

	view := output
	if transposed {
		clone, ok := output.Clone().(tensor.Tensor)
		if !ok {
			return nil, errors.Wrap(ErrShapeMismatch, "output cannot be cloned")
		}
		if err := clone.T(0, 2, 1); err != nil {
			return nil, errors.Wrap(err, "transpose output")
		}
		if err := clone.Transpose(); err != nil {
			return nil, errors.Wrap(err, "transpose output")
		}
		view = clone
	}

	data, ok := view.Data().([]float32)
	if !ok {
		return nil, errors.Wrap(ErrShapeMismatch, "output data is not a float32 slice")
	}

	n := len(data) / attrs
	candidates := make([]RawCandidate, n)
	for i := range candidates {
		row := data[i*attrs : (i+1)*attrs]
		scores := make([]float32, attrs-boxAttributes)
		copy(scores, row[boxAttributes:])
		candidates[i] = RawCandidate{
			CenterX: row[0],
			CenterY: row[1],
			Width:   row[2],
			Height:  row[3],
			Scores:  scores,
		}
	}
	return candidates, nil
}

// layout resolves which trailing axis holds the attributes.
func layout(d1, d2, numClasses int) (transposed bool, attrs int, err error) {
	if numClasses > 0 {
		want := boxAttributes + numClasses
		switch want {
		case d2:
			return false, want, nil
		case d1:
			return true, want, nil
		}
		return false, 0, errors.Wrapf(ErrShapeMismatch, "no axis of size %d", want)
	}

	attrs = min(d1, d2)
	if attrs <= boxAttributes {
		return false, 0, errors.Wrapf(ErrShapeMismatch, "attribute axis of size %d has no class scores", attrs)
	}
	return d1 < d2, attrs, nil
}

// Flatten splits candidates into parallel boxes, best scores and class ids.
//
// Arguments:
//   - raw: The decoded candidates.
//
// Returns:
//   - []images.Box: Boxes in model-input space.
//   - []float32: The best class score of each candidate.
//   - []int: The class id of each best score.
func Flatten(raw []RawCandidate) ([]images.Box, []float32, []int) {
	boxes := make([]images.Box, len(raw))
	scores := make([]float32, len(raw))
	classes := make([]int, len(raw))
	for i, c := range raw {
		boxes[i] = c.Box()
		scores[i], classes[i] = c.Best()
	}
	return boxes, scores, classes
}
