// Package images - Geometry and pixel utilities for the detection pipeline.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Box is an axis-aligned bounding box in (y1, x1, y2, x2) form.
//
// The same type is used in model-input space and in original-image space; which
// space a Box lives in is determined by the stage that produced it.
type Box struct {
	Y1, X1, Y2, X2 float32
}

// Width returns the horizontal extent of the box, or 0 for inverted boxes.
func (b Box) Width() float32 {
	return math32.Max(0, b.X2-b.X1)
}

// Height returns the vertical extent of the box, or 0 for inverted boxes.
func (b Box) Height() float32 {
	return math32.Max(0, b.Y2-b.Y1)
}

// Area returns the area of the box in square pixels.
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// String formats the box for logs and test failures.
func (b Box) String() string {
	return fmt.Sprintf("(y1=%.2f, x1=%.2f, y2=%.2f, x2=%.2f)", b.Y1, b.X1, b.Y2, b.X2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU = Area of Intersection / Area of Union, a value between 0.0 (disjoint)
// and 1.0 (identical). The intersection rectangle starts at the maximum of the
// two top-left corners and ends at the minimum of the two bottom-right corners;
// if it has no positive extent the boxes do not overlap.
//
// A box with zero area has an IoU of 0 with every other box, including an
// identical zero-area box.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: The IoU score in [0, 1].
//
// Example Usage:
// ```go
//
//	a := Box{Y1: 0, X1: 0, Y2: 10, X2: 10}
//	b := Box{Y1: 5, X1: 5, Y2: 15, X2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(a, b Box) float32 {
	areaA := a.Area()
	areaB := b.Area()
	if areaA <= 0 || areaB <= 0 {
		return 0
	}

	iy1 := math32.Max(a.Y1, b.Y1)
	ix1 := math32.Max(a.X1, b.X1)
	iy2 := math32.Min(a.Y2, b.Y2)
	ix2 := math32.Min(a.X2, b.X2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	// Inclusion-exclusion: Union(A, B) = Area(A) + Area(B) - Intersection(A, B).
	return interArea / (areaA + areaB - interArea)
}
