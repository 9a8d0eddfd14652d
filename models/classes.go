package models

import (
	"strings"

	"github.com/pkg/errors"
)

// UnknownLabel is the label given to class ids outside the configured label set.
const UnknownLabel = "unknown"

// LabelSet maps a class id (the slice index) to a human-readable label.
type LabelSet []string

// Name returns the label for a class id.
//
// Arguments:
//   - id: The class id produced by the model.
//
// Returns:
//   - string: The label, or UnknownLabel when id is negative or out of range.
func (s LabelSet) Name(id int) string {
	if id < 0 || id >= len(s) {
		return UnknownLabel
	}
	return s[id]
}

// Index returns the class id of a label.
func (s LabelSet) Index(name string) (int, bool) {
	for i, n := range s {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// Clone returns an independent copy of the set.
func (s LabelSet) Clone() LabelSet {
	if s == nil {
		return nil
	}
	out := make(LabelSet, len(s))
	copy(out, s)
	return out
}

// LookupFamily returns a copy of the built-in label set for a family.
//
// Arguments:
//   - family: The family name, case-insensitive.
//
// Returns:
//   - LabelSet: The labels.
//   - error: An error if the family is not registered.
//
// @example
// labels, err := LookupFamily("coco")
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// fmt.Println(labels.Name(0)) // person
func LookupFamily(family Family) (LabelSet, error) {
	switch Family(strings.ToLower(string(family))) {
	case FamilyCOCO:
		return COCOLabels.Clone(), nil
	case FamilyVOC:
		return VOCLabels.Clone(), nil
	}
	return nil, errors.Errorf("label family %q not registered", family)
}

// COCOLabels is the 80 COCO classes in the order YOLO-style detectors emit them.
var COCOLabels = LabelSet{
	"person",
	"bicycle",
	"car",
	"motorcycle",
	"airplane",
	"bus",
	"train",
	"truck",
	"boat",
	"traffic light",
	"fire hydrant",
	"stop sign",
	"parking meter",
	"bench",
	"bird",
	"cat",
	"dog",
	"horse",
	"sheep",
	"cow",
	"elephant",
	"bear",
	"zebra",
	"giraffe",
	"backpack",
	"umbrella",
	"handbag",
	"tie",
	"suitcase",
	"frisbee",
	"skis",
	"snowboard",
	"sports ball",
	"kite",
	"baseball bat",
	"baseball glove",
	"skateboard",
	"surfboard",
	"tennis racket",
	"bottle",
	"wine glass",
	"cup",
	"fork",
	"knife",
	"spoon",
	"bowl",
	"banana",
	"apple",
	"sandwich",
	"orange",
	"broccoli",
	"carrot",
	"hot dog",
	"pizza",
	"donut",
	"cake",
	"chair",
	"couch",
	"potted plant",
	"bed",
	"dining table",
	"toilet",
	"tv",
	"laptop",
	"mouse",
	"remote",
	"keyboard",
	"cell phone",
	"microwave",
	"oven",
	"toaster",
	"sink",
	"refrigerator",
	"book",
	"clock",
	"vase",
	"scissors",
	"teddy bear",
	"hair drier",
	"toothbrush",
}

// VOCLabels is the 20 Pascal VOC classes.
var VOCLabels = LabelSet{
	"aeroplane",
	"bicycle",
	"bird",
	"boat",
	"bottle",
	"bus",
	"car",
	"cat",
	"chair",
	"cow",
	"diningtable",
	"dog",
	"horse",
	"motorbike",
	"person",
	"pottedplant",
	"sheep",
	"sofa",
	"train",
	"tvmonitor",
}
