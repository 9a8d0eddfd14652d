// Package models - Definitions for label sets used to name detector classes.
package models

// Family identifies the dataset naming convention a model was trained with.
type Family string

const (
	// FamilyCOCO is the 80 COCO classes, zero-based, no background class.
	FamilyCOCO Family = "coco"
	// FamilyVOC is the 20 Pascal VOC classes, zero-based, no background class.
	FamilyVOC Family = "voc"
)

// Families lists every built-in family.
var Families = []Family{FamilyCOCO, FamilyVOC}
