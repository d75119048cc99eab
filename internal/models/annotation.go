package models

import "fmt"

// Split is the train/validation partition assigned to one annotation record.
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
)

// ParseSplit validates a split value from the outside world.
func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case SplitTrain:
		return SplitTrain, nil
	case SplitVal:
		return SplitVal, nil
	default:
		return "", fmt.Errorf("unknown split %q", s)
	}
}

// AnnotationRecord is one entry of a project's annotation.json document.
// Image is the record's natural key, unique within the project.
type AnnotationRecord struct {
	Image string `json:"image"`
	Sys   string `json:"sys"`
	User  string `json:"user"`
	Label string `json:"label"`
	Split Split  `json:"dataset_split"`
}
