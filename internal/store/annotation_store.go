package store

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/mizuha/annoset/internal/errs"
	"github.com/mizuha/annoset/internal/models"
)

// AnnotationStore owns the per-project annotation.json document.
type AnnotationStore struct {
	root  string
	locks *projectLocks
}

func NewAnnotationStore(root string, locks *projectLocks) *AnnotationStore {
	return &AnnotationStore{root: root, locks: locks}
}

func (s *AnnotationStore) path(projectID string) string {
	return filepath.Join(s.root, projectID, annotationFile)
}

// NormalizeImageKey canonicalizes an image filename for comparison. Upload
// sources disagree on Unicode composition (macOS produces NFD), so keys are
// compared after NFC normalization and whitespace trimming.
func NormalizeImageKey(image string) string {
	return norm.NFC.String(strings.TrimSpace(image))
}

func (s *AnnotationStore) Load(projectID string) ([]models.AnnotationRecord, error) {
	var records []models.AnnotationRecord
	if err := readDocument(s.path(projectID), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Save atomically overwrites the project's annotation document.
func (s *AnnotationStore) Save(projectID string, records []models.AnnotationRecord) error {
	if records == nil {
		records = []models.AnnotationRecord{}
	}
	return writeDocument(s.path(projectID), records)
}

// UpsertByImage updates the first record whose normalized image key matches
// the given one. Collision-free ingestion naming guarantees at most one
// match. The record is created at ingestion time, never here, so an
// unmatched key is a not-found error. An empty split leaves the stored
// split untouched.
func (s *AnnotationStore) UpsertByImage(projectID, image, sys, user, label string, split models.Split) (*models.AnnotationRecord, error) {
	mu := s.locks.Get(projectID)
	mu.Lock()
	defer mu.Unlock()

	records, err := s.Load(projectID)
	if err != nil {
		return nil, err
	}

	key := NormalizeImageKey(image)
	for i := range records {
		if NormalizeImageKey(records[i].Image) != key {
			continue
		}
		records[i].Sys = sys
		records[i].User = user
		records[i].Label = label
		if split != "" {
			records[i].Split = split
		}
		if err := s.Save(projectID, records); err != nil {
			return nil, err
		}
		rec := records[i]
		return &rec, nil
	}

	return nil, errs.New(errs.NotFound, "image %q not found in annotations", image)
}
