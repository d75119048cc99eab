package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mizuha/annoset/internal/errs"
	"github.com/mizuha/annoset/internal/ingest"
	"github.com/mizuha/annoset/internal/models"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// ProjectStore owns the storage root. Each project lives in its own
// subdirectory holding project_info.json, annotation.json and imgs/;
// deleting the directory deletes the project and everything it owns.
type ProjectStore struct {
	root        string
	annotations *AnnotationStore
	pipeline    *ingest.Pipeline
	index       *Index
	locks       *projectLocks
	logger      zerolog.Logger
}

// NewStores wires the project and annotation stores over one storage root
// with a shared per-project lock table.
func NewStores(root string, pipeline *ingest.Pipeline, index *Index, logger zerolog.Logger) (*ProjectStore, *AnnotationStore, error) {
	locks := newProjectLocks()
	annotations := NewAnnotationStore(root, locks)
	projects, err := NewProjectStore(root, annotations, pipeline, index, locks, logger)
	if err != nil {
		return nil, nil, err
	}
	return projects, annotations, nil
}

func NewProjectStore(root string, annotations *AnnotationStore, pipeline *ingest.Pipeline, index *Index, locks *projectLocks, logger zerolog.Logger) (*ProjectStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &ProjectStore{
		root:        absRoot,
		annotations: annotations,
		pipeline:    pipeline,
		index:       index,
		locks:       locks,
		logger:      logger,
	}, nil
}

func (s *ProjectStore) projectDir(projectID string) string {
	return filepath.Join(s.root, projectID)
}

// Create allocates a new project, ingests the uploaded files and persists
// the project and annotation documents. A project is never persisted
// without at least one accepted image: if nothing in the upload decodes as
// an image the partially created directory is removed and a validation
// error is returned.
func (s *ProjectStore) Create(name, description, defaultRole string, files []ingest.RawFile, trainRatio float64) (*models.Project, []models.AnnotationRecord, error) {
	if name == "" {
		return nil, nil, errs.New(errs.Validation, "project name is required")
	}
	if trainRatio <= 0 || trainRatio >= 1 {
		return nil, nil, errs.New(errs.Validation, "train ratio must be in (0,1), got %v", trainRatio)
	}

	project := models.NewProject(name, description, "")
	id := project.ID
	dir := s.projectDir(id)
	project.DirPath = dir
	imgsDir := filepath.Join(dir, imgsDirName)
	if err := os.MkdirAll(imgsDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	stored, err := s.pipeline.Ingest(files, imgsDir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("failed to store images: %w", err)
	}
	if len(stored) == 0 {
		os.RemoveAll(dir)
		return nil, nil, errs.New(errs.Validation, "no valid image files in upload")
	}

	train, val := s.pipeline.Partition(stored, trainRatio)
	records := make([]models.AnnotationRecord, 0, len(stored))
	for _, img := range train {
		records = append(records, models.AnnotationRecord{Image: img, Sys: defaultRole, Split: models.SplitTrain})
	}
	for _, img := range val {
		records = append(records, models.AnnotationRecord{Image: img, Sys: defaultRole, Split: models.SplitVal})
	}

	project.ImageCount = len(stored)

	if err := s.annotations.Save(id, records); err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("failed to write annotation document: %w", err)
	}
	if err := writeDocument(filepath.Join(dir, projectInfoFile), project); err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("failed to write project info: %w", err)
	}

	s.indexUpsert(s.summarize(project))
	return project, records, nil
}

func (s *ProjectStore) Get(projectID string) (*models.Project, error) {
	var project models.Project
	if err := readDocument(filepath.Join(s.projectDir(projectID), projectInfoFile), &project); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.New(errs.NotFound, "project %q not found", projectID)
		}
		return nil, err
	}
	return &project, nil
}

// AddImages appends new images to an existing project. The default system
// role for the new records is taken from the project's first annotation
// record; new records are all assigned to the train split. Non-empty
// name/description/model values overwrite the stored project metadata.
func (s *ProjectStore) AddImages(projectID string, files []ingest.RawFile, name, description, model string) (*models.Project, []models.AnnotationRecord, error) {
	mu := s.locks.Get(projectID)
	mu.Lock()
	defer mu.Unlock()

	project, err := s.Get(projectID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.annotations.Load(projectID)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errs.New(errs.InconsistentState, "project %q has no annotation records to derive a default role from", projectID)
	}
	defaultRole := records[0].Sys

	imgsDir := filepath.Join(s.projectDir(projectID), imgsDirName)
	stored, err := s.pipeline.Ingest(files, imgsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store images: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil, errs.New(errs.Validation, "no valid image files in upload")
	}

	added := make([]models.AnnotationRecord, 0, len(stored))
	for _, img := range stored {
		added = append(added, models.AnnotationRecord{Image: img, Sys: defaultRole, Split: models.SplitTrain})
	}
	records = append(records, added...)

	if name != "" {
		project.Name = name
	}
	if description != "" {
		project.Description = description
	}
	if model != "" {
		project.Model = model
	}
	project.ImageCount = len(records)

	if err := s.annotations.Save(projectID, records); err != nil {
		return nil, nil, fmt.Errorf("failed to write annotation document: %w", err)
	}
	if err := writeDocument(filepath.Join(s.projectDir(projectID), projectInfoFile), project); err != nil {
		return nil, nil, fmt.Errorf("failed to write project info: %w", err)
	}

	s.indexUpsert(s.summarize(project))
	return project, added, nil
}

// Delete removes the project's entire storage subtree. Deleting a project
// that does not exist is a no-op.
func (s *ProjectStore) Delete(projectID string) error {
	dir := s.projectDir(projectID)
	if filepath.Dir(dir) != s.root {
		return errs.New(errs.Validation, "invalid project id %q", projectID)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete project directory: %w", err)
	}
	if s.index != nil {
		if err := s.index.Delete(projectID); err != nil {
			s.logger.Warn().Err(err).Str("project_id", projectID).Msg("failed to remove project from index")
		}
	}
	return nil
}

// List returns summaries of every project, newest first. The index answers
// when available; otherwise the storage root is scanned.
func (s *ProjectStore) List() ([]models.ProjectSummary, error) {
	if s.index != nil {
		summaries, err := s.index.List()
		if err == nil {
			return summaries, nil
		}
		s.logger.Warn().Err(err).Msg("project index list failed, falling back to scan")
	}
	return s.Scan()
}

// Search matches keyword case-insensitively against project names and
// descriptions.
func (s *ProjectStore) Search(keyword string) ([]models.ProjectSummary, error) {
	if s.index != nil {
		summaries, err := s.index.Search(keyword)
		if err == nil {
			return summaries, nil
		}
		s.logger.Warn().Err(err).Msg("project index search failed, falling back to scan")
	}

	summaries, err := s.Scan()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(keyword)
	matched := summaries[:0]
	for _, sm := range summaries {
		if strings.Contains(strings.ToLower(sm.Name), needle) || strings.Contains(strings.ToLower(sm.Description), needle) {
			matched = append(matched, sm)
		}
	}
	return matched, nil
}

// Scan walks the storage root and builds summaries for every directory
// holding a readable project_info.json. Used at startup to rebuild the
// index and as the recovery path when the index is unavailable.
func (s *ProjectStore) Scan() ([]models.ProjectSummary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	var summaries []models.ProjectSummary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var project models.Project
		if err := readDocument(filepath.Join(s.root, entry.Name(), projectInfoFile), &project); err != nil {
			continue
		}
		summaries = append(summaries, s.summarize(&project))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (s *ProjectStore) summarize(project *models.Project) models.ProjectSummary {
	return models.ProjectSummary{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		CreatedAt:   project.CreatedAt,
		ImageCount:  project.ImageCount,
		FirstImage:  s.firstImage(project.ID),
		DirPath:     project.DirPath,
	}
}

// firstImage resolves the preview image as the lexicographically first
// image-extension file, so the choice is stable across storage backends.
func (s *ProjectStore) firstImage(projectID string) string {
	imgsDir := filepath.Join(s.projectDir(projectID), imgsDirName)
	entries, err := os.ReadDir(imgsDir)
	if err != nil {
		return ""
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.ToSlash(filepath.Join(projectID, imgsDirName, names[0]))
}

func (s *ProjectStore) indexUpsert(summary models.ProjectSummary) {
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(summary); err != nil {
		s.logger.Warn().Err(err).Str("project_id", summary.ID).Msg("failed to update project index")
	}
}
