package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is the persisted project_info.json document.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Model       string    `json:"model"`
	ImageCount  int       `json:"image_count"`
	CreatedAt   time.Time `json:"created_at"`
	DirPath     string    `json:"dir_path"`
}

func NewProject(name, description, dirPath string) *Project {
	return &Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		DirPath:     dirPath,
	}
}

// ProjectSummary is the listing/search view of a project. FirstImage is a
// storage-root-relative path to the preview image, empty when the project
// has no images.
type ProjectSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	ImageCount  int       `json:"image_count"`
	FirstImage  string    `json:"first_image,omitempty"`
	DirPath     string    `json:"dir_path"`
}
