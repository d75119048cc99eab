package api

import (
	"sync"

	"github.com/google/uuid"
)

// Artifact is one downloadable generated file.
type Artifact struct {
	ProjectID string
	Split     string
	Path      string
	Filename  string
}

// ArtifactRegistry maps opaque download tokens to generated files, so the
// download endpoint never resolves caller-supplied filesystem paths.
// Regenerating a split replaces its previous token and deleting a project
// drops all of its tokens, so the registry stays bounded by live datasets.
type ArtifactRegistry struct {
	mu        sync.Mutex
	artifacts map[string]Artifact
	current   map[string]string // projectID+split -> token
}

func NewArtifactRegistry() *ArtifactRegistry {
	return &ArtifactRegistry{
		artifacts: make(map[string]Artifact),
		current:   make(map[string]string),
	}
}

func artifactKey(projectID, split string) string {
	return projectID + "/" + split
}

func (r *ArtifactRegistry) Register(a Artifact) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := artifactKey(a.ProjectID, a.Split)
	if old, ok := r.current[key]; ok {
		delete(r.artifacts, old)
	}

	token := uuid.New().String()
	r.artifacts[token] = a
	r.current[key] = token
	return token
}

func (r *ArtifactRegistry) Resolve(token string) (Artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.artifacts[token]
	return a, ok
}

// RemoveProject invalidates every token registered for the project.
func (r *ArtifactRegistry) RemoveProject(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, token := range r.current {
		if r.artifacts[token].ProjectID == projectID {
			delete(r.artifacts, token)
			delete(r.current, key)
		}
	}
}
