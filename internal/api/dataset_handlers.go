package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/mizuha/annoset/internal/errs"
	"github.com/mizuha/annoset/internal/models"
)

type datasetArtifact struct {
	Split    models.Split `json:"split"`
	Records  int          `json:"records"`
	Download string       `json:"download"`
}

// GenerateDatasetHandler materializes the requested split(s) as JSONL files
// and returns download links resolved through the artifact registry.
// split=both (the default) produces one artifact per split.
func (app *App) GenerateDatasetHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var splits []models.Split
	switch q := r.URL.Query().Get("split"); q {
	case "", "both":
		splits = []models.Split{models.SplitTrain, models.SplitVal}
	default:
		split, err := models.ParseSplit(q)
		if err != nil {
			app.respond.writeError(w, errs.New(errs.Validation, "%v", err))
			return
		}
		splits = []models.Split{split}
	}

	var artifacts []datasetArtifact
	for _, split := range splits {
		path, count, err := app.Exporter.ExportFile(r.Context(), projectID, split)
		if err != nil {
			app.respond.writeError(w, err)
			return
		}
		token := app.Artifacts.Register(Artifact{
			ProjectID: projectID,
			Split:     string(split),
			Path:      path,
			Filename:  fmt.Sprintf("%s_%s.jsonl", projectID, split),
		})
		artifacts = append(artifacts, datasetArtifact{
			Split:    split,
			Records:  count,
			Download: "/datasets/download/" + token,
		})
	}

	app.respond.writeJSON(w, http.StatusOK, map[string]any{
		"project_id": projectID,
		"datasets":   artifacts,
	})
}

func (app *App) DownloadDatasetHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	artifact, ok := app.Artifacts.Resolve(token)
	if !ok {
		app.respond.writeError(w, errs.New(errs.NotFound, "unknown download token"))
		return
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		app.respond.writeError(w, errs.New(errs.NotFound, "dataset file no longer exists"))
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/jsonl")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	http.ServeContent(w, r, artifact.Filename, stat.ModTime(), f)
}
