package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mizuha/annoset/internal/errs"
	"github.com/mizuha/annoset/internal/models"
)

func (app *App) GetAnnotationsHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	project, err := app.Projects.Get(projectID)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}
	records, err := app.Annotations.Load(projectID)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	app.respond.writeJSON(w, http.StatusOK, map[string]any{
		"project_id":   projectID,
		"project_info": project,
		"annotations":  records,
	})
}

type annotationRequest struct {
	Image string `json:"image"`
	Sys   string `json:"sys"`
	User  string `json:"user"`
	Label string `json:"label"`
	Split string `json:"dataset_split"`
}

func (app *App) AddAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req annotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "invalid request body: %v", err))
		return
	}
	if req.Image == "" {
		app.respond.writeError(w, errs.New(errs.Validation, "image is required"))
		return
	}

	var split models.Split
	if req.Split != "" {
		parsed, err := models.ParseSplit(req.Split)
		if err != nil {
			app.respond.writeError(w, errs.New(errs.Validation, "%v", err))
			return
		}
		split = parsed
	}

	record, err := app.Annotations.UpsertByImage(projectID, req.Image, req.Sys, req.User, req.Label, split)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	app.respond.writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Annotation updated successfully",
		"annotation": record,
	})
}
