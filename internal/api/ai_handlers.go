package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mizuha/annoset/internal/ai"
	"github.com/mizuha/annoset/internal/errs"
)

// ProcessImageHandler runs one completion against the vision API: system
// role + instruction + uploaded image. The form's api_key takes precedence
// over the server-configured client.
func (app *App) ProcessImageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "invalid multipart form: %v", err))
		return
	}

	model := r.FormValue("model")
	role := r.FormValue("role")
	instruction := r.FormValue("instruction")
	if model == "" || instruction == "" {
		app.respond.writeError(w, errs.New(errs.Validation, "model and instruction are required"))
		return
	}

	client := app.AI
	if key := r.FormValue("api_key"); key != "" {
		client = ai.NewClient(key, app.AIBaseURL)
	}
	if client == nil {
		app.respond.writeError(w, errs.New(errs.Validation, "no API key provided and none configured"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "file is required"))
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "failed to read file: %v", err))
		return
	}

	response, err := client.CompleteWithImage(r.Context(), model, role, instruction, imageData)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	app.respond.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Success",
		"data": map[string]any{
			"model":       model,
			"role":        role,
			"instruction": instruction,
			"response":    response,
		},
	})
}

// UploadFineTuneHandler accepts a JSONL dataset, uploads it to the
// fine-tuning API and starts a job.
func (app *App) UploadFineTuneHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "invalid multipart form: %v", err))
		return
	}

	if app.AI == nil {
		app.respond.writeError(w, errs.New(errs.Validation, "fine-tuning API key is not configured"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "file is required"))
		return
	}
	defer file.Close()

	model := r.FormValue("model")
	if model == "" {
		model = app.FineTuneModel
	}

	fileID, err := app.AI.UploadTrainingFile(r.Context(), header.Filename, file)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	job, err := app.AI.CreateFineTuneJob(r.Context(), fileID, model)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	app.respond.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":           job.ID,
		"status":           job.Status,
		"model":            job.Model,
		"fine_tuned_model": job.FineTunedModel,
		"training_file":    fileID,
	})
}

func (app *App) FineTuneJobStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if app.AI == nil {
		app.respond.writeError(w, errs.New(errs.Validation, "fine-tuning API key is not configured"))
		return
	}

	job, err := app.AI.GetFineTuneJob(r.Context(), jobID)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	app.respond.writeJSON(w, http.StatusOK, job)
}
