package api

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mizuha/annoset/internal/ai"
	"github.com/mizuha/annoset/internal/errs"
	"github.com/mizuha/annoset/internal/export"
	"github.com/mizuha/annoset/internal/ingest"
	"github.com/mizuha/annoset/internal/store"
)

type App struct {
	Projects    *store.ProjectStore
	Annotations *store.AnnotationStore
	Exporter    *export.Exporter
	Artifacts   *ArtifactRegistry
	AI          *ai.Client

	DataDir           string
	MaxUploadSize     int64
	DefaultTrainRatio float64
	AIBaseURL         string
	FineTuneModel     string

	Logger zerolog.Logger

	respond responder
}

func NewApp(app App) *App {
	app.respond = responder{logger: app.Logger}
	if app.Artifacts == nil {
		app.Artifacts = NewArtifactRegistry()
	}
	return &app
}

// openUploads converts multipart file headers into ingest inputs. The
// returned closer must be called after ingestion completes.
func openUploads(headers []*multipart.FileHeader) ([]ingest.RawFile, func(), error) {
	var files []ingest.RawFile
	var opened []multipart.File

	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opened = append(opened, f)
		files = append(files, ingest.RawFile{Filename: fh.Filename, Reader: f})
	}
	return files, closeAll, nil
}

func (app *App) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "invalid multipart form: %v", err))
		return
	}

	name := r.FormValue("name")
	if name == "" {
		app.respond.writeError(w, errs.New(errs.Validation, "name is required"))
		return
	}
	description := r.FormValue("description")
	defaultRole := r.FormValue("default_role")

	ratio := app.DefaultTrainRatio
	if v := r.FormValue("train_ratio"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			app.respond.writeError(w, errs.New(errs.Validation, "invalid train_ratio %q", v))
			return
		}
		ratio = parsed
	}

	files, closeFiles, err := openUploads(r.MultipartForm.File["files"])
	if err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "failed to read uploads: %v", err))
		return
	}
	defer closeFiles()

	project, records, err := app.Projects.Create(name, description, defaultRole, files, ratio)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	app.respond.writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "Project created successfully",
		"project":     project,
		"annotations": records,
	})
}

func (app *App) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if err := app.Projects.Delete(projectID); err != nil {
		app.respond.writeError(w, err)
		return
	}
	app.Artifacts.RemoveProject(projectID)

	app.respond.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Project '" + projectID + "' deleted",
	})
}

func (app *App) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := app.Projects.List()
	if err != nil {
		app.respond.writeError(w, err)
		return
	}
	app.respond.writeJSON(w, http.StatusOK, summaries)
}

func (app *App) SearchProjectsHandler(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")

	summaries, err := app.Projects.Search(keyword)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}
	app.respond.writeJSON(w, http.StatusOK, summaries)
}

func (app *App) AddImagesHandler(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "invalid multipart form: %v", err))
		return
	}

	files, closeFiles, err := openUploads(r.MultipartForm.File["files"])
	if err != nil {
		app.respond.writeError(w, errs.New(errs.Validation, "failed to read uploads: %v", err))
		return
	}
	defer closeFiles()

	project, added, err := app.Projects.AddImages(
		projectID,
		files,
		r.FormValue("name"),
		r.FormValue("description"),
		r.FormValue("model"),
	)
	if err != nil {
		app.respond.writeError(w, err)
		return
	}

	app.respond.writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Images added successfully",
		"project":     project,
		"annotations": added,
	})
}
