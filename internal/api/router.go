package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the surface-level options the router needs beyond
// the App itself.
type RouterConfig struct {
	// DocsUser/DocsPassword gate the route listing. Both empty disables it.
	DocsUser     string
	DocsPassword string
}

func NewRouter(app *App, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(app.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/projects", func(r chi.Router) {
		r.Post("/create", app.CreateProjectHandler)
		r.Delete("/delete/{projectID}", app.DeleteProjectHandler)
		r.Get("/list", app.ListProjectsHandler)
		r.Get("/search", app.SearchProjectsHandler)
		r.Post("/{projectID}/images", app.AddImagesHandler)
	})

	r.Route("/annotation", func(r chi.Router) {
		r.Get("/{projectID}", app.GetAnnotationsHandler)
		r.Post("/{projectID}", app.AddAnnotationHandler)
	})

	r.Route("/datasets", func(r chi.Router) {
		r.Post("/{projectID}/generate", app.GenerateDatasetHandler)
		r.Get("/download/{token}", app.DownloadDatasetHandler)
	})

	r.Post("/playground/process_image", app.ProcessImageHandler)

	r.Route("/finetune", func(r chi.Router) {
		r.Post("/upload", app.UploadFineTuneHandler)
		r.Get("/jobs/{jobID}", app.FineTuneJobStatusHandler)
	})

	// Stored images are served read-only from the storage root.
	imageServer := http.FileServer(http.Dir(app.DataDir))
	r.Handle("/images/*", http.StripPrefix("/images", imageServer))

	if cfg.DocsUser != "" && cfg.DocsPassword != "" {
		creds := map[string]string{cfg.DocsUser: cfg.DocsPassword}
		r.With(middleware.BasicAuth("docs", creds)).Get("/docs", app.DocsHandler)
	}

	return r
}

// DocsHandler lists the API surface. Only mounted when credentials are
// configured; there is no built-in default.
func (app *App) DocsHandler(w http.ResponseWriter, r *http.Request) {
	app.respond.writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": []string{
			"POST /projects/create",
			"DELETE /projects/delete/{projectID}",
			"GET /projects/list",
			"GET /projects/search?keyword=",
			"POST /projects/{projectID}/images",
			"GET /annotation/{projectID}",
			"POST /annotation/{projectID}",
			"POST /datasets/{projectID}/generate?split=train|val|both",
			"GET /datasets/download/{token}",
			"POST /playground/process_image",
			"POST /finetune/upload",
			"GET /finetune/jobs/{jobID}",
			"GET /images/*",
		},
	})
}
