package integration

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mizuha/annoset/internal/api"
	"github.com/mizuha/annoset/internal/export"
	"github.com/mizuha/annoset/internal/ingest"
	"github.com/mizuha/annoset/internal/store"
)

type TestServer struct {
	Server      *httptest.Server
	App         *api.App
	Projects    *store.ProjectStore
	Annotations *store.AnnotationStore
	DataDir     string
}

func setupTestServer(t *testing.T) *TestServer {
	t.Helper()

	dataDir := t.TempDir()
	logger := zerolog.Nop()

	pipeline := ingest.NewWithSource(rand.NewSource(1), logger)

	index, err := store.OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Failed to open index: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	projects, annotations, err := store.NewStores(dataDir, pipeline, index, logger)
	if err != nil {
		t.Fatalf("Failed to create stores: %v", err)
	}

	app := api.NewApp(api.App{
		Projects:          projects,
		Annotations:       annotations,
		Exporter:          export.New(dataDir, annotations, logger),
		DataDir:           dataDir,
		MaxUploadSize:     10 * 1024 * 1024,
		DefaultTrainRatio: 0.8,
		Logger:            logger,
	})

	server := httptest.NewServer(api.NewRouter(app, api.RouterConfig{}))
	t.Cleanup(server.Close)

	return &TestServer{
		Server:      server,
		App:         app,
		Projects:    projects,
		Annotations: annotations,
		DataDir:     dataDir,
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 1, color.RGBA{R: 200, G: 100, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// createProjectUpload builds the multipart body for /projects/create.
func createProjectUpload(t *testing.T, name, description, defaultRole string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for filename, content := range files {
		part, err := writer.CreateFormFile("files", filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		if _, err := io.Copy(part, bytes.NewReader(content)); err != nil {
			t.Fatalf("Failed to copy file content: %v", err)
		}
	}

	fields := map[string]string{
		"name":         name,
		"description":  description,
		"default_role": defaultRole,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("Failed to write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func createProject(t *testing.T, ts *TestServer, name, defaultRole string, fileCount int) (string, []string) {
	t.Helper()

	files := make(map[string][]byte, fileCount)
	for i := 0; i < fileCount; i++ {
		files[string(rune('a'+i))+".png"] = pngBytes(t)
	}

	body, contentType := createProjectUpload(t, name, "integration test project", defaultRole, files)
	resp, err := http.Post(ts.Server.URL+"/projects/create", contentType, body)
	if err != nil {
		t.Fatalf("Create request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, raw)
	}

	var created struct {
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
		Annotations []struct {
			Image string `json:"image"`
		} `json:"annotations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode create response: %v", err)
	}

	images := make([]string, len(created.Annotations))
	for i, a := range created.Annotations {
		images[i] = a.Image
	}
	return created.Project.ID, images
}

func doJSON(t *testing.T, method, url string, payload any) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}
