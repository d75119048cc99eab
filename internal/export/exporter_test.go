package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mizuha/annoset/internal/errs"
	"github.com/mizuha/annoset/internal/ingest"
	"github.com/mizuha/annoset/internal/models"
	"github.com/mizuha/annoset/internal/store"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

type testProject struct {
	exporter *Exporter
	id       string
	root     string
	image    []byte
}

// setupProject creates one project with a single stored image and the given
// annotation record attached to it.
func setupProject(t *testing.T, rec models.AnnotationRecord) *testProject {
	t.Helper()
	root := t.TempDir()

	pipeline := ingest.NewWithSource(rand.NewSource(1), zerolog.Nop())
	projects, annotations, err := store.NewStores(root, pipeline, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create stores: %v", err)
	}

	img := pngBytes(t)
	project, records, err := projects.Create("Export test", "", rec.Sys, []ingest.RawFile{
		{Filename: "a.png", Reader: bytes.NewReader(img)},
	}, 0.8)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec.Image = records[0].Image
	if err := annotations.Save(project.ID, []models.AnnotationRecord{rec}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	return &testProject{
		exporter: New(root, annotations, zerolog.Nop()),
		id:       project.ID,
		root:     root,
		image:    img,
	}
}

func TestExporter_RoundTrip(t *testing.T) {
	tp := setupProject(t, models.AnnotationRecord{
		Sys:   "You describe road scenes.",
		User:  "What is in this image?",
		Label: "A red traffic light.",
		Split: models.SplitTrain,
	})

	var buf bytes.Buffer
	count, err := tp.exporter.WriteJSONL(context.Background(), tp.id, models.SplitTrain, &buf)
	if err != nil {
		t.Fatalf("WriteJSONL failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 exported record, got %d", count)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 JSONL line, got %d", len(lines))
	}

	var line struct {
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &line); err != nil {
		t.Fatalf("Export line is not valid JSON: %v", err)
	}
	if len(line.Messages) != 4 {
		t.Fatalf("Expected 4 turns, got %d", len(line.Messages))
	}

	roles := []string{"system", "user", "user", "assistant"}
	for i, want := range roles {
		if line.Messages[i].Role != want {
			t.Errorf("Turn %d: expected role %s, got %s", i, want, line.Messages[i].Role)
		}
	}

	var label string
	if err := json.Unmarshal(line.Messages[3].Content, &label); err != nil {
		t.Fatalf("Assistant turn is not a string: %v", err)
	}
	if label != "A red traffic light." {
		t.Errorf("Assistant content %q does not match label", label)
	}

	var imageTurn []struct {
		Type     string `json:"type"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	if err := json.Unmarshal(line.Messages[2].Content, &imageTurn); err != nil {
		t.Fatalf("Image turn is not a content-part array: %v", err)
	}
	if len(imageTurn) != 1 || imageTurn[0].Type != "image_url" {
		t.Fatalf("Unexpected image turn: %+v", imageTurn)
	}

	const prefix = "data:image/png;base64,"
	url := imageTurn[0].ImageURL.URL
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("Unexpected data URI prefix: %.40s", url)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("Embedded image is not valid base64: %v", err)
	}
	if !bytes.Equal(decoded, tp.image) {
		t.Error("Embedded image bytes differ from stored file")
	}

	// The val split of the same project must be empty.
	buf.Reset()
	count, err = tp.exporter.WriteJSONL(context.Background(), tp.id, models.SplitVal, &buf)
	if err != nil {
		t.Fatalf("WriteJSONL(val) failed: %v", err)
	}
	if count != 0 || buf.Len() != 0 {
		t.Errorf("Expected empty val export, got %d records, %d bytes", count, buf.Len())
	}
}

func TestExporter_IncompleteRecordsExcluded(t *testing.T) {
	tp := setupProject(t, models.AnnotationRecord{
		Sys:   "role",
		User:  "question",
		Label: "", // incomplete
		Split: models.SplitTrain,
	})

	for _, split := range []models.Split{models.SplitTrain, models.SplitVal} {
		var buf bytes.Buffer
		count, err := tp.exporter.WriteJSONL(context.Background(), tp.id, split, &buf)
		if err != nil {
			t.Fatalf("WriteJSONL(%s) failed: %v", split, err)
		}
		if count != 0 {
			t.Errorf("Incomplete record exported to %s split", split)
		}
	}
}

func TestExporter_MissingAssetIsHardFailure(t *testing.T) {
	tp := setupProject(t, models.AnnotationRecord{
		Sys:   "role",
		User:  "question",
		Label: "answer",
		Split: models.SplitTrain,
	})

	entries, err := os.ReadDir(filepath.Join(tp.root, tp.id, "imgs"))
	if err != nil {
		t.Fatalf("Failed to list imgs: %v", err)
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(tp.root, tp.id, "imgs", entry.Name())); err != nil {
			t.Fatalf("Failed to remove image: %v", err)
		}
	}

	var buf bytes.Buffer
	_, err = tp.exporter.WriteJSONL(context.Background(), tp.id, models.SplitTrain, &buf)
	if errs.KindOf(err) != errs.MissingAsset {
		t.Errorf("Expected missing-asset error, got %v", err)
	}
}

func TestExporter_CancelledContext(t *testing.T) {
	tp := setupProject(t, models.AnnotationRecord{
		Sys:   "role",
		User:  "question",
		Label: "answer",
		Split: models.SplitTrain,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := tp.exporter.WriteJSONL(ctx, tp.id, models.SplitTrain, &buf)
	if err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestExporter_ExportFile(t *testing.T) {
	tp := setupProject(t, models.AnnotationRecord{
		Sys:   "role",
		User:  "question",
		Label: "answer",
		Split: models.SplitTrain,
	})

	path, count, err := tp.exporter.ExportFile(context.Background(), tp.id, models.SplitTrain)
	if err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 record, got %d", count)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Dataset file not created: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to scan dataset file: %v", err)
	}
	if lines != 1 {
		t.Errorf("Expected 1 line in dataset file, got %d", lines)
	}
}

func TestExporter_ExportFileUnknownProject(t *testing.T) {
	root := t.TempDir()

	pipeline := ingest.NewWithSource(rand.NewSource(1), zerolog.Nop())
	_, annotations, err := store.NewStores(root, pipeline, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create stores: %v", err)
	}
	exporter := New(root, annotations, zerolog.Nop())

	_, _, err = exporter.ExportFile(context.Background(), "no-such-project", models.SplitTrain)
	if !errs.IsNotFound(err) {
		t.Fatalf("Expected not-found error, got %v", err)
	}

	// The failed export must not leave a dataset file behind.
	if _, err := os.Stat(filepath.Join(root, "no-such-project")); !os.IsNotExist(err) {
		t.Errorf("Expected no project directory to be created, stat err: %v", err)
	}
}

func TestExporter_NonASCIIUnescaped(t *testing.T) {
	tp := setupProject(t, models.AnnotationRecord{
		Sys:   "あなたは標識を説明します。",
		User:  "この画像は何ですか？",
		Label: "赤信号です。",
		Split: models.SplitTrain,
	})

	var buf bytes.Buffer
	if _, err := tp.exporter.WriteJSONL(context.Background(), tp.id, models.SplitTrain, &buf); err != nil {
		t.Fatalf("WriteJSONL failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("赤信号です。")) {
		t.Error("Non-ASCII label was escaped in export output")
	}
}
