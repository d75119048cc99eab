package export

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mizuha/annoset/internal/errs"
	"github.com/mizuha/annoset/internal/models"
	"github.com/mizuha/annoset/internal/store"
)

// Exporter materializes a project's complete annotation records as JSONL
// chat-completion examples for one split.
type Exporter struct {
	root        string
	annotations *store.AnnotationStore
	logger      zerolog.Logger
}

func New(root string, annotations *store.AnnotationStore, logger zerolog.Logger) *Exporter {
	return &Exporter{root: root, annotations: annotations, logger: logger}
}

type exportLine struct {
	Messages []exportMessage `json:"messages"`
}

// Content is a string for text turns and a []imagePart for the image turn.
type exportMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type imagePart struct {
	Type     string       `json:"type"`
	ImageURL imagePartURL `json:"image_url"`
}

type imagePartURL struct {
	URL string `json:"url"`
}

// WriteJSONL streams the export for one split to w and returns the number
// of lines written. Records are emitted in stored order; a record is
// emitted only when sys, user and label are all non-empty. A referenced
// image missing from disk is a hard error so exported counts stay
// auditable.
func (e *Exporter) WriteJSONL(ctx context.Context, projectID string, split models.Split, w io.Writer) (int, error) {
	records, err := e.annotations.Load(projectID)
	if err != nil {
		return 0, err
	}
	return e.writeRecords(ctx, projectID, records, split, w)
}

func (e *Exporter) writeRecords(ctx context.Context, projectID string, records []models.AnnotationRecord, split models.Split, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	count := 0
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		if rec.Split != split {
			continue
		}
		if rec.Sys == "" || rec.User == "" || rec.Label == "" {
			continue
		}

		imgPath := filepath.Join(e.root, projectID, "imgs", rec.Image)
		data, err := os.ReadFile(imgPath)
		if errors.Is(err, fs.ErrNotExist) {
			return count, errs.New(errs.MissingAsset, "annotation references missing image %q", rec.Image)
		}
		if err != nil {
			return count, fmt.Errorf("failed to read image %q: %w", rec.Image, err)
		}

		line := exportLine{
			Messages: []exportMessage{
				{Role: "system", Content: rec.Sys},
				{Role: "user", Content: rec.User},
				{Role: "user", Content: []imagePart{{Type: "image_url", ImageURL: imagePartURL{URL: dataURI(rec.Image, data)}}}},
				{Role: "assistant", Content: rec.Label},
			},
		}
		if err := enc.Encode(line); err != nil {
			return count, fmt.Errorf("failed to encode export line: %w", err)
		}
		count++
	}

	return count, nil
}

// ExportFile writes the split's JSONL into the project directory and
// returns its path. Artifacts are regenerable, not durable state. The
// annotation document is loaded before the file is created so an unknown
// project reports not-found rather than a create failure.
func (e *Exporter) ExportFile(ctx context.Context, projectID string, split models.Split) (string, int, error) {
	records, err := e.annotations.Load(projectID)
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(e.root, projectID, fmt.Sprintf("dataset_%s.jsonl", split))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create dataset file: %w", err)
	}

	buf := bufio.NewWriter(f)
	count, err := e.writeRecords(ctx, projectID, records, split, buf)
	if err != nil {
		f.Close()
		os.Remove(path)
		return "", 0, err
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", 0, err
	}

	e.logger.Info().Str("project_id", projectID).Str("split", string(split)).Int("records", count).Msg("dataset exported")
	return path, count, nil
}

// dataURI embeds image bytes as an inline base64 data URI. The media type
// comes from the stored extension, defaulting to JPEG.
func dataURI(filename string, data []byte) string {
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}
