package ingest

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RawFile is one uploaded blob, not yet validated as an image.
type RawFile struct {
	Filename string
	Reader   io.Reader
}

// Pipeline validates uploads, stores accepted images under collision-free
// names and partitions batches into train/val. One Pipeline serves every
// request; rand.Rand is not safe for concurrent use, so the RNG is guarded
// by a mutex.
type Pipeline struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Pipeline {
	return NewWithSource(rand.NewSource(time.Now().UnixNano()), logger)
}

// NewWithSource injects the random source used for split shuffling, so tests
// can assert exact train/val membership.
func NewWithSource(src rand.Source, logger zerolog.Logger) *Pipeline {
	return &Pipeline{rng: rand.New(src), logger: logger}
}

// Ingest writes every upload that decodes as a raster image into imgsDir and
// returns the stored filenames. Files that do not decode are skipped and
// logged; a rejected file is a filtered input, not an error.
func (p *Pipeline) Ingest(files []RawFile, imgsDir string) ([]string, error) {
	var stored []string
	for _, f := range files {
		data, err := io.ReadAll(f.Reader)
		if err != nil {
			p.logger.Warn().Err(err).Str("filename", f.Filename).Msg("failed to read upload, skipping")
			continue
		}

		_, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			p.logger.Info().Str("filename", f.Filename).Msg("skipped non-image file")
			continue
		}

		name, err := p.storedName(imgsDir, f.Filename, format)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(imgsDir, name), data, 0644); err != nil {
			return nil, err
		}
		stored = append(stored, name)
	}
	return stored, nil
}

// storedName generates a collision-free filename: random token plus the
// original extension. Token uniqueness is checked against the directory
// rather than assumed.
func (p *Pipeline) storedName(imgsDir, original, format string) (string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = "." + format
		if format == "jpeg" {
			ext = ".jpg"
		}
	}

	for {
		name := uuid.New().String() + ext
		_, err := os.Stat(filepath.Join(imgsDir, name))
		if os.IsNotExist(err) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// Partition shuffles filenames and assigns the first floor(ratio*n) to
// train, the remainder to val.
func (p *Pipeline) Partition(filenames []string, ratio float64) (train, val []string) {
	shuffled := make([]string, len(filenames))
	copy(shuffled, filenames)

	p.mu.Lock()
	p.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	p.mu.Unlock()

	cut := int(ratio * float64(len(shuffled)))
	return shuffled[:cut], shuffled[cut:]
}
