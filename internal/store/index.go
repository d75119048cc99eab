package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mizuha/annoset/internal/models"
)

// Index is a sqlite-backed listing/search index over project summaries. It
// is derived state: rebuilt from a storage-root scan at startup and updated
// incrementally afterwards. Callers fall back to scanning when it errors.
type Index struct {
	db *sql.DB
}

func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping index database: %w", err)
	}

	ix := &Index{db: db}
	if err := ix.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index table: %w", err)
	}
	return ix, nil
}

func (ix *Index) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		created_at DATETIME NOT NULL,
		image_count INTEGER NOT NULL,
		first_image TEXT,
		dir_path TEXT NOT NULL
	);
	`
	_, err := ix.db.Exec(query)
	return err
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Rebuild replaces the entire index with the given summaries.
func (ix *Index) Rebuild(summaries []models.ProjectSummary) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM projects`); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	for _, s := range summaries {
		if _, err := tx.Exec(
			`INSERT INTO projects (id, name, description, created_at, image_count, first_image, dir_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.Name, s.Description, s.CreatedAt, s.ImageCount, s.FirstImage, s.DirPath,
		); err != nil {
			return fmt.Errorf("failed to insert project %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

func (ix *Index) Upsert(s models.ProjectSummary) error {
	_, err := ix.db.Exec(
		`INSERT INTO projects (id, name, description, created_at, image_count, first_image, dir_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			created_at = excluded.created_at,
			image_count = excluded.image_count,
			first_image = excluded.first_image,
			dir_path = excluded.dir_path`,
		s.ID, s.Name, s.Description, s.CreatedAt, s.ImageCount, s.FirstImage, s.DirPath,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", s.ID, err)
	}
	return nil
}

func (ix *Index) Delete(id string) error {
	if _, err := ix.db.Exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	return nil
}

func (ix *Index) List() ([]models.ProjectSummary, error) {
	return ix.query(`SELECT id, name, description, created_at, image_count, first_image, dir_path
		FROM projects ORDER BY created_at DESC`)
}

// Search matches keyword against name and description, case-insensitively.
// Matching happens in Go rather than SQL: sqlite's LOWER folds ASCII only,
// which would make index results diverge from the scan fallback on
// non-ASCII keywords.
func (ix *Index) Search(keyword string) ([]models.ProjectSummary, error) {
	summaries, err := ix.List()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(keyword)
	matched := []models.ProjectSummary{}
	for _, s := range summaries {
		if strings.Contains(strings.ToLower(s.Name), needle) ||
			strings.Contains(strings.ToLower(s.Description), needle) {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

func (ix *Index) query(q string, args ...any) ([]models.ProjectSummary, error) {
	rows, err := ix.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	summaries := []models.ProjectSummary{}
	for rows.Next() {
		var s models.ProjectSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.ImageCount, &s.FirstImage, &s.DirPath); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
