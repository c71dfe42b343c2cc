// Package storage persists processed video records in SQLite so the status
// and navigation surfaces survive a restart. Embedding vectors are not
// stored; the in-memory vector index is rebuilt by re-ingesting.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding video, section, and chunk records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ttyv.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// SaveVideo persists a processed video record. Any existing record for the
// same video id is replaced wholesale in the same transaction, so readers
// never observe a mix of old and new rows.
func (s *Store) SaveVideo(v Video) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM videos WHERE video_id = ?", v.VideoID); err != nil {
		return fmt.Errorf("clearing prior record: %w", err)
	}

	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`
		INSERT INTO videos (video_id, youtube_url, processing_mode, transcript_length, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		v.VideoID, v.YouTubeURL, v.ProcessingMode, v.TranscriptLength, createdAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting video: %w", err)
	}

	for i, sec := range v.Sections {
		if _, err := tx.Exec(`
			INSERT INTO sections (video_id, position, title, summary, start_time, end_time)
			VALUES (?, ?, ?, ?, ?, ?)`,
			v.VideoID, i, sec.Title, sec.Summary, sec.Start, sec.End,
		); err != nil {
			return fmt.Errorf("inserting section %d: %w", i, err)
		}
	}

	for _, c := range v.Chunks {
		if _, err := tx.Exec(`
			INSERT INTO chunks (video_id, idx, text, start_time, end_time, visual)
			VALUES (?, ?, ?, ?, ?, ?)`,
			v.VideoID, c.Idx, c.Text, c.Start, c.End, boolToInt(c.Visual),
		); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Idx, err)
		}
	}

	return tx.Commit()
}

// GetVideo returns the full record for videoID, sections and chunks included.
func (s *Store) GetVideo(videoID string) (Video, error) {
	var v Video
	var createdAt string
	err := s.db.QueryRow(`
		SELECT video_id, youtube_url, processing_mode, transcript_length, created_at
		FROM videos WHERE video_id = ?`, videoID,
	).Scan(&v.VideoID, &v.YouTubeURL, &v.ProcessingMode, &v.TranscriptLength, &createdAt)
	if err == sql.ErrNoRows {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, err
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Video{}, fmt.Errorf("parsing created_at: %w", err)
	}
	v.CreatedAt = t

	if v.Sections, err = s.sectionsFor(videoID); err != nil {
		return Video{}, err
	}
	if v.Chunks, err = s.chunksFor(videoID); err != nil {
		return Video{}, err
	}
	return v, nil
}

func (s *Store) sectionsFor(videoID string) ([]Section, error) {
	rows, err := s.db.Query(`
		SELECT title, summary, start_time, end_time
		FROM sections WHERE video_id = ? ORDER BY position ASC`, videoID)
	if err != nil {
		return nil, fmt.Errorf("querying sections: %w", err)
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.Title, &sec.Summary, &sec.Start, &sec.End); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *Store) chunksFor(videoID string) ([]Chunk, error) {
	rows, err := s.db.Query(`
		SELECT idx, text, start_time, end_time, visual
		FROM chunks WHERE video_id = ? ORDER BY idx ASC`, videoID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var visual int
		if err := rows.Scan(&c.Idx, &c.Text, &c.Start, &c.End, &visual); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Visual = visual != 0
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ListVideos returns summary records (no sections/chunks), newest first.
func (s *Store) ListVideos(limit int) ([]Video, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT video_id, youtube_url, processing_mode, transcript_length, created_at
		FROM videos ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying videos: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		var v Video
		var createdAt string
		if err := rows.Scan(&v.VideoID, &v.YouTubeURL, &v.ProcessingMode, &v.TranscriptLength, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning video: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		v.CreatedAt = t
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// DeleteVideo removes a video record and its dependent rows.
func (s *Store) DeleteVideo(videoID string) error {
	res, err := s.db.Exec("DELETE FROM videos WHERE video_id = ?", videoID)
	if err != nil {
		return fmt.Errorf("deleting video %s: %w", videoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
