package project

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const projectColumns = "id, recipe_id, title, status, created_at, updated_at, output_url, last_error"

// Store persists project and clip metadata in SQLite. Clip media lives on
// disk; the store only records where.
type Store struct {
	db       *sql.DB
	locksDir string
	logger   *slog.Logger
	now      func() time.Time
}

// LockPath is the per-project render lock file inside locksDir.
func LockPath(locksDir, projectID string) string {
	return filepath.Join(locksDir, projectID+".lock")
}

// Open initializes or connects to the project database. Projects left
// mid-render by a process that no longer holds their render lock in
// locksDir are marked failed. With an empty locksDir nothing is marked.
func Open(path, locksDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, locksDir: locksDir, logger: logger, now: time.Now}
	ctx := context.Background()
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if n, err := s.markInterrupted(ctx); err != nil {
		logger.Warn("failed to mark interrupted renders", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted renders as failed", "count", n)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) markInterrupted(ctx context.Context) (int64, error) {
	if s.locksDir == "" {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM projects WHERE status IN (?, ?)`, StatusUploading, StatusProcessing)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()
	if len(ids) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(s.locksDir, 0o755); err != nil {
		return 0, fmt.Errorf("create locks dir: %w", err)
	}
	var marked int64
	for _, id := range ids {
		n, err := s.markIfAbandoned(ctx, id)
		if err != nil {
			return marked, err
		}
		marked += n
	}
	return marked, nil
}

// markIfAbandoned fails an in-flight project whose render lock is free. A
// held lock means a render in another process or store is still running.
func (s *Store) markIfAbandoned(ctx context.Context, id string) (int64, error) {
	lock := flock.New(LockPath(s.locksDir, id))
	ok, err := lock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("check render lock for %s: %w", id, err)
	}
	if !ok {
		s.logger.Debug("render still running, leaving status", "project_id", id)
		return 0, nil
	}
	defer lock.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, last_error = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, "interrupted by restart", s.timestamp(), id,
		StatusUploading, StatusProcessing,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Create inserts a new draft project.
func (s *Store) Create(ctx context.Context, recipeID, title string) (*Project, error) {
	id := uuid.NewString()
	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, recipe_id, title, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, recipeID, title, StatusDraft, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a project with its clips.
func (s *Store) Get(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	clips, err := s.clips(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Clips = clips
	return p, nil
}

// List returns all projects, newest first, with their clips.
func (s *Store) List(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, p := range projects {
		if p.Clips, err = s.clips(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// Delete removes a project and returns the clips it held so their media can
// be released.
func (s *Store) Delete(ctx context.Context, id string) ([]Clip, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete project: %w", err)
	}
	clips := make([]Clip, 0, len(p.Clips))
	for _, c := range p.Clips {
		clips = append(clips, c)
	}
	return clips, nil
}

// PutClip stores the clip for its slot, replacing any previous clip. The
// replaced clip is returned so the caller can release its media.
func (s *Store) PutClip(ctx context.Context, projectID string, clip Clip) (*Clip, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin clip tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id = ?`, projectID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check project: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, projectID)
	}

	var replaced *Clip
	row := tx.QueryRowContext(ctx,
		`SELECT slot_id, media_path, captured_at, transcript FROM clips WHERE project_id = ? AND slot_id = ?`,
		projectID, clip.SlotID,
	)
	if old, err := scanClip(row); err == nil {
		replaced = &old
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read previous clip: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO clips (project_id, slot_id, media_path, captured_at, transcript) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(project_id, slot_id) DO UPDATE SET
             media_path = excluded.media_path,
             captured_at = excluded.captured_at,
             transcript = excluded.transcript`,
		projectID, clip.SlotID, clip.MediaPath, clip.Timestamp.UTC().Format(time.RFC3339Nano), nullableString(clip.Transcript),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert clip: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, s.timestamp(), projectID); err != nil {
		return nil, fmt.Errorf("touch project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit clip: %w", err)
	}
	return replaced, nil
}

// UpdateStatus records a lifecycle transition. The output URL is only written
// on completion; every other status leaves the previous output untouched.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, outputURL, cause string) error {
	var (
		res sql.Result
		err error
	)
	if status == StatusCompleted {
		res, err = s.db.ExecContext(ctx,
			`UPDATE projects SET status = ?, output_url = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
			status, outputURL, s.timestamp(), id,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE projects SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			status, nullableString(cause), s.timestamp(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) clips(ctx context.Context, projectID string) (map[string]Clip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slot_id, media_path, captured_at, transcript FROM clips WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	clips := make(map[string]Clip)
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		clips[c.SlotID] = c
	}
	return clips, rows.Err()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var (
		p          Project
		status     string
		createdRaw string
		updatedRaw string
		outputURL  sql.NullString
		lastError  sql.NullString
	)
	if err := row.Scan(&p.ID, &p.RecipeID, &p.Title, &status, &createdRaw, &updatedRaw, &outputURL, &lastError); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	p.CreatedAt = parseTime(createdRaw)
	p.UpdatedAt = parseTime(updatedRaw)
	p.OutputURL = outputURL.String
	p.LastError = lastError.String
	return &p, nil
}

func scanClip(row scanner) (Clip, error) {
	var (
		c          Clip
		capturedAt string
		transcript sql.NullString
	)
	if err := row.Scan(&c.SlotID, &c.MediaPath, &capturedAt, &transcript); err != nil {
		return Clip{}, err
	}
	c.Timestamp = parseTime(capturedAt)
	c.Transcript = transcript.String
	return c, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
