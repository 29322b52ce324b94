// Package registry tracks which predictive backends have a published trained
// artifact. The router reads it to decide availability; only the training
// path writes to it, and only after the artifact file is atomically in place.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/prophet/internal/model"

	_ "modernc.org/sqlite"
)

const createBackendsTable = `
CREATE TABLE IF NOT EXISTS backends (
    id            TEXT PRIMARY KEY,
    trained       INTEGER NOT NULL DEFAULT 0,
    artifact_path TEXT,
    metrics_json  TEXT,
    trained_at    DATETIME
)`

// ErrUnknownBackend is returned when a backend id is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Entry is one backend's registration record.
type Entry struct {
	ID           string         `json:"id"`
	Trained      bool           `json:"trained"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Metrics      *model.Metrics `json:"metrics,omitempty"`
	TrainedAt    *time.Time     `json:"trained_at,omitempty"`
}

// Registry persists backend training state in SQLite.
type Registry struct {
	db *sql.DB
}

// Open opens the registry database at dbPath, runs migrations, and seeds a
// row for each known backend id.
func Open(dbPath string, backendIDs []string) (*Registry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createBackendsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create backends table: %w", err)
	}

	for _, id := range backendIDs {
		if _, err := db.Exec(
			"INSERT INTO backends (id) VALUES (?) ON CONFLICT(id) DO NOTHING", id,
		); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed backend %s: %w", id, err)
		}
	}

	return &Registry{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Get retrieves one backend's registration record.
func (r *Registry) Get(ctx context.Context, id string) (*Entry, error) {
	e := &Entry{}
	var metricsJSON sql.NullString
	var artifactPath sql.NullString
	var trainedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		"SELECT id, trained, artifact_path, metrics_json, trained_at FROM backends WHERE id = ?", id,
	).Scan(&e.ID, &e.Trained, &artifactPath, &metricsJSON, &trainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get backend: %w", err)
	}

	e.ArtifactPath = artifactPath.String
	if trainedAt.Valid {
		t := trainedAt.Time
		e.TrainedAt = &t
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		var m model.Metrics
		if err := json.Unmarshal([]byte(metricsJSON.String), &m); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", id, err)
		}
		e.Metrics = &m
	}
	return e, nil
}

// List returns all registered backends ordered by id for a stable API response.
func (r *Registry) List(ctx context.Context) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM backends ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list backends: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan backend id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backends: %w", err)
	}

	entries := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Missing returns the ids of backends without a published trained artifact,
// ordered by id.
func (r *Registry) Missing(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM backends WHERE trained = 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list missing backends: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan backend id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Trained returns the ids of backends with a published trained artifact,
// ordered by id.
func (r *Registry) Trained(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM backends WHERE trained = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list trained backends: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan backend id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsTrained reports whether the backend has a published artifact.
func (r *Registry) IsTrained(ctx context.Context, id string) (bool, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return e.Trained, nil
}

// Publish marks a backend trained. Callers must have the artifact file fully
// in place before calling; the registry row is the visibility switch readers
// key off.
func (r *Registry) Publish(ctx context.Context, id, artifactPath string, metrics model.Metrics) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE backends SET trained = 1, artifact_path = ?, metrics_json = ?, trained_at = ? WHERE id = ?",
		artifactPath, string(metricsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("publish backend: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	return nil
}
