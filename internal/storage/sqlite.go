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

// Store wraps a SQLite database with methods for document metadata and the
// model registry. Chunk vectors live in the same database file but are
// managed by the vector package.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "helmsman.db")
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

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for packages that share the database
// file (the vector store).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
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

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
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

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Documents ---

// InsertDocument writes a new metadata row. The insert commits on its own,
// which is the durability checkpoint of the ingestion protocol: a row stuck
// in "indexing" after a crash is found and purged by the startup sweep.
func (s *Store) InsertDocument(d Document) error {
	uploadedAt := d.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	status := d.Status
	if status == "" {
		status = DocStatusIndexing
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, title, path, status, uploaded_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Path, status, uploadedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var uploadedAt string
	err := s.db.QueryRow(`
		SELECT id, title, path, status, uploaded_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Path, &d.Status, &uploadedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, uploadedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	d.UploadedAt = t
	return d, nil
}

// DocumentExists reports whether a metadata row with the given id is present.
func (s *Store) DocumentExists(id string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM documents WHERE id = ?", id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetDocumentStatus transitions a document's status.
func (s *Store) SetDocumentStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE documents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
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

// DeleteDocument removes a metadata row. Deleting a missing row is not an error.
func (s *Store) DeleteDocument(id string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocumentsByStatus returns all documents with the given status,
// most recent first.
func (s *Store) ListDocumentsByStatus(status string, limit int) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, title, path, status, uploaded_at
		FROM documents WHERE status = ? ORDER BY uploaded_at DESC LIMIT ?`, status, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// GetDocumentsByIDs returns documents matching the given ids restricted to
// the given status. Missing ids are silently omitted.
func (s *Store) GetDocumentsByIDs(ids []string, status string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, status)

	query := `SELECT id, title, path, status, uploaded_at
		FROM documents WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `) AND status = ?`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var results []Document
	for rows.Next() {
		var d Document
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Path, &d.Status, &uploadedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, uploadedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing uploaded_at: %w", err)
		}
		d.UploadedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// --- Models ---

// UpsertModel inserts or replaces a model registration.
func (s *Store) UpsertModel(m ModelRow) error {
	enabled := 0
	if m.Enabled {
		enabled = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO models (id, capabilities, provider, enabled, priority, success_rate, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			capabilities = excluded.capabilities,
			provider = excluded.provider,
			enabled = excluded.enabled,
			priority = excluded.priority,
			success_rate = excluded.success_rate,
			position = excluded.position,
			updated_at = excluded.updated_at`,
		m.ID, m.Capabilities, m.Provider, enabled, m.Priority, m.SuccessRate, m.Position,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListModels returns all registered models in registry order.
func (s *Store) ListModels() ([]ModelRow, error) {
	rows, err := s.db.Query(`
		SELECT id, capabilities, provider, enabled, priority, success_rate, position, updated_at
		FROM models ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ModelRow
	for rows.Next() {
		var m ModelRow
		var enabled int
		var updatedAt string
		if err := rows.Scan(&m.ID, &m.Capabilities, &m.Provider, &enabled, &m.Priority, &m.SuccessRate, &m.Position, &updatedAt); err != nil {
			return nil, err
		}
		m.Enabled = enabled != 0
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at for model %s: %w", m.ID, err)
		}
		m.UpdatedAt = t
		results = append(results, m)
	}
	return results, rows.Err()
}

// SetModelEnabled flips a model's enablement flag.
func (s *Store) SetModelEnabled(id string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	res, err := s.db.Exec(`UPDATE models SET enabled = ?, updated_at = ? WHERE id = ?`,
		v, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
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

// UpdateModelSuccessRate stores a new rolling success-rate value.
func (s *Store) UpdateModelSuccessRate(id string, rate float64) error {
	res, err := s.db.Exec(`UPDATE models SET success_rate = ?, updated_at = ? WHERE id = ?`,
		rate, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
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

// DeleteModel removes a model registration.
func (s *Store) DeleteModel(id string) error {
	res, err := s.db.Exec(`DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return err
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
