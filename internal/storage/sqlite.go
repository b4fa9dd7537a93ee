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

// Store wraps a SQLite database with methods for profiles, use cases,
// and analysis results.
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
		dsn = filepath.Join(dataDir, "kian.db")
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

// --- Profiles ---

// SaveProfile inserts or updates a profile record.
func (s *Store) SaveProfile(p Profile) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (id, name, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data, updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Data, createdAt, now,
	)
	return err
}

func (s *Store) GetProfile(id string) (Profile, error) {
	var (
		p                    Profile
		createdAt, updatedAt string
	)
	err := s.db.QueryRow(`
		SELECT id, name, data, created_at, updated_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Data, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	if p.CreatedAt, p.UpdatedAt, err = parseTimes(createdAt, updatedAt); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ListProfiles returns all profiles, most recently updated first.
func (s *Store) ListProfiles() ([]Profile, error) {
	rows, err := s.db.Query(`
		SELECT id, name, data, created_at, updated_at FROM profiles ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Profile
	for rows.Next() {
		var (
			p                    Profile
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Data, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, p.UpdatedAt, err = parseTimes(createdAt, updatedAt); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *Store) DeleteProfile(id string) error {
	return s.deleteByID("profiles", id)
}

// --- Use cases ---

// SaveUseCase inserts or updates a use-case record.
func (s *Store) SaveUseCase(u UseCase) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !u.CreatedAt.IsZero() {
		createdAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO use_cases (id, title, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, data = excluded.data, updated_at = excluded.updated_at`,
		u.ID, u.Title, u.Data, createdAt, now,
	)
	return err
}

func (s *Store) GetUseCase(id string) (UseCase, error) {
	var (
		u                    UseCase
		createdAt, updatedAt string
	)
	err := s.db.QueryRow(`
		SELECT id, title, data, created_at, updated_at FROM use_cases WHERE id = ?`, id,
	).Scan(&u.ID, &u.Title, &u.Data, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return UseCase{}, ErrNotFound
	}
	if err != nil {
		return UseCase{}, err
	}
	if u.CreatedAt, u.UpdatedAt, err = parseTimes(createdAt, updatedAt); err != nil {
		return UseCase{}, err
	}
	return u, nil
}

// ListUseCases returns all use cases, most recently updated first.
func (s *Store) ListUseCases() ([]UseCase, error) {
	rows, err := s.db.Query(`
		SELECT id, title, data, created_at, updated_at FROM use_cases ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []UseCase
	for rows.Next() {
		var (
			u                    UseCase
			createdAt, updatedAt string
		)
		if err := rows.Scan(&u.ID, &u.Title, &u.Data, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if u.CreatedAt, u.UpdatedAt, err = parseTimes(createdAt, updatedAt); err != nil {
			return nil, err
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

func (s *Store) DeleteUseCase(id string) error {
	return s.deleteByID("use_cases", id)
}

// --- Analyses ---

const analysisColumns = `id, created_at, template, profile_id, use_case_id, company_name,
	use_case_title, status, confidence, strategy, summary, result_json, raw_response, usage_json`

// SaveAnalysis persists a completed analysis run.
func (s *Store) SaveAnalysis(a Analysis) error {
	status := a.Status
	if status == "" {
		status = "completed"
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, createdAt.UTC().Format(time.RFC3339), a.Template, a.ProfileID, a.UseCaseID,
		a.CompanyName, a.UseCaseTitle, status, a.Confidence, a.Strategy, a.Summary,
		a.ResultJSON, a.RawResponse, a.UsageJSON,
	)
	return err
}

func (s *Store) GetAnalysis(id string) (Analysis, error) {
	row := s.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// ListAnalyses returns analyses newest first, optionally filtered by
// template. limit <= 0 returns all rows.
func (s *Store) ListAnalyses(limit int, template string) ([]Analysis, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := `SELECT ` + analysisColumns + ` FROM analyses`
	args := []any{}
	if template != "" {
		query += ` WHERE template = ?`
		args = append(args, template)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAnalyses(rows)
}

// SearchAnalyses returns analyses whose company name, use-case title or
// summary contains the query, case-insensitively, newest first.
func (s *Store) SearchAnalyses(query string, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + strings.ToLower(query) + "%"

	rows, err := s.db.Query(`
		SELECT `+analysisColumns+` FROM analyses
		WHERE LOWER(company_name) LIKE ? OR LOWER(use_case_title) LIKE ? OR LOWER(summary) LIKE ?
		ORDER BY created_at DESC LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAnalyses(rows)
}

func (s *Store) DeleteAnalysis(id string) error {
	return s.deleteByID("analyses", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var (
		a         Analysis
		createdAt string
	)
	err := row.Scan(
		&a.ID, &createdAt, &a.Template, &a.ProfileID, &a.UseCaseID, &a.CompanyName,
		&a.UseCaseTitle, &a.Status, &a.Confidence, &a.Strategy, &a.Summary,
		&a.ResultJSON, &a.RawResponse, &a.UsageJSON,
	)
	if err != nil {
		return Analysis{}, err
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Analysis{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return a, nil
}

func collectAnalyses(rows *sql.Rows) ([]Analysis, error) {
	var results []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

func (s *Store) deleteByID(table, id string) error {
	res, err := s.db.Exec(`DELETE FROM `+table+` WHERE id = ?`, id)
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

func parseTimes(createdAt, updatedAt string) (time.Time, time.Time, error) {
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return created, updated, nil
}
