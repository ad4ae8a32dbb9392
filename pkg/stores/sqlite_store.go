package stores

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// every connection to :memory: opens its own database
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Init opens the database, enabling foreign keys and, for file databases,
// WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	pragmas := []string{"busy_timeout(5000)", "foreign_keys(1)"}
	if !isMemory(s.cfg.Path) {
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}

	sep := "?"
	if strings.Contains(s.cfg.Path, "?") {
		sep = "&"
	}
	dsn := s.cfg.Path + sep + "_pragma=" + strings.Join(pragmas, "&_pragma=") + "&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Digest returns the hex SHA256 of manifest content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

const manifestColumns = `id, name, revision, version, format, source, digest, content, scopes, bindings, created_at`

func scanManifest(row interface{ Scan(...any) error }) (*ManifestRecord, error) {
	rec := &ManifestRecord{}
	err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Revision,
		&rec.Version,
		&rec.Format,
		&rec.Source,
		&rec.Digest,
		&rec.Content,
		&rec.Scopes,
		&rec.Bindings,
		&rec.CreatedAt,
	)
	return rec, err
}

// PutManifest stores rec as the next revision of its manifest name. When
// the content matches the latest revision, nothing is written and the
// latest revision is returned.
func (s *SQLiteStore) PutManifest(ctx context.Context, rec *ManifestRecord) (*ManifestRecord, error) {
	if rec.Name == "" {
		return nil, fmt.Errorf("manifest name is required")
	}
	if len(rec.Content) == 0 {
		return nil, fmt.Errorf("manifest content is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	digest := Digest(rec.Content)

	latest, err := scanManifest(tx.QueryRowContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests WHERE name = ? ORDER BY revision DESC LIMIT 1`,
		rec.Name,
	))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		latest = nil
	case err != nil:
		return nil, fmt.Errorf("failed to read latest revision: %w", err)
	case latest.Digest == digest:
		return latest, nil
	}

	out := *rec
	out.ID = uuid.NewString()
	out.Digest = digest
	out.Revision = 1
	if latest != nil {
		out.Revision = latest.Revision + 1
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO manifests (`+manifestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		out.ID,
		out.Name,
		out.Revision,
		out.Version,
		out.Format,
		out.Source,
		out.Digest,
		out.Content,
		out.Scopes,
		out.Bindings,
		out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert manifest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit manifest: %w", err)
	}

	return &out, nil
}

// GetManifest retrieves a manifest revision by ID
func (s *SQLiteStore) GetManifest(ctx context.Context, id string) (*ManifestRecord, error) {
	rec, err := scanManifest(s.db.QueryRowContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manifest %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest: %w", err)
	}
	return rec, nil
}

// GetRevision retrieves one revision of a named manifest
func (s *SQLiteStore) GetRevision(ctx context.Context, name string, revision int) (*ManifestRecord, error) {
	rec, err := scanManifest(s.db.QueryRowContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests WHERE name = ? AND revision = ?`, name, revision))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manifest %s revision %d: %w", name, revision, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest revision: %w", err)
	}
	return rec, nil
}

// LatestManifest retrieves the newest revision of a named manifest
func (s *SQLiteStore) LatestManifest(ctx context.Context, name string) (*ManifestRecord, error) {
	rec, err := scanManifest(s.db.QueryRowContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests WHERE name = ? ORDER BY revision DESC LIMIT 1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manifest %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest manifest: %w", err)
	}
	return rec, nil
}

// ListManifests lists manifest revisions ordered by name and newest
// revision first, optionally restricted to one name
func (s *SQLiteStore) ListManifests(ctx context.Context, name *string, limit, offset int) ([]*ManifestRecord, error) {
	query := `SELECT ` + manifestColumns + ` FROM manifests`
	args := []interface{}{}

	if name != nil {
		query += ` WHERE name = ?`
		args = append(args, *name)
	}

	query += ` ORDER BY name ASC, revision DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", err)
	}
	defer rows.Close()

	records := []*ManifestRecord{}
	for rows.Next() {
		rec, err := scanManifest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan manifest: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating manifests: %w", err)
	}

	return records, nil
}

// DeleteManifest deletes a manifest revision by ID
func (s *SQLiteStore) DeleteManifest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM manifests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete manifest: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("manifest %s: %w", id, ErrNotFound)
	}

	return nil
}

// RecordReload appends a reload attempt to the history
func (s *SQLiteStore) RecordReload(ctx context.Context, rec *ReloadRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reloads (manifest_id, path, snapshot_id, status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ManifestID,
		rec.Path,
		rec.SnapshotID,
		rec.Status,
		rec.Error,
		rec.Duration.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record reload: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get reload ID: %w", err)
	}
	rec.ID = id

	return nil
}

// ListReloads lists reload attempts, newest first
func (s *SQLiteStore) ListReloads(ctx context.Context, limit, offset int) ([]*ReloadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, manifest_id, path, snapshot_id, status, error, duration_ms, created_at
		FROM reloads
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reloads: %w", err)
	}
	defer rows.Close()

	records := []*ReloadRecord{}
	for rows.Next() {
		rec := &ReloadRecord{}
		var durationMS int64
		err := rows.Scan(
			&rec.ID,
			&rec.ManifestID,
			&rec.Path,
			&rec.SnapshotID,
			&rec.Status,
			&rec.Error,
			&durationMS,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reload: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reloads: %w", err)
	}

	return records, nil
}

// HealthCheck performs a health check on the database
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
