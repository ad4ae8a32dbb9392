package stores

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func manifestRecord(name, content string) *ManifestRecord {
	return &ManifestRecord{
		Name:     name,
		Version:  "1.0",
		Format:   "yaml",
		Source:   name + ".yaml",
		Content:  []byte(content),
		Scopes:   2,
		Bindings: 4,
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatalf("expected error for empty path")
	}

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if store.cfg.MaxOpenConns != 1 {
		t.Errorf("expected a single connection for :memory:, got %d", store.cfg.MaxOpenConns)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Errorf("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"manifests", "reloads"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// running again is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

// TestFileStore tests a file database with WAL enabled
func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	var mode string
	if err := store.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected WAL journal mode, got %s", mode)
	}

	if _, err := store.PutManifest(ctx, manifestRecord("billing", "name: billing\n")); err != nil {
		t.Fatalf("failed to put manifest: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	// reopen and read back
	reopened, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.LatestManifest(ctx, "billing"); err != nil {
		t.Errorf("manifest not persisted: %v", err)
	}
}

// TestManifestRevisions tests revision numbering and deduplication
func TestManifestRevisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.PutManifest(ctx, manifestRecord("billing", "name: billing\nversion: 1\n"))
	if err != nil {
		t.Fatalf("failed to put manifest: %v", err)
	}
	if first.Revision != 1 || first.ID == "" {
		t.Errorf("unexpected first revision: %+v", first)
	}
	if first.Digest != Digest([]byte("name: billing\nversion: 1\n")) {
		t.Errorf("unexpected digest %s", first.Digest)
	}

	same, err := store.PutManifest(ctx, manifestRecord("billing", "name: billing\nversion: 1\n"))
	if err != nil {
		t.Fatalf("failed to put manifest: %v", err)
	}
	if same.ID != first.ID || same.Revision != 1 {
		t.Errorf("identical content should not create a revision, got %+v", same)
	}

	second, err := store.PutManifest(ctx, manifestRecord("billing", "name: billing\nversion: 2\n"))
	if err != nil {
		t.Fatalf("failed to put manifest: %v", err)
	}
	if second.Revision != 2 {
		t.Errorf("expected revision 2, got %d", second.Revision)
	}

	// revisions are per name
	other, err := store.PutManifest(ctx, manifestRecord("shipping", "name: shipping\n"))
	if err != nil {
		t.Fatalf("failed to put manifest: %v", err)
	}
	if other.Revision != 1 {
		t.Errorf("expected revision 1 for a new name, got %d", other.Revision)
	}

	latest, err := store.LatestManifest(ctx, "billing")
	if err != nil {
		t.Fatalf("failed to get latest: %v", err)
	}
	if latest.ID != second.ID || string(latest.Content) != "name: billing\nversion: 2\n" {
		t.Errorf("unexpected latest: %+v", latest)
	}

	got, err := store.GetRevision(ctx, "billing", 1)
	if err != nil {
		t.Fatalf("failed to get revision: %v", err)
	}
	if got.ID != first.ID || got.Scopes != 2 || got.Bindings != 4 || got.Format != "yaml" {
		t.Errorf("unexpected revision 1: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Errorf("expected created_at to be set")
	}

	byID, err := store.GetManifest(ctx, second.ID)
	if err != nil {
		t.Fatalf("failed to get manifest: %v", err)
	}
	if byID.Revision != 2 {
		t.Errorf("expected revision 2, got %d", byID.Revision)
	}
}

// TestManifestValidation tests rejected inputs
func TestManifestValidation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.PutManifest(ctx, &ManifestRecord{Content: []byte("x")}); err == nil {
		t.Errorf("expected error for missing name")
	}
	if _, err := store.PutManifest(ctx, &ManifestRecord{Name: "x"}); err == nil {
		t.Errorf("expected error for empty content")
	}
}

// TestListManifests tests listing with and without a name filter
func TestListManifests(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, rec := range []*ManifestRecord{
		manifestRecord("billing", "a"),
		manifestRecord("billing", "b"),
		manifestRecord("shipping", "c"),
	} {
		if _, err := store.PutManifest(ctx, rec); err != nil {
			t.Fatalf("failed to put manifest: %v", err)
		}
	}

	all, err := store.ListManifests(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list manifests: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].Name != "billing" || all[0].Revision != 2 || all[2].Name != "shipping" {
		t.Errorf("unexpected order: %s/%d, %s/%d, %s/%d",
			all[0].Name, all[0].Revision, all[1].Name, all[1].Revision, all[2].Name, all[2].Revision)
	}

	name := "billing"
	billing, err := store.ListManifests(ctx, &name, 10, 0)
	if err != nil {
		t.Fatalf("failed to list manifests: %v", err)
	}
	if len(billing) != 2 {
		t.Errorf("expected 2 billing records, got %d", len(billing))
	}

	page, err := store.ListManifests(ctx, nil, 1, 1)
	if err != nil {
		t.Fatalf("failed to list manifests: %v", err)
	}
	if len(page) != 1 || page[0].Revision != 1 || page[0].Name != "billing" {
		t.Errorf("unexpected page: %+v", page)
	}
}

// TestNotFound tests lookups of missing records
func TestNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetManifest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.LatestManifest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetRevision(ctx, "missing", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteManifest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestReloadHistory tests recording and listing reloads
func TestReloadHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec, err := store.PutManifest(ctx, manifestRecord("billing", "a"))
	if err != nil {
		t.Fatalf("failed to put manifest: %v", err)
	}

	now := time.Now().UTC()
	failure := "scopes: incomplete value"

	ok := &ReloadRecord{
		ManifestID: &rec.ID,
		Path:       "billing.yaml",
		SnapshotID: "snap-1",
		Status:     ReloadStatusSuccess,
		Duration:   42 * time.Millisecond,
		CreatedAt:  now.Add(-time.Minute),
	}
	if err := store.RecordReload(ctx, ok); err != nil {
		t.Fatalf("failed to record reload: %v", err)
	}
	if ok.ID == 0 {
		t.Errorf("expected an ID to be assigned")
	}

	failed := &ReloadRecord{
		Path:      "billing.yaml",
		Status:    ReloadStatusFailure,
		Error:     &failure,
		CreatedAt: now,
	}
	if err := store.RecordReload(ctx, failed); err != nil {
		t.Fatalf("failed to record reload: %v", err)
	}

	if err := store.RecordReload(ctx, &ReloadRecord{Path: "x", Status: "maybe"}); err == nil {
		t.Errorf("expected check constraint to reject unknown status")
	}

	reloads, err := store.ListReloads(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list reloads: %v", err)
	}
	if len(reloads) != 2 {
		t.Fatalf("expected 2 reloads, got %d", len(reloads))
	}

	if reloads[0].Status != ReloadStatusFailure || reloads[0].Error == nil || *reloads[0].Error != failure {
		t.Errorf("unexpected newest reload: %+v", reloads[0])
	}
	if reloads[0].ManifestID != nil {
		t.Errorf("expected no manifest id on failure")
	}
	if reloads[1].Duration != 42*time.Millisecond || reloads[1].ManifestID == nil || *reloads[1].ManifestID != rec.ID {
		t.Errorf("unexpected oldest reload: %+v", reloads[1])
	}

	// deleting a manifest keeps its reload history
	if err := store.DeleteManifest(ctx, rec.ID); err != nil {
		t.Fatalf("failed to delete manifest: %v", err)
	}
	reloads, err = store.ListReloads(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list reloads: %v", err)
	}
	if len(reloads) != 2 || reloads[1].ManifestID != nil {
		t.Errorf("expected manifest id to be cleared, got %+v", reloads)
	}
}
