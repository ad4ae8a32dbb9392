package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReloadStatus represents the outcome of a registry reload
type ReloadStatus string

const (
	ReloadStatusSuccess ReloadStatus = "success"
	ReloadStatusFailure ReloadStatus = "failure"
)

// ManifestRecord is one stored revision of a manifest source
type ManifestRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Revision  int       `json:"revision"`
	Version   string    `json:"version"`
	Format    string    `json:"format"` // yaml, json, cue, hcl
	Source    string    `json:"source"` // path the manifest was read from
	Digest    string    `json:"digest"` // SHA256 of Content
	Content   []byte    `json:"-"`
	Scopes    int       `json:"scopes"`
	Bindings  int       `json:"bindings"`
	CreatedAt time.Time `json:"created_at"`
}

// ReloadRecord is one registry reload attempt
type ReloadRecord struct {
	ID         int64         `json:"id"`
	ManifestID *string       `json:"manifest_id,omitempty"`
	Path       string        `json:"path"`
	SnapshotID string        `json:"snapshot_id,omitempty"`
	Status     ReloadStatus  `json:"status"`
	Error      *string       `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Store defines the interface for the manifest catalog
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Manifest operations
	PutManifest(ctx context.Context, rec *ManifestRecord) (*ManifestRecord, error)
	GetManifest(ctx context.Context, id string) (*ManifestRecord, error)
	GetRevision(ctx context.Context, name string, revision int) (*ManifestRecord, error)
	LatestManifest(ctx context.Context, name string) (*ManifestRecord, error)
	ListManifests(ctx context.Context, name *string, limit, offset int) ([]*ManifestRecord, error)
	DeleteManifest(ctx context.Context, id string) error

	// Reload history
	RecordReload(ctx context.Context, rec *ReloadRecord) error
	ListReloads(ctx context.Context, limit, offset int) ([]*ReloadRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
