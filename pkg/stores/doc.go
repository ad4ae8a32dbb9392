// Package stores provides the manifest catalog: revisioned storage of
// registry manifest sources and a history of registry reloads, backed by
// SQLite with schema migrations embedded in the binary.
//
// The catalog stores inputs to the build phase only. Registries themselves
// are always rebuilt from a manifest and never persisted.
package stores
