package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/openfroyo/tdre/pkg/engine"
)

// Snapshot is one built registry together with its resolver and the
// manifest it was built from. Snapshots are never mutated.
type Snapshot struct {
	Manifest *LoadedManifest
	Registry *engine.Registry
	Resolver *engine.Resolver
}

// Live holds the current snapshot. Readers always see a complete, frozen
// registry; a reload replaces the snapshot as a whole.
type Live struct {
	current atomic.Pointer[Snapshot]
}

// Load returns the current snapshot, or nil before the first Store.
func (l *Live) Load() *Snapshot {
	return l.current.Load()
}

// Store publishes s and returns the snapshot it replaced.
func (l *Live) Store(s *Snapshot) *Snapshot {
	return l.current.Swap(s)
}

// Resolve resolves req against the current snapshot.
func (l *Live) Resolve(ctx context.Context, req engine.Request) (*engine.Witness, error) {
	s := l.Load()
	if s == nil {
		return nil, engine.NewRegistryNotReadyError(req.Target)
	}
	return s.Resolver.Resolve(ctx, req)
}

// ReloadFunc is called after every reload attempt. On failure snap is nil
// and the previous snapshot stays live.
type ReloadFunc func(snap *Snapshot, duration time.Duration, err error)

// Watcher rebuilds a manifest's registry whenever the file changes.
type Watcher struct {
	path         string
	loader       *Loader
	live         *Live
	buildOpts    []BuildOption
	resolverOpts func(*engine.Registry) []engine.Option
	onReload     ReloadFunc
	debounce     time.Duration
	logger       zerolog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithBuildOptions passes options to every Build.
func WithBuildOptions(opts ...BuildOption) WatcherOption {
	return func(w *Watcher) {
		w.buildOpts = append(w.buildOpts, opts...)
	}
}

// WithResolverOptions sets the options of each new snapshot's resolver.
func WithResolverOptions(fn func(*engine.Registry) []engine.Option) WatcherOption {
	return func(w *Watcher) {
		w.resolverOpts = fn
	}
}

// WithReloadHook registers fn to be called after every reload attempt.
func WithReloadHook(fn ReloadFunc) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger zerolog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher publishing snapshots of path into live.
func NewWatcher(path string, loader *Loader, live *Live, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		loader:   loader,
		live:     live,
		debounce: 500 * time.Millisecond,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reload loads and builds the manifest and publishes the result. A failed
// reload leaves the current snapshot in place.
func (w *Watcher) Reload(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	snap, err := w.build(ctx)
	if w.onReload != nil {
		w.onReload(snap, time.Since(start), err)
	}
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("Manifest reload failed; keeping previous registry")
		return nil, err
	}

	prev := w.live.Store(snap)
	ev := w.logger.Info().
		Str("path", w.path).
		Str("snapshot_id", snap.Registry.SnapshotID()).
		Dur("duration", time.Since(start))
	if prev != nil {
		ev = ev.Str("previous_snapshot_id", prev.Registry.SnapshotID())
	}
	ev.Msg("Registry snapshot published")

	return snap, nil
}

func (w *Watcher) build(ctx context.Context) (*Snapshot, error) {
	lm, err := w.loader.Load(ctx, w.path)
	if err != nil {
		return nil, err
	}

	reg, err := Build(ctx, lm.Manifest, w.buildOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry from %s: %w", w.path, err)
	}

	var ropts []engine.Option
	if w.resolverOpts != nil {
		ropts = w.resolverOpts(reg)
	}

	return &Snapshot{
		Manifest: lm,
		Registry: reg,
		Resolver: engine.NewResolver(reg, ropts...),
	}, nil
}

// Run performs an initial reload, then watches the manifest until ctx is
// done. The initial reload must succeed; later failures are logged and
// reported through the reload hook.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.Reload(ctx); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	// editors often replace the file, so watch the directory
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info().Str("path", w.path).Dur("debounce", w.debounce).Msg("Started watching manifest")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Manifest changed")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			_, _ = w.Reload(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
