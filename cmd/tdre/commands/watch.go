package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/tdre/pkg/config"
	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/policy"
	"github.com/openfroyo/tdre/pkg/stores"
	"github.com/openfroyo/tdre/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		debounce    time.Duration
		policyPaths []string
		dbPath      string
		noMetrics   bool
	)

	cmd := &cobra.Command{
		Use:   "watch <manifest>",
		Short: "Rebuild the registry whenever the manifest changes",
		Long: `Build the registry for a manifest and rebuild it on every change.

Each successful rebuild publishes a new frozen snapshot; a failed rebuild
keeps the previous one. While watching, this command:
  - Serves Prometheus metrics (TDRE_METRICS_ADDR, default :9090)
  - Evaluates manifest policies after every reload (--policy)
  - Records manifest revisions and reload history (--catalog)`,
		Example: `  # Watch a manifest and serve metrics
  tdre watch registry.yaml

  # Keep a catalog of every revision and apply custom policies
  tdre watch registry.cue --catalog tdre.db --policy ./policies`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			tel, err := newTelemetry(!noMetrics)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())
			ctx := tel.WithContext(cmd.Context())
			logger := tel.Logger.NewComponentLogger("watch")

			var catalog stores.Store
			if dbPath != "" {
				store, err := openCatalog(ctx, dbPath)
				if err != nil {
					return err
				}
				defer store.Close()
				catalog = store
			}

			pe, err := policy.NewEngine(tel.Logger.Zerolog())
			if err != nil {
				return err
			}
			if len(policyPaths) > 0 {
				if err := pe.LoadPolicies(ctx, policyPaths); err != nil {
					return err
				}
				if err := pe.WatchPolicies(ctx, policyPaths); err != nil {
					return err
				}
			}

			if srv := tel.Metrics.NewServer(); srv != nil {
				go func() {
					logger.WithField("addr", srv.Addr).Info("Serving metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.WithError(err).Error("Metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			hook := &reloadHook{
				ctx:     ctx,
				path:    path,
				tel:     tel,
				policy:  pe,
				catalog: catalog,
			}
			w := config.NewWatcher(path, config.NewLoader(), &config.Live{},
				config.WithDebounce(debounce),
				config.WithBuildOptions(config.WithEngineOptions(engine.WithLogger(tel.Logger.Zerolog()))),
				config.WithResolverOptions(tel.ResolverOptions),
				config.WithReloadHook(hook.onReload),
				config.WithWatcherLogger(logger.Zerolog()),
			)
			return w.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait for writes to settle before rebuilding")
	cmd.Flags().StringSliceVarP(&policyPaths, "policy", "p", nil, "policy files or directories (repeatable)")
	cmd.Flags().StringVar(&dbPath, "catalog", "", "record revisions and reloads in this catalog database")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "do not serve metrics")

	return cmd
}

// reloadHook publishes every reload attempt to telemetry, the policy engine
// and, when configured, the catalog.
type reloadHook struct {
	ctx     context.Context
	path    string
	tel     *telemetry.Telemetry
	policy  *policy.Engine
	catalog stores.Store
}

func (h *reloadHook) onReload(snap *config.Snapshot, duration time.Duration, err error) {
	status := stores.ReloadStatusSuccess
	if err != nil {
		status = stores.ReloadStatusFailure
	}
	h.tel.Metrics.RecordReload(string(status), duration)

	rec := &stores.ReloadRecord{
		Path:     h.path,
		Status:   status,
		Duration: duration,
	}
	if err != nil {
		msg := err.Error()
		rec.Error = &msg
	} else {
		h.tel.PublishRegistry(snap.Registry)
		rec.SnapshotID = snap.Registry.SnapshotID()
		h.lint(snap)
	}

	if h.catalog == nil {
		return
	}
	if snap != nil {
		m, perr := h.catalog.PutManifest(h.ctx, manifestRecord(snap.Manifest))
		if perr != nil {
			h.tel.Logger.WithError(perr).Warn("Failed to store manifest revision")
		} else {
			rec.ManifestID = &m.ID
		}
	}
	if rerr := h.catalog.RecordReload(h.ctx, rec); rerr != nil {
		h.tel.Logger.WithError(rerr).Warn("Failed to record reload")
	}
}

func (h *reloadHook) lint(snap *config.Snapshot) {
	result, err := h.policy.Evaluate(h.ctx, snap.Manifest.Manifest, &policy.PolicyContext{
		Source:    h.path,
		Timestamp: time.Now(),
		Operation: "reload",
	})
	if err != nil {
		h.tel.Logger.WithError(err).Warn("Policy evaluation failed")
		return
	}
	for _, v := range result.Violations {
		logger := h.tel.Logger.WithFields(map[string]interface{}{
			"policy":   v.Policy,
			"severity": v.Severity,
			"scope":    v.Scope,
			"type":     v.Type,
		})
		if v.Severity.Blocking() {
			logger.Error(v.Message)
		} else {
			logger.Warn(v.Message)
		}
	}
}
