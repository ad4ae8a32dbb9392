package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/tdre/pkg/config"
	"github.com/openfroyo/tdre/pkg/stores"
)

var catalogPath string

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the manifest catalog",
		Long: `Store and browse manifest revisions.

The catalog keeps every distinct revision of a manifest source together with
a history of registry reloads. Registries themselves are never stored; they
are rebuilt from a manifest revision.`,
	}

	cmd.PersistentFlags().StringVar(&catalogPath, "db", "tdre.db", "catalog database path")

	cmd.AddCommand(newCatalogPutCommand())
	cmd.AddCommand(newCatalogListCommand())
	cmd.AddCommand(newCatalogShowCommand())
	cmd.AddCommand(newCatalogReloadsCommand())
	cmd.AddCommand(newCatalogDeleteCommand())

	return cmd
}

// openCatalog opens and migrates the catalog at path.
func openCatalog(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// manifestRecord describes a loaded manifest as a catalog record.
func manifestRecord(lm *config.LoadedManifest) *stores.ManifestRecord {
	return &stores.ManifestRecord{
		Name:     lm.Manifest.Name,
		Version:  lm.Manifest.Version,
		Format:   string(lm.Format),
		Source:   lm.Source,
		Content:  lm.Raw,
		Scopes:   len(lm.Manifest.Scopes),
		Bindings: lm.Manifest.BindingCount(),
	}
}

func newCatalogPutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <manifest>",
		Short: "Store a manifest revision",
		Long: `Validate a manifest and store it as a new revision. Storing content
identical to the latest revision returns that revision unchanged.`,
		Example: `  tdre catalog put registry.yaml --db tdre.db`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			lm, err := config.NewLoader().Load(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := config.Build(ctx, lm.Manifest); err != nil {
				return err
			}

			store, err := openCatalog(ctx, catalogPath)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.PutManifest(ctx, manifestRecord(lm))
			if err != nil {
				return err
			}

			log.Info().
				Str("name", rec.Name).
				Int("revision", rec.Revision).
				Str("digest", rec.Digest).
				Msg("Stored manifest")

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s revision %d (%s)\n", rec.Name, rec.Revision, rec.ID)
			return nil
		},
	}
}

func newCatalogListCommand() *cobra.Command {
	var (
		name   string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored manifest revisions",
		Example: `  tdre catalog list
  tdre catalog list --name billing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openCatalog(ctx, catalogPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var filter *string
			if name != "" {
				filter = &name
			}
			recs, err := store.ListManifests(ctx, filter, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tREVISION\tVERSION\tFORMAT\tSCOPES\tBINDINGS\tCREATED")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%s\n",
					r.Name, r.Revision, r.Version, r.Format, r.Scopes, r.Bindings,
					r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "only list revisions of this manifest")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of revisions")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of revisions to skip")

	return cmd
}

func newCatalogShowCommand() *cobra.Command {
	var (
		revision int
		check    bool
	)

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a stored manifest",
		Long: `Print the source of a stored manifest, the latest revision unless
--revision is given. With --check the stored source is rebuilt to confirm it
still produces a registry.`,
		Example: `  tdre catalog show billing
  tdre catalog show billing --revision 3 --check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openCatalog(ctx, catalogPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var rec *stores.ManifestRecord
			if revision > 0 {
				rec, err = store.GetRevision(ctx, args[0], revision)
			} else {
				rec, err = store.LatestManifest(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("manifest %q: %w", args[0], err)
			}

			if check {
				format, err := config.ParseFormat(rec.Format)
				if err != nil {
					return err
				}
				lm, err := config.NewLoader().LoadBytes(ctx, rec.Content, format, rec.Source)
				if err != nil {
					return err
				}
				reg, err := config.Build(ctx, lm.Manifest)
				if err != nil {
					return err
				}
				log.Info().
					Str("name", rec.Name).
					Int("revision", rec.Revision).
					Str("snapshot_id", reg.SnapshotID()).
					Msg("Stored manifest builds")
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), struct {
					*stores.ManifestRecord
					Content string `json:"content"`
				}{rec, string(rec.Content)})
			}
			_, err = cmd.OutOrStdout().Write(rec.Content)
			return err
		},
	}

	cmd.Flags().IntVarP(&revision, "revision", "r", 0, "revision to show (default latest)")
	cmd.Flags().BoolVar(&check, "check", false, "rebuild the stored manifest")

	return cmd
}

func newCatalogReloadsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reloads",
		Short: "Show the registry reload history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openCatalog(ctx, catalogPath)
			if err != nil {
				return err
			}
			defer store.Close()

			reloads, err := store.ListReloads(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), reloads)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tPATH\tSTATUS\tSNAPSHOT\tDURATION\tERROR")
			for _, r := range reloads {
				errMsg := ""
				if r.Error != nil {
					errMsg = *r.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), r.Path, r.Status, r.SnapshotID, r.Duration, errMsg)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reloads")

	return cmd
}

func newCatalogDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a stored manifest revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openCatalog(ctx, catalogPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteManifest(ctx, args[0]); err != nil {
				return err
			}
			log.Info().Str("id", args[0]).Msg("Deleted manifest revision")
			return nil
		},
	}
}
