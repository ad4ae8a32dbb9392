package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "tdre",
		Short: "TDRE - Type-Directed Resolution Engine",
		Long: `TDRE resolves values by type. Registries of scoped bindings, subtype
declarations and conversions are declared in manifests and frozen into
immutable snapshots that answer resolution requests.

Features:
  - Manifests in YAML, JSON, CUE or HCL
  - Binding and conversion expressions in Starlark
  - Lexically scoped lookup with ambiguity detection
  - Structural evidence for equality and subtyping
  - Manifest policies via OPA/rego
  - Hot reload with a revisioned manifest catalog`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newExplainCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newHierarchyCommand())
	rootCmd.AddCommand(newSchemaCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newCatalogCommand())

	return rootCmd
}
