package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/tdre/pkg/config"
)

func newSchemaCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the manifest schema",
		Long: `Print the schema manifests are validated against, either as the CUE
definitions used by the loader or as JSON Schema for editor tooling.`,
		Example: `  tdre schema
  tdre schema --format json > manifest.schema.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch format {
			case "cue":
				fmt.Fprint(out, config.ManifestSchemaSource())
				return nil
			case "json":
				data, err := config.ManifestJSONSchemaBytes()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			default:
				return fmt.Errorf("unsupported schema format %q (must be 'cue' or 'json')", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "cue", "schema format (cue, json)")

	return cmd
}
