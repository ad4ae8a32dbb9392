package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/typekey"
)

// requestFlags are shared by the commands that issue a resolution request.
type requestFlags struct {
	chain  string
	coerce bool
	from   string
	value  string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.chain, "chain", "", "visible scopes, innermost first (comma-separated)")
	cmd.Flags().BoolVar(&f.coerce, "coerce", false, "permit one conversion hop from --from")
	cmd.Flags().StringVar(&f.from, "from", "", "type key of the operand to convert")
	cmd.Flags().StringVar(&f.value, "value", "", "operand value as a YAML scalar or flow collection")
}

// request builds the resolution request for target.
func (f *requestFlags) request(target string) (engine.Request, error) {
	key, err := typekey.Parse(target)
	if err != nil {
		return engine.Request{}, err
	}
	req := engine.Request{
		Target: key,
		Chain:  parseChain(f.chain),
		Coerce: f.coerce,
	}
	if f.from == "" {
		return req, nil
	}

	from, err := typekey.Parse(f.from)
	if err != nil {
		return engine.Request{}, fmt.Errorf("--from: %w", err)
	}
	var value interface{}
	if f.value != "" {
		if err := yaml.Unmarshal([]byte(f.value), &value); err != nil {
			return engine.Request{}, fmt.Errorf("--value: %w", err)
		}
	}
	req.Source = &engine.Operand{Key: from, Value: value}
	return req, nil
}

func newResolveCommand() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "resolve <manifest> <type>",
		Short: "Resolve a type against a manifest",
		Long: `Resolve a type key against the registry built from a manifest.

Resolution order:
  - Structural evidence for Eq, SubtypeOf and TypeDescriptor
  - Bindings in the scope chain, innermost scope first
  - With --coerce, a single registered conversion from --from`,
		Example: `  # Resolve through a local scope and the global scope
  tdre resolve registry.yaml "Rate" --chain local,global

  # Structural evidence needs no bindings
  tdre resolve registry.yaml "SubtypeOf<Cat, Animal>"

  # Convert an operand
  tdre resolve registry.yaml Float --coerce --from Int --value 3`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := runResolve(cmd, args[0], args[1], &flags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, w)
			}
			fmt.Fprintf(out, "%v\n", w.Value)
			if verbose {
				fmt.Fprintf(out, "# %s\n", w.Provenance)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newExplainCommand() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "explain <manifest> <type>",
		Short: "Show how a type resolves",
		Long: `Resolve a type key and print the witness tree: the value, where it came
from, and every requirement resolved on the way.`,
		Example: `  tdre explain registry.yaml "Show<List<Int>>" --chain global`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := runResolve(cmd, args[0], args[1], &flags)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), w)
			}
			fmt.Fprint(cmd.OutOrStdout(), w.Explain())
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func runResolve(cmd *cobra.Command, path, target string, flags *requestFlags) (*engine.Witness, error) {
	req, err := flags.request(target)
	if err != nil {
		return nil, err
	}

	tel, err := newTelemetry(false)
	if err != nil {
		return nil, err
	}
	defer tel.Shutdown(cmd.Context())
	ctx := tel.WithContext(cmd.Context())

	snap, err := loadSnapshot(ctx, tel, path)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("manifest", path).
		Str("target", req.Target.String()).
		Int("chain_len", len(req.Chain)).
		Bool("coerce", req.Coerce).
		Msg("Resolving")

	return snap.Resolver.Resolve(ctx, req)
}
