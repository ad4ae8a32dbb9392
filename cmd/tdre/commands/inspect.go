package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/tdre/pkg/engine"
)

type scopeView struct {
	ID       engine.ScopeID   `json:"id"`
	Kind     engine.ScopeKind `json:"kind"`
	Bindings []bindingView    `json:"bindings"`
}

type bindingView struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type conversionView struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Label    string   `json:"label"`
	Requires []string `json:"requires,omitempty"`
}

type registryView struct {
	Manifest    string           `json:"manifest"`
	Version     string           `json:"version,omitempty"`
	Stats       engine.Stats     `json:"stats"`
	Scopes      []scopeView      `json:"scopes"`
	Conversions []conversionView `json:"conversions"`
}

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <manifest>",
		Short: "Show the registry built from a manifest",
		Long: `Build the registry for a manifest and list its scopes, bindings and
conversions together with the snapshot id.`,
		Example: `  tdre inspect registry.yaml
  tdre inspect --json registry.hcl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tel, err := newTelemetry(false)
			if err != nil {
				return err
			}
			defer tel.Shutdown(cmd.Context())

			snap, err := loadSnapshot(tel.WithContext(cmd.Context()), tel, args[0])
			if err != nil {
				return err
			}

			reg := snap.Registry
			view := registryView{
				Manifest: snap.Manifest.Manifest.Name,
				Version:  snap.Manifest.Manifest.Version,
				Stats:    reg.Stats(),
			}
			for _, sc := range reg.Scopes() {
				sv := scopeView{ID: sc.ID, Kind: sc.Kind, Bindings: []bindingView{}}
				for _, b := range reg.Bindings(sc.ID) {
					sv.Bindings = append(sv.Bindings, bindingView{Type: b.Key.String(), Label: b.Label})
				}
				view.Scopes = append(view.Scopes, sv)
			}
			for _, c := range reg.Conversions() {
				cv := conversionView{From: c.Source.String(), To: c.Target.String(), Label: c.Label}
				for _, r := range c.Requires {
					cv.Requires = append(cv.Requires, r.String())
				}
				view.Conversions = append(view.Conversions, cv)
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			return printRegistryView(cmd, view)
		},
	}

	return cmd
}

func printRegistryView(cmd *cobra.Command, view registryView) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Manifest: %s %s\n", view.Manifest, view.Version)
	fmt.Fprintf(out, "Snapshot: %s\n\n", view.Stats.SnapshotID)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCOPE\tKIND\tTYPE\tLABEL")
	for _, sc := range view.Scopes {
		if len(sc.Bindings) == 0 {
			fmt.Fprintf(w, "%s\t%s\t-\t-\n", sc.ID, sc.Kind)
		}
		for _, b := range sc.Bindings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sc.ID, sc.Kind, b.Type, b.Label)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(view.Conversions) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FROM\tTO\tLABEL\tREQUIRES")
		for _, c := range view.Conversions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.From, c.To, c.Label, strings.Join(c.Requires, ", "))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func newHierarchyCommand() *cobra.Command {
	var (
		dot    bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "hierarchy <manifest>",
		Short: "Print the subtype hierarchy",
		Long: `Print the subtype hierarchy declared by a manifest, either as levels
(roots first) or as a Graphviz DOT graph.`,
		Example: `  tdre hierarchy registry.yaml
  tdre hierarchy registry.yaml --dot -o types.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tel, err := newTelemetry(false)
			if err != nil {
				return err
			}
			defer tel.Shutdown(cmd.Context())

			snap, err := loadSnapshot(tel.WithContext(cmd.Context()), tel, args[0])
			if err != nil {
				return err
			}
			h := snap.Registry.Hierarchy()

			var text string
			switch {
			case dot:
				text = h.ToDOT()
			case jsonOutput:
				return writeJSON(cmd.OutOrStdout(), levelNames(h))
			default:
				var sb strings.Builder
				for i, names := range levelNames(h) {
					fmt.Fprintf(&sb, "%d: %s\n", i, strings.Join(names, ", "))
				}
				text = sb.String()
			}

			if output != "" {
				return os.WriteFile(output, []byte(text), 0o644)
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "render as a Graphviz DOT graph")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func levelNames(h *engine.Hierarchy) [][]string {
	levels := make([][]string, 0)
	for _, lvl := range h.Levels() {
		names := make([]string, len(lvl))
		for i, k := range lvl {
			names[i] = k.String()
		}
		levels = append(levels, names)
	}
	return levels
}
