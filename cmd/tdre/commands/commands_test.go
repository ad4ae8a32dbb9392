package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/policy"
	"github.com/openfroyo/tdre/pkg/stores"
)

const billingManifest = `
name: billing
version: "1.0"
scopes:
  - id: local
    kind: local-block
    bindings:
      - type: Rate
        label: local-rate
        value: 100
  - id: global
    kind: global
    bindings:
      - type: Rate
        label: default-rate
        value: 50
      - type: Fee
        expr: 'resolve("Rate") * 2'
subtypes:
  - sub: Int
    super: Number
conversions:
  - from: Int
    to: Float
    label: int-to-float
    expr: float(value)
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billing.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	verbose, jsonOutput, catalogPath = false, false, "tdre.db"

	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	path := writeManifest(t, billingManifest)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"innermost binding wins", []string{"Rate", "--chain", "local,global"}, "100\n"},
		{"global binding", []string{"Rate", "--chain", "global"}, "50\n"},
		{"expression with requirement", []string{"Fee", "--chain", "global"}, "100\n"},
		{"conversion", []string{"Float", "--coerce", "--from", "Int", "--value", "3"}, "3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, append([]string{"resolve", path}, tt.args...)...)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveCommand_Evidence(t *testing.T) {
	path := writeManifest(t, billingManifest)

	out, err := run(t, "resolve", path, "SubtypeOf<Int, Number>", "--json")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var w struct {
		Key        string `json:"key"`
		Provenance struct {
			Source string `json:"source"`
		} `json:"provenance"`
	}
	if err := json.Unmarshal([]byte(out), &w); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if w.Key != "SubtypeOf<Int, Number>" {
		t.Errorf("key = %q", w.Key)
	}
	if w.Provenance.Source != string(engine.SourceEvidence) {
		t.Errorf("source = %q, want evidence", w.Provenance.Source)
	}
}

func TestResolveCommand_Errors(t *testing.T) {
	path := writeManifest(t, billingManifest)

	_, err := run(t, "resolve", path, "Missing", "--chain", "global")
	if !engine.IsNotFound(err) {
		t.Errorf("missing type: got %v, want not found", err)
	}

	_, err = run(t, "resolve", path, "SubtypeOf<Number, Int>")
	if !engine.IsNotFound(err) {
		t.Errorf("refuted evidence: got %v, want not found", err)
	}

	if _, err := run(t, "resolve", path, "Map<"); err == nil {
		t.Error("expected parse error for malformed type key")
	}

	if _, err := run(t, "resolve", filepath.Join(t.TempDir(), "absent.yaml"), "Rate"); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestExplainCommand(t *testing.T) {
	path := writeManifest(t, billingManifest)

	out, err := run(t, "explain", path, "Fee", "--chain", "global")
	if err != nil {
		t.Fatalf("explain failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected witness and one requirement, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[0], "Fee = 100") {
		t.Errorf("root line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  Rate = 50") {
		t.Errorf("requirement line = %q", lines[1])
	}
}

func TestValidateCommand(t *testing.T) {
	t.Run("clean manifest", func(t *testing.T) {
		out, err := run(t, "validate", writeManifest(t, billingManifest))
		if err != nil {
			t.Fatalf("validate failed: %v\n%s", err, out)
		}
		if !strings.Contains(out, "valid") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("blocking policy violation", func(t *testing.T) {
		manifest := billingManifest + `  - from: Rate
    to: Rate
    expr: value
`
		out, err := run(t, "validate", "--json", writeManifest(t, manifest))
		if err == nil {
			t.Fatalf("expected validation failure, got:\n%s", out)
		}
		var report validateReport
		if jerr := json.Unmarshal([]byte(out), &report); jerr != nil {
			t.Fatalf("invalid JSON output %q: %v", out, jerr)
		}
		if report.Valid {
			t.Error("report should not be valid")
		}
	})

	t.Run("structural errors", func(t *testing.T) {
		out, err := run(t, "validate", writeManifest(t, "name: broken\nscopes: []\n"))
		if err == nil {
			t.Fatal("expected validation failure")
		}
		if !strings.Contains(out, "error") {
			t.Errorf("expected errors to be listed, got %q", out)
		}
	})

	t.Run("strict fails on warnings", func(t *testing.T) {
		manifest := `
name: rates
scopes:
  - id: global
    kind: global
    bindings:
      - type: Rate
        label: default-rate
        value: 50
      - type: Rate
        label: second-rate
        value: 60
`
		path := writeManifest(t, manifest)

		if out, err := run(t, "validate", path); err != nil {
			t.Fatalf("warnings alone should pass: %v\n%s", err, out)
		}
		if _, err := run(t, "validate", "--strict", path); err == nil {
			t.Error("strict validation should fail on warnings")
		}
	})
}

func TestInspectCommand(t *testing.T) {
	out, err := run(t, "inspect", "--json", writeManifest(t, billingManifest))
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	var view registryView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if view.Manifest != "billing" || view.Stats.Bindings != 3 || view.Stats.Conversions != 1 {
		t.Errorf("unexpected view: %+v", view)
	}
	if view.Stats.SnapshotID == "" {
		t.Error("snapshot id should be set")
	}
	if len(view.Scopes) != 2 || len(view.Conversions) != 1 || view.Conversions[0].Label != "int-to-float" {
		t.Errorf("unexpected scopes or conversions: %+v", view)
	}
}

func TestHierarchyCommand(t *testing.T) {
	path := writeManifest(t, billingManifest)

	out, err := run(t, "hierarchy", path, "--dot")
	if err != nil {
		t.Fatalf("hierarchy failed: %v", err)
	}
	if !strings.Contains(out, `"Int" -> "Number";`) {
		t.Errorf("DOT output missing edge:\n%s", out)
	}

	out, err = run(t, "hierarchy", path)
	if err != nil {
		t.Fatalf("hierarchy failed: %v", err)
	}
	if out != "0: Number\n1: Int\n" {
		t.Errorf("levels = %q", out)
	}
}

func TestSchemaCommand(t *testing.T) {
	out, err := run(t, "schema")
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	if !strings.Contains(out, "#Manifest") {
		t.Errorf("CUE schema missing #Manifest")
	}

	out, err = run(t, "schema", "--format", "json")
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON schema: %v", err)
	}

	if _, err := run(t, "schema", "--format", "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestCatalogCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.db")
	path := writeManifest(t, billingManifest)

	out, err := run(t, "catalog", "put", "--db", db, path)
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if !strings.HasPrefix(out, "billing revision 1 ") {
		t.Errorf("put output = %q", out)
	}

	// identical content keeps the revision
	out, err = run(t, "catalog", "put", "--db", db, path)
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if !strings.HasPrefix(out, "billing revision 1 ") {
		t.Errorf("second put output = %q", out)
	}

	if err := os.WriteFile(path, []byte(strings.Replace(billingManifest, `"1.0"`, `"1.1"`, 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "catalog", "put", "--db", db, path); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	out, err = run(t, "catalog", "list", "--db", db, "--json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var recs []struct {
		Name     string `json:"name"`
		Revision int    `json:"revision"`
		Version  string `json:"version"`
		Bindings int    `json:"bindings"`
	}
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(recs) != 2 || recs[0].Revision != 2 || recs[0].Version != "1.1" || recs[0].Bindings != 3 {
		t.Errorf("unexpected revisions: %+v", recs)
	}

	out, err = run(t, "catalog", "show", "--db", db, "--revision", "1", "--check", "billing")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if out != billingManifest {
		t.Errorf("show returned different content:\n%s", out)
	}

	if _, err := run(t, "catalog", "show", "--db", db, "payments"); err == nil {
		t.Error("expected error for unknown manifest")
	}
}

func TestParseChain(t *testing.T) {
	got := parseChain(" local, ,global ")
	if len(got) != 2 || got[0] != "local" || got[1] != "global" {
		t.Errorf("parseChain = %v", got)
	}
	if parseChain("") != nil {
		t.Error("empty chain should be nil")
	}
}

func TestReloadHook_RecordsCatalog(t *testing.T) {
	ctx := context.Background()
	store, err := openCatalog(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer store.Close()

	tel, err := newTelemetry(false)
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}
	pe, err := policy.NewEngine(tel.Logger.Zerolog())
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	path := writeManifest(t, billingManifest)
	snap, err := loadSnapshot(tel.WithContext(ctx), tel, path)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}

	hook := &reloadHook{ctx: ctx, path: path, tel: tel, policy: pe, catalog: store}
	hook.onReload(snap, 5*time.Millisecond, nil)
	hook.onReload(nil, time.Millisecond, errors.New("parse error"))

	reloads, err := store.ListReloads(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListReloads failed: %v", err)
	}
	if len(reloads) != 2 {
		t.Fatalf("expected 2 reloads, got %d", len(reloads))
	}

	failed, succeeded := reloads[0], reloads[1]
	if failed.Status != stores.ReloadStatusFailure || failed.Error == nil || *failed.Error != "parse error" {
		t.Errorf("unexpected failed reload: %+v", failed)
	}
	if succeeded.Status != stores.ReloadStatusSuccess || succeeded.SnapshotID != snap.Registry.SnapshotID() || succeeded.ManifestID == nil {
		t.Fatalf("unexpected successful reload: %+v", succeeded)
	}

	latest, err := store.LatestManifest(ctx, "billing")
	if err != nil {
		t.Fatalf("LatestManifest failed: %v", err)
	}
	if latest.ID != *succeeded.ManifestID || latest.Format != "yaml" || latest.Scopes != 2 {
		t.Errorf("unexpected stored manifest: %+v", latest)
	}
}
