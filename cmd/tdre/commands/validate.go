package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/tdre/pkg/config"
	"github.com/openfroyo/tdre/pkg/policy"
)

// validateReport is the JSON form of a validate run.
type validateReport struct {
	Manifest string                   `json:"manifest"`
	Valid    bool                     `json:"valid"`
	Errors   []config.ValidationError `json:"errors,omitempty"`
	Policy   *policy.PolicyResult     `json:"policy,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var (
		strict      bool
		policyPaths []string
		skipPolicy  bool
	)

	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a registry manifest",
		Long: `Validate a registry manifest without serving it.

This command checks:
  - Manifest syntax and structure
  - Schema conformance (CUE)
  - Type keys and Starlark expressions
  - Subtype declarations (no cycles)
  - Manifest policies (OPA/rego), built-in and custom`,
		Example: `  # Validate a manifest
  tdre validate registry.yaml

  # Apply custom policies and fail on warnings
  tdre validate --strict --policy ./policies registry.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			tel, err := newTelemetry(false)
			if err != nil {
				return err
			}
			defer tel.Shutdown(cmd.Context())
			ctx := tel.WithContext(cmd.Context())

			log.Info().
				Str("manifest", path).
				Bool("strict", strict).
				Strs("policies", policyPaths).
				Msg("Validating manifest")

			report := validateReport{Manifest: path}
			snap, err := loadSnapshot(ctx, tel, path)
			if err != nil {
				var merr *config.ManifestError
				if !errors.As(err, &merr) {
					merr = &config.ManifestError{Source: path, Errors: []config.ValidationError{{
						File: path, Message: err.Error(), Severity: "error",
					}}}
				}
				report.Errors = merr.Errors
				if err := printValidateReport(cmd, report); err != nil {
					return err
				}
				return fmt.Errorf("manifest %s is invalid", path)
			}

			if !skipPolicy {
				pe, err := policy.NewEngine(tel.Logger.Zerolog())
				if err != nil {
					return err
				}
				if len(policyPaths) > 0 {
					if err := pe.LoadPolicies(ctx, policyPaths); err != nil {
						return err
					}
				}
				report.Policy, err = pe.Evaluate(ctx, snap.Manifest.Manifest, &policy.PolicyContext{
					Source:    path,
					Timestamp: time.Now(),
					Operation: "validate",
				})
				if err != nil {
					return err
				}
			}

			report.Valid = report.Policy == nil || report.Policy.Allowed
			if strict && report.Policy != nil && len(report.Policy.Violations) > 0 {
				report.Valid = false
			}
			if err := printValidateReport(cmd, report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("manifest %s failed policy checks", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat every policy violation as blocking")
	cmd.Flags().StringSliceVarP(&policyPaths, "policy", "p", nil, "policy files or directories (repeatable)")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "skip policy evaluation")

	return cmd
}

func printValidateReport(cmd *cobra.Command, report validateReport) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, report)
	}

	for _, ve := range report.Errors {
		fmt.Fprintf(out, "%s: %s\n", ve.Severity, ve)
	}
	if report.Policy != nil {
		for _, v := range report.Policy.Violations {
			fmt.Fprintf(out, "%s [%s] %s\n", v.Severity, v.Policy, v.Message)
			if v.Remediation != "" {
				fmt.Fprintf(out, "  remediation: %s\n", v.Remediation)
			}
		}
		for _, w := range report.Policy.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
	}
	if len(report.Errors) == 0 {
		status := "valid"
		if !report.Valid {
			status = "rejected"
		}
		fmt.Fprintf(out, "%s: %s\n", report.Manifest, status)
	}
	return nil
}
