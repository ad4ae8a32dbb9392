package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is a manifest source format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
	FormatHCL  Format = "hcl"
)

// FormatFromPath infers the manifest format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q (want .yaml, .yml, .json, .cue or .hcl)", filepath.Ext(path))
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatYAML, FormatJSON, FormatCUE, FormatHCL:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported manifest format %q", s)
	}
}

// Loader reads, decodes and validates manifests.
type Loader struct {
	cue      *CUEParser
	schemas  *SchemaRegistry
	validate *validator.Validate
}

// NewLoader creates a new manifest loader.
func NewLoader() *Loader {
	return &Loader{
		cue:      NewCUEParser(),
		schemas:  NewSchemaRegistry(),
		validate: validator.New(),
	}
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load reads a manifest file, inferring the format from its extension.
func (l *Loader) Load(ctx context.Context, path string) (*LoadedManifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return l.LoadBytes(ctx, content, format, path)
}

// LoadBytes decodes and validates manifest content. source names the content
// in errors and is usually a file path.
func (l *Loader) LoadBytes(ctx context.Context, content []byte, format Format, source string) (*LoadedManifest, error) {
	if source == "" {
		source = "inline"
	}

	m, errs := l.decode(content, format, source)
	if len(errs) > 0 {
		return nil, &ManifestError{Source: source, Errors: errs}
	}

	if errs := l.Check(ctx, m, source); len(errs) > 0 {
		return nil, &ManifestError{Source: source, Errors: errs}
	}

	return &LoadedManifest{
		Manifest: m,
		Source:   source,
		Format:   format,
		Raw:      content,
		LoadedAt: time.Now(),
	}, nil
}

// Check validates a decoded manifest: struct tags, cross-field rules, then
// the CUE schema. It returns every problem found.
func (l *Loader) Check(ctx context.Context, m *Manifest, source string) []ValidationError {
	var errs []ValidationError

	if err := l.validate.Struct(m); err != nil {
		errs = append(errs, convertValidatorErrors(err, source)...)
	}

	for _, ve := range m.Validate() {
		ve.File = source
		errs = append(errs, ve)
	}

	// schema errors mostly repeat tag errors; only consult it for clean manifests
	if len(errs) == 0 {
		errs = append(errs, l.schemas.ValidateManifest(ctx, m, source)...)
	}

	return errs
}

func (l *Loader) decode(content []byte, format Format, source string) (*Manifest, []ValidationError) {
	var (
		m    *Manifest
		errs []ValidationError
	)

	switch format {
	case FormatYAML:
		m, errs = parseYAML(content, source)
	case FormatJSON:
		m, errs = parseJSON(content, source)
	case FormatCUE:
		m, errs = l.cue.Parse(content, source)
	case FormatHCL:
		m, errs = parseHCL(content, source)
	default:
		return nil, []ValidationError{{
			File:     source,
			Message:  fmt.Sprintf("unsupported manifest format %q", format),
			Severity: "error",
		}}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	m.normalize()
	return m, nil
}

// parseYAML decodes a YAML manifest, rejecting unknown fields.
func parseYAML(content []byte, source string) (*Manifest, []ValidationError) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty manifest")
		}
		return nil, []ValidationError{{
			File:     source,
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	return &m, nil
}

// parseJSON decodes a JSON manifest, rejecting unknown fields.
func parseJSON(content []byte, source string) (*Manifest, []ValidationError) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, []ValidationError{{
			File:     source,
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	return &m, nil
}

// convertValidatorErrors converts validator field errors to ValidationError slice.
func convertValidatorErrors(err error, source string) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{File: source, Message: err.Error(), Severity: "error"}}
	}

	errs := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on the '%s=%s' rule", fe.Tag(), fe.Param())
		}
		errs = append(errs, ValidationError{
			File:     source,
			Path:     strings.TrimPrefix(fe.Namespace(), "Manifest."),
			Message:  msg,
			Severity: "error",
		})
	}
	return errs
}
