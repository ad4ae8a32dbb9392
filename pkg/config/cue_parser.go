package config

import (
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// CUEParser decodes manifests written in CUE. Every field must be concrete:
// a manifest may use CUE references and defaults but not leave a type
// like `string` where a value belongs.
type CUEParser struct {
	ctx *cue.Context
}

func NewCUEParser() *CUEParser {
	return &CUEParser{ctx: cuecontext.New()}
}

// Parse compiles content and decodes it into a manifest. Failures are
// reported with the position CUE attaches to them.
func (cp *CUEParser) Parse(content []byte, filename string) (*Manifest, []ValidationError) {
	val := cp.ctx.CompileBytes(content, cue.Filename(filename))

	err := val.Err()
	if err == nil {
		err = val.Validate(cue.Concrete(true))
	}
	if err == nil {
		var m Manifest
		if err = val.Decode(&m); err == nil {
			return &m, nil
		}
	}
	return nil, cueValidationErrors(err, filename)
}

func cueValidationErrors(err error, filename string) []ValidationError {
	list := cueerrors.Errors(err)
	out := make([]ValidationError, 0, len(list))
	for _, e := range list {
		ve := ValidationError{
			File:     filename,
			Path:     strings.Join(e.Path(), "."),
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			if f := pos[0].Filename(); f != "" {
				ve.File = f
			}
			ve.Line, ve.Column = pos[0].Line(), pos[0].Column()
		}
		out = append(out, ve)
	}
	return out
}
