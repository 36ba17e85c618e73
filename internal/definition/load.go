package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Error codes carried by LoadError.
const (
	ErrCodeRead    = "E001" // file could not be read
	ErrCodeFormat  = "E002" // unsupported file extension
	ErrCodeParse   = "E003" // YAML decode failed or unknown field
	ErrCodeCUE     = "E004" // CUE evaluation failed or value not concrete
	ErrCodeInvalid = "E005" // structural validation failed
	ErrCodeRule    = "E006" // a rule did not compile
)

// LoadError describes why a world file could not be loaded.
type LoadError struct {
	Path    string
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	switch {
	case e.Pos.IsValid():
		fmt.Fprintf(&b, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	case e.Path != "":
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(e.Code)
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is a LoadError, returning it.
func IsLoadError(err error) (*LoadError, bool) {
	var le *LoadError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// Load reads a world file, choosing the decoder by extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Code: ErrCodeRead, Message: err.Error(), Err: err}
	}

	var f *File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		f, err = DecodeYAML(bytes.NewReader(data))
	case ".cue":
		f, err = DecodeCUE(data, path)
	default:
		return nil, &LoadError{Path: path, Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported world file extension %q", ext)}
	}
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && le.Path == "" {
			le.Path = path
		}
		return nil, err
	}
	f.Path = path
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeYAML decodes one YAML document, rejecting unknown fields.
func DecodeYAML(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Code: ErrCodeParse, Message: "empty world file"}
		}
		return nil, &LoadError{Code: ErrCodeParse, Message: err.Error(), Err: err}
	}
	return &f, nil
}

// DecodeCUE evaluates CUE source and decodes the exported value.
// filename is used for error positions only.
func DecodeCUE(src []byte, filename string) (*File, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	// JSON is a YAML subset, so CUE input gets the same strict decoding.
	return DecodeYAML(bytes.NewReader(data))
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: ErrCodeCUE, Message: err.Error(), Err: err}
	}
	first := errs[0]
	le := &LoadError{Code: ErrCodeCUE, Message: first.Error(), Err: err}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
