package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/playstate/internal/definition"
)

// ValidationError is one problem found in a world file.
type ValidationError struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  []string          `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <world-file|dir>...",
		Short: "Validate world files without running them",
		Long: `Decode and check world files: YAML or CUE syntax, unknown fields,
duplicate components and entities, rule actions and view descriptors.
Directories are searched for .yaml, .yml and .cue files.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - Command error (missing paths, no world files)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	files, err := findWorldFiles(paths)
	if err != nil {
		_ = formatter.Error(definition.ErrCodeRead, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find world files", err)
	}
	if len(files) == 0 {
		msg := fmt.Sprintf("no world files found in %s", strings.Join(paths, ", "))
		_ = formatter.Error(definition.ErrCodeRead, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	result := ValidationResult{Files: files}
	for _, path := range files {
		formatter.VerboseLog("Validating %s", path)
		if err := validateWorld(path); err != nil {
			result.Errors = append(result.Errors, toValidationError(path, err))
		}
	}
	result.Valid = len(result.Errors) == 0

	if result.Valid {
		if formatter.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ %d world file(s) valid\n", len(files))
		return nil
	}
	return outputValidationErrors(formatter, result)
}

// validateWorld loads path and builds its definition, so rule and view
// errors surface as well as decoding errors.
func validateWorld(path string) error {
	f, err := definition.Load(path)
	if err != nil {
		return err
	}
	_, err = f.Definition()
	return err
}

func toValidationError(path string, err error) ValidationError {
	ve := ValidationError{File: path, Code: ErrCodeGeneric, Message: err.Error()}
	le, ok := definition.IsLoadError(err)
	if !ok {
		return ve
	}
	ve.Code, ve.Field, ve.Message = le.Code, le.Field, le.Message
	if le.Pos.IsValid() {
		ve.Line, ve.Column = le.Pos.Line(), le.Pos.Column()
	}
	return ve
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		loc := e.File
		if e.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
		}
		fmt.Fprintln(formatter.Writer, loc)
		if e.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s %s: %s\n\n", e.Code, e.Field, e.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
		}
	}
	return failed
}

// findWorldFiles expands directories into the world files they contain.
func findWorldFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("path not found: %s", p)
			}
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isWorldFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isWorldFile(path string) bool {
	return slices.Contains([]string{".yaml", ".yml", ".cue"}, strings.ToLower(filepath.Ext(path)))
}
