package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playstate/internal/definition"
)

func TestValidateValidWorlds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "arena.yaml", arenaWorld)
	writeFile(t, dir, "nested/empty.cue", `name: "empty"`)
	writeFile(t, dir, "README.md", "not a world")

	out, err := execute(t, NewValidateCommand(testRoot("text")), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 world file(s) valid")
}

func TestValidateValidWorldsJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "arena.yaml", arenaWorld)

	out, err := execute(t, NewValidateCommand(testRoot("json")), path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{path}, resp.Data.Files)
}

func TestValidateMissingPath(t *testing.T) {
	_, err := execute(t, NewValidateCommand(testRoot("text")), "/nonexistent/world.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testRoot("text")), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, out, "no world files found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateInvalidWorlds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_dup.yaml", `name: dup
entities:
  - id: hero
  - id: hero
`)
	writeFile(t, dir, "b_rule.yaml", `name: bad-rule
rules:
  - name: broken
    on: [attack]
    do:
      - explode: true
`)
	writeFile(t, dir, "c_conflict.cue", "name: \"x\"\nname: \"y\"\n")

	out, err := execute(t, NewValidateCommand(testRoot("text")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 3 error(s)")

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, definition.ErrCodeInvalid)
	assert.Contains(t, out, definition.ErrCodeRule)
	assert.Contains(t, out, definition.ErrCodeCUE)
	// CUE errors carry a position.
	assert.Contains(t, out, filepath.Join(dir, "c_conflict.cue")+":")
}

func TestValidateInvalidWorldJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "unknown.yaml", "name: x\nsystems: []\n")

	out, err := execute(t, NewValidateCommand(testRoot("json")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, definition.ErrCodeParse, resp.Error.Code)
}

func TestToValidationError(t *testing.T) {
	le := &definition.LoadError{Path: "w.yaml", Code: definition.ErrCodeInvalid, Field: "views", Message: "bad view"}
	assert.Equal(t, ValidationError{File: "w.yaml", Code: "E005", Field: "views", Message: "bad view"},
		toValidationError("w.yaml", le))

	plain := toValidationError("w.yaml", assert.AnError)
	assert.Equal(t, ErrCodeGeneric, plain.Code)
	assert.Equal(t, assert.AnError.Error(), plain.Message)
}

func TestIsWorldFile(t *testing.T) {
	assert.True(t, isWorldFile("a.yaml"))
	assert.True(t, isWorldFile("a.YML"))
	assert.True(t, isWorldFile("dir/a.cue"))
	assert.False(t, isWorldFile("a.json"))
	assert.False(t, isWorldFile("golden/a.golden"))
}
