package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/config"
)

const arenaWorld = `name: arena
params:
  damage: 3
components:
  - name: hp
    default: 10
entities:
  - id: goblin
    data: {enemy: true}
  - id: hero
    data: {hp: 30}
rules:
  - name: combat
    on: [attack]
    query: [enemy, hp]
    do:
      - set: {hp: "${params.damage}"}
      - succeed: "${entity.id}"
views:
  - name: enemies
    count: [enemy]
`

func testRoot(format string) *RootOptions {
	return &RootOptions{Format: format, Logger: zap.NewNop(), Config: config.Defaults()}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	cmd.SetContext(t.Context())
	err := cmd.Execute()
	return out.String(), err
}
