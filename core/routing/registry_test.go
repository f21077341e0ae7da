package routing

import (
	"os"
	"path/filepath"
	"testing"

	"picturas-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRoutes = `
tools:
  - procedure: resize
    queue: resize_queue
  - procedure: rotation
    queue: rotation_queue
`

func TestParseResolvesQueues(t *testing.T) {
	registry, err := Parse([]byte(validRoutes))
	require.NoError(t, err)

	queue, err := registry.QueueFor("resize")
	require.NoError(t, err)
	assert.Equal(t, "resize_queue", queue)

	assert.ElementsMatch(t, []string{"resize", "rotation"}, registry.Procedures())
}

func TestParseRejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty table", `tools: []`},
		{"missing queue", "tools:\n  - procedure: resize"},
		{"duplicate procedure", "tools:\n  - procedure: resize\n    queue: a\n  - procedure: resize\n    queue: b"},
		{"not yaml", `{tools: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestQueueForUnknownProcedure(t *testing.T) {
	registry, err := Parse([]byte(validRoutes))
	require.NoError(t, err)

	_, err = registry.QueueFor("sharpen")
	assert.ErrorIs(t, err, models.ErrUnknownProcedure)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validRoutes), 0o644))

	registry, err := Load(path)
	require.NoError(t, err)

	queue, err := registry.QueueFor("rotation")
	require.NoError(t, err)
	assert.Equal(t, "rotation_queue", queue)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
