package world

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playstate/internal/ecs"
)

func TestBuilder_EntityDefaults(t *testing.T) {
	def := NewBuilder().
		WithComponent("hp", 100).
		WithComponent("tag", nil).
		WithEntity("a", nil).
		WithEntity("b", ecs.Data{"hp": 5, "tag": "boss"}).
		WithComponent("late", "x").
		WithEntity("c", nil).
		Build()

	require.Len(t, def.Entities, 3)
	assert.Equal(t, ecs.Data{"hp": 100}, def.Entities[0].Data, "nil defaults are not seeded")
	assert.Equal(t, ecs.Data{"hp": 5, "tag": "boss"}, def.Entities[1].Data)
	assert.Equal(t, ecs.Data{"hp": 100, "late": "x"}, def.Entities[2].Data, "defaults apply from registration on")
}

func TestBuilder_DefaultsAreCloned(t *testing.T) {
	b := NewBuilder().
		WithComponent("inv", map[string]any{"slots": []any{1, 2}}).
		WithEntity("a", nil).
		WithEntity("b", nil)

	def := b.Build()
	def.Entities[0].Data["inv"].(map[string]any)["slots"].([]any)[0] = 99
	assert.Equal(t, 1, def.Entities[1].Data["inv"].(map[string]any)["slots"].([]any)[0])

	again := b.Build()
	assert.Equal(t, 1, again.Entities[0].Data["inv"].(map[string]any)["slots"].([]any)[0],
		"Build copies entity data")
}

func TestBuilder_GeneratedIDs(t *testing.T) {
	def := NewBuilder().WithEntity("", nil).WithEntity("", nil).Build()
	require.Len(t, def.Entities, 2)
	for _, e := range def.Entities {
		_, err := uuid.Parse(e.ID)
		assert.NoError(t, err)
	}
	assert.NotEqual(t, def.Entities[0].ID, def.Entities[1].ID)
}

func TestBuilder_Use(t *testing.T) {
	plugin := func(b *Builder) {
		b.WithComponent("frame", nil).WithEntity("#frame", ecs.Data{"frame": 0})
	}
	def := NewBuilder().Use(plugin).WithParams(map[string]any{"k": "v"}).Build()
	assert.Len(t, def.Components, 1)
	assert.Equal(t, "#frame", def.Entities[0].ID)
	assert.Equal(t, "v", def.Params["k"])
}
