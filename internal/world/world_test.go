package world

import (
	"errors"
	"testing"

	"github.com/annel0/shopzones/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWorldBlocks(t *testing.T) {
	w := NewMemoryWorld("w", -64, 319)
	pos := vec.Vec3{X: 1, Y: 64, Z: 2}

	b, err := w.BlockAt(pos)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	require.NoError(t, w.SetBlock(pos, Block{Material: Chest}))
	b, err = w.BlockAt(pos)
	require.NoError(t, err)
	assert.Equal(t, Chest, b.Material)
	assert.Equal(t, DefaultVariant(Chest), b.Variant, "пустой вариант заменяется значением по умолчанию")

	require.NoError(t, w.SetBlock(pos, Empty()))
	assert.Equal(t, 0, w.BlockCount())

	_, err = w.BlockAt(vec.Vec3{Y: 400})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMemoryWorldFailWrites(t *testing.T) {
	w := NewMemoryWorld("w", 0, 255)
	pos := vec.Vec3{X: 0, Y: 10, Z: 0}
	boom := errors.New("boom")

	w.FailWrites(pos, boom)
	assert.ErrorIs(t, w.SetBlock(pos, NewBlock(Stone)), boom)

	w.FailWrites(pos, nil)
	assert.NoError(t, w.SetBlock(pos, NewBlock(Stone)))
}

func TestMemoryWorldEntities(t *testing.T) {
	w := NewMemoryWorld("w", 0, 255)
	item := w.SpawnEntity(EntityTypeItem, vec.Vec3Float{X: 0.5, Y: 65, Z: 0.5})
	player := w.SpawnEntity(EntityTypePlayer, vec.Vec3Float{X: 1.2, Y: 65, Z: 0.9})
	w.SpawnEntity(EntityTypeItem, vec.Vec3Float{X: 50, Y: 65, Z: 50})

	inside := w.EntitiesWithin(vec.Vec3{X: 0, Y: 63, Z: 0}, vec.Vec3{X: 1, Y: 84, Z: 0})
	require.Len(t, inside, 2)
	assert.Equal(t, item, inside[0].ID)
	assert.True(t, inside[1].IsPlayer())
	assert.Equal(t, player, inside[1].ID)

	require.NoError(t, w.RemoveEntity(item))
	assert.ErrorIs(t, w.RemoveEntity(item), ErrEntityNotFound)
	assert.Len(t, w.Entities(), 2)
}

func TestScanMaterials(t *testing.T) {
	w := NewMemoryWorld("w", 0, 255)
	require.NoError(t, w.SetBlock(vec.Vec3{X: 0, Y: 64, Z: 0}, NewBlock(MarkerZone)))
	require.NoError(t, w.SetBlock(vec.Vec3{X: 5, Y: 64, Z: 0}, NewBlock(MarkerTeleport)))
	require.NoError(t, w.SetBlock(vec.Vec3{X: 500, Y: 64, Z: 0}, NewBlock(MarkerZone)))
	require.NoError(t, w.SetBlock(vec.Vec3{X: 1, Y: 64, Z: 0}, NewBlock(Stone)))

	found := map[vec.Vec3]Material{}
	err := w.ScanMaterials(vec.Vec3{X: -10, Y: 0, Z: -10}, vec.Vec3{X: 10, Y: 255, Z: 10},
		[]Material{MarkerZone, MarkerTeleport},
		func(pos vec.Vec3, m Material) { found[pos] = m })
	require.NoError(t, err)

	assert.Equal(t, map[vec.Vec3]Material{
		{X: 0, Y: 64, Z: 0}: MarkerZone,
		{X: 5, Y: 64, Z: 0}: MarkerTeleport,
	}, found)
}

func TestMemoryAccess(t *testing.T) {
	a := NewMemoryAccess(NewMemoryWorld("b", 0, 1), NewMemoryWorld("a", 0, 1))
	assert.Equal(t, []string{"a", "b"}, a.Names())

	v, ok := a.World("a")
	require.True(t, ok)
	assert.Equal(t, "a", v.Name())

	a.Drop("a")
	_, ok = a.World("a")
	assert.False(t, ok)
}

func TestGeneratorIsDeterministic(t *testing.T) {
	gen := func() (*MemoryWorld, []Plot) {
		w := NewMemoryWorld("dev", -64, 319)
		plots, err := NewGenerator(7, 32).Generate(w)
		require.NoError(t, err)
		return w, plots
	}

	w1, p1 := gen()
	w2, p2 := gen()
	assert.Equal(t, p1, p2)
	assert.Equal(t, w1.BlockCount(), w2.BlockCount())
	require.NotEmpty(t, p1)

	for _, p := range p1 {
		for _, a := range p.Anchors {
			b, err := w1.BlockAt(a)
			require.NoError(t, err)
			assert.Equal(t, MarkerZone, b.Material)
		}
		b, err := w1.BlockAt(p.Teleport)
		require.NoError(t, err)
		assert.Equal(t, MarkerTeleport, b.Material)
	}
}
