package scanner

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/annel0/shopzones/internal/index"
	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/scheduler"
	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/world"
	"github.com/annel0/shopzones/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainAccess скрывает массовую выборку, чтобы проверить поклеточный обход
type plainAccess struct{ inner *world.MemoryAccess }

type plainView struct{ world.View }

func (a plainAccess) World(name string) (world.View, bool) {
	v, ok := a.inner.World(name)
	if !ok {
		return nil, false
	}
	return plainView{v}, true
}

type memStore struct {
	mu    sync.Mutex
	calls int
	zones []*zone.Zone
}

func (m *memStore) ReplaceWorld(_ context.Context, _ string, zones []*zone.Zone, _ []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.zones = zones
	return nil
}

type fixture struct {
	world   *world.MemoryWorld
	access  *world.MemoryAccess
	index   *index.ZoneIndex
	sched   *scheduler.Scheduler
	store   *memStore
	scanner *Scanner
}

func newFixture(t *testing.T, bulk bool) *fixture {
	t.Helper()
	f := &fixture{
		world: world.NewMemoryWorld("w", 0, 100),
		index: index.New(index.Options{Logger: logging.Discard()}),
		sched: scheduler.New(2, logging.Discard()),
		store: &memStore{},
	}
	t.Cleanup(f.sched.Stop)
	f.access = world.NewMemoryAccess(f.world)

	var access world.Access = f.access
	if !bulk {
		access = plainAccess{f.access}
	}
	f.scanner = New(access, f.index, f.sched, Options{
		Radius:  16,
		Workers: 3,
		Logger:  logging.Discard(),
		Store:   f.store,
	})
	return f
}

func (f *fixture) place(t *testing.T, m world.Material, cells ...vec.Vec3) {
	t.Helper()
	for _, c := range cells {
		require.NoError(t, f.world.SetBlock(c, world.NewBlock(m)))
	}
}

func (f *fixture) scan(t *testing.T) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := f.scanner.Scan(ctx, "w").Await(ctx)
	require.NoError(t, err)
	return res
}

func zoneSizes(zones []*zone.Zone) []int {
	sizes := make([]int, 0, len(zones))
	for _, z := range zones {
		sizes = append(sizes, z.ColumnCount())
	}
	sort.Ints(sizes)
	return sizes
}

func TestScanTwoZones(t *testing.T) {
	for _, bulk := range []bool{true, false} {
		f := newFixture(t, bulk)
		f.place(t, world.MarkerZone,
			vec.Vec3{X: 0, Y: 64, Z: 0},
			vec.Vec3{X: 1, Y: 64, Z: 0},
			vec.Vec3{X: 10, Y: 64, Z: 0},
		)

		res := f.scan(t)
		require.NoError(t, res.Err)
		assert.True(t, res.Success())
		assert.Equal(t, 3, res.MarkersFound)
		assert.Equal(t, 2, res.ZonesCreated)

		zones := f.index.InWorld("w")
		assert.Equal(t, []int{1, 2}, zoneSizes(zones))
		assert.Equal(t, 1, f.store.calls)
		for _, z := range zones {
			assert.True(t, z.IsConnected())
		}
	}
}

func TestScanEmptyWorldIsSuccess(t *testing.T) {
	f := newFixture(t, true)
	res := f.scan(t)
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.ZonesCreated)
	assert.Empty(t, f.index.InWorld("w"))
}

func TestScanUnknownWorld(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.scanner.Scan(context.Background(), "nowhere").Await(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, zone.ErrWorldNotFound)
	assert.False(t, res.Success())
	assert.False(t, f.scanner.IsScanning())
}

func TestScanIsDeterministic(t *testing.T) {
	f := newFixture(t, true)
	f.place(t, world.MarkerZone,
		vec.Vec3{X: 3, Y: 64, Z: 3}, vec.Vec3{X: 3, Y: 64, Z: 4}, vec.Vec3{X: 4, Y: 64, Z: 4},
		vec.Vec3{X: -5, Y: 64, Z: -5},
		vec.Vec3{X: 8, Y: 70, Z: 0}, vec.Vec3{X: 8, Y: 70, Z: 1},
	)

	partition := func() map[vec.Vec3]string {
		f.scan(t)
		out := map[vec.Vec3]string{}
		for _, z := range f.index.InWorld("w") {
			for _, a := range z.Anchors() {
				out[a] = z.ID()
			}
		}
		return out
	}
	first := partition()
	second := partition()
	assert.Equal(t, first, second)
	assert.Len(t, first, 6)
}

func TestScanConnectivityAndDisjointness(t *testing.T) {
	f := newFixture(t, true)
	f.place(t, world.MarkerZone,
		vec.Vec3{X: 0, Y: 64, Z: 0}, vec.Vec3{X: 1, Y: 64, Z: 0}, vec.Vec3{X: 1, Y: 64, Z: 1},
		vec.Vec3{X: 2, Y: 64, Z: 2},                              // диагональ - отдельная зона
		vec.Vec3{X: 5, Y: 64, Z: 5}, vec.Vec3{X: 5, Y: 65, Z: 6}, // разная высота - не соседи
	)
	f.scan(t)

	seen := map[vec.Vec2]string{}
	for _, z := range f.index.InWorld("w") {
		assert.False(t, z.IsEmpty())
		assert.True(t, z.IsConnected(), z.ID())
		for _, c := range z.Columns() {
			prev, dup := seen[c.Key()]
			assert.False(t, dup, "колонна %s в %s и %s", c.Key(), prev, z.ID())
			seen[c.Key()] = z.ID()
		}
	}
	assert.Equal(t, []int{1, 1, 1, 3}, zoneSizes(f.index.InWorld("w")))
}

func TestScanVerticalNeighbourIsDuplicate(t *testing.T) {
	f := newFixture(t, true)
	f.place(t, world.MarkerZone, vec.Vec3{X: 0, Y: 64, Z: 0}, vec.Vec3{X: 0, Y: 65, Z: 0})
	res := f.scan(t)
	assert.Equal(t, 1, res.ZonesCreated)
	assert.Equal(t, 1, res.DuplicateColumns)
}

func TestScanDroppedDuplicateSplitsZone(t *testing.T) {
	f := newFixture(t, true)
	// (0,65,0) связывал бы (0,64,0) и (1,65,0), но сам отбрасывается как дубликат колонны
	f.place(t, world.MarkerZone,
		vec.Vec3{X: 0, Y: 64, Z: 0}, vec.Vec3{X: 0, Y: 65, Z: 0}, vec.Vec3{X: 1, Y: 65, Z: 0})
	res := f.scan(t)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.DuplicateColumns)
	assert.Equal(t, 2, res.ZonesCreated)

	zones := f.index.InWorld("w")
	assert.Equal(t, []int{1, 1}, zoneSizes(zones))
	for _, z := range zones {
		assert.True(t, z.IsConnected(), z.ID())
	}
}

func TestScanFarDuplicateDoesNotClaimColumnTwice(t *testing.T) {
	f := newFixture(t, true)
	f.place(t, world.MarkerZone, vec.Vec3{X: 3, Y: 10, Z: 3}, vec.Vec3{X: 3, Y: 80, Z: 3})
	res := f.scan(t)
	assert.Equal(t, 1, res.ZonesCreated)
	assert.Equal(t, 1, res.DuplicateColumns)

	z, ok := f.index.Get(ZoneID("w", 1))
	require.True(t, ok)
	require.Equal(t, 1, z.ColumnCount())
	assert.Equal(t, 10, z.Columns()[0].Anchor.Y, "остается нижний якорь")
}

func TestScanCompletesAfterContextCancel(t *testing.T) {
	for _, bulk := range []bool{true, false} {
		f := newFixture(t, bulk)
		f.place(t, world.MarkerZone, vec.Vec3{X: 0, Y: 64, Z: 0}, vec.Vec3{X: 1, Y: 64, Z: 0})

		release := make(chan struct{})
		require.NoError(t, f.sched.RunExclusive(func() { <-release }))

		ctx, cancel := context.WithCancel(context.Background())
		fut := f.scanner.Scan(ctx, "w")
		cancel()
		close(release)

		waitCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		res, err := fut.Await(waitCtx)
		done()
		require.NoError(t, err)
		require.NoError(t, res.Err, "отмена после запуска не прерывает сканирование")
		assert.Equal(t, 1, res.ZonesCreated)
		assert.Len(t, f.index.InWorld("w"), 1)

		f.store.mu.Lock()
		assert.Equal(t, 1, f.store.calls, "хранилище обновлено вместе с индексом")
		assert.Len(t, f.store.zones, 1)
		f.store.mu.Unlock()
	}
}

func TestScanReplacesPreviousZones(t *testing.T) {
	f := newFixture(t, true)
	f.place(t, world.MarkerZone, vec.Vec3{X: 0, Y: 64, Z: 0})
	f.scan(t)
	require.Len(t, f.index.InWorld("w"), 1)

	require.NoError(t, f.world.SetBlock(vec.Vec3{X: 0, Y: 64, Z: 0}, world.Empty()))
	f.scan(t)
	assert.Empty(t, f.index.InWorld("w"))
}

func TestScanTeleportAssignment(t *testing.T) {
	f := newFixture(t, true)
	f.place(t, world.MarkerZone, vec.Vec3{X: 0, Y: 64, Z: 0}, vec.Vec3{X: 1, Y: 64, Z: 0})
	f.place(t, world.MarkerTeleport, vec.Vec3{X: 0, Y: 64, Z: -4}, vec.Vec3{X: 12, Y: 64, Z: 12})

	res := f.scan(t)
	assert.Equal(t, 2, res.TeleportsFound)
	assert.Equal(t, 1, res.ZonesWithTeleport)

	z, ok := f.index.Get(ZoneID("w", 1))
	require.True(t, ok)
	tp, ok := z.Teleport()
	require.True(t, ok)
	assert.Equal(t, 0.5, tp.X)
	assert.Equal(t, 64.0, tp.Y)
	assert.Equal(t, -3.5, tp.Z)
	assert.Equal(t, float32(0), tp.Yaw, "центр зоны по +z от точки")
	assert.Equal(t, float32(0), tp.Pitch)
}

func TestScanRejectsConcurrentScan(t *testing.T) {
	f := newFixture(t, true)
	f.scanner.running.Store(true)
	res, err := f.scanner.Scan(context.Background(), "w").Await(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, zone.ErrScanInProgress)
	assert.ErrorIs(t, res.Err, zone.ErrConflict)
	f.scanner.running.Store(false)

	assert.NoError(t, f.scan(t).Err)
}

func TestScanMissesMarkersOutsideRadius(t *testing.T) {
	f := newFixture(t, true)
	f.place(t, world.MarkerZone, vec.Vec3{X: 100, Y: 64, Z: 0})
	res := f.scan(t)
	assert.Equal(t, 0, res.MarkersFound)
}

func TestScanOnCompleteHook(t *testing.T) {
	f := newFixture(t, true)
	got := make(chan Result, 1)
	f.scanner.opts.OnComplete = append(f.scanner.opts.OnComplete, func(r Result) { got <- r })
	f.scan(t)
	select {
	case r := <-got:
		assert.Equal(t, "w", r.World)
	case <-time.After(time.Second):
		t.Fatal("хук не вызван")
	}
}

func TestClusterIgnoresInputOrder(t *testing.T) {
	a := []vec.Vec3{{X: 2, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 9, Y: 1, Z: 9}}
	b := []vec.Vec3{a[3], a[1], a[0], a[2]}
	assert.Equal(t, Cluster(a), Cluster(b))
	assert.Equal(t, [][]vec.Vec3{
		{{X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 2, Y: 1, Z: 0}},
		{{X: 9, Y: 1, Z: 9}},
	}, Cluster(a))
}
