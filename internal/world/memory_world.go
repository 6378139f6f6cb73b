package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/shopzones/internal/vec"
)

// MemoryWorld разреженный мир в памяти: пустые клетки не хранятся.
// Используется в тестах и в локальном режиме разработки.
type MemoryWorld struct {
	name       string
	minY, maxY int

	mu        sync.RWMutex
	blocks    map[vec.Vec3]Block
	entities  map[uint64]Entity
	nextID    uint64
	failCells map[vec.Vec3]error
	writes    int
}

// NewMemoryWorld создает пустой мир с вертикальными границами [minY, maxY]
func NewMemoryWorld(name string, minY, maxY int) *MemoryWorld {
	return &MemoryWorld{
		name:      name,
		minY:      minY,
		maxY:      maxY,
		blocks:    make(map[vec.Vec3]Block),
		entities:  make(map[uint64]Entity),
		failCells: make(map[vec.Vec3]error),
	}
}

func (w *MemoryWorld) Name() string { return w.name }
func (w *MemoryWorld) MinY() int    { return w.minY }
func (w *MemoryWorld) MaxY() int    { return w.maxY }

func (w *MemoryWorld) inRange(pos vec.Vec3) bool {
	return pos.Y >= w.minY && pos.Y <= w.maxY
}

// BlockAt возвращает содержимое клетки
func (w *MemoryWorld) BlockAt(pos vec.Vec3) (Block, error) {
	if !w.inRange(pos) {
		return Block{}, fmt.Errorf("%s %s: %w", w.name, pos, ErrOutOfRange)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if b, ok := w.blocks[pos]; ok {
		return b, nil
	}
	return Empty(), nil
}

// SetBlock записывает клетку; пустой блок удаляет запись
func (w *MemoryWorld) SetBlock(pos vec.Vec3, b Block) error {
	if !w.inRange(pos) {
		return fmt.Errorf("%s %s: %w", w.name, pos, ErrOutOfRange)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.failCells[pos]; ok {
		return err
	}
	w.writes++
	if b.IsEmpty() {
		delete(w.blocks, pos)
		return nil
	}
	w.blocks[pos] = b.Normalize()
	return nil
}

// FailWrites заставляет запись в клетку завершаться ошибкой (для тестов частичного восстановления)
func (w *MemoryWorld) FailWrites(pos vec.Vec3, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.failCells, pos)
		return
	}
	w.failCells[pos] = err
}

// Writes возвращает число успешных вызовов SetBlock
func (w *MemoryWorld) Writes() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.writes
}

// BlockCount возвращает число непустых клеток
func (w *MemoryWorld) BlockCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.blocks)
}

// SpawnEntity добавляет сущность и возвращает ее ID
func (w *MemoryWorld) SpawnEntity(t EntityType, pos vec.Vec3Float) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	w.entities[w.nextID] = Entity{ID: w.nextID, Type: t, Position: pos}
	return w.nextID
}

// Entities возвращает все сущности мира, упорядоченные по ID
func (w *MemoryWorld) Entities() []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EntitiesWithin возвращает сущности, клетки которых лежат в кубоиде
func (w *MemoryWorld) EntitiesWithin(min, max vec.Vec3) []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []Entity
	for _, e := range w.entities {
		c := e.Position.Cell()
		if c.X >= min.X && c.X <= max.X &&
			c.Y >= min.Y && c.Y <= max.Y &&
			c.Z >= min.Z && c.Z <= max.Z {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveEntity удаляет сущность
func (w *MemoryWorld) RemoveEntity(id uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entities[id]; !ok {
		return fmt.Errorf("%s #%d: %w", w.name, id, ErrEntityNotFound)
	}
	delete(w.entities, id)
	return nil
}

// ScanMaterials обходит только хранимые клетки вместо полного кубоида
func (w *MemoryWorld) ScanMaterials(min, max vec.Vec3, materials []Material, fn func(pos vec.Vec3, m Material)) error {
	want := make(map[Material]struct{}, len(materials))
	for _, m := range materials {
		want[m] = struct{}{}
	}

	w.mu.RLock()
	type hit struct {
		pos vec.Vec3
		m   Material
	}
	var hits []hit
	for pos, b := range w.blocks {
		if pos.X < min.X || pos.X > max.X || pos.Y < min.Y || pos.Y > max.Y || pos.Z < min.Z || pos.Z > max.Z {
			continue
		}
		if _, ok := want[b.Material]; ok {
			hits = append(hits, hit{pos, b.Material})
		}
	}
	w.mu.RUnlock()

	// колбэк вызывается без блокировки мира
	for _, h := range hits {
		fn(h.pos, h.m)
	}
	return nil
}

// MemoryAccess набор миров в памяти
type MemoryAccess struct {
	mu     sync.RWMutex
	worlds map[string]*MemoryWorld
}

// NewMemoryAccess создает доступ к переданным мирам
func NewMemoryAccess(worlds ...*MemoryWorld) *MemoryAccess {
	a := &MemoryAccess{worlds: make(map[string]*MemoryWorld)}
	for _, w := range worlds {
		a.worlds[w.Name()] = w
	}
	return a
}

// Put добавляет или заменяет мир
func (a *MemoryAccess) Put(w *MemoryWorld) {
	a.mu.Lock()
	a.worlds[w.Name()] = w
	a.mu.Unlock()
}

// Drop выгружает мир
func (a *MemoryAccess) Drop(name string) {
	a.mu.Lock()
	delete(a.worlds, name)
	a.mu.Unlock()
}

// World реализует Access
func (a *MemoryAccess) World(name string) (View, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	w, ok := a.worlds[name]
	if !ok {
		return nil, false
	}
	return w, true
}

// Names возвращает имена загруженных миров по алфавиту
func (a *MemoryAccess) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.worlds))
	for n := range a.worlds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
