package zone

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/shopzones/internal/vec"
)

// Zone связная группа колонн маяков в одном мире.
// Производная геометрия (центр, кубоид, развернутый набор клеток) кэшируется
// и сбрасывается при любом изменении набора колонн.
type Zone struct {
	id    string
	world string

	mu       sync.RWMutex
	columns  map[vec.Vec2]Column
	teleport *TeleportPoint

	centroid     vec.Vec3Float
	bbox         *BoundingBox
	materialized map[vec.Vec3]struct{}
}

// New создает пустую зону
func New(id, world string) *Zone {
	return &Zone{
		id:      id,
		world:   world,
		columns: make(map[vec.Vec2]Column),
	}
}

// ID возвращает идентификатор зоны
func (z *Zone) ID() string { return z.id }

// World возвращает имя мира зоны
func (z *Zone) World() string { return z.world }

// AddColumn добавляет колонну с якорем anchor.
// Повторное добавление того же якоря ничего не меняет; другой Y на занятой (x, z) отклоняется.
func (z *Zone) AddColumn(anchor vec.Vec3) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	key := anchor.Column()
	if existing, ok := z.columns[key]; ok {
		if existing.Anchor.Y == anchor.Y {
			return nil
		}
		return fmt.Errorf("%s: %s (якорь y=%d): %w", z.id, key, existing.Anchor.Y, ErrColumnClaimed)
	}
	z.columns[key] = Column{Anchor: anchor}
	z.invalidateLocked()
	return nil
}

// RemoveColumn удаляет колонну (x, z); возвращает false, если ее не было
func (z *Zone) RemoveColumn(x, zc int) bool {
	z.mu.Lock()
	defer z.mu.Unlock()

	key := vec.Vec2{X: x, Z: zc}
	if _, ok := z.columns[key]; !ok {
		return false
	}
	delete(z.columns, key)
	z.invalidateLocked()
	return true
}

// invalidateLocked сбрасывает кэши и пересчитывает центр. Вызывается под z.mu.
func (z *Zone) invalidateLocked() {
	z.bbox = nil
	z.materialized = nil

	if len(z.columns) == 0 {
		z.centroid = vec.Vec3Float{}
		return
	}
	var sx, sy, sz float64
	for _, c := range z.columns {
		sx += float64(c.Anchor.X)
		sy += float64(c.Anchor.Y)
		sz += float64(c.Anchor.Z)
	}
	n := float64(len(z.columns))
	z.centroid = vec.Vec3Float{X: sx / n, Y: sy / n, Z: sz / n}
}

// Column возвращает колонну по ключу
func (z *Zone) Column(key vec.Vec2) (Column, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	c, ok := z.columns[key]
	return c, ok
}

// Columns возвращает копию колонн, упорядоченную по x, затем z
func (z *Zone) Columns() []Column {
	z.mu.RLock()
	out := make([]Column, 0, len(z.columns))
	for _, c := range z.columns {
		out = append(out, c)
	}
	z.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// Anchors возвращает якоря колонн в порядке Columns
func (z *Zone) Anchors() []vec.Vec3 {
	cols := z.Columns()
	out := make([]vec.Vec3, len(cols))
	for i, c := range cols {
		out[i] = c.Anchor
	}
	return out
}

// ColumnCount возвращает число колонн
func (z *Zone) ColumnCount() int {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return len(z.columns)
}

// BlockCount возвращает число клеток зоны без их перечисления
func (z *Zone) BlockCount() int {
	return z.ColumnCount() * ColumnHeight
}

// IsEmpty сообщает, что у зоны нет колонн
func (z *Zone) IsEmpty() bool {
	return z.ColumnCount() == 0
}

// Centroid возвращает среднее якорей; ok=false для пустой зоны
func (z *Zone) Centroid() (vec.Vec3Float, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	if len(z.columns) == 0 {
		return vec.Vec3Float{}, false
	}
	return z.centroid, true
}

// BoundingBox возвращает кэшированный кубоид; ok=false для пустой зоны
func (z *Zone) BoundingBox() (BoundingBox, bool) {
	z.mu.RLock()
	if z.bbox != nil {
		b := *z.bbox
		z.mu.RUnlock()
		return b, true
	}
	z.mu.RUnlock()

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.bbox != nil {
		return *z.bbox, true
	}
	if len(z.columns) == 0 {
		return BoundingBox{}, false
	}

	first := true
	var b BoundingBox
	for _, c := range z.columns {
		lo := vec.Vec3{X: c.Anchor.X, Y: c.MinY(), Z: c.Anchor.Z}
		hi := vec.Vec3{X: c.Anchor.X, Y: c.MaxY(), Z: c.Anchor.Z}
		if first {
			b = BoundingBox{Min: lo, Max: hi}
			first = false
			continue
		}
		b.Min.X = min(b.Min.X, lo.X)
		b.Min.Y = min(b.Min.Y, lo.Y)
		b.Min.Z = min(b.Min.Z, lo.Z)
		b.Max.X = max(b.Max.X, hi.X)
		b.Max.Y = max(b.Max.Y, hi.Y)
		b.Max.Z = max(b.Max.Z, hi.Z)
	}
	z.bbox = &b
	return b, true
}

// ContainsLocation проверяет принадлежность точки зоне: мир, затем кубоид, затем колонна
func (z *Zone) ContainsLocation(loc Location) bool {
	if loc.World != z.world {
		return false
	}
	return z.ContainsCell(loc.Cell())
}

// ContainsCell проверяет принадлежность клетки зоне без развертывания набора клеток
func (z *Zone) ContainsCell(cell vec.Vec3) bool {
	box, ok := z.BoundingBox()
	if !ok || !box.Contains(cell) {
		return false
	}
	c, ok := z.Column(cell.Column())
	return ok && c.ContainsY(cell.Y)
}

// MaterializedBlocks возвращает копию полного набора клеток зоны.
// Набор строится лениво и кэшируется до следующего изменения колонн.
func (z *Zone) MaterializedBlocks() map[vec.Vec3]struct{} {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.materialized == nil {
		set := make(map[vec.Vec3]struct{}, len(z.columns)*ColumnHeight)
		for key, c := range z.columns {
			for y := c.MinY(); y <= c.MaxY(); y++ {
				set[key.At(y)] = struct{}{}
			}
		}
		z.materialized = set
	}

	out := make(map[vec.Vec3]struct{}, len(z.materialized))
	for k := range z.materialized {
		out[k] = struct{}{}
	}
	return out
}

// Efficiency доля клеток зоны в объеме ее кубоида
func (z *Zone) Efficiency() float64 {
	box, ok := z.BoundingBox()
	if !ok {
		return 0
	}
	return float64(z.BlockCount()) / float64(box.Volume())
}

// SetTeleport задает точку прибытия
func (z *Zone) SetTeleport(t TeleportPoint) {
	z.mu.Lock()
	z.teleport = &t
	z.mu.Unlock()
}

// Teleport возвращает точку прибытия, если она задана
func (z *Zone) Teleport() (TeleportPoint, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	if z.teleport == nil {
		return TeleportPoint{}, false
	}
	return *z.teleport, true
}

// ClearTeleport удаляет точку прибытия
func (z *Zone) ClearTeleport() {
	z.mu.Lock()
	z.teleport = nil
	z.mu.Unlock()
}

// IsConnected проверяет, что все колонны достижимы друг из друга шагами по соседним якорям
func (z *Zone) IsConnected() bool {
	anchors := z.Anchors()
	if len(anchors) <= 1 {
		return true
	}
	seen := map[vec.Vec3]bool{anchors[0]: true}
	queue := []vec.Vec3{anchors[0]}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, a := range anchors {
			if !seen[a] && IsAdjacent(cur, a) {
				seen[a] = true
				queue = append(queue, a)
			}
		}
	}
	return len(seen) == len(anchors)
}

// String для логов
func (z *Zone) String() string {
	return fmt.Sprintf("%s[%s, колонн: %d]", z.id, z.world, z.ColumnCount())
}
