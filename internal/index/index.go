// Package index хранит зоны по id и по миру и отвечает на запросы принадлежности точки.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/zone"
)

// DefaultMaxCacheEntries лимит кэша локаций по умолчанию
const DefaultMaxCacheEntries = 10000

// Invalidator получает id зоны при каждом ее изменении (рассылка другим узлам)
type Invalidator interface {
	InvalidateZone(zoneID string) error
}

// Observer получает события кэша и размер индекса (метрики)
type Observer interface {
	CacheLookup(hit bool)
	ZonesIndexed(n int)
}

// Options параметры индекса
type Options struct {
	MaxCacheEntries int
	Logger          *logging.Logger
	Invalidator     Invalidator
	Observer        Observer
}

// ZoneIndex реестр зон: id -> зона, мир -> id зон, плюс кэш локаций.
// Чтение безопасно параллельно с изменениями.
type ZoneIndex struct {
	mu      sync.RWMutex
	byID    map[string]*zone.Zone
	byWorld map[string]map[string]struct{}

	cache       *locationCache
	invalidator Invalidator
	observer    Observer
	logger      *logging.Logger
}

// New создает пустой индекс
func New(opts Options) *ZoneIndex {
	if opts.MaxCacheEntries <= 0 {
		opts.MaxCacheEntries = DefaultMaxCacheEntries
	}
	return &ZoneIndex{
		byID:        make(map[string]*zone.Zone),
		byWorld:     make(map[string]map[string]struct{}),
		cache:       newLocationCache(opts.MaxCacheEntries),
		invalidator: opts.Invalidator,
		observer:    opts.Observer,
		logger:      logging.OrDefault(opts.Logger).With("index"),
	}
}

// SetInvalidator подключает рассылку инвалидаций после создания индекса
func (ix *ZoneIndex) SetInvalidator(inv Invalidator) {
	ix.mu.Lock()
	ix.invalidator = inv
	ix.mu.Unlock()
}

// Add регистрирует зону. Зона с тем же id заменяется.
func (ix *ZoneIndex) Add(z *zone.Zone) {
	ix.mu.Lock()
	ix.addLocked(z)
	n := len(ix.byID)
	ix.mu.Unlock()

	ix.invalidateZone(z.ID())
	ix.reportSize(n)
}

func (ix *ZoneIndex) addLocked(z *zone.Zone) {
	if old, ok := ix.byID[z.ID()]; ok {
		ix.unlinkLocked(old)
	}
	ix.byID[z.ID()] = z
	ids := ix.byWorld[z.World()]
	if ids == nil {
		ids = make(map[string]struct{})
		ix.byWorld[z.World()] = ids
	}
	ids[z.ID()] = struct{}{}
}

func (ix *ZoneIndex) unlinkLocked(z *zone.Zone) {
	delete(ix.byID, z.ID())
	if ids := ix.byWorld[z.World()]; ids != nil {
		delete(ids, z.ID())
		if len(ids) == 0 {
			delete(ix.byWorld, z.World())
		}
	}
}

// Remove удаляет зону; false, если ее не было
func (ix *ZoneIndex) Remove(id string) bool {
	ix.mu.Lock()
	z, ok := ix.byID[id]
	if ok {
		ix.unlinkLocked(z)
	}
	n := len(ix.byID)
	ix.mu.Unlock()

	if !ok {
		return false
	}
	ix.invalidateZone(id)
	ix.reportSize(n)
	return true
}

// Get возвращает зону по id
func (ix *ZoneIndex) Get(id string) (*zone.Zone, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	z, ok := ix.byID[id]
	return z, ok
}

// InWorld возвращает зоны мира, упорядоченные по id
func (ix *ZoneIndex) InWorld(world string) []*zone.Zone {
	ix.mu.RLock()
	out := make([]*zone.Zone, 0, len(ix.byWorld[world]))
	for id := range ix.byWorld[world] {
		out = append(out, ix.byID[id])
	}
	ix.mu.RUnlock()

	sortByID(out)
	return out
}

// All возвращает все зоны, упорядоченные по id
func (ix *ZoneIndex) All() []*zone.Zone {
	ix.mu.RLock()
	out := make([]*zone.Zone, 0, len(ix.byID))
	for _, z := range ix.byID {
		out = append(out, z)
	}
	ix.mu.RUnlock()

	sortByID(out)
	return out
}

// Worlds возвращает имена миров, в которых есть зоны
func (ix *ZoneIndex) Worlds() []string {
	ix.mu.RLock()
	out := make([]string, 0, len(ix.byWorld))
	for w := range ix.byWorld {
		out = append(out, w)
	}
	ix.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len возвращает число зон
func (ix *ZoneIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// ZoneAt возвращает зону, содержащую точку.
// Кэш только ускоряет ответ: запись проверяется по живой зоне, промахи не кэшируются.
func (ix *ZoneIndex) ZoneAt(loc zone.Location) (*zone.Zone, bool) {
	cell := loc.Cell()
	key := cacheKey{world: loc.World, cell: cell}

	if id, ok := ix.cache.get(key); ok {
		if z, exists := ix.Get(id); exists && z.ContainsCell(cell) {
			ix.recordLookup(true)
			return z, true
		}
		ix.cache.remove(key)
	}
	ix.recordLookup(false)

	ix.mu.RLock()
	var found *zone.Zone
	for id := range ix.byWorld[loc.World] {
		z := ix.byID[id]
		if z.ContainsCell(cell) {
			// зоны не пересекаются, но при ошибочных данных выбираем детерминированно
			if found == nil || z.ID() < found.ID() {
				found = z
			}
		}
	}
	ix.mu.RUnlock()

	if found == nil {
		return nil, false
	}
	if !ix.cache.put(key, found.ID()) {
		ix.logger.Trace("Кэш локаций заполнен, запись %s не добавлена", cell)
	}
	return found, true
}

// NearbyZones возвращает зоны мира, центр которых не дальше radius, по возрастанию расстояния
func (ix *ZoneIndex) NearbyZones(loc zone.Location, radius float64) []*zone.Zone {
	type ranked struct {
		z    *zone.Zone
		dist float64
	}
	var out []ranked
	for _, z := range ix.InWorld(loc.World) {
		c, ok := z.Centroid()
		if !ok {
			continue
		}
		dx, dy, dz := c.X-loc.X, c.Y-loc.Y, c.Z-loc.Z
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if d <= radius {
			out = append(out, ranked{z, d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].dist < out[j].dist })

	zones := make([]*zone.Zone, len(out))
	for i, r := range out {
		zones[i] = r.z
	}
	return zones
}

// ClearWorld удаляет все зоны мира; возвращает их число
func (ix *ZoneIndex) ClearWorld(world string) int {
	ix.mu.Lock()
	removed := ix.clearWorldLocked(world)
	n := len(ix.byID)
	ix.mu.Unlock()

	for _, id := range removed {
		ix.invalidateZone(id)
	}
	ix.reportSize(n)
	return len(removed)
}

func (ix *ZoneIndex) clearWorldLocked(world string) []string {
	ids := make([]string, 0, len(ix.byWorld[world]))
	for id := range ix.byWorld[world] {
		ids = append(ids, id)
		delete(ix.byID, id)
	}
	delete(ix.byWorld, world)
	return ids
}

// ReplaceWorld атомарно заменяет все зоны мира новым набором.
// Читатели видят либо старый, либо новый набор. Возвращает id удаленных зон.
func (ix *ZoneIndex) ReplaceWorld(world string, zones []*zone.Zone) ([]string, error) {
	for _, z := range zones {
		if z.World() != world {
			return nil, fmt.Errorf("зона %s принадлежит миру %s, а не %s", z.ID(), z.World(), world)
		}
	}

	ix.mu.Lock()
	removed := ix.clearWorldLocked(world)
	for _, z := range zones {
		ix.addLocked(z)
	}
	n := len(ix.byID)
	ix.mu.Unlock()

	for _, id := range removed {
		ix.invalidateZone(id)
	}
	for _, z := range zones {
		ix.invalidateZone(z.ID())
	}
	ix.reportSize(n)
	ix.logger.Info("Мир %s: заменено зон %d -> %d", world, len(removed), len(zones))
	return removed, nil
}

// MutateZone выполняет fn над зоной под блокировкой записи индекса
// и сбрасывает кэш зоны, даже если fn вернул ошибку.
func (ix *ZoneIndex) MutateZone(id string, fn func(z *zone.Zone) error) error {
	ix.mu.Lock()
	z, ok := ix.byID[id]
	var err error
	if ok {
		err = fn(z)
	}
	ix.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", id, zone.ErrZoneNotFound)
	}
	ix.invalidateZone(id)
	return err
}

// DropZoneCache сбрасывает записи кэша зоны без рассылки (входящая инвалидация)
func (ix *ZoneIndex) DropZoneCache(id string) int {
	return ix.cache.dropZone(id)
}

// ClearCache полностью сбрасывает кэш локаций
func (ix *ZoneIndex) ClearCache() {
	ix.cache.clear()
}

// invalidateZone единственная точка сброса кэша при изменении зоны
func (ix *ZoneIndex) invalidateZone(id string) {
	ix.cache.dropZone(id)

	ix.mu.RLock()
	inv := ix.invalidator
	ix.mu.RUnlock()
	if inv == nil {
		return
	}
	if err := inv.InvalidateZone(id); err != nil {
		ix.logger.Warn("Не удалось разослать инвалидацию зоны %s: %v", id, err)
	}
}

func (ix *ZoneIndex) recordLookup(hit bool) {
	ix.cache.record(hit)
	if ix.observer != nil {
		ix.observer.CacheLookup(hit)
	}
}

func (ix *ZoneIndex) reportSize(n int) {
	if ix.observer != nil {
		ix.observer.ZonesIndexed(n)
	}
}

func sortByID(zones []*zone.Zone) {
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID() < zones[j].ID() })
}
