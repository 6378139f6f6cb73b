package index

import (
	"sync"

	"github.com/annel0/shopzones/internal/vec"
)

type cacheKey struct {
	world string
	cell  vec.Vec3
}

// locationCache best-effort кэш клетка -> id зоны.
// После заполнения до limit новые записи не добавляются; сбросить его можно в любой момент.
type locationCache struct {
	mu     sync.Mutex
	limit  int
	byCell map[cacheKey]string
	byZone map[string]map[cacheKey]struct{}

	hits   uint64
	misses uint64
}

func newLocationCache(limit int) *locationCache {
	return &locationCache{
		limit:  limit,
		byCell: make(map[cacheKey]string),
		byZone: make(map[string]map[cacheKey]struct{}),
	}
}

func (c *locationCache) get(k cacheKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byCell[k]
	return id, ok
}

// put возвращает false, если достигнут лимит
func (c *locationCache) put(k cacheKey, zoneID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byCell[k]; !ok && len(c.byCell) >= c.limit {
		return false
	}
	c.byCell[k] = zoneID
	cells := c.byZone[zoneID]
	if cells == nil {
		cells = make(map[cacheKey]struct{})
		c.byZone[zoneID] = cells
	}
	cells[k] = struct{}{}
	return true
}

func (c *locationCache) remove(k cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byCell[k]
	if !ok {
		return
	}
	delete(c.byCell, k)
	if cells := c.byZone[id]; cells != nil {
		delete(cells, k)
		if len(cells) == 0 {
			delete(c.byZone, id)
		}
	}
}

// dropZone удаляет все записи, указывающие на зону; возвращает их число
func (c *locationCache) dropZone(zoneID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cells := c.byZone[zoneID]
	for k := range cells {
		delete(c.byCell, k)
	}
	delete(c.byZone, zoneID)
	return len(cells)
}

// zoneIDs возвращает id зон, на которые есть записи
func (c *locationCache) zoneIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.byZone))
	for id := range c.byZone {
		ids = append(ids, id)
	}
	return ids
}

func (c *locationCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCell = make(map[cacheKey]string)
	c.byZone = make(map[string]map[cacheKey]struct{})
}

func (c *locationCache) record(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
}

func (c *locationCache) stats() (size int, hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byCell), c.hits, c.misses
}
