package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/zone"
)

// ColumnSnapshot отрезки одной колонны и высота ее якоря в момент снимка.
// Для слоистых документов высота якоря неизвестна: отрезки хранятся относительно 0.
type ColumnSnapshot struct {
	AnchorY int
	Runs    []Run
}

// Snapshot снимок содержимого зоны
type Snapshot struct {
	ZoneID      string
	Timestamp   time.Time
	Format      string
	Layered     bool
	Anchors     []vec.Vec3
	Columns     map[vec.Vec2]ColumnSnapshot
	TotalBlocks int
	// SkippedRuns отрезки и колонны, отброшенные при разборе как поврежденные
	SkippedRuns int
}

// RunCount общее число отрезков
func (s Snapshot) RunCount() int {
	n := 0
	for _, c := range s.Columns {
		n += len(c.Runs)
	}
	return n
}

// Units единицы сохранения: колонны для слоистого формата, иначе отрезки
func (s Snapshot) Units() int {
	if s.Layered {
		return len(s.Columns)
	}
	return s.RunCount()
}

// CompressionRatio экономия в процентах.
// Слоистый формат: доля пустых слоев; формат отрезков: 1 - отрезки/клетки.
func (s Snapshot) CompressionRatio(layers int) float64 {
	if s.Layered {
		slots := len(s.Columns) * layers
		if slots == 0 {
			return 0
		}
		return (1 - float64(s.TotalBlocks)/float64(slots)) * 100
	}
	if s.TotalBlocks == 0 {
		return 0
	}
	return (1 - float64(s.RunCount())/float64(s.TotalBlocks)) * 100
}

// SortedKeys ключи колонн по x, затем z
func (s Snapshot) SortedKeys() []vec.Vec2 {
	keys := make([]vec.Vec2, 0, len(s.Columns))
	for k := range s.Columns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

type columnRanges struct {
	Ranges []string `json:"ranges"`
}

// generalDocument backups.<zoneId>
type generalDocument struct {
	Timestamp   int64                   `json:"timestamp"`
	Format      string                  `json:"format"`
	BeaconCount int                     `json:"beaconCount"`
	Beacons     []string                `json:"beacons"`
	Columns     map[string]columnRanges `json:"columns"`
}

// marketDocument market_backups.<zoneId>
type marketDocument struct {
	Timestamp   int64    `json:"timestamp"`
	Format      string   `json:"format"`
	ColumnCount int      `json:"column_count"`
	TotalBlocks int      `json:"total_blocks"`
	Columns     []string `json:"columns"`
}

// Marshal сериализует снимок в документ раскладки
func (l Layout) Marshal(s Snapshot) ([]byte, error) {
	if l.Layered {
		doc := marketDocument{
			Timestamp:   s.Timestamp.UnixMilli(),
			Format:      l.Format,
			ColumnCount: len(s.Columns),
			TotalBlocks: s.TotalBlocks,
			Columns:     make([]string, 0, len(s.Columns)),
		}
		for _, key := range s.SortedKeys() {
			col := s.Columns[key]
			doc.Columns = append(doc.Columns, l.FormatLayers(key, col.AnchorY, col.Runs))
		}
		return json.Marshal(doc)
	}

	doc := generalDocument{
		Timestamp:   s.Timestamp.UnixMilli(),
		Format:      l.Format,
		BeaconCount: len(s.Anchors),
		Beacons:     make([]string, 0, len(s.Anchors)),
		Columns:     make(map[string]columnRanges, len(s.Columns)),
	}
	for _, a := range s.Anchors {
		doc.Beacons = append(doc.Beacons, a.String())
	}
	for key, col := range s.Columns {
		ranges := make([]string, 0, len(col.Runs))
		for _, r := range col.Runs {
			ranges = append(ranges, l.FormatRun(r))
		}
		doc.Columns[key.Key()] = columnRanges{Ranges: ranges}
	}
	return json.Marshal(doc)
}

// Unmarshal разбирает документ. Неразборчивый документ или чужой формат дают
// zone.ErrCorruptSnapshot; отдельные поврежденные отрезки пропускаются и считаются в SkippedRuns.
func (l Layout) Unmarshal(zoneID string, data []byte) (Snapshot, error) {
	if l.Layered {
		return l.unmarshalLayered(zoneID, data)
	}

	var doc generalDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("%s: %v: %w", zoneID, err, zone.ErrCorruptSnapshot)
	}
	if doc.Format != l.Format {
		return Snapshot{}, fmt.Errorf("%s: формат %q вместо %q: %w", zoneID, doc.Format, l.Format, zone.ErrCorruptSnapshot)
	}

	s := Snapshot{
		ZoneID:    zoneID,
		Timestamp: time.UnixMilli(doc.Timestamp),
		Format:    doc.Format,
		Columns:   make(map[vec.Vec2]ColumnSnapshot, len(doc.Columns)),
	}
	anchorY := make(map[vec.Vec2]int, len(doc.Beacons))
	for _, b := range doc.Beacons {
		a, err := vec.ParseVec3(b)
		if err != nil {
			s.SkippedRuns++
			continue
		}
		s.Anchors = append(s.Anchors, a)
		anchorY[a.Column()] = a.Y
	}

	for rawKey, col := range doc.Columns {
		key, err := vec.ParseVec2(rawKey)
		if err != nil {
			s.SkippedRuns += len(col.Ranges)
			continue
		}
		y, ok := anchorY[key]
		if !ok {
			// без якоря нельзя пересчитать высоты при сдвиге колонны
			s.SkippedRuns += len(col.Ranges)
			continue
		}
		cs := ColumnSnapshot{AnchorY: y}
		for _, raw := range col.Ranges {
			r, err := l.ParseRun(raw)
			if err != nil {
				s.SkippedRuns++
				continue
			}
			cs.Runs = append(cs.Runs, r)
			s.TotalBlocks += r.Len()
		}
		s.Columns[key] = cs
	}
	return s, nil
}

func (l Layout) unmarshalLayered(zoneID string, data []byte) (Snapshot, error) {
	var doc marketDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("%s: %v: %w", zoneID, err, zone.ErrCorruptSnapshot)
	}
	if doc.Format != l.Format {
		return Snapshot{}, fmt.Errorf("%s: формат %q вместо %q: %w", zoneID, doc.Format, l.Format, zone.ErrCorruptSnapshot)
	}

	s := Snapshot{
		ZoneID:    zoneID,
		Timestamp: time.UnixMilli(doc.Timestamp),
		Format:    doc.Format,
		Layered:   true,
		Columns:   make(map[vec.Vec2]ColumnSnapshot, len(doc.Columns)),
	}
	for _, line := range doc.Columns {
		key, runs, err := l.ParseLayers(line)
		if err != nil {
			s.SkippedRuns++
			continue
		}
		s.Columns[key] = ColumnSnapshot{AnchorY: 0, Runs: runs}
		for _, r := range runs {
			s.TotalBlocks += r.Len()
		}
	}
	return s, nil
}
