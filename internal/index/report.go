package index

import (
	"context"
	"fmt"

	"github.com/annel0/shopzones/internal/world"
)

// Report итог проверки целостности зон
type Report struct {
	ValidCount   int      `json:"valid"`
	InvalidCount int      `json:"invalid"`
	Issues       []string `json:"issues"`
}

// HasIssues сообщает о наличии проблем
func (r Report) HasIssues() bool {
	return len(r.Issues) > 0
}

// Validate проверяет, что мир каждой зоны загружен и каждый якорь по-прежнему маяк.
// Индекс не изменяется. При отмене ctx возвращается отчет по уже проверенным зонам.
func (ix *ZoneIndex) Validate(ctx context.Context, access world.Access) Report {
	report := Report{Issues: []string{}}

	for _, z := range ix.All() {
		if ctx.Err() != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("проверка прервана: %v", ctx.Err()))
			break
		}

		valid := true
		view, ok := access.World(z.World())
		if !ok {
			report.Issues = append(report.Issues, fmt.Sprintf("Зона %s: мир '%s' не найден", z.ID(), z.World()))
			valid = false
		} else {
			for _, anchor := range z.Anchors() {
				b, err := view.BlockAt(anchor)
				switch {
				case err != nil:
					report.Issues = append(report.Issues, fmt.Sprintf("Зона %s: ошибка чтения %s: %v", z.ID(), anchor, err))
					valid = false
				case b.Material != world.MarkerZone:
					report.Issues = append(report.Issues, fmt.Sprintf("Зона %s: нет маяка в %s", z.ID(), anchor))
					valid = false
				}
			}
		}

		if valid {
			report.ValidCount++
		} else {
			report.InvalidCount++
		}
	}
	return report
}

// Stats сводка по индексу
type Stats struct {
	Zones       int            `json:"zones"`
	Columns     int            `json:"columns"`
	Blocks      int            `json:"blocks"`
	WorldCounts map[string]int `json:"world_counts"`
	Efficiency  float64        `json:"efficiency"`
	CacheSize   int            `json:"cache_size"`
	CacheHits   uint64         `json:"cache_hits"`
	CacheMisses uint64         `json:"cache_misses"`
}

// HitRate доля попаданий в кэш
func (s Stats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Stats собирает сводку; Efficiency - средняя доля клеток зон в их кубоидах
func (ix *ZoneIndex) Stats() Stats {
	st := Stats{WorldCounts: make(map[string]int)}
	var effSum float64

	for _, z := range ix.All() {
		st.Zones++
		st.Columns += z.ColumnCount()
		st.Blocks += z.BlockCount()
		st.WorldCounts[z.World()]++
		effSum += z.Efficiency()
	}
	if st.Zones > 0 {
		st.Efficiency = effSum / float64(st.Zones)
	}
	st.CacheSize, st.CacheHits, st.CacheMisses = ix.cache.stats()
	return st
}

// Optimize удаляет записи кэша, указывающие на исчезнувшие зоны; возвращает их число
func (ix *ZoneIndex) Optimize() int {
	removed := 0
	for _, id := range ix.cache.zoneIDs() {
		if _, ok := ix.Get(id); !ok {
			removed += ix.cache.dropZone(id)
		}
	}
	if removed > 0 {
		ix.logger.Debug("Оптимизация: удалено записей кэша %d", removed)
	}
	return removed
}
