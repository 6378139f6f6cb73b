package scanner

import (
	"fmt"
	"sort"

	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/zone"
)

var faceOffsets = [...]vec.Vec3{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

// Cluster разбивает якоря на компоненты связности по соседству граней.
// Якоря и компоненты упорядочены, поэтому результат не зависит от порядка входа.
func Cluster(anchors []vec.Vec3) [][]vec.Vec3 {
	sorted := append([]vec.Vec3(nil), anchors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	present := make(map[vec.Vec3]bool, len(sorted))
	for _, a := range sorted {
		present[a] = true
	}

	visited := make(map[vec.Vec3]bool, len(sorted))
	var components [][]vec.Vec3
	for _, start := range sorted {
		if visited[start] {
			continue
		}
		visited[start] = true
		component := []vec.Vec3{start}
		queue := []vec.Vec3{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, off := range faceOffsets {
				next := cur.Add(off)
				if present[next] && !visited[next] {
					visited[next] = true
					component = append(component, next)
					queue = append(queue, next)
				}
			}
		}
		sort.Slice(component, func(i, j int) bool { return component[i].Less(component[j]) })
		components = append(components, component)
	}
	return components
}

// ZoneID формирует id зоны по миру и порядковому номеру (с 1)
func ZoneID(world string, n int) string {
	return fmt.Sprintf("zone_%s_%d", world, n)
}

// dedupeColumns оставляет на каждой (x, z) один якорь с наименьшим Y.
// Кластеризация идет уже по принятым якорям, иначе отброшенный дубликат
// мог быть единственной связью между частями зоны.
func (s *Scanner) dedupeColumns(markers []vec.Vec3) (accepted []vec.Vec3, duplicates int) {
	sorted := append([]vec.Vec3(nil), markers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	claimed := make(map[[2]int]int, len(sorted))
	accepted = make([]vec.Vec3, 0, len(sorted))
	for _, m := range sorted {
		key := [2]int{m.X, m.Z}
		if y, ok := claimed[key]; ok {
			duplicates++
			s.logger.Warn("Якорь %s пропущен: колонна (%d, %d) уже занята якорем на y=%d", m, m.X, m.Z, y)
			continue
		}
		claimed[key] = m.Y
		accepted = append(accepted, m)
	}
	return accepted, duplicates
}

// buildZones превращает компоненты в зоны; якоря уже без дубликатов колонн
func (s *Scanner) buildZones(world string, components [][]vec.Vec3) []*zone.Zone {
	zones := make([]*zone.Zone, 0, len(components))
	for i, comp := range components {
		z := zone.New(ZoneID(world, i+1), world)
		for _, a := range comp {
			if err := z.AddColumn(a); err != nil {
				s.logger.Warn("Зона %s: якорь %s пропущен: %v", z.ID(), a, err)
			}
		}
		zones = append(zones, z)
	}
	return zones
}

// assignTeleports выбирает каждой зоне ближайший к центру якорь телепорта
func assignTeleports(zones []*zone.Zone, teleports []vec.Vec3) int {
	if len(teleports) == 0 {
		return 0
	}
	sorted := append([]vec.Vec3(nil), teleports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	assigned := 0
	for _, z := range zones {
		center, ok := z.Centroid()
		if !ok {
			continue
		}
		best := sorted[0]
		bestDist := best.Float().DistanceTo(center)
		for _, t := range sorted[1:] {
			if d := t.Float().DistanceTo(center); d < bestDist {
				best, bestDist = t, d
			}
		}

		point := best.Float().Add(vec.Vec3Float{X: 0.5, Z: 0.5})
		z.SetTeleport(zone.TeleportPoint{
			X:     point.X,
			Y:     point.Y,
			Z:     point.Z,
			Yaw:   zone.FacingYaw(point, center),
			Pitch: 0,
		})
		assigned++
	}
	return assigned
}
