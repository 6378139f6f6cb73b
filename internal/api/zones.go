package api

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/annel0/shopzones/internal/index"
	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/zone"
)

// DefaultNearbyRadius радиус поиска соседних зон по умолчанию
const DefaultNearbyRadius = 64.0

type pointView struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type teleportView struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
}

type boundsView struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// zoneView представление зоны в ответах
type zoneView struct {
	ID         string        `json:"id"`
	World      string        `json:"world"`
	Columns    int           `json:"columns"`
	Blocks     int           `json:"blocks"`
	Efficiency float64       `json:"efficiency"`
	Connected  bool          `json:"connected"`
	Center     *pointView    `json:"center,omitempty"`
	Bounds     *boundsView   `json:"bounds,omitempty"`
	Teleport   *teleportView `json:"teleport,omitempty"`
	Anchors    []string      `json:"anchors,omitempty"`
}

func newZoneView(z *zone.Zone, withAnchors bool) zoneView {
	v := zoneView{
		ID:         z.ID(),
		World:      z.World(),
		Columns:    z.ColumnCount(),
		Blocks:     z.BlockCount(),
		Efficiency: z.Efficiency(),
		Connected:  z.IsConnected(),
	}
	if c, ok := z.Centroid(); ok {
		v.Center = &pointView{X: c.X, Y: c.Y, Z: c.Z}
	}
	if b, ok := z.BoundingBox(); ok {
		v.Bounds = &boundsView{Min: b.Min.String(), Max: b.Max.String()}
	}
	if t, ok := z.Teleport(); ok {
		v.Teleport = &teleportView{X: t.X, Y: t.Y, Z: t.Z, Yaw: t.Yaw, Pitch: t.Pitch}
	}
	if withAnchors {
		for _, a := range z.Anchors() {
			v.Anchors = append(v.Anchors, a.String())
		}
	}
	return v
}

func zoneViews(zones []*zone.Zone) []zoneView {
	out := make([]zoneView, 0, len(zones))
	for _, z := range zones {
		out = append(out, newZoneView(z, false))
	}
	return out
}

// scanView итог сканирования в ответе
type scanView struct {
	World             string  `json:"world"`
	MarkersFound      int     `json:"markers_found"`
	TeleportsFound    int     `json:"teleports_found"`
	DuplicateColumns  int     `json:"duplicate_columns"`
	ZonesCreated      int     `json:"zones_created"`
	ZonesWithTeleport int     `json:"zones_with_teleport"`
	DurationSeconds   float64 `json:"duration_seconds"`
}

// handleScan сканирует мир и дожидается результата
func (s *Server) handleScan(c *gin.Context) {
	worldName := c.Param("world")
	res, err := s.app.Scanner.Scan(c.Request.Context(), worldName).Await(c.Request.Context())
	if err == nil {
		err = res.Err
	}
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, res.Message(), scanView{
		World:             res.World,
		MarkersFound:      res.MarkersFound,
		TeleportsFound:    res.TeleportsFound,
		DuplicateColumns:  res.DuplicateColumns,
		ZonesCreated:      res.ZonesCreated,
		ZonesWithTeleport: res.ZonesWithTeleport,
		DurationSeconds:   res.Duration.Seconds(),
	})
}

// handleWorldZones перечисляет зоны мира
func (s *Server) handleWorldZones(c *gin.Context) {
	zones := s.app.Index.InWorld(c.Param("world"))
	respondOK(c, fmt.Sprintf("Зон в мире: %d", len(zones)), zoneViews(zones))
}

// handleGetZone возвращает зону с якорями
func (s *Server) handleGetZone(c *gin.Context) {
	id := c.Param("id")
	z, ok := s.app.Index.Get(id)
	if !ok {
		respondError(c, fmt.Errorf("%s: %w", id, zone.ErrZoneNotFound), nil)
		return
	}
	respondOK(c, "Зона найдена", newZoneView(z, true))
}

// handleDeleteZone удаляет зону
func (s *Server) handleDeleteZone(c *gin.Context) {
	id := c.Param("id")
	if err := s.app.RemoveZone(c.Request.Context(), id); err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, "Зона удалена", gin.H{"id": id})
}

// teleportRequest тело PUT /zones/:id/teleport
type teleportRequest struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Z     *float64 `json:"z"`
	Yaw   float32  `json:"yaw"`
	Pitch float32  `json:"pitch"`
}

// handleSetTeleport задает точку прибытия зоны
func (s *Server) handleSetTeleport(c *gin.Context) {
	var req teleportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	if req.X == nil || req.Y == nil || req.Z == nil {
		respondError(c, fmt.Errorf("%w: нужны x, y, z", errBadRequest), nil)
		return
	}

	id := c.Param("id")
	tp := zone.TeleportPoint{X: *req.X, Y: *req.Y, Z: *req.Z, Yaw: req.Yaw, Pitch: req.Pitch}
	if err := s.app.SetTeleport(c.Request.Context(), id, tp); err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, "Точка телепорта задана", gin.H{"id": id})
}

// handleClearTeleport убирает точку прибытия зоны
func (s *Server) handleClearTeleport(c *gin.Context) {
	id := c.Param("id")
	if err := s.app.ClearTeleport(c.Request.Context(), id); err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, "Точка телепорта удалена", gin.H{"id": id})
}

// columnRequest тело PUT /zones/:id/columns
type columnRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
	Z *int `json:"z"`
}

// handleAddColumn добавляет колонну к зоне
func (s *Server) handleAddColumn(c *gin.Context) {
	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	if req.X == nil || req.Y == nil || req.Z == nil {
		respondError(c, fmt.Errorf("%w: нужны x, y, z якоря", errBadRequest), nil)
		return
	}

	id := c.Param("id")
	anchor := vec.Vec3{X: *req.X, Y: *req.Y, Z: *req.Z}
	if err := s.app.AddColumn(c.Request.Context(), id, anchor); err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, "Колонна добавлена", gin.H{"id": id, "anchor": anchor.String()})
}

// handleRemoveColumn удаляет колонну (x, z) из зоны
func (s *Server) handleRemoveColumn(c *gin.Context) {
	x, errX := strconv.Atoi(c.Query("x"))
	zc, errZ := strconv.Atoi(c.Query("z"))
	if errX != nil || errZ != nil {
		respondError(c, fmt.Errorf("%w: нужны целые x и z колонны", errBadRequest), nil)
		return
	}

	id := c.Param("id")
	if err := s.app.RemoveColumn(c.Request.Context(), id, x, zc); err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, "Колонна удалена", gin.H{"id": id, "column": vec.Vec2{X: x, Z: zc}.String()})
}

// parseLocation читает world, x, y, z из query
func parseLocation(c *gin.Context) (zone.Location, error) {
	loc := zone.Location{World: c.Query("world")}
	if loc.World == "" {
		return loc, fmt.Errorf("%w: не указан world", errBadRequest)
	}
	coords := []struct {
		name string
		dst  *float64
	}{{"x", &loc.X}, {"y", &loc.Y}, {"z", &loc.Z}}
	for _, coord := range coords {
		v, err := strconv.ParseFloat(c.Query(coord.name), 64)
		if err != nil {
			return loc, fmt.Errorf("%w: координата %s: %v", errBadRequest, coord.name, err)
		}
		*coord.dst = v
	}
	return loc, nil
}

// handleLocate находит зону, содержащую точку
func (s *Server) handleLocate(c *gin.Context) {
	loc, err := parseLocation(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	z, ok := s.app.Index.ZoneAt(loc)
	if !ok {
		respondError(c, fmt.Errorf("точка %s (%.1f, %.1f, %.1f): %w", loc.World, loc.X, loc.Y, loc.Z, zone.ErrZoneNotFound), nil)
		return
	}
	respondOK(c, "Зона найдена", newZoneView(z, false))
}

// handleNearby перечисляет зоны, чей центр не дальше radius от точки
func (s *Server) handleNearby(c *gin.Context) {
	loc, err := parseLocation(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	radius := DefaultNearbyRadius
	if raw := c.Query("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius < 0 {
			respondError(c, fmt.Errorf("%w: radius %q", errBadRequest, raw), nil)
			return
		}
	}
	zones := s.app.Index.NearbyZones(loc, radius)
	respondOK(c, fmt.Sprintf("Зон рядом: %d", len(zones)), zoneViews(zones))
}

// handleValidate проверяет якоря всех зон
func (s *Server) handleValidate(c *gin.Context) {
	report := s.app.Index.Validate(c.Request.Context(), s.app.Access)
	msg := fmt.Sprintf("Проверено зон: %d, с проблемами: %d", report.ValidCount+report.InvalidCount, report.InvalidCount)
	respondOK(c, msg, report)
}

// statsView сводка для /api/stats
type statsView struct {
	Index    index.Stats `json:"index"`
	HitRate  float64     `json:"cache_hit_rate"`
	Scanning bool        `json:"scanning"`
	Events   eventsView  `json:"events"`
	Server   HostStats   `json:"server"`
}

type eventsView struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
	InFlight  int    `json:"inflight"`
}

// handleStats возвращает статистику индекса и сервера
func (s *Server) handleStats(c *gin.Context) {
	st := s.app.Index.Stats()
	bus := s.app.Bus.Metrics()
	respondOK(c, "Статистика получена", statsView{
		Index:    st,
		HitRate:  st.HitRate(),
		Scanning: s.app.Scanner.IsScanning(),
		Events: eventsView{
			Published: bus.Published,
			Consumed:  bus.Consumed,
			Dropped:   bus.Dropped,
			InFlight:  bus.InFlight,
		},
		Server: s.host.Snapshot(),
	})
}

// handleOptimizeIndex удаляет из кэша локаций записи исчезнувших зон
func (s *Server) handleOptimizeIndex(c *gin.Context) {
	n, err := s.app.OptimizeIndex(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, fmt.Sprintf("Удалено устаревших записей кэша: %d", n), gin.H{"removed": n})
}

// handleClearCache полностью очищает кэш локаций
func (s *Server) handleClearCache(c *gin.Context) {
	n, err := s.app.ClearIndexCache(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, fmt.Sprintf("Кэш локаций очищен: %d записей", n), gin.H{"removed": n})
}
