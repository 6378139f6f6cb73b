package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/zone"
)

// ZonesNamespace пространство ключей документов зон
const ZonesNamespace = "zones"

type centerDocument struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type teleportDocument struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Yaw     float32 `json:"yaw"`
	Pitch   float32 `json:"pitch"`
	Enabled bool    `json:"enabled"`
}

// zoneDocument zones.<id>
type zoneDocument struct {
	World       string            `json:"world"`
	BeaconCount int               `json:"beaconCount"`
	Center      *centerDocument   `json:"center,omitempty"`
	Beacons     []string          `json:"beacons"`
	Teleport    *teleportDocument `json:"teleport,omitempty"`
}

// ZoneRepository сохраняет зоны как документы zones:<id>
type ZoneRepository struct {
	store  DocumentStore
	logger *logging.Logger
}

// NewZoneRepository создает репозиторий зон поверх хранилища
func NewZoneRepository(store DocumentStore, logger *logging.Logger) *ZoneRepository {
	return &ZoneRepository{store: store, logger: logging.OrDefault(logger)}
}

func encodeZone(z *zone.Zone) ([]byte, error) {
	anchors := z.Anchors()
	doc := zoneDocument{
		World:       z.World(),
		BeaconCount: len(anchors),
		Beacons:     make([]string, 0, len(anchors)),
	}
	for _, a := range anchors {
		doc.Beacons = append(doc.Beacons, a.String())
	}
	if c, ok := z.Centroid(); ok {
		doc.Center = &centerDocument{X: c.X, Y: c.Y, Z: c.Z}
	}
	if t, ok := z.Teleport(); ok {
		doc.Teleport = &teleportDocument{X: t.X, Y: t.Y, Z: t.Z, Yaw: t.Yaw, Pitch: t.Pitch, Enabled: true}
	}
	return json.Marshal(doc)
}

func decodeZone(id string, data []byte) (*zone.Zone, error) {
	var doc zoneDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("зона %s: %v: %w", id, err, zone.ErrCorrupt)
	}
	if doc.World == "" {
		return nil, fmt.Errorf("зона %s без мира: %w", id, zone.ErrCorrupt)
	}

	z := zone.New(id, doc.World)
	for _, raw := range doc.Beacons {
		a, err := vec.ParseVec3(raw)
		if err != nil {
			return nil, fmt.Errorf("зона %s: маяк %q: %w", id, raw, zone.ErrCorrupt)
		}
		if err := z.AddColumn(a); err != nil {
			return nil, fmt.Errorf("зона %s: %w", id, err)
		}
	}
	if t := doc.Teleport; t != nil && t.Enabled {
		z.SetTeleport(zone.TeleportPoint{X: t.X, Y: t.Y, Z: t.Z, Yaw: t.Yaw, Pitch: t.Pitch})
	}
	return z, nil
}

// Save записывает зону
func (r *ZoneRepository) Save(ctx context.Context, z *zone.Zone) error {
	data, err := encodeZone(z)
	if err != nil {
		return err
	}
	return r.store.Save(ctx, Key(ZonesNamespace, z.ID()), data)
}

// Load читает зону; отсутствие дает ошибку с zone.ErrZoneNotFound
func (r *ZoneRepository) Load(ctx context.Context, id string) (*zone.Zone, error) {
	data, err := r.store.Load(ctx, Key(ZonesNamespace, id))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, zone.ErrZoneNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeZone(id, data)
}

// LoadAll читает все зоны. Поврежденные документы пропускаются с предупреждением.
func (r *ZoneRepository) LoadAll(ctx context.Context) ([]*zone.Zone, error) {
	prefix := Key(ZonesNamespace, "")
	keys, err := r.store.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	zones := make([]*zone.Zone, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, prefix)
		z, err := r.Load(ctx, id)
		if err != nil {
			if errors.Is(err, zone.ErrCorrupt) || errors.Is(err, zone.ErrConflict) {
				r.logger.Warn("Пропуск зоны %s: %v", id, err)
				continue
			}
			return nil, err
		}
		zones = append(zones, z)
	}
	r.logger.Info("📦 Загружено зон: %d", len(zones))
	return zones, nil
}

// Delete удаляет документ зоны
func (r *ZoneRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, Key(ZonesNamespace, id))
}

// ReplaceWorld удаляет документы ушедших зон и записывает новый набор зон мира
func (r *ZoneRepository) ReplaceWorld(ctx context.Context, world string, zones []*zone.Zone, removed []string) error {
	keep := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		keep[z.ID()] = struct{}{}
	}
	for _, id := range removed {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := r.Delete(ctx, id); err != nil {
			return fmt.Errorf("удаление зоны %s: %w", id, err)
		}
	}
	for _, z := range zones {
		if err := r.Save(ctx, z); err != nil {
			return fmt.Errorf("сохранение зоны %s: %w", z.ID(), err)
		}
	}
	r.logger.Debug("Мир %s: сохранено зон %d, удалено %d", world, len(zones), len(removed))
	return nil
}
