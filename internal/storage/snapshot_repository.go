package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/shopzones/internal/snapshot"
	"github.com/annel0/shopzones/internal/zone"
)

// SnapshotRepository хранит резервные копии одной раскладки в ее пространстве ключей
type SnapshotRepository struct {
	store  DocumentStore
	layout snapshot.Layout
}

// NewSnapshotRepository создает репозиторий для раскладки
func NewSnapshotRepository(store DocumentStore, layout snapshot.Layout) *SnapshotRepository {
	return &SnapshotRepository{store: store, layout: layout}
}

// Layout раскладка документов репозитория
func (r *SnapshotRepository) Layout() snapshot.Layout {
	return r.layout
}

func (r *SnapshotRepository) key(zoneID string) string {
	return Key(r.layout.Namespace, zoneID)
}

// Save сериализует и записывает снимок, заменяя предыдущий
func (r *SnapshotRepository) Save(ctx context.Context, s snapshot.Snapshot) error {
	data, err := r.layout.Marshal(s)
	if err != nil {
		return fmt.Errorf("сериализация снимка %s: %w", s.ZoneID, err)
	}
	return r.store.Save(ctx, r.key(s.ZoneID), data)
}

// Load читает снимок. Отсутствие дает zone.ErrSnapshotNotFound,
// неразборчивый документ дает zone.ErrCorruptSnapshot.
func (r *SnapshotRepository) Load(ctx context.Context, zoneID string) (snapshot.Snapshot, error) {
	data, err := r.store.Load(ctx, r.key(zoneID))
	if errors.Is(err, ErrNotFound) {
		return snapshot.Snapshot{}, fmt.Errorf("%s: %w", zoneID, zone.ErrSnapshotNotFound)
	}
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return r.layout.Unmarshal(zoneID, data)
}

// Has проверяет наличие снимка
func (r *SnapshotRepository) Has(ctx context.Context, zoneID string) (bool, error) {
	_, err := r.store.Load(ctx, r.key(zoneID))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Timestamp время создания снимка
func (r *SnapshotRepository) Timestamp(ctx context.Context, zoneID string) (time.Time, error) {
	s, err := r.Load(ctx, zoneID)
	if err != nil {
		return time.Time{}, err
	}
	return s.Timestamp, nil
}

// Delete удаляет снимок
func (r *SnapshotRepository) Delete(ctx context.Context, zoneID string) error {
	return r.store.Delete(ctx, r.key(zoneID))
}

// IDs перечисляет зоны, для которых есть снимки
func (r *SnapshotRepository) IDs(ctx context.Context) ([]string, error) {
	prefix := r.key("")
	keys, err := r.store.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	return ids, nil
}
