package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы событий зон
const (
	TypeScanCompleted    = "zone.scan.completed"
	TypeBackupCompleted  = "zone.backup.completed"
	TypeRestoreCompleted = "zone.restore.completed"
	TypeZoneRemoved      = "zone.removed"
)

// PayloadVersion версия схемы полезной нагрузки
const PayloadVersion = 1

// ScanCompleted итог сканирования мира
type ScanCompleted struct {
	World             string `json:"world"`
	Success           bool   `json:"success"`
	MarkersFound      int    `json:"markers_found"`
	ZonesCreated      int    `json:"zones_created"`
	ZonesWithTeleport int    `json:"zones_with_teleport"`
	DurationMs        int64  `json:"duration_ms"`
	Error             string `json:"error,omitempty"`
}

// BackupCompleted итог резервного копирования зоны
type BackupCompleted struct {
	ZoneID           string  `json:"zone_id"`
	Layout           string  `json:"layout"`
	Success          bool    `json:"success"`
	BlocksSaved      int     `json:"blocks_saved"`
	CompressionRatio float64 `json:"compression_ratio"`
	Error            string  `json:"error,omitempty"`
}

// RestoreCompleted итог восстановления зоны
type RestoreCompleted struct {
	ZoneID         string `json:"zone_id"`
	Layout         string `json:"layout"`
	Success        bool   `json:"success"`
	BlocksRestored int    `json:"blocks_restored"`
	FailedWrites   int    `json:"failed_writes"`
	Error          string `json:"error,omitempty"`
}

// ZoneRemoved зона удалена администратором
type ZoneRemoved struct {
	ZoneID string `json:"zone_id"`
	World  string `json:"world"`
}

// NewEnvelope упаковывает полезную нагрузку в событие с новым uuid
func NewEnvelope(source, eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация события %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   PayloadVersion,
		Priority:  5,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку события
func Decode[T any](ev *Envelope) (T, error) {
	var out T
	if err := json.Unmarshal(ev.Payload, &out); err != nil {
		return out, fmt.Errorf("разбор события %s: %w", ev.EventType, err)
	}
	return out, nil
}
