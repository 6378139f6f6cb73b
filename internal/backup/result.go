package backup

import (
	"fmt"
	"time"
)

// BackupResult итог резервного копирования одной зоны
type BackupResult struct {
	ZoneID  string
	Layout  string
	Success bool
	// UnitsSaved отрезки для построчного формата, колонны для слоистого
	UnitsSaved       int
	BlocksSaved      int
	EntitiesRemoved  int
	CompressionRatio float64
	Duration         time.Duration
	Err              error
}

// Message краткое описание результата
func (r BackupResult) Message() string {
	if r.Err != nil {
		return fmt.Sprintf("резервная копия зоны %s (%s) не создана: %v", r.ZoneID, r.Layout, r.Err)
	}
	return fmt.Sprintf("зона %s (%s): блоков %d, единиц %d, сжатие %.1f%%, удалено сущностей %d",
		r.ZoneID, r.Layout, r.BlocksSaved, r.UnitsSaved, r.CompressionRatio, r.EntitiesRemoved)
}

// RestoreResult итог восстановления зоны
type RestoreResult struct {
	ZoneID          string
	Layout          string
	Success         bool
	BlocksRestored  int
	EntitiesRemoved int
	// FailedWrites клетки, запись которых завершилась ошибкой
	FailedWrites int
	// SkippedRuns поврежденные отрезки документа
	SkippedRuns int
	// SkippedColumns колонны снимка, которых больше нет в зоне
	SkippedColumns int
	Duration       time.Duration
	Err            error
}

// Partial сообщает, что часть клеток не записана
func (r RestoreResult) Partial() bool {
	return r.Err == nil && r.FailedWrites > 0
}

// Message краткое описание результата
func (r RestoreResult) Message() string {
	if r.Err != nil {
		return fmt.Sprintf("зона %s (%s) не восстановлена: %v", r.ZoneID, r.Layout, r.Err)
	}
	msg := fmt.Sprintf("зона %s (%s) восстановлена: блоков %d, удалено сущностей %d",
		r.ZoneID, r.Layout, r.BlocksRestored, r.EntitiesRemoved)
	if r.FailedWrites > 0 {
		msg += fmt.Sprintf(", ошибок записи %d", r.FailedWrites)
	}
	if r.SkippedRuns > 0 || r.SkippedColumns > 0 {
		msg += fmt.Sprintf(", пропущено отрезков %d, колонн %d", r.SkippedRuns, r.SkippedColumns)
	}
	return msg
}
