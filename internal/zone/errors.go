package zone

import (
	"errors"
	"fmt"
)

// Классы ошибок. Проверяются через errors.Is.
var (
	ErrNotFound = errors.New("не найдено")
	ErrConflict = errors.New("конфликт")
	ErrCorrupt  = errors.New("повреждённые данные")
	ErrPartial  = errors.New("частичное выполнение")
	ErrFatal    = errors.New("операция прервана")
)

var (
	ErrZoneNotFound     = fmt.Errorf("зона %w", ErrNotFound)
	ErrWorldNotFound    = fmt.Errorf("мир %w", ErrNotFound)
	ErrSnapshotNotFound = fmt.Errorf("резервная копия %w", ErrNotFound)
	ErrColumnNotFound   = fmt.Errorf("колонна %w", ErrNotFound)

	ErrScanInProgress = fmt.Errorf("сканирование уже выполняется: %w", ErrConflict)
	ErrColumnClaimed  = fmt.Errorf("колонна уже занята с другой высотой якоря: %w", ErrConflict)
	ErrZoneExists     = fmt.Errorf("зона с таким id уже существует: %w", ErrConflict)
	ErrDisconnected   = fmt.Errorf("изменение нарушает связность зоны: %w", ErrConflict)

	ErrCorruptRun      = fmt.Errorf("некорректный отрезок: %w", ErrCorrupt)
	ErrCorruptSnapshot = fmt.Errorf("некорректная резервная копия: %w", ErrCorrupt)
)

// Kind возвращает класс ошибки для отчетов и HTTP-ответов
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.Is(err, ErrPartial):
		return "partial"
	default:
		return "fatal"
	}
}
