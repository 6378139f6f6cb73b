package snapshot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/annel0/shopzones/internal/world"
	"github.com/annel0/shopzones/internal/zone"
)

// Run вертикальный отрезок одинаковых клеток [StartY, EndY]
type Run struct {
	StartY   int
	EndY     int
	Material world.Material
	Variant  string
}

// Len число клеток отрезка
func (r Run) Len() int { return r.EndY - r.StartY + 1 }

// Block содержимое клеток отрезка
func (r Run) Block() world.Block {
	return world.Block{Material: r.Material, Variant: r.Variant}
}

// Shift сдвигает отрезок по вертикали
func (r Run) Shift(dy int) Run {
	r.StartY += dy
	r.EndY += dy
	return r
}

func sameBlock(a, b world.Block) bool {
	a, b = a.Normalize(), b.Normalize()
	return a.Material == b.Material && a.Variant == b.Variant
}

// EncodeColumn читает клетки раскладки колонны с якорем anchorY и сливает соседние одинаковые.
// Пустые клетки и клетка якоря пропускаются; маяки на других высотах сохраняются как есть.
func (l Layout) EncodeColumn(anchorY int, read func(y int) (world.Block, error)) ([]Run, error) {
	var runs []Run
	for _, off := range l.Offsets {
		if off == AnchorOffset {
			continue
		}
		y := anchorY + off
		b, err := read(y)
		if err != nil {
			return nil, fmt.Errorf("y=%d: %w", y, err)
		}
		if b.IsEmpty() {
			continue
		}
		b = b.Normalize()

		if n := len(runs); n > 0 && runs[n-1].EndY == y-1 && sameBlock(runs[n-1].Block(), b) {
			runs[n-1].EndY = y
			continue
		}
		runs = append(runs, Run{StartY: y, EndY: y, Material: b.Material, Variant: b.Variant})
	}
	return runs, nil
}

// FormatRun записывает отрезок как "Y:CODE[:variant]" или "Y1-Y2:CODE[:variant]".
// Вариант опускается, если совпадает с вариантом материала по умолчанию.
func (l Layout) FormatRun(r Run) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(r.StartY))
	if r.EndY != r.StartY {
		sb.WriteByte('-')
		sb.WriteString(strconv.Itoa(r.EndY))
	}
	sb.WriteByte(':')
	sb.WriteString(l.Dictionary.Code(r.Material))
	if r.Variant != "" && r.Variant != world.DefaultVariant(r.Material) {
		sb.WriteByte(':')
		sb.WriteString(r.Variant)
	}
	return sb.String()
}

// ParseRun разбирает строку отрезка; ошибка оборачивает zone.ErrCorruptRun
func (l Layout) ParseRun(s string) (Run, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return Run{}, fmt.Errorf("%q: %w", s, zone.ErrCorruptRun)
	}

	start, end, err := parseSpan(parts[0])
	if err != nil {
		return Run{}, fmt.Errorf("%q: %v: %w", s, err, zone.ErrCorruptRun)
	}

	m, ok := l.Dictionary.Material(parts[1])
	if !ok {
		return Run{}, fmt.Errorf("%q: неизвестный материал %q: %w", s, parts[1], zone.ErrCorruptRun)
	}
	r := Run{StartY: start, EndY: end, Material: m}
	if len(parts) == 3 && parts[2] != "" {
		r.Variant = parts[2]
	} else {
		r.Variant = world.DefaultVariant(r.Material)
	}
	return r, nil
}

// parseSpan разбирает "Y" или "Y1-Y2" с учетом отрицательных высот
func parseSpan(s string) (int, int, error) {
	if s == "" {
		return 0, 0, fmt.Errorf("пустой диапазон")
	}
	sep := -1
	if i := strings.IndexByte(s[1:], '-'); i >= 0 {
		sep = i + 1
	}
	if sep < 0 {
		y, err := strconv.Atoi(s)
		return y, y, err
	}

	start, err := strconv.Atoi(s[:sep])
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.Atoi(s[sep+1:])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("конец %d меньше начала %d", end, start)
	}
	return start, end, nil
}
