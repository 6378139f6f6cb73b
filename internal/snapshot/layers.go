package snapshot

import (
	"fmt"
	"strings"

	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/world"
	"github.com/annel0/shopzones/internal/zone"
)

// emptyLayer код пустой клетки в слоистом документе
const emptyLayer = "0"

// FormatLayers записывает колонну как "x,z:L0,L1,L2": по коду на каждое смещение раскладки
func (l Layout) FormatLayers(key vec.Vec2, anchorY int, runs []Run) string {
	codes := make([]string, len(l.Offsets))
	for i, off := range l.Offsets {
		codes[i] = emptyLayer
		y := anchorY + off
		for _, r := range runs {
			if y >= r.StartY && y <= r.EndY {
				codes[i] = l.Dictionary.Code(r.Material)
				break
			}
		}
	}
	return key.String() + ":" + strings.Join(codes, ",")
}

// ParseLayers разбирает строку слоев; отрезки возвращаются относительно якоря на высоте 0.
// Лишние слои игнорируются, недостающие считаются пустыми.
func (l Layout) ParseLayers(line string) (vec.Vec2, []Run, error) {
	head, body, ok := strings.Cut(line, ":")
	if !ok {
		return vec.Vec2{}, nil, fmt.Errorf("%q: %w", line, zone.ErrCorruptRun)
	}
	key, err := vec.ParseVec2(head)
	if err != nil {
		return vec.Vec2{}, nil, fmt.Errorf("%q: %v: %w", line, err, zone.ErrCorruptRun)
	}

	var runs []Run
	for i, code := range strings.Split(body, ",") {
		if i >= len(l.Offsets) {
			break
		}
		code = strings.TrimSpace(code)
		if code == "" || code == emptyLayer {
			continue
		}
		m, ok := l.Dictionary.Material(code)
		if !ok {
			return vec.Vec2{}, nil, fmt.Errorf("%q: неизвестный материал %q: %w", line, code, zone.ErrCorruptRun)
		}
		off := l.Offsets[i]
		// соседние смещения с одинаковым материалом сливаются в один отрезок
		if n := len(runs); n > 0 && runs[n-1].EndY == off-1 && runs[n-1].Material == m {
			runs[n-1].EndY = off
			continue
		}
		runs = append(runs, Run{StartY: off, EndY: off, Material: m, Variant: world.DefaultVariant(m)})
	}
	return key, runs, nil
}
