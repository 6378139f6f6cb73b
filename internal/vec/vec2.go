package vec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vec2 представляет горизонтальные координаты колонны (x, z)
type Vec2 struct {
	X, Z int
}

// String возвращает ключ колонны в формате "x,z"
func (v Vec2) String() string {
	return fmt.Sprintf("%d,%d", v.X, v.Z)
}

// Key возвращает ключ колонны в формате "x_z" (для вложенных ключей документов)
func (v Vec2) Key() string {
	return fmt.Sprintf("%d_%d", v.X, v.Z)
}

// At поднимает колонну до трехмерной клетки на высоте y
func (v Vec2) At(y int) Vec3 {
	return Vec3{X: v.X, Y: y, Z: v.Z}
}

// Less задает порядок x, затем z
func (v Vec2) Less(other Vec2) bool {
	if v.X != other.X {
		return v.X < other.X
	}
	return v.Z < other.Z
}

// DistanceTo вычисляет расстояние до другой колонны
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dz := float64(v.Z - other.Z)
	return math.Sqrt(dx*dx + dz*dz)
}

// ParseVec2 разбирает строку "x,z" или "x_z"
func ParseVec2(s string) (Vec2, error) {
	sep := ","
	if !strings.Contains(s, sep) {
		sep = "_"
	}
	ints, err := parseInts(s, sep, 2)
	if err != nil {
		return Vec2{}, fmt.Errorf("некорректные координаты колонны %q: %w", s, err)
	}
	return Vec2{X: ints[0], Z: ints[1]}, nil
}

// parseInts разбирает ровно n целых чисел, разделенных sep
func parseInts(s, sep string, n int) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(s), sep)
	if len(parts) != n {
		return nil, fmt.Errorf("ожидалось %d значений, получено %d", n, len(parts))
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
