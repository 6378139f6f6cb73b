package zone

import (
	"math"

	"github.com/annel0/shopzones/internal/vec"
)

// Вертикальный охват колонны относительно якоря
const (
	SpanBelow    = 1
	SpanAbove    = 20
	ColumnHeight = SpanBelow + 1 + SpanAbove
)

// Location точка в конкретном мире
type Location struct {
	World string
	X     float64
	Y     float64
	Z     float64
}

// Cell возвращает клетку, содержащую точку
func (l Location) Cell() vec.Vec3 {
	return vec.Vec3Float{X: l.X, Y: l.Y, Z: l.Z}.Cell()
}

// CellLocation возвращает точку в углу клетки
func CellLocation(world string, c vec.Vec3) Location {
	return Location{World: world, X: float64(c.X), Y: float64(c.Y), Z: float64(c.Z)}
}

// Column колонна маяка: ключ (x, z) и высота якоря
type Column struct {
	Anchor vec.Vec3
}

// Key возвращает горизонтальный ключ колонны
func (c Column) Key() vec.Vec2 {
	return c.Anchor.Column()
}

// MinY нижняя клетка колонны
func (c Column) MinY() int { return c.Anchor.Y - SpanBelow }

// MaxY верхняя клетка колонны
func (c Column) MaxY() int { return c.Anchor.Y + SpanAbove }

// ContainsY проверяет попадание высоты в охват колонны
func (c Column) ContainsY(y int) bool {
	return y >= c.MinY() && y <= c.MaxY()
}

// BoundingBox неизменяемый кубоид [Min, Max] включительно
type BoundingBox struct {
	Min vec.Vec3
	Max vec.Vec3
}

// Contains проверяет попадание клетки в кубоид
func (b BoundingBox) Contains(p vec.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Volume возвращает число клеток кубоида
func (b BoundingBox) Volume() int {
	return (b.Max.X - b.Min.X + 1) * (b.Max.Y - b.Min.Y + 1) * (b.Max.Z - b.Min.Z + 1)
}

// TeleportPoint точка прибытия в зону
type TeleportPoint struct {
	X, Y, Z float64
	Yaw     float32
	Pitch   float32
}

// Position возвращает координаты точки
func (t TeleportPoint) Position() vec.Vec3Float {
	return vec.Vec3Float{X: t.X, Y: t.Y, Z: t.Z}
}

// IsAdjacent проверяет соседство по грани: ровно одна ось отличается ровно на 1
func IsAdjacent(a, b vec.Vec3) bool {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	dz := abs(a.Z - b.Z)
	return dx+dy+dz == 1
}

// FacingYaw возвращает поворот от точки from к точке to, округленный до 90 градусов.
// -180 приводится к 180.
func FacingYaw(from, to vec.Vec3Float) float32 {
	dx := to.X - from.X
	dz := to.Z - from.Z
	deg := math.Atan2(-dx, dz) * 180 / math.Pi
	// половина округляется вверх: -45 дает 0, -135 дает -90
	yaw := math.Floor(deg/90+0.5) * 90
	if yaw == -180 {
		yaw = 180
	}
	if yaw == 0 {
		yaw = 0 // убираем -0
	}
	return float32(yaw)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
