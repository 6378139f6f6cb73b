package util

import (
	"github.com/aquilax/go-perlin"
)

// Noise детерминированный генератор шума Перлина для одного сида
type Noise struct {
	seed int64
	p    *perlin.Perlin
}

// NewNoise создает генератор шума с указанным сидом
func NewNoise(seed int64) *Noise {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Noise{seed: seed, p: perlin.NewPerlin(alpha, beta, n, seed)}
}

// Seed возвращает сид генератора
func (n *Noise) Seed() int64 {
	return n.seed
}

// At возвращает значение шума в точке, приведенное к диапазону [0, 1]
func (n *Noise) At(x, z float64) float64 {
	v := (n.p.Noise2D(x, z) + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
