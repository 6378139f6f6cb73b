package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseDeterministicAndClamped(t *testing.T) {
	a, b := NewNoise(7), NewNoise(7)
	assert.Equal(t, int64(7), a.Seed())
	for x := -20.0; x <= 20; x += 3.3 {
		for z := -20.0; z <= 20; z += 2.7 {
			v := a.At(x/10, z/10)
			assert.Equal(t, v, b.At(x/10, z/10))
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}
