package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVec3(t *testing.T) {
	v, err := ParseVec3("10,64,-3")
	require.NoError(t, err)
	assert.Equal(t, Vec3{X: 10, Y: 64, Z: -3}, v)

	_, err = ParseVec3("10,64")
	assert.Error(t, err, "две координаты не должны разбираться как Vec3")

	_, err = ParseVec3("a,b,c")
	assert.Error(t, err)
}

func TestParseVec2(t *testing.T) {
	v, err := ParseVec2("4,-7")
	require.NoError(t, err)
	assert.Equal(t, Vec2{X: 4, Z: -7}, v)

	v, err = ParseVec2("4_-7")
	require.NoError(t, err)
	assert.Equal(t, Vec2{X: 4, Z: -7}, v)

	_, err = ParseVec2("1,2,3")
	assert.Error(t, err)
}

func TestVec3FloatCell(t *testing.T) {
	// Отрицательные координаты округляются вниз, а не к нулю
	assert.Equal(t, Vec3{X: -1, Y: 64, Z: 0}, Vec3Float{X: -0.5, Y: 64.9, Z: 0.1}.Cell())
}

func TestOrdering(t *testing.T) {
	assert.True(t, Vec3{X: 0, Y: 99, Z: 0}.Less(Vec3{X: 0, Y: 1, Z: 1}))
	assert.True(t, Vec2{X: -1, Z: 5}.Less(Vec2{X: 0, Z: 0}))
	assert.Equal(t, "3_4", Vec2{X: 3, Z: 4}.Key())
	assert.Equal(t, Vec3{X: 3, Y: 10, Z: 4}, Vec2{X: 3, Z: 4}.At(10))
}
