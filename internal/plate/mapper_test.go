package plate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapper_Corners(t *testing.T) {
	m := Mapper{Width: 320, Height: 320}

	x, y := m.ToPlate(0, 0, 3002, 2918)
	assert.Equal(t, 320.0, x)
	assert.Equal(t, 0.0, y)

	x, y = m.ToPlate(3002, 2918, 3002, 2918)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 320.0, y)
}

func TestMapper_Monotonic(t *testing.T) {
	m := Mapper{Width: 320, Height: 240}
	const w, h = 1000.0, 800.0

	prevX, prevY := m.ToPlate(0, 0, w, h)
	for px := 10.0; px <= w; px += 10 {
		x, _ := m.ToPlate(px, 0, w, h)
		assert.Less(t, x, prevX, "mm_x must decrease as px increases (px=%v)", px)
		prevX = x
	}
	for py := 10.0; py <= h; py += 10 {
		_, y := m.ToPlate(0, py, w, h)
		assert.Greater(t, y, prevY, "mm_y must increase as py increases (py=%v)", py)
		prevY = y
	}
}

func TestMapper_RoundsToHundredths(t *testing.T) {
	m := Mapper{Width: 320, Height: 320}
	x, y := m.ToPlate(1, 1, 3, 3)
	assert.Equal(t, 213.33, x)
	assert.Equal(t, 106.67, y)
}

func TestMapper_OutOfRangeNotClamped(t *testing.T) {
	m := Mapper{Width: 320, Height: 320}
	x, y := m.ToPlate(-10, 1010, 1000, 1000)
	assert.Greater(t, x, 320.0)
	assert.Greater(t, y, 320.0)
	assert.False(t, m.Contains(x, y))

	cx, cy := m.Clamp(x, y)
	assert.Equal(t, 320.0, cx)
	assert.Equal(t, 320.0, cy)
}
