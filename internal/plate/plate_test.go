package plate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlate(t *testing.T) *Plate {
	t.Helper()
	p, err := New(320, 320, map[int]float64{1: 270, 2: 200, 3: 120, 4: 50})
	require.NoError(t, err)
	return p
}

func TestNew_RejectsNonPositiveDimensions(t *testing.T) {
	for _, tc := range []struct{ w, h float64 }{{0, 320}, {320, 0}, {-1, 10}} {
		_, err := New(tc.w, tc.h, nil)
		assert.Error(t, err, "New(%v, %v)", tc.w, tc.h)
	}
}

func TestDistances(t *testing.T) {
	p := testPlate(t)
	a := Object{ID: 1, X: 300, Y: 260, Class: 1}
	b := Object{ID: 2, X: 50, Y: 50, Class: 4}

	assert.Equal(t, 20.0, p.EdgeDistance(a))
	assert.Equal(t, 270.0, p.EdgeDistance(b))
	assert.Equal(t, 30.0, p.ManhattanDistance(a))
	assert.Equal(t, 270.0, p.ManhattanDistance(b))
	assert.Equal(t, 10.0, p.LateralDistance(a))

	orphan := Object{ID: 3, X: 10, Y: 10, Class: 9}
	assert.True(t, math.IsInf(p.ManhattanDistance(orphan), 1))
}

func TestOnPath_Corridors(t *testing.T) {
	p := testPlate(t)
	o := Object{ID: 1, X: 100, Y: 100, Class: 1} // bin at (320, 270)

	tests := []struct {
		name  string
		other Object
		want  bool
	}{
		{"vertical corridor middle", Object{ID: 2, X: 110, Y: 200}, true},
		{"vertical corridor margin below start", Object{ID: 2, X: 100, Y: 80}, true},
		{"vertical corridor beyond margin", Object{ID: 2, X: 100, Y: 79}, false},
		{"vertical corridor too far in x", Object{ID: 2, X: 121, Y: 200}, false},
		{"horizontal corridor", Object{ID: 2, X: 250, Y: 280}, true},
		{"horizontal corridor past edge margin", Object{ID: 2, X: 340, Y: 270}, true},
		{"horizontal corridor too far in y", Object{ID: 2, X: 250, Y: 291}, false},
		{"unrelated", Object{ID: 2, X: 250, Y: 50}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.OnPath(o, tc.other, DefaultMargin))
		})
	}
}

// The corridor test depends on whose path is swept, so containment is not
// symmetric between two objects.
func TestOnPath_IsAsymmetric(t *testing.T) {
	p := testPlate(t)
	a := Object{ID: 1, X: 100, Y: 100, Class: 1}
	b := Object{ID: 2, X: 200, Y: 270, Class: 1}

	assert.True(t, p.OnPath(a, b, DefaultMargin), "b sits in a's horizontal corridor")
	assert.False(t, p.OnPath(b, a, DefaultMargin), "a is outside both of b's corridors")
	assert.Equal(t, 1, p.PathCollisionCount(a, []Object{a, b}, DefaultMargin))
	assert.Equal(t, 0, p.PathCollisionCount(b, []Object{a, b}, DefaultMargin))
}

func TestPathCollisionCount_SameRow(t *testing.T) {
	p := testPlate(t)
	far := Object{ID: 1, X: 100, Y: 270, Class: 1}
	near := Object{ID: 2, X: 200, Y: 270, Class: 1}
	all := []Object{far, near}

	assert.GreaterOrEqual(t, p.PathCollisionCount(far, all, DefaultMargin), 1)
	assert.Equal(t, 0, p.PathCollisionCount(near, all, DefaultMargin))
}

func TestOnPath_UnknownBin(t *testing.T) {
	p := testPlate(t)
	assert.False(t, p.OnPath(Object{ID: 1, X: 10, Y: 10, Class: 7}, Object{ID: 2, X: 10, Y: 10}, DefaultMargin))
}

func TestDescribePath(t *testing.T) {
	p := testPlate(t)

	got := p.DescribePath(Object{ID: 1, X: 300, Y: 260, Class: 1})
	assert.Equal(t, "(300.0,260.0) -> diagonal right-down 10.0mm then right 10.0mm -> (320.0,270.0)", got)

	got = p.DescribePath(Object{ID: 2, X: 300, Y: 100, Class: 4})
	assert.Equal(t, "(300.0,100.0) -> diagonal right-up 20.0mm then up 30.0mm -> (320.0,50.0)", got)

	got = p.DescribePath(Object{ID: 3, X: 10, Y: 10, Class: 8})
	assert.Contains(t, got, "no bin")
}

func TestClasses(t *testing.T) {
	p := testPlate(t)
	assert.Equal(t, []int{1, 2, 3, 4}, p.Classes())
	assert.Equal(t, map[int]float64{1: 270, 2: 200, 3: 120, 4: 50}, p.BinEdges())
}
