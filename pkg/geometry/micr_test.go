package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFractionIntersects(t *testing.T) {
	a := MinMax{Min: 0, Max: 100}
	b := MinMax{Min: 50, Max: 150}
	assert.InDelta(t, 0.5, FractionIntersects(a, b), 1e-9)
}

func TestXDistance(t *testing.T) {
	a := RectInt{X: 26, Y: 33, Width: 15, Height: 8}
	b := RectInt{X: 105, Y: 28, Width: 9, Height: 10}
	assert.Equal(t, 64, XDistance(a, b))
}

func TestRectContainsReflexive(t *testing.T) {
	r := RectInt{X: 10, Y: 10, Width: 20, Height: 30}
	assert.True(t, RectContains(r, r))
}

func TestRectIntersectsSymmetric(t *testing.T) {
	a := RectInt{X: 0, Y: 0, Width: 10, Height: 10}
	b := RectInt{X: 5, Y: 5, Width: 10, Height: 10}
	c := RectInt{X: 100, Y: 100, Width: 5, Height: 5}
	assert.Equal(t, RectIntersects(a, b), RectIntersects(b, a))
	assert.Equal(t, RectIntersects(a, c), RectIntersects(c, a))
	assert.True(t, RectIntersects(a, b))
	assert.False(t, RectIntersects(a, c))
}

func TestDegreeCardinal(t *testing.T) {
	cases := []struct {
		pts  []PointInt
		want float64
	}{
		{[]PointInt{{0, 0}, {10, 0}}, 0},
		{[]PointInt{{0, 0}, {0, -10}}, 90},
		{[]PointInt{{0, 0}, {-10, 0}}, 180},
		{[]PointInt{{0, 0}, {0, 10}}, 270},
	}
	for _, c := range cases {
		got := Degree(c.pts)
		diff := math.Abs(got - c.want)
		if diff > 180 {
			diff = 360 - diff
		}
		assert.LessOrEqual(t, diff, 1.0)
	}
}

func TestDegreeNearlyFlat(t *testing.T) {
	// (0,0)->(50,-1)->(100,-2): nearly horizontal, slightly upward -> ~1 degree.
	got := Degree([]PointInt{{0, 0}, {50, -1}, {100, -2}})
	assert.InDelta(t, 1.0, got, 1.0)
}

func TestDegreeNearlyVertical(t *testing.T) {
	got := Degree([]PointInt{{0, 0}, {1, -50}, {2, -100}})
	assert.InDelta(t, 89.0, got, 1.0)
}

func TestDegreeDeltaSymmetric(t *testing.T) {
	assert.Equal(t, DegreeDelta(10, 350), DegreeDelta(350, 10))
	assert.InDelta(t, 20.0, DegreeDelta(10, 350), 1e-9)
	d := DegreeDelta(10, 170)
	assert.GreaterOrEqual(t, d, 0.0)
	assert.LessOrEqual(t, d, 180.0)
}

func TestMinMaxPadAndClamp(t *testing.T) {
	m := MinMax{Min: 10, Max: 20}.Pad(5)
	assert.Equal(t, MinMax{Min: 5, Max: 25}, m)
	clamped := MinMax{Min: -5, Max: 25}.ClampLower(0)
	assert.Equal(t, 0.0, clamped.Min)
}
