package overlap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"

	"micrscan/internal/config"
	"micrscan/pkg/geometry"
)

func TestDirectionHelpers(t *testing.T) {
	assert.Equal(t, 4, opposite(0))
	assert.Equal(t, 0, opposite(4))
	assert.Equal(t, 1, clockwise(0))
	assert.Equal(t, 0, clockwise(7))
	assert.Equal(t, 7, counterCW(0))
	assert.Equal(t, 0, counterCW(1))
}

func matFromRows(rows [][]byte) gocv.Mat {
	h := len(rows)
	w := len(rows[0])
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetUCharAt(y, x, rows[y][x])
		}
	}
	return m
}

func TestTopBorderRunsFindsContiguousRuns(t *testing.T) {
	m := matFromRows([][]byte{
		{255, 255, 0, 255, 255, 255, 0},
		{0, 0, 0, 0, 0, 0, 0},
	})
	defer m.Close()

	runs := topBorderRuns(m)
	assert.Equal(t, [][2]int{{0, 1}, {3, 5}}, runs)
}

func TestIsEdgePointRequiresUnsetNeighbour(t *testing.T) {
	m := matFromRows([][]byte{
		{255, 255, 255},
		{255, 255, 255},
		{255, 255, 255},
	})
	defer m.Close()
	assert.False(t, isEdgePoint(m, 1, 1))
	assert.True(t, isEdgePoint(m, 0, 0))
}

func TestClearPaddingZeroesBorder(t *testing.T) {
	m := matFromRows([][]byte{
		{255, 255, 255, 255},
		{255, 255, 255, 255},
		{255, 255, 255, 255},
		{255, 255, 255, 255},
	})
	defer m.Close()
	clearPadding(&m, 1)

	assert.Equal(t, uint8(0), m.GetUCharAt(0, 0))
	assert.Equal(t, uint8(0), m.GetUCharAt(0, 2))
	assert.Equal(t, uint8(255), m.GetUCharAt(1, 1))
	assert.Equal(t, uint8(255), m.GetUCharAt(2, 2))
	assert.Equal(t, uint8(0), m.GetUCharAt(3, 3))
}

func TestClearVerticalThinStrokesErasesShortRuns(t *testing.T) {
	// Column 0: a run of 2 (below threshold 3, cleared).
	// Column 1: a run of 5 (above threshold, kept).
	m := matFromRows([][]byte{
		{255, 255},
		{255, 255},
		{0, 255},
		{0, 255},
		{0, 255},
	})
	defer m.Close()

	clearVerticalThinStrokes(&m, 3)

	assert.Equal(t, uint8(0), m.GetUCharAt(0, 0))
	assert.Equal(t, uint8(0), m.GetUCharAt(1, 0))
	assert.Equal(t, uint8(255), m.GetUCharAt(0, 1))
	assert.Equal(t, uint8(255), m.GetUCharAt(4, 1))
}

func TestRunLengthCountsInDirection(t *testing.T) {
	m := matFromRows([][]byte{
		{255, 255, 255, 0},
	})
	defer m.Close()
	assert.Equal(t, 3, runLength(&m, 0, 0, 1, 0))
	assert.Equal(t, 1, runLength(&m, 2, 0, 1, 0))
	assert.Equal(t, 0, runLength(&m, 3, 0, 1, 0))
}

func TestNearestDirIndexPicksClosestCompassPoint(t *testing.T) {
	assert.Equal(t, 0, nearestDirIndex(0))
	assert.Equal(t, 2, nearestDirIndex(90))
	assert.Equal(t, 2, nearestDirIndex(100))
	assert.Equal(t, 4, nearestDirIndex(180))
	assert.Equal(t, 0, nearestDirIndex(350))
}

func TestStepAlongRequiresSetDestination(t *testing.T) {
	m := matFromRows([][]byte{
		{0, 255},
		{0, 0},
	})
	defer m.Close()

	next, ok := stepAlong(m, geometry.PointInt{X: 0, Y: 0}, 0)
	assert.True(t, ok)
	assert.Equal(t, geometry.PointInt{X: 1, Y: 0}, next)

	_, ok = stepAlong(m, geometry.PointInt{X: 0, Y: 0}, 270)
	assert.False(t, ok)
}

func TestProbeToUnsetFindsFirstGap(t *testing.T) {
	m := matFromRows([][]byte{
		{255, 255, 255, 0, 255},
	})
	defer m.Close()

	p, ok := probeToUnset(m, geometry.PointInt{X: 0, Y: 0}, 0, 10)
	assert.True(t, ok)
	assert.Equal(t, geometry.PointInt{X: 3, Y: 0}, p)

	_, ok = probeToUnset(m, geometry.PointInt{X: 3, Y: 0}, 0, 1)
	assert.False(t, ok, "the set pixel at x=4 should not count as a gap")
}

func TestCrossIntersectionReseedsBothEdgesPastAGap(t *testing.T) {
	// Two vertical strokes at x=2 and x=4 run into a wide horizontal smear
	// spanning rows 1-3 (the "intersection"), then separate again. The
	// smear is narrower than the ROI so probing sideways from inside it
	// finds background on both sides before running off either edge.
	m := matFromRows([][]byte{
		{0, 0, 255, 0, 255, 0, 0, 0, 0},
		{0, 255, 255, 255, 255, 255, 255, 255, 0},
		{0, 255, 255, 255, 255, 255, 255, 255, 0},
		{0, 255, 255, 255, 255, 255, 255, 255, 0},
		{0, 0, 255, 0, 255, 0, 0, 0, 0},
		{0, 0, 255, 0, 255, 0, 0, 0, 0},
	})
	defer m.Close()

	a := &arena{}
	var leftIDs, rightIDs []int
	for y := 0; y <= 3; y++ {
		leftIDs = append(leftIDs, a.add(Point{Pos: geometry.PointInt{X: 2, Y: y}, FromDir: 2, Degree: 90}))
		rightIDs = append(rightIDs, a.add(Point{Pos: geometry.PointInt{X: 4, Y: y}, FromDir: 2, Degree: 90}))
	}
	left := &Edge{Sense: CounterClockwise, PointIDs: leftIDs}
	right := &Edge{Sense: Clockwise, PointIDs: rightIDs}

	cfg := config.Default().Overlap
	ok := crossIntersection(m, a, left, right, cfg)
	assert.True(t, ok)
	assert.Greater(t, len(left.PointIDs), 2)
	assert.Greater(t, len(right.PointIDs), 2)
}

func TestCorrectDoesNotAddForegroundPixels(t *testing.T) {
	m := matFromRows([][]byte{
		{255, 0, 0, 0, 255},
		{0, 255, 255, 255, 0},
		{0, 0, 255, 0, 0},
		{0, 0, 255, 0, 0},
	})
	defer m.Close()

	cfg := config.Default().Overlap
	out := Correct(m, 0, VerticalThickness{MinHorizontal: 1, MinVertical: 1}, cfg)
	defer out.Close()

	for y := 0; y < m.Rows(); y++ {
		for x := 0; x < m.Cols(); x++ {
			if m.GetUCharAt(y, x) == 0 {
				assert.Equal(t, uint8(0), out.GetUCharAt(y, x), "pixel (%d,%d) should never turn on", x, y)
			}
		}
	}
}
