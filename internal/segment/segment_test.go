package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"micrscan/internal/contourx"
	"micrscan/internal/scope"
	"micrscan/pkg/geometry"
)

func mediumContour(r geometry.RectInt, area float64) contourx.Contour {
	return contourx.Contour{Bounds: r, FilledArea: area, Size: contourx.Medium}
}

func TestDeriveStatsFromMediumOnly(t *testing.T) {
	contours := []contourx.Contour{
		mediumContour(geometry.RectInt{X: 0, Y: 0, Width: 10, Height: 20}, 100),
		{Bounds: geometry.RectInt{X: 12, Y: 0, Width: 2, Height: 2}, Size: contourx.Small},
		mediumContour(geometry.RectInt{X: 20, Y: 0, Width: 10, Height: 20}, 100),
	}

	st := DeriveStats(contours)

	assert.Equal(t, 10, st.MaxWidth)
	assert.Equal(t, 10, st.MinDistBetween)
	assert.Equal(t, 10, st.MaxDistBetween)
}

func TestIterateEmitsOneCharacterPerMedium(t *testing.T) {
	contours := []contourx.Contour{
		mediumContour(geometry.RectInt{X: 0, Y: 0, Width: 10, Height: 20}, 100),
		mediumContour(geometry.RectInt{X: 20, Y: 0, Width: 10, Height: 20}, 100),
	}
	stats := DeriveStats(contours)

	chars := Iterate(contours, stats, 5)

	require.Len(t, chars, 2)
	assert.Equal(t, 0, chars[0].Index)
	assert.Equal(t, 1, chars[1].Index)
}

func TestAssignType1ContainedInRoot(t *testing.T) {
	root := geometry.RectInt{X: 0, Y: 0, Width: 100, Height: 50}
	chars := []Character{
		{Bounds: geometry.RectInt{X: 10, Y: 10, Width: 10, Height: 10}},
	}
	raster := scope.Raster{Mat: gocv.NewMatWithSize(50, 100, gocv.MatTypeCV8U)}
	defer raster.Mat.Close()

	AssignTypes(chars, raster, TypeParams{MaxCharWidth: 28, MaxCharHeight: 30, Roots: []geometry.RectInt{root}})

	assert.Equal(t, Type1, chars[0].Type)
}

func TestAssignTypesDefaultsToType4(t *testing.T) {
	chars := []Character{
		{Bounds: geometry.RectInt{X: 500, Y: 500, Width: 10, Height: 10}},
	}
	raster := scope.Raster{Mat: gocv.NewMatWithSize(50, 100, gocv.MatTypeCV8U)}
	defer raster.Mat.Close()

	AssignTypes(chars, raster, TypeParams{MaxCharWidth: 28, MaxCharHeight: 30})

	assert.Equal(t, Type4, chars[0].Type)
}

func TestEmitDropsType4(t *testing.T) {
	chars := []Character{
		{Bounds: geometry.RectInt{X: 0, Y: 0, Width: 5, Height: 5}, Type: Type1},
		{Bounds: geometry.RectInt{X: 10, Y: 0, Width: 5, Height: 5}, Type: Type4},
	}

	out := Emit(chars)

	require.Len(t, out, 1)
	assert.Equal(t, Type1, out[0].Type)
}

func TestLineBoundingRectUsesType12ForY(t *testing.T) {
	chars := []Character{
		{Bounds: geometry.RectInt{X: 0, Y: 10, Width: 10, Height: 20}, Type: Type1},
		{Bounds: geometry.RectInt{X: 20, Y: 0, Width: 10, Height: 200}, Type: Type3}, // overhang, should not inflate Y
	}

	rect := LineBoundingRect(chars, nil, 1000, 1000)

	assert.Equal(t, 10, rect.Y)
	assert.Equal(t, 20, rect.Height)
}

func TestLineBoundingRectFallsBackToOnLineUnion(t *testing.T) {
	onLine := []contourx.Contour{
		{Bounds: geometry.RectInt{X: 5, Y: 5, Width: 10, Height: 10}},
	}

	rect := LineBoundingRect(nil, onLine, 1000, 1000)

	assert.Equal(t, onLine[0].Bounds, rect)
}
