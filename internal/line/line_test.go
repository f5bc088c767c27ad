package line

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"micrscan/internal/contourx"
	"micrscan/internal/scope"
	"micrscan/pkg/geometry"
)

func rasterOfSize(w, h int) scope.Raster {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	return scope.Raster{Mat: m, Polarity: scope.PolarityBrightFG}
}

func setRect(raster scope.Raster, r geometry.RectInt) {
	for y := r.Y; y < r.Y+r.Height; y++ {
		for x := r.X; x < r.X+r.Width; x++ {
			raster.Mat.SetUCharAt(y, x, 255)
		}
	}
}

func contourAt(r geometry.RectInt, area float64) contourx.Contour {
	return contourx.Contour{Bounds: r, FilledArea: area}
}

func TestDeriveThresholds(t *testing.T) {
	anchor := contourAt(geometry.RectInt{X: 0, Y: 0, Width: 10, Height: 20}, 100)
	th := DeriveThresholds(anchor)
	assert.InDelta(t, 47, th.MinArea, 0.001)
	assert.InDelta(t, 125, th.MaxArea, 0.001)
	assert.InDelta(t, 18, th.MinHeight, 0.001)
	assert.Equal(t, 10, th.MaxWidth)
	assert.Equal(t, 20, th.MaxHeight)
}

func TestNeighbourSweepAcceptsYIntersectingContainedContour(t *testing.T) {
	anchor := contourAt(geometry.RectInt{X: 100, Y: 50, Width: 10, Height: 20}, 100)
	neighbour := contourAt(geometry.RectInt{X: 115, Y: 52, Width: 8, Height: 18}, 90)
	thresh := DeriveThresholds(anchor)

	onLine, holding, _ := neighbourSweep(anchor, []contourx.Contour{anchor, neighbour}, thresh)

	require.Len(t, onLine, 2)
	assert.Empty(t, holding)
	assert.Equal(t, 100, onLine[0].Bounds.X)
	assert.Equal(t, 115, onLine[1].Bounds.X)
}

func TestNeighbourSweepRejectsFarYOffsetContour(t *testing.T) {
	anchor := contourAt(geometry.RectInt{X: 100, Y: 50, Width: 10, Height: 20}, 100)
	stray := contourAt(geometry.RectInt{X: 115, Y: 200, Width: 8, Height: 18}, 90)
	thresh := DeriveThresholds(anchor)

	onLine, holding, _ := neighbourSweep(anchor, []contourx.Contour{anchor, stray}, thresh)

	require.Len(t, onLine, 1)
	require.Len(t, holding, 0)
	assert.Equal(t, 100, onLine[0].Bounds.X)
}

func TestBuildRunsProjectionRecoveryForHoldingContour(t *testing.T) {
	raster := rasterOfSize(200, 100)
	defer raster.Mat.Close()

	// Three Medium characters on one row; the gap between the second and
	// the third is wide enough to trigger a projection after the second.
	anchorRect := geometry.RectInt{X: 20, Y: 40, Width: 10, Height: 20}
	secondRect := geometry.RectInt{X: 40, Y: 40, Width: 10, Height: 20}
	thirdRect := geometry.RectInt{X: 100, Y: 40, Width: 10, Height: 20}
	// A tall stray contour Y-intersects the row but overshoots the
	// containment padding, so the sweep puts it in the holding list. The
	// projection at X=63 overlaps it and pulls it back in, restricted to the
	// projection's pixels.
	strayRect := geometry.RectInt{X: 60, Y: 20, Width: 10, Height: 40}
	for _, r := range []geometry.RectInt{anchorRect, secondRect, thirdRect, strayRect} {
		setRect(raster, r)
	}
	anchor := contourAt(anchorRect, 200)
	stray := contourAt(strayRect, 300)
	all := []contourx.Contour{anchor, contourAt(secondRect, 200), stray, contourAt(thirdRect, 200)}

	log := zerolog.Nop()
	result := Build(raster, anchor, all, 10, log)

	require.NotNil(t, result)
	assert.Equal(t, anchor.Bounds, result.Anchor.Bounds)
	assert.True(t, result.Overlap)
	require.Len(t, result.Contours, 4)
	assert.Equal(t, geometry.RectInt{X: 63, Y: 40, Width: 7, Height: 20}, result.Contours[2].Bounds)
}

func TestRestrictToProjectionTightensToSetPixels(t *testing.T) {
	raster := rasterOfSize(50, 50)
	defer raster.Mat.Close()

	inkRect := geometry.RectInt{X: 10, Y: 10, Width: 5, Height: 5}
	setRect(raster, inkRect)
	c := contourAt(geometry.RectInt{X: 8, Y: 8, Width: 10, Height: 10}, 100)
	proj := geometry.RectInt{X: 5, Y: 5, Width: 20, Height: 20}

	clone := restrictToProjection(raster, c, proj)

	assert.Equal(t, inkRect, clone.Bounds)
}

func TestRestrictToProjectionFallsBackWhenNoPixelsSet(t *testing.T) {
	raster := rasterOfSize(50, 50)
	defer raster.Mat.Close()

	c := contourAt(geometry.RectInt{X: 8, Y: 8, Width: 10, Height: 10}, 100)
	proj := geometry.RectInt{X: 5, Y: 5, Width: 20, Height: 20}

	clone := restrictToProjection(raster, c, proj)

	inter, ok := geometry.RectIntersection(c.Bounds, proj)
	require.True(t, ok)
	assert.Equal(t, inter, clone.Bounds)
}

func TestLastMediumYFallsBackToUptoIndex(t *testing.T) {
	sorted := []contourx.Contour{
		contourAt(geometry.RectInt{X: 0, Y: 5, Width: 5, Height: 5}, 10),
		contourAt(geometry.RectInt{X: 10, Y: 9, Width: 5, Height: 5}, 10),
	}
	sorted[0].Size = contourx.Small
	sorted[1].Size = contourx.Small

	assert.Equal(t, 9, lastMediumY(sorted, 1))
}
