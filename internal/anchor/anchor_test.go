package anchor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func filledMat(w, h int, val byte) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetUCharAt(y, x, val)
		}
	}
	return m
}

func TestResizeToTileProducesSquareOfRequestedSize(t *testing.T) {
	src := filledMat(10, 20, 128)
	defer src.Close()

	tile := resizeToTile(src, 36)
	defer tile.Close()

	assert.Equal(t, 36, tile.Cols())
	assert.Equal(t, 36, tile.Rows())
}

func TestMatchScoreIsHighestForIdenticalTiles(t *testing.T) {
	a := filledMat(36, 36, 255)
	defer a.Close()
	identical := filledMat(36, 36, 255)
	defer identical.Close()
	different := filledMat(36, 36, 0)
	defer different.Close()

	sameScore := matchScore(a, identical)
	diffScore := matchScore(a, different)

	assert.Greater(t, sameScore, diffScore)
}
