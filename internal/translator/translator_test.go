package translator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"micrscan/internal/reference"
	"micrscan/internal/scope"
	"micrscan/internal/segment"
	"micrscan/pkg/geometry"
)

func filledTile(size int, val uint8) gocv.Mat {
	m := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8U)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			m.SetUCharAt(y, x, val)
		}
	}
	return m
}

func TestTemplateMatchTranslatePicksClosestGlyph(t *testing.T) {
	lib := &reference.Library{
		Glyphs: []reference.Glyph{
			{Label: "0", Contours: []gocv.Mat{filledTile(10, 255)}},
			{Label: "1", Contours: []gocv.Mat{filledTile(10, 0)}},
		},
	}
	defer func() {
		for _, g := range lib.Glyphs {
			for _, m := range g.Contours {
				m.Close()
			}
		}
	}()

	raster := scope.Raster{Mat: filledTile(40, 255), Polarity: scope.PolarityBrightFG}
	defer raster.Mat.Close()

	chars := []segment.Character{
		{Bounds: geometry.RectInt{X: 5, Y: 5, Width: 10, Height: 10}, Type: segment.Type1},
	}

	tr := NewTemplateMatch(lib)
	result, err := tr.Translate(context.Background(), raster, chars)

	require.NoError(t, err)
	assert.Equal(t, "0", result.MICRLine)
	require.Len(t, result.Chars, 1)
	assert.Equal(t, "0", result.Chars[0].Label)
}

func TestTemplateMatchName(t *testing.T) {
	tr := NewTemplateMatch(&reference.Library{})
	assert.Equal(t, "template_match", tr.Name())
}
