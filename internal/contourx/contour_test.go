package contourx

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"micrscan/pkg/geometry"
)

func TestClassifySmallMediumLarge(t *testing.T) {
	small := Contour{FilledArea: 5, Bounds: geometry.RectInt{X: 0, Y: 0, Width: 3, Height: 3}}
	assert.Equal(t, Small, Classify(small, 20, 7, 400))

	medium := Contour{FilledArea: 100, Bounds: geometry.RectInt{X: 0, Y: 0, Width: 15, Height: 15}}
	assert.Equal(t, Medium, Classify(medium, 20, 7, 400))

	large := Contour{FilledArea: 1000, Bounds: geometry.RectInt{X: 0, Y: 0, Width: 15, Height: 15}}
	assert.Equal(t, Large, Classify(large, 20, 7, 400))
}
