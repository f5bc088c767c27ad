package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func TestAnalyzePolarityLightBackground(t *testing.T) {
	img := gocv.NewMatWithSize(100, 200, gocv.MatTypeCV8U)
	defer img.Close()
	img.SetTo(gocv.NewScalar(200, 0, 0, 0))
	assert.True(t, analyzePolarity(img))
}

func TestAnalyzePolarityDarkBackground(t *testing.T) {
	img := gocv.NewMatWithSize(100, 200, gocv.MatTypeCV8U)
	defer img.Close()
	img.SetTo(gocv.NewScalar(50, 0, 0, 0))
	assert.False(t, analyzePolarity(img))
}
