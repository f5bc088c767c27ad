package micrscan

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeImageRoundTripsPNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := decodeImage(ImageInput{Format: "png", Buffer: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestDecodeImageRejectsEmptyBuffer(t *testing.T) {
	_, err := decodeImage(ImageInput{Format: "png"})
	assert.Error(t, err)
}

func TestHasDebug(t *testing.T) {
	assert.True(t, hasDebug([]string{"contours", "line"}, "line"))
	assert.False(t, hasDebug([]string{"contours"}, "chars"))
}

func TestFallbackCheckNumberStripsNonDigitsAndLeadingZeros(t *testing.T) {
	assert.Equal(t, "123", fallbackCheckNumber("0123"))
	assert.Equal(t, "45", fallbackCheckNumber(" 45\n"))
	assert.Equal(t, "0", fallbackCheckNumber("000"))
	assert.Equal(t, "", fallbackCheckNumber(""))
}

func TestNeedsFallbackOnlyWhenAllEmpty(t *testing.T) {
	assert.False(t, needsFallback(nil))
	assert.True(t, needsFallback(map[string]TranslatorOutput{
		"template_match": {Result: MICRFields{CheckNumber: ""}},
	}))
	assert.False(t, needsFallback(map[string]TranslatorOutput{
		"template_match": {Result: MICRFields{CheckNumber: "123"}},
	}))
}
