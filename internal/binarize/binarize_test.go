package binarize

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"micrscan/internal/config"
	"micrscan/internal/scope"
)

func isAllSet(m gocv.Mat, want uint8) bool {
	for y := 0; y < m.Rows(); y++ {
		for x := 0; x < m.Cols(); x++ {
			if m.GetUCharAt(y, x) != want {
				return false
			}
		}
	}
	return true
}

func TestBinarizeAllWhiteHasNoForeground(t *testing.T) {
	img := gocv.NewMatWithSize(40, 40, gocv.MatTypeCV8U)
	defer img.Close()
	img.SetTo(gocv.NewScalar(255, 0, 0, 0))

	s := scope.New(zerolog.Nop())
	defer s.Close()

	out, err := Run(s, img, config.Default().Binarizer)
	require.NoError(t, err)
	assert.True(t, isAllSet(out.Mat, 0))
}

func TestBinarizeAllBlackHasAllForeground(t *testing.T) {
	img := gocv.NewMatWithSize(40, 40, gocv.MatTypeCV8U)
	defer img.Close()
	img.SetTo(gocv.NewScalar(0, 0, 0, 0))

	s := scope.New(zerolog.Nop())
	defer s.Close()

	out, err := Run(s, img, config.Default().Binarizer)
	require.NoError(t, err)
	assert.True(t, isAllSet(out.Mat, 255))
}

func TestBinarizeRejectsEvenBlockSize(t *testing.T) {
	img := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8U)
	defer img.Close()

	s := scope.New(zerolog.Nop())
	defer s.Close()

	cfg := config.Default().Binarizer
	cfg.BlockSize = 20
	_, err := Run(s, img, cfg)
	assert.Error(t, err)
}
