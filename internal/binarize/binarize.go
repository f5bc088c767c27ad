// Package binarize implements the second pipeline stage: Gaussian blur
// followed by an inverse adaptive threshold, producing a raster whose
// foreground (ink) is bright, per the data-model polarity invariant.
package binarize

import (
	"image"

	"gocv.io/x/gocv"

	"micrscan/internal/config"
	"micrscan/internal/micrerr"
	"micrscan/internal/scope"
)

// Run applies a Gaussian blur then an inverse-binary, Gaussian-weighted
// adaptive threshold. block must be odd and >= 3; Run rejects any other
// value with a Configuration error.
func Run(s *scope.Scope, src gocv.Mat, cfg config.BinarizerConfig) (scope.Raster, error) {
	if src.Empty() {
		return scope.Raster{}, micrerr.New(micrerr.Input, "empty source image")
	}
	block := cfg.BlockSize
	if block < 3 || block%2 == 0 {
		return scope.Raster{}, micrerr.New(micrerr.Configuration, "invalid adaptive-threshold block size")
	}

	k := cfg.BlurKernel
	if k%2 == 0 {
		k++
	}
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(src, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	out := gocv.NewMat()
	gocv.AdaptiveThreshold(blurred, &out, 255, gocv.AdaptiveThresholdGaussian,
		gocv.ThresholdBinaryInv, block, float32(cfg.C))

	return s.TrackRaster("binarize.out", scope.Raster{Mat: out, Polarity: scope.PolarityBrightFG}), nil
}
