// Package preprocess implements the first pipeline stage: grey-conversion,
// deskew, polarity analysis, morphological cleaning, and bottom-band crop.
package preprocess

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"micrscan/internal/config"
	"micrscan/internal/micrerr"
	"micrscan/internal/scope"
	"micrscan/pkg/geometry"
)

// Fraction is a half-open [0,1] crop bound on one axis.
type Fraction struct {
	Width  float64
	Height float64
}

// Crop names the begin/end fractions for the bottom-band crop, matching the
// request's optional "crop" field.
type Crop struct {
	Begin Fraction
	End   Fraction
}

// DefaultCrop keeps the lower 40% of the image (begin at 0.6 height).
func DefaultCrop(cfg config.DeskewConfig) Crop {
	return Crop{
		Begin: Fraction{Width: 0, Height: cfg.BottomBandBeginFrac},
		End:   Fraction{Width: 1, Height: cfg.BottomBandEndFrac},
	}
}

// Result is the preprocessor's output. The raster is still grey (not yet
// binarized — the invariant that foreground is bright only holds once the
// binarizer runs); BackgroundLight is the polarity-analysis verdict, handed
// downstream so the morphological clean direction and later stages can
// agree on which tone is ink.
type Result struct {
	Raster          scope.Raster
	SkewAngle       float64
	BackgroundLight bool
}

// Run executes grey-conversion, deskew, polarity analysis, morphological
// clean, and bottom-band crop in that order, per the stage's contract.
func Run(s *scope.Scope, src gocv.Mat, cfg config.DeskewConfig, crop Crop) (Result, error) {
	if src.Empty() {
		return Result{}, micrerr.New(micrerr.Input, "empty source image")
	}
	for _, f := range []float64{crop.Begin.Width, crop.Begin.Height, crop.End.Width, crop.End.Height} {
		if f < 0 || f > 1 {
			return Result{}, micrerr.New(micrerr.Input, "crop fraction outside [0,1]")
		}
	}

	gray := s.Track("preprocess.gray", gocv.NewMat())
	if src.Channels() > 1 {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&gray)
	}

	angle, ok := detectSkewAngle(gray, cfg)
	deskewed := gray
	if ok {
		deskewed = s.Track("preprocess.deskewed", rotateAboutCenter(gray, angle))
	}

	backgroundLight := analyzePolarity(deskewed)

	cleaned := s.Track("preprocess.cleaned", morphClean(deskewed, backgroundLight))

	cropped := s.Track("preprocess.cropped", cropBottomBand(cleaned, crop))

	// The raster is still grey; binarize.Run normalizes it to
	// foreground=bright and sets the real scope.Polarity.
	return Result{
		Raster:          scope.Raster{Mat: cropped, Polarity: scope.PolarityDarkFG},
		SkewAngle:       angle,
		BackgroundLight: backgroundLight,
	}, nil
}

// detectSkewAngle blurs, invert-binarizes via Otsu, dilates with a wide
// horizontal kernel to fuse text into bars, picks the most rectangular
// non-border-touching contour within size bounds, and derives the
// correction angle from its minimum-area rotated rectangle.
func detectSkewAngle(gray gocv.Mat, cfg config.DeskewConfig) (float64, bool) {
	blurred := gocv.NewMat()
	defer blurred.Close()
	k := cfg.BlurKernel
	if k%2 == 0 {
		k++
	}
	gocv.GaussianBlur(gray, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blurred, &binary, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.DilateKernelWidth, 1))
	defer kernel.Close()
	gocv.Dilate(binary, &binary, kernel)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	w, h := gray.Cols(), gray.Rows()

	bestRatio := math.MaxFloat64
	bestIdx := -1
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		rect := gocv.BoundingRect(c)
		if rect.Min.X <= 0 || rect.Min.Y <= 0 || rect.Max.X >= w || rect.Max.Y >= h {
			continue
		}
		if rect.Dx() < cfg.MinCandidateWidth || rect.Dy() < cfg.MinCandidateHeight || rect.Dy() > cfg.MaxCandidateHeight {
			continue
		}
		filled := gocv.ContourArea(c)
		if filled <= 0 {
			continue
		}
		rectArea := float64(rect.Dx() * rect.Dy())
		ratio := rectArea / filled
		if ratio < bestRatio {
			bestRatio = ratio
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return 0, false
	}

	rrect := gocv.MinAreaRect(contours.At(bestIdx))
	var angle float64
	if rrect.Width < rrect.Height {
		angle = -(90 - rrect.Angle)
	} else {
		angle = rrect.Angle
	}
	return angle, true
}

func rotateAboutCenter(src gocv.Mat, angleDeg float64) gocv.Mat {
	center := image.Pt(src.Cols()/2, src.Rows()/2)
	rot := gocv.GetRotationMatrix2D(center, angleDeg, 1.0)
	defer rot.Close()

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, rot, image.Pt(src.Cols(), src.Rows()),
		gocv.InterpolationCubic, gocv.BorderReplicate, gocv.NewScalar(0, 0, 0, 0))
	return dst
}

// analyzePolarity samples a 10x10 uniform grid of pixel intensities;
// background is light iff the mean exceeds 128.
func analyzePolarity(gray gocv.Mat) bool {
	const grid = 10
	w, h := gray.Cols(), gray.Rows()
	if w == 0 || h == 0 {
		return false
	}

	var sum, count float64
	for gy := 0; gy < grid; gy++ {
		y := gy * h / grid
		if y >= h {
			y = h - 1
		}
		for gx := 0; gx < grid; gx++ {
			x := gx * w / grid
			if x >= w {
				x = w - 1
			}
			sum += float64(gray.GetUCharAt(y, x))
			count++
		}
	}
	mean := sum / count
	return mean > 128
}

// morphClean erodes-then-dilates when the background is light,
// dilates-then-erodes when it is dark, with a 2x2 rectangular kernel.
func morphClean(src gocv.Mat, backgroundLight bool) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2, 2))
	defer kernel.Close()

	dst := gocv.NewMat()
	src.CopyTo(&dst)

	if backgroundLight {
		gocv.Erode(dst, &dst, kernel)
		gocv.Dilate(dst, &dst, kernel)
	} else {
		gocv.Dilate(dst, &dst, kernel)
		gocv.Erode(dst, &dst, kernel)
	}
	return dst
}

func cropBottomBand(src gocv.Mat, crop Crop) gocv.Mat {
	w, h := src.Cols(), src.Rows()
	x0 := int(crop.Begin.Width * float64(w))
	x1 := int(crop.End.Width * float64(w))
	y0 := int(crop.Begin.Height * float64(h))
	y1 := int(crop.End.Height * float64(h))

	rect := geometry.RectInt{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}.ClampToSize(w, h)
	region := src.Region(image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height))
	defer region.Close()
	out := gocv.NewMat()
	region.CopyTo(&out)
	return out
}
