// Package anchor implements the fourth pipeline stage: matching every
// candidate contour against the reference "0" glyph and picking the best
// score as the seed for line construction.
package anchor

import (
	"image"
	"sort"

	"gocv.io/x/gocv"

	"micrscan/internal/config"
	"micrscan/internal/contourx"
	"micrscan/internal/micrerr"
	"micrscan/internal/reference"
	"micrscan/internal/scope"
)

// Result is the winning contour and its match score, scaled 0-100.
type Result struct {
	Contour contourx.Contour
	Score   float64
}

// Find scans contours bottom-up (descending Y) so the MICR line — always the
// lowest text on the cheque — is reached first, resizes each to a
// tile-sized grey square, and matches it against the reference "0" glyph
// using normalized cross-correlation. It exits early once a score reaches
// cfg.StopScore. If no contour scores above zero, Line cannot be built and
// ok is false (a Detection-kind soft failure at the caller).
func Find(raster scope.Raster, contours []contourx.Contour, lib *reference.Library, cfg config.AnchorConfig) (Result, bool, error) {
	zero, err := lib.Zero()
	if err != nil {
		return Result{}, false, err
	}
	if len(zero.Contours) == 0 {
		return Result{}, false, micrerr.New(micrerr.Configuration, `"0" reference template has no contours`)
	}
	template := zero.Contours[0]

	ordered := make([]contourx.Contour, len(contours))
	copy(ordered, contours)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Bounds.Y+ordered[i].Bounds.Height > ordered[j].Bounds.Y+ordered[j].Bounds.Height
	})

	tileTemplate := resizeToTile(template, cfg.TileSize)
	defer tileTemplate.Close()

	var best Result
	for _, c := range ordered {
		region := raster.Mat.Region(image.Rect(c.Bounds.X, c.Bounds.Y, c.Bounds.X+c.Bounds.Width, c.Bounds.Y+c.Bounds.Height))
		tile := resizeToTile(region, cfg.TileSize)
		region.Close()

		score := matchScore(tile, tileTemplate)
		tile.Close()

		if score > best.Score {
			best = Result{Contour: c, Score: score}
		}
		if best.Score >= cfg.StopScore {
			break
		}
	}

	if best.Score <= 0 {
		return Result{}, false, nil
	}
	return best, true, nil
}

func resizeToTile(src gocv.Mat, size int) gocv.Mat {
	out := gocv.NewMat()
	gocv.Resize(src, &out, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	return out
}

// matchScore runs TM_CCORR_NORMED between a and b (assumed pre-sized equal)
// and scales the result to 0-100.
func matchScore(a, b gocv.Mat) float64 {
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(a, b, &result, gocv.TmCcorrNormed, mask)
	_, maxVal, _, _ := gocv.MinMaxLoc(result)
	return float64(maxVal) * 100
}
