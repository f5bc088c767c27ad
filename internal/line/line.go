// Package line implements the fifth pipeline stage: growing a set of
// on-line contours from the anchor via a neighbour sweep, then recovering
// gaps by projecting synthetic candidate rectangles and pulling in
// overlapping ink, restricted to the pixels the projection actually covers.
package line

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"micrscan/internal/contourx"
	"micrscan/internal/scope"
	"micrscan/pkg/geometry"
)

// Thresholds are the per-line numeric bounds derived from the anchor
// contour.
type Thresholds struct {
	MinArea                   float64
	MaxArea                   float64
	MinHeight                 float64
	MaxWidth                  int
	MaxHeight                 int
	ContainmentPad            float64
	MinHorizontalRun          int
	MinVerticalRun            int
	VerticalThicknessThreshold int
}

// DeriveThresholds computes Thresholds from the anchor contour's own
// bounding box and area.
func DeriveThresholds(anchor contourx.Contour) Thresholds {
	area := anchor.FilledArea
	h := float64(anchor.Bounds.Height)
	w := anchor.Bounds.Width
	return Thresholds{
		MinArea:                    0.47 * area,
		MaxArea:                    1.25 * area,
		MinHeight:                  0.9 * h,
		MaxWidth:                   w,
		MaxHeight:                  anchor.Bounds.Height,
		ContainmentPad:             0.25 * h,
		MinHorizontalRun:           int(math.Round(0.3 * float64(w))),
		MinVerticalRun:             int(math.Round(0.3 * h)),
		VerticalThicknessThreshold: int(math.Round(0.25 * h)),
	}
}

// Line is the MICR text row under construction.
type Line struct {
	Contours []contourx.Contour // sorted ascending by X
	Bounds   geometry.RectInt
	Overlap  bool
	Anchor   contourx.Contour
	Thresh   Thresholds
	Raster   scope.Raster
}

// Build runs the neighbour sweep and projection recovery to grow a Line
// from the anchor contour and the full candidate contour list.
func Build(raster scope.Raster, anchor contourx.Contour, all []contourx.Contour, maxProjectionIter int, log zerolog.Logger) *Line {
	thresh := DeriveThresholds(anchor)

	classified := make([]contourx.Contour, len(all))
	for i, c := range all {
		c.Size = contourx.Classify(c, thresh.MinArea, thresh.MinHeight, thresh.MaxArea)
		classified[i] = c
	}

	onLine, holding, minXGap := neighbourSweep(anchor, classified, thresh)

	overlapOccurred := false
	for iter := 0; iter < maxProjectionIter; iter++ {
		inserted, newHolding := projectionRecoveryPass(raster, onLine, holding, thresh, minXGap)
		if len(inserted) == 0 {
			break
		}
		onLine = append(onLine, inserted...)
		sort.Slice(onLine, func(i, j int) bool { return onLine[i].Bounds.X < onLine[j].Bounds.X })
		holding = newHolding
		overlapOccurred = true
		log.Debug().Int("iteration", iter+1).Int("inserted", len(inserted)).Msg("projection recovery pass")
	}

	bounds := unionBounds(onLine)
	return &Line{
		Contours: onLine,
		Bounds:   bounds,
		Overlap:  overlapOccurred,
		Anchor:   anchor,
		Thresh:   thresh,
		Raster:   raster,
	}
}

// neighbourSweep sorts by X, then walks out from the anchor in
// both directions, accepting Y-intersecting, containment-padded-fitting
// contours and tracking min_x_gap across accepted Medium contours.
func neighbourSweep(anchor contourx.Contour, all []contourx.Contour, thresh Thresholds) (onLine []contourx.Contour, holding []contourx.Contour, minXGap int) {
	sorted := make([]contourx.Contour, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Bounds.X < sorted[j].Bounds.X })

	anchorIdx := -1
	for i, c := range sorted {
		if c.Bounds == anchor.Bounds {
			anchorIdx = i
			break
		}
	}
	if anchorIdx < 0 {
		return []contourx.Contour{anchor}, nil, 0
	}

	onLine = []contourx.Contour{sorted[anchorIdx]}
	minXGap = math.MaxInt32

	sweep := func(indices []int) {
		lc := sorted[anchorIdx]
		for _, i := range indices {
			c := sorted[i]
			lcRange := lc.Bounds.YRange()
			cRange := c.Bounds.YRange()
			if !lcRange.Intersects(cRange) {
				continue
			}

			padded := lcRange.Pad(thresh.ContainmentPad).ClampLower(0)
			if float64(c.Bounds.Width) <= 1.25*float64(thresh.MaxWidth) && cRange.WithinRange(padded) {
				c.InLine = true
				onLine = append(onLine, c)
				if c.Size == contourx.Medium {
					gap := geometry.XDistance(lc.Bounds, c.Bounds)
					if gap < minXGap {
						minXGap = gap
					}
					lc = c
				}
				continue
			}
			holding = append(holding, c)
		}
	}

	right := make([]int, 0)
	for i := anchorIdx + 1; i < len(sorted); i++ {
		right = append(right, i)
	}
	left := make([]int, 0)
	for i := anchorIdx - 1; i >= 0; i-- {
		left = append(left, i)
	}
	sweep(right)
	sweep(left)

	if minXGap == math.MaxInt32 {
		minXGap = thresh.MaxWidth
	}

	sort.Slice(onLine, func(i, j int) bool { return onLine[i].Bounds.X < onLine[j].Bounds.X })
	return onLine, holding, minXGap
}

// projection is a synthetic rectangle placed where a missing character is
// expected.
type projection struct {
	rect geometry.RectInt
}

// projectionRecoveryPass runs one recovery iteration: emit projection
// rectangles at gaps exceeding max_width+min_x_gap, then pull in holding
// contours that intersect a projection, restricted to the projection's
// pixels.
func projectionRecoveryPass(raster scope.Raster, onLine []contourx.Contour, holding []contourx.Contour, thresh Thresholds, minXGap int) ([]contourx.Contour, []contourx.Contour) {
	if len(onLine) == 0 || len(holding) == 0 {
		return nil, holding
	}

	sorted := make([]contourx.Contour, len(onLine))
	copy(sorted, onLine)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Bounds.X < sorted[j].Bounds.X })

	var projections []projection
	gapTrigger := thresh.MaxWidth + minXGap
	offset := int(1.3 * float64(minXGap))

	emit := func(rect geometry.RectInt) {
		if rect.X < 0 || rect.Y < 0 || rect.X+rect.Width > raster.Cols() || rect.Y+rect.Height > raster.Rows() {
			return
		}
		for _, p := range projections {
			if geometry.RectIntersects(p.rect, rect) {
				return
			}
		}
		projections = append(projections, projection{rect: rect})
	}

	// left-to-right
	for i := 0; i+1 < len(sorted); i++ {
		a, b := sorted[i], sorted[i+1]
		gap := geometry.XDistance(a.Bounds, b.Bounds)
		if gap > gapTrigger {
			rect := geometry.RectInt{
				X:      a.Bounds.X + a.Bounds.Width + offset,
				Y:      lastMediumY(sorted, i),
				Width:  thresh.MaxWidth,
				Height: thresh.MaxHeight,
			}
			emit(rect)
		}
	}
	// right-to-left (symmetric placement to the left of the later contour)
	for i := len(sorted) - 1; i > 0; i-- {
		a, b := sorted[i-1], sorted[i]
		gap := geometry.XDistance(a.Bounds, b.Bounds)
		if gap > gapTrigger {
			rect := geometry.RectInt{
				X:      b.Bounds.X - offset - thresh.MaxWidth,
				Y:      lastMediumY(sorted, i),
				Width:  thresh.MaxWidth,
				Height: thresh.MaxHeight,
			}
			emit(rect)
		}
	}

	if len(projections) == 0 {
		return nil, holding
	}

	var inserted []contourx.Contour
	var remaining []contourx.Contour
	for _, c := range holding {
		matched := false
		for _, p := range projections {
			if geometry.RectIntersects(c.Bounds, p.rect) {
				clone := restrictToProjection(raster, c, p.rect)
				clone.OverlapAdjusted = true
				clone.InLine = true
				clone.Size = contourx.Classify(clone, thresh.MinArea, thresh.MinHeight, thresh.MaxArea)
				inserted = append(inserted, clone)
				matched = true
				break
			}
		}
		if !matched {
			remaining = append(remaining, c)
		}
	}

	return inserted, remaining
}

func lastMediumY(sorted []contourx.Contour, uptoIdx int) int {
	for i := uptoIdx; i >= 0; i-- {
		if sorted[i].Size == contourx.Medium {
			return sorted[i].Bounds.Y
		}
	}
	return sorted[uptoIdx].Bounds.Y
}

// restrictToProjection computes the tightest rectangle
// around the pixels of c that fall inside p, by scanning the intersection
// region of the raster directly.
func restrictToProjection(raster scope.Raster, c contourx.Contour, p geometry.RectInt) contourx.Contour {
	inter, ok := geometry.RectIntersection(c.Bounds, p)
	if !ok {
		clone := c
		clone.Bounds.Width = max(1, clone.Bounds.Width)
		clone.Bounds.Height = max(1, clone.Bounds.Height)
		return clone
	}

	minX, minY := inter.X+inter.Width, inter.Y+inter.Height
	maxX, maxY := inter.X, inter.Y
	found := false
	for y := inter.Y; y < inter.Y+inter.Height; y++ {
		for x := inter.X; x < inter.X+inter.Width; x++ {
			if x < 0 || y < 0 || x >= raster.Cols() || y >= raster.Rows() {
				continue
			}
			if raster.Mat.GetUCharAt(y, x) != 0 {
				found = true
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	clone := c
	if !found {
		clone.Bounds = inter
	} else {
		clone.Bounds = geometry.RectInt{
			X:      minX,
			Y:      minY,
			Width:  max(1, maxX-minX+1),
			Height: max(1, maxY-minY+1),
		}
	}
	return clone
}

func unionBounds(cs []contourx.Contour) geometry.RectInt {
	if len(cs) == 0 {
		return geometry.RectInt{}
	}
	out := cs[0].Bounds
	for _, c := range cs[1:] {
		out = geometry.RectUnionInt(out, c.Bounds)
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
