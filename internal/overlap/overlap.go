// Package overlap implements the sixth pipeline stage: a curve-following
// engine that erases ink reaching into the MICR band from above (signature
// strokes, printed rule lines) without ever adding foreground pixels.
//
// Points are kept in a flat arena indexed by integer ID rather than as a
// web of pointer-linked structs, so Edges can reference each other's
// history without a cyclic Curve<->Edge<->Point object graph.
package overlap

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"micrscan/internal/config"
	"micrscan/pkg/geometry"
)

// neighbourOffsets are the eight compass directions at 0,45,...,315 degrees,
// indexed in that order; image Y grows downward so "up" is -Y.
var neighbourOffsets = [8]geometry.PointInt{
	{X: 1, Y: 0},   // 0
	{X: 1, Y: -1},  // 45
	{X: 0, Y: -1},  // 90
	{X: -1, Y: -1}, // 135
	{X: -1, Y: 0},  // 180
	{X: -1, Y: 1},  // 225
	{X: 0, Y: 1},   // 270
	{X: 1, Y: 1},   // 315
}

func opposite(dir int) int  { return (dir + 4) % 8 }
func clockwise(dir int) int { return (dir + 1) % 8 }
func counterCW(dir int) int { return (dir + 7) % 8 }

// Sense is an Edge's rotation direction while probing for the next pixel.
type Sense int

const (
	Clockwise Sense = iota
	CounterClockwise
)

// Point is one pixel visited while following a Curve.
type Point struct {
	Pos     geometry.PointInt
	FromDir int // direction that led into this point (index into neighbourOffsets)
	Degree  float64
}

// Edge is an ordered sequence of Point IDs walked in one Curve's sense.
type Edge struct {
	Sense    Sense
	PointIDs []int
}

// arena owns every Point allocated while following curves in one overlap
// correction pass.
type arena struct {
	points []Point
}

func (a *arena) add(p Point) int {
	a.points = append(a.points, p)
	return len(a.points) - 1
}

func (a *arena) at(id int) Point { return a.points[id] }

// Curve is a pair of Edges seeded from the two ends of one top-border ink
// run, followed downward until they meet, exit the ROI, or halt at an
// intersection.
type Curve struct {
	Left, Right Edge
}

// isSet reports whether pixel (x,y) is foreground in roi.
func isSet(roi gocv.Mat, x, y int) bool {
	if x < 0 || y < 0 || x >= roi.Cols() || y >= roi.Rows() {
		return false
	}
	return roi.GetUCharAt(y, x) != 0
}

// isEdgePoint reports whether (x,y) is set and has at least one unset
// neighbour inside the ROI.
func isEdgePoint(roi gocv.Mat, x, y int) bool {
	if !isSet(roi, x, y) {
		return false
	}
	for _, off := range neighbourOffsets {
		if !isSet(roi, x+off.X, y+off.Y) {
			return true
		}
	}
	return false
}

// topBorderRuns finds contiguous X-runs of set pixels along the ROI's top
// row (row 0), each becoming the seed for one Curve.
func topBorderRuns(roi gocv.Mat) [][2]int {
	w := roi.Cols()
	var runs [][2]int
	inRun := false
	start := 0
	for x := 0; x < w; x++ {
		set := isSet(roi, x, 0)
		if set && !inRun {
			inRun = true
			start = x
		}
		if !set && inRun {
			inRun = false
			runs = append(runs, [2]int{start, x - 1})
		}
	}
	if inRun {
		runs = append(runs, [2]int{start, w - 1})
	}
	return runs
}

// degreeWindow computes the degree of a point using one point before it and
// up to three after it along the edge.
func degreeWindow(a *arena, e *Edge, idx int) float64 {
	lo := idx - 1
	if lo < 0 {
		lo = 0
	}
	hi := idx + 3
	if hi >= len(e.PointIDs) {
		hi = len(e.PointIDs) - 1
	}
	pts := make([]geometry.PointInt, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		pts = append(pts, a.at(e.PointIDs[i]).Pos)
	}
	return geometry.Degree(pts)
}

// nearestOnOther returns the index into other's point list closest to p by
// Euclidean distance, used to compute degreeDelta against the paired edge.
func nearestOnOther(a *arena, other *Edge, p geometry.PointInt) (int, bool) {
	if len(other.PointIDs) == 0 {
		return 0, false
	}
	best := -1
	bestDist := math.MaxFloat64
	for i, id := range other.PointIDs {
		q := a.at(id).Pos
		d := math.Hypot(float64(p.X-q.X), float64(p.Y-q.Y))
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best, best >= 0
}

// followStep advances one Edge by one point. Returns false if the edge
// should stop. If the degreeDelta halt condition fires outside the learning
// region, it first attempts an intersection crossing before giving up.
func followStep(roi gocv.Mat, a *arena, e *Edge, other *Edge, cfg config.OverlapConfig, learningRegion func(geometry.PointInt) bool, learn func(geometry.PointInt)) bool {
	if len(e.PointIDs) == 0 {
		return false
	}
	last := a.at(e.PointIDs[len(e.PointIDs)-1])
	cameFrom := opposite(last.FromDir)

	rotate := clockwise
	if e.Sense == CounterClockwise {
		rotate = counterCW
	}

	dir := cameFrom
	var nextDir = -1
	for i := 0; i < 8; i++ {
		dir = rotate(dir)
		cand := last.Pos
		off := neighbourOffsets[dir]
		cx, cy := cand.X+off.X, cand.Y+off.Y
		if isSet(roi, cx, cy) {
			nextDir = dir
			break
		}
	}
	if nextDir < 0 {
		return false
	}

	off := neighbourOffsets[nextDir]
	next := geometry.PointInt{X: last.Pos.X + off.X, Y: last.Pos.Y + off.Y}

	if belongsTo(a, other, next) {
		return false // edges met
	}

	if !learningRegion(next) {
		degree := geometry.Degree([]geometry.PointInt{last.Pos, next})
		if otherIdx, ok := nearestOnOther(a, other, next); ok {
			otherDeg := a.at(other.PointIDs[otherIdx]).Degree
			if geometry.DegreeDelta(degree, otherDeg) > cfg.MaxDelta {
				if crossIntersection(roi, a, e, other, cfg) {
					seed := a.at(e.PointIDs[len(e.PointIDs)-1]).Pos
					learn(seed)
					learn(a.at(other.PointIDs[len(other.PointIDs)-1]).Pos)
					return true
				}
				return false
			}
		}
	}

	id := a.add(Point{Pos: next, FromDir: opposite(nextDir)})
	e.PointIDs = append(e.PointIDs, id)
	a.points[id].Degree = degreeWindow(a, e, len(e.PointIDs)-1)

	return true
}

// nearestDirIndex returns the neighbourOffsets index whose direction
// (i*45 degrees) is closest to deg.
func nearestDirIndex(deg float64) int {
	best := 0
	bestDelta := math.MaxFloat64
	for i := 0; i < 8; i++ {
		d := geometry.DegreeDelta(float64(i)*45, deg)
		if d < bestDelta {
			bestDelta = d
			best = i
		}
	}
	return best
}

// stepAlong advances one pixel from p toward degree deg, using whichever of
// the eight compass directions is closest, and requires the destination
// pixel to be set.
func stepAlong(roi gocv.Mat, p geometry.PointInt, deg float64) (geometry.PointInt, bool) {
	off := neighbourOffsets[nearestDirIndex(deg)]
	next := geometry.PointInt{X: p.X + off.X, Y: p.Y + off.Y}
	if !isSet(roi, next.X, next.Y) {
		return geometry.PointInt{}, false
	}
	return next, true
}

// probeToUnset scans from p along degree deg for up to maxSteps pixels and
// returns the first unset pixel found, or false if the scan runs off the
// ROI or exhausts maxSteps without finding one.
func probeToUnset(roi gocv.Mat, p geometry.PointInt, deg float64, maxSteps int) (geometry.PointInt, bool) {
	off := neighbourOffsets[nearestDirIndex(deg)]
	cur := p
	for i := 0; i < maxSteps; i++ {
		cur = geometry.PointInt{X: cur.X + off.X, Y: cur.Y + off.Y}
		if cur.X < 0 || cur.Y < 0 || cur.X >= roi.Cols() || cur.Y >= roi.Rows() {
			return geometry.PointInt{}, false
		}
		if !isSet(roi, cur.X, cur.Y) {
			return cur, true
		}
	}
	return geometry.PointInt{}, false
}

// crossIntersection attempts to walk both Edges across an ink intersection
// e could not follow directly: walk e backward for the point with the
// smallest degreeDelta against other, average the two directions at that
// point, walk forward along the average direction, then probe perpendicular
// on both sides for the first unset pixel to reseed each Edge past the
// crossing.
func crossIntersection(roi gocv.Mat, a *arena, e *Edge, other *Edge, cfg config.OverlapConfig) bool {
	n := len(e.PointIDs)
	backLimit := cfg.MaxStepsBack
	if backLimit > n {
		backLimit = n
	}
	bestIdx, bestOtherIdx := -1, -1
	bestDelta := math.MaxFloat64
	for step := 0; step < backLimit; step++ {
		idx := n - 1 - step
		p := a.at(e.PointIDs[idx])
		otherIdx, ok := nearestOnOther(a, other, p.Pos)
		if !ok {
			continue
		}
		otherDeg := a.at(other.PointIDs[otherIdx]).Degree
		delta := geometry.DegreeDelta(p.Degree, otherDeg)
		if delta < bestDelta {
			bestDelta = delta
			bestIdx = idx
			bestOtherIdx = otherIdx
		}
		if delta < cfg.GoodSmallDelta {
			break
		}
	}
	if bestIdx < 0 {
		return false
	}
	smallestSteps := n - 1 - bestIdx

	basePoint := a.at(e.PointIDs[bestIdx])
	otherPoint := a.at(other.PointIDs[bestOtherIdx])

	mid := geometry.PointInt{
		X: (basePoint.Pos.X + otherPoint.Pos.X) / 2,
		Y: (basePoint.Pos.Y + otherPoint.Pos.Y) / 2,
	}
	avgDeg := geometry.AverageDirection(basePoint.Degree, otherPoint.Degree)

	cur := mid
	for i := 0; i < smallestSteps+cfg.ProbeStartSteps; i++ {
		next, ok := stepAlong(roi, cur, avgDeg)
		if !ok {
			return false
		}
		cur = next
	}

	maxPerp := int(math.Ceil(float64(roi.Cols()) * 1.1))
	for i := 0; i < cfg.MaxForwardProbes; i++ {
		leftPt, leftOK := probeToUnset(roi, cur, avgDeg-90, maxPerp)
		rightPt, rightOK := probeToUnset(roi, cur, avgDeg+90, maxPerp)
		if leftOK && rightOK {
			leftID := a.add(Point{Pos: leftPt, FromDir: opposite(nearestDirIndex(avgDeg - 90)), Degree: avgDeg})
			rightID := a.add(Point{Pos: rightPt, FromDir: opposite(nearestDirIndex(avgDeg + 90)), Degree: avgDeg})
			if e.Sense == CounterClockwise {
				e.PointIDs = append(e.PointIDs, leftID)
				other.PointIDs = append(other.PointIDs, rightID)
			} else {
				e.PointIDs = append(e.PointIDs, rightID)
				other.PointIDs = append(other.PointIDs, leftID)
			}
			return true
		}
		next, ok := stepAlong(roi, cur, avgDeg)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

func belongsTo(a *arena, e *Edge, p geometry.PointInt) bool {
	for _, id := range e.PointIDs {
		if a.at(id).Pos == p {
			return true
		}
	}
	return false
}

// distanceToLast returns the Euclidean distance from p to the last point of
// e, or +Inf if e is empty.
func distanceToLast(a *arena, e *Edge, p geometry.PointInt) float64 {
	if len(e.PointIDs) == 0 {
		return math.Inf(1)
	}
	q := a.at(e.PointIDs[len(e.PointIDs)-1]).Pos
	return math.Hypot(float64(p.X-q.X), float64(p.Y-q.Y))
}

// followCurve alternates advancing Left and Right to keep them balanced:
// an edge whose step increases its distance to the other edge, or that
// cannot step, is paused. A paused edge is not resumed; the other edge keeps
// stepping alone, and the walk ends once both are paused.
func followCurve(roi gocv.Mat, a *arena, c *Curve, cfg config.OverlapConfig) {
	// learned marks points near a successful crossing so the pixels the
	// crossing itself just stepped onto don't immediately re-trigger the
	// degreeDelta halt check.
	const learnedRadius = 3
	var learned []geometry.PointInt
	inLearningRegion := func(p geometry.PointInt) bool {
		for _, lp := range learned {
			if math.Hypot(float64(p.X-lp.X), float64(p.Y-lp.Y)) <= learnedRadius {
				return true
			}
		}
		return false
	}
	learn := func(p geometry.PointInt) {
		learned = append(learned, p)
	}

	leftPaused, rightPaused := false, false
	for i := 0; i < roi.Rows()*roi.Cols(); i++ {
		if leftPaused && rightPaused {
			break
		}
		if !leftPaused {
			prevDist := distanceToLast(a, &c.Right, a.at(c.Left.PointIDs[len(c.Left.PointIDs)-1]).Pos)
			ok := followStep(roi, a, &c.Left, &c.Right, cfg, inLearningRegion, learn)
			if !ok {
				leftPaused = true
			} else {
				newDist := distanceToLast(a, &c.Right, a.at(c.Left.PointIDs[len(c.Left.PointIDs)-1]).Pos)
				if newDist > prevDist {
					leftPaused = true
				}
			}
		}
		if !rightPaused {
			prevDist := distanceToLast(a, &c.Left, a.at(c.Right.PointIDs[len(c.Right.PointIDs)-1]).Pos)
			ok := followStep(roi, a, &c.Right, &c.Left, cfg, inLearningRegion, learn)
			if !ok {
				rightPaused = true
			} else {
				newDist := distanceToLast(a, &c.Left, a.at(c.Right.PointIDs[len(c.Right.PointIDs)-1]).Pos)
				if newDist > prevDist {
					rightPaused = true
				}
			}
		}
		if leftPaused && rightPaused {
			break
		}
	}
}

// clearCurve unions the accumulated Left (forward) + Right (reverse) points
// into a closed polygon and erases its interior from roi. Overlap
// correction only ever clears pixels, never sets them.
func clearCurve(roi *gocv.Mat, a *arena, c *Curve) {
	if len(c.Left.PointIDs) < 2 || len(c.Right.PointIDs) < 2 {
		return
	}
	poly := make([]image.Point, 0, len(c.Left.PointIDs)+len(c.Right.PointIDs))
	for _, id := range c.Left.PointIDs {
		p := a.at(id).Pos
		poly = append(poly, image.Pt(p.X, p.Y))
	}
	for i := len(c.Right.PointIDs) - 1; i >= 0; i-- {
		p := a.at(c.Right.PointIDs[i]).Pos
		poly = append(poly, image.Pt(p.X, p.Y))
	}

	mask := gocv.NewMatWithSize(roi.Rows(), roi.Cols(), gocv.MatTypeCV8U)
	defer mask.Close()
	pv := gocv.NewPointVectorFromPoints(poly)
	defer pv.Close()
	pvs := gocv.NewPointsVector()
	defer pvs.Close()
	pvs.Append(pv)
	gocv.FillPoly(&mask, pvs, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	inv := gocv.NewMat()
	defer inv.Close()
	gocv.BitwiseNot(mask, &inv)
	gocv.BitwiseAndWithMask(*roi, *roi, roi, inv)
}

// Correct finds every ROI contour whose top touches the ROI's top border,
// follows and erases its curve, then applies padding clear,
// vertical-thickness clear, and HV thinning.
func Correct(roi gocv.Mat, padding int, thresh VerticalThickness, cfg config.OverlapConfig) gocv.Mat {
	out := gocv.NewMat()
	roi.CopyTo(&out)

	runs := topBorderRuns(out)
	for _, run := range runs {
		a := &arena{}
		leftSeedID := a.add(Point{Pos: geometry.PointInt{X: run[0], Y: 0}, FromDir: 2})
		rightSeedID := a.add(Point{Pos: geometry.PointInt{X: run[1], Y: 0}, FromDir: 2})
		c := &Curve{
			Left:  Edge{Sense: CounterClockwise, PointIDs: []int{leftSeedID}},
			Right: Edge{Sense: Clockwise, PointIDs: []int{rightSeedID}},
		}
		followCurve(out, a, c, cfg)
		clearCurve(&out, a, c)
	}

	clearPadding(&out, padding)
	clearVerticalThinStrokes(&out, thresh.MinVertical)
	hvThin(&out, thresh.MinHorizontal, thresh.MinVertical, cfg.MaxThinningIter)

	return out
}

// VerticalThickness bundles the vertical/horizontal stroke thresholds the
// vertical-thin-stroke clear and thinning passes need.
type VerticalThickness struct {
	MinHorizontal int
	MinVertical   int
}

func clearPadding(roi *gocv.Mat, pad int) {
	if pad <= 0 {
		return
	}
	w, h := roi.Cols(), roi.Rows()
	zero := uint8(0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < pad || x >= w-pad || y < pad || y >= h-pad {
				roi.SetUCharAt(y, x, zero)
			}
		}
	}
}

// clearVerticalThinStrokes erases columns whose vertical run of set pixels
// is <= threshold, per step 3.
func clearVerticalThinStrokes(roi *gocv.Mat, threshold int) {
	w, h := roi.Cols(), roi.Rows()
	for x := 0; x < w; x++ {
		runStart := -1
		flush := func(end int) {
			if runStart < 0 {
				return
			}
			if end-runStart <= threshold {
				for y := runStart; y < end; y++ {
					roi.SetUCharAt(y, x, 0)
				}
			}
			runStart = -1
		}
		for y := 0; y < h; y++ {
			set := roi.GetUCharAt(y, x) != 0
			if set && runStart < 0 {
				runStart = y
			} else if !set && runStart >= 0 {
				flush(y)
			}
		}
		flush(h)
	}
}

// hvThin iterates erasing pixels whose horizontal and vertical runs are
// both below threshold, until no change or the iteration cap is hit.
func hvThin(roi *gocv.Mat, minH, minV, maxIter int) {
	w, h := roi.Cols(), roi.Rows()
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		toClear := make([][2]int, 0)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if roi.GetUCharAt(y, x) == 0 {
					continue
				}
				hCount := runLength(roi, x, y, 1, 0) + runLength(roi, x, y, -1, 0) - 1
				vCount := runLength(roi, x, y, 0, 1) + runLength(roi, x, y, 0, -1) - 1
				if hCount < minH && vCount < minV {
					toClear = append(toClear, [2]int{x, y})
				}
			}
		}
		if len(toClear) == 0 {
			break
		}
		for _, p := range toClear {
			roi.SetUCharAt(p[1], p[0], 0)
			changed = true
		}
		if !changed {
			break
		}
	}
}

func runLength(roi *gocv.Mat, x, y, dx, dy int) int {
	count := 0
	for {
		if x < 0 || y < 0 || x >= roi.Cols() || y >= roi.Rows() {
			break
		}
		if roi.GetUCharAt(y, x) == 0 {
			break
		}
		count++
		x += dx
		y += dy
	}
	return count
}
