package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MinMax is a closed-interval numeric range: [Min, Max].
type MinMax struct {
	Min float64
	Max float64
}

// NewMinMax builds a MinMax, swapping the bounds if given out of order.
func NewMinMax(a, b float64) MinMax {
	if a > b {
		a, b = b, a
	}
	return MinMax{Min: a, Max: b}
}

// Span returns Max - Min.
func (m MinMax) Span() float64 {
	return m.Max - m.Min
}

// Pad grows the range on both sides by amt.
func (m MinMax) Pad(amt float64) MinMax {
	return MinMax{Min: m.Min - amt, Max: m.Max + amt}
}

// ClampLower clips Min to be no less than floor.
func (m MinMax) ClampLower(floor float64) MinMax {
	if m.Min < floor {
		m.Min = floor
	}
	return m
}

// Contains reports whether v falls within the closed range.
func (m MinMax) Contains(v float64) bool {
	return v >= m.Min && v <= m.Max
}

// Intersects reports whether the two ranges overlap at all.
func (m MinMax) Intersects(o MinMax) bool {
	return m.Min <= o.Max && o.Min <= m.Max
}

// WithinRange reports whether m lies entirely inside o.
func (m MinMax) WithinRange(o MinMax) bool {
	return m.Min >= o.Min && m.Max <= o.Max
}

// FractionIntersects returns the fraction of a that overlaps with b, in [0,1].
// FractionIntersects({0,100},{50,150}) == 0.5.
func FractionIntersects(a, b MinMax) float64 {
	span := a.Span()
	if span <= 0 {
		return 0
	}
	lo := math.Max(a.Min, b.Min)
	hi := math.Min(a.Max, b.Max)
	overlap := hi - lo
	if overlap <= 0 {
		return 0
	}
	return overlap / span
}

// XDistance returns the horizontal gap between two rectangles: 0 if they
// overlap in X, otherwise the distance between the nearer edges.
// XDistance(rect(26,33,15,8), rect(105,28,9,10)) == 64.
func XDistance(a, b RectInt) int {
	aLeft, aRight := a.X, a.X+a.Width
	bLeft, bRight := b.X, b.X+b.Width
	if aRight <= bLeft {
		return bLeft - aRight
	}
	if bRight <= aLeft {
		return aLeft - bRight
	}
	return 0
}

// YRange returns the closed Y interval spanned by a rectangle.
func (r RectInt) YRange() MinMax {
	return MinMax{Min: float64(r.Y), Max: float64(r.Y + r.Height)}
}

// XRange returns the closed X interval spanned by a rectangle.
func (r RectInt) XRange() MinMax {
	return MinMax{Min: float64(r.X), Max: float64(r.X + r.Width)}
}

// RectContains reports whether outer fully contains inner. Reflexive: a
// rectangle always contains itself.
func RectContains(outer, inner RectInt) bool {
	return inner.X >= outer.X && inner.Y >= outer.Y &&
		inner.X+inner.Width <= outer.X+outer.Width &&
		inner.Y+inner.Height <= outer.Y+outer.Height
}

// RectIntersects reports whether two half-open rectangles overlap.
// Symmetric: RectIntersects(a, b) == RectIntersects(b, a).
func RectIntersects(a, b RectInt) bool {
	return a.X < b.X+b.Width && b.X < a.X+a.Width &&
		a.Y < b.Y+b.Height && b.Y < a.Y+a.Height
}

// RectIntersection returns the overlapping rectangle of a and b and whether
// one exists.
func RectIntersection(a, b RectInt) (RectInt, bool) {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.Width, b.X+b.Width)
	y2 := min(a.Y+a.Height, b.Y+b.Height)
	if x2 <= x1 || y2 <= y1 {
		return RectInt{}, false
	}
	return RectInt{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, true
}

// RectUnionInt returns the smallest rectangle containing both a and b.
func RectUnionInt(a, b RectInt) RectInt {
	x1 := min(a.X, b.X)
	y1 := min(a.Y, b.Y)
	x2 := max(a.X+a.Width, b.X+b.Width)
	y2 := max(a.Y+a.Height, b.Y+b.Height)
	return RectInt{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// ClampToSize clamps a rectangle so that it lies within a width x height
// raster, and its dimensions are at least 1.
func (r RectInt) ClampToSize(width, height int) RectInt {
	x1 := max(0, r.X)
	y1 := max(0, r.Y)
	x2 := min(width, r.X+r.Width)
	y2 := min(height, r.Y+r.Height)
	if x2 <= x1 {
		x2 = x1 + 1
	}
	if y2 <= y1 {
		y2 = y1 + 1
	}
	return RectInt{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Degree computes the least-squares direction, in degrees [0,360), of a
// short chain of points; 0 = right (+X), 90 = up (-Y), matching image
// coordinates where Y grows downward.
func Degree(points []PointInt) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += float64(p.X)
		sumY += float64(p.Y)
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var sxx, sxy, syy float64
	for _, p := range points {
		dx := float64(p.X) - meanX
		dy := float64(p.Y) - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	// Principal axis of the point scatter: eigenvector of the covariance
	// matrix for the larger eigenvalue.
	axisX, axisY := 1.0, 0.0
	cov := mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy})
	var eig mat.EigenSym
	if eig.Factorize(cov, true) {
		values := eig.Values(nil)
		idx := 0
		if values[1] > values[0] {
			idx = 1
		}
		var vectors mat.Dense
		eig.VectorsTo(&vectors)
		axisX, axisY = vectors.At(0, idx), vectors.At(1, idx)
	}

	// Resolve the 180-degree ambiguity in the axis using overall travel
	// direction from first to last point.
	first, last := points[0], points[n-1]
	dirX := float64(last.X - first.X)
	dirY := float64(last.Y - first.Y)
	if axisX*dirX+axisY*dirY < 0 {
		axisX, axisY = -axisX, -axisY
	}

	// Image Y grows downward; degrees are measured with 90 = up, so flip Y.
	deg := math.Atan2(-axisY, axisX) * 180 / math.Pi
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// DegreeDelta returns the symmetric angular distance between two degree
// values, wrapped into [0,180].
func DegreeDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// AverageDirection averages two degree values, handling wraparound: if the
// raw difference exceeds 180 the mean is rotated by 180 to land between the
// two short-way directions.
func AverageDirection(a, b float64) float64 {
	mean := (a + b) / 2
	if math.Abs(a-b) > 180 {
		mean = math.Mod(mean+180, 360)
	}
	return mean
}
