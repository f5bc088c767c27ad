// Package segment implements the seventh pipeline stage: grouping a Line's
// contours into individual character rectangles and assigning each one a
// confidence type, dropping whatever can't be typed.
package segment

import (
	"sort"

	"micrscan/internal/contourx"
	"micrscan/internal/scope"
	"micrscan/pkg/geometry"
)

// Type ranks a Character by how it was recognized: Type1 is the strongest
// evidence of line membership and Type4 the weakest; Type4 characters are
// dropped from the final output.
type Type int

const (
	TypeUnknown Type = iota
	Type1
	Type2
	Type3
	Type4
)

func (t Type) String() string {
	switch t {
	case Type1:
		return "type1"
	case Type2:
		return "type2"
	case Type3:
		return "type3"
	case Type4:
		return "type4"
	default:
		return "untyped"
	}
}

// Character is one segmented glyph position, possibly built from several
// contours grouped together.
type Character struct {
	Index    int
	Contours []contourx.Contour
	Bounds   geometry.RectInt
	Type     Type
}

// Stats holds the Medium-contour-only measurements the segmenter derives
// spacing decisions from.
type Stats struct {
	MaxWidth        int
	AvgWidth        float64
	MinDistBetween  int
	MaxDistBetween  int
	AvgDistBetween  float64
}

// DeriveStats computes Stats from a Line's Medium contours only.
func DeriveStats(contours []contourx.Contour) Stats {
	sorted := make([]contourx.Contour, 0, len(contours))
	for _, c := range contours {
		if c.Size == contourx.Medium {
			sorted = append(sorted, c)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Bounds.X < sorted[j].Bounds.X })

	if len(sorted) == 0 {
		return Stats{}
	}

	var st Stats
	var widthSum float64
	for _, c := range sorted {
		widthSum += float64(c.Bounds.Width)
		if c.Bounds.Width > st.MaxWidth {
			st.MaxWidth = c.Bounds.Width
		}
	}
	st.AvgWidth = widthSum / float64(len(sorted))

	if len(sorted) < 2 {
		st.MinDistBetween = st.MaxWidth
		st.MaxDistBetween = st.MaxWidth
		st.AvgDistBetween = float64(st.MaxWidth)
		return st
	}

	st.MinDistBetween = 1 << 30
	var distSum float64
	count := 0
	for i := 0; i+1 < len(sorted); i++ {
		d := geometry.XDistance(sorted[i].Bounds, sorted[i+1].Bounds)
		if d < st.MinDistBetween {
			st.MinDistBetween = d
		}
		if d > st.MaxDistBetween {
			st.MaxDistBetween = d
		}
		distSum += float64(d)
		count++
	}
	if count > 0 {
		st.AvgDistBetween = distSum / float64(count)
	}
	return st
}

// Iterate scans the Line's contours left to right, emitting one Character
// per Medium contour immediately and grouping buffered non-Medium
// contours by probing rectangles adjacent to their neighbours.
func Iterate(lineContours []contourx.Contour, stats Stats, minArea float64) []Character {
	sorted := make([]contourx.Contour, len(lineContours))
	copy(sorted, lineContours)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Bounds.X < sorted[j].Bounds.X })

	var chars []Character
	var buffer []contourx.Contour
	var prev *Character

	flushBuffer := func(next *Character) {
		if len(buffer) == 0 {
			return
		}
		used := make([]bool, len(buffer))

		if prev != nil {
			for {
				rect := geometry.RectInt{
					X:      prev.Bounds.X + prev.Bounds.Width + stats.MinDistBetween,
					Y:      prev.Bounds.Y,
					Width:  stats.MaxWidth,
					Height: prev.Bounds.Height,
				}
				group, groupUsed := collectGroup(buffer, used, rect)
				if len(group) == 0 {
					break
				}
				bounds := boundsOf(group)
				if float64(bounds.Width*bounds.Height) <= minArea {
					break
				}
				markUsed(used, groupUsed)
				c := Character{Contours: group, Bounds: bounds}
				chars = append(chars, c)
				prev = &chars[len(chars)-1]
			}
		}

		if next != nil {
			window := stats.MaxWidth + (stats.MaxDistBetween - stats.MinDistBetween)
			for {
				rect := geometry.RectInt{
					X:      next.Bounds.X - window,
					Y:      next.Bounds.Y,
					Width:  window,
					Height: next.Bounds.Height,
				}
				group, groupUsed := collectGroup(buffer, used, rect)
				if len(group) == 0 {
					break
				}
				bounds := boundsOf(group)
				if float64(bounds.Width*bounds.Height) <= minArea {
					break
				}
				markUsed(used, groupUsed)
				chars = append(chars, Character{Contours: group, Bounds: bounds})
			}
		}

		buffer = nil
	}

	for i, c := range sorted {
		if c.Size == contourx.Medium {
			medChar := Character{Contours: []contourx.Contour{c}, Bounds: c.Bounds}
			flushBuffer(&medChar)
			chars = append(chars, medChar)
			prev = &chars[len(chars)-1]
			continue
		}
		buffer = append(buffer, sorted[i])
	}
	flushBuffer(nil)

	sort.Slice(chars, func(i, j int) bool { return chars[i].Bounds.X < chars[j].Bounds.X })
	for i := range chars {
		chars[i].Index = i
	}
	return chars
}

func collectGroup(buffer []contourx.Contour, used []bool, rect geometry.RectInt) ([]contourx.Contour, []int) {
	var group []contourx.Contour
	var idxs []int
	for i, c := range buffer {
		if used[i] {
			continue
		}
		if !geometry.RectIntersects(c.Bounds, rect) {
			continue
		}
		cc := c
		if c.Size == contourx.Large {
			if inter, ok := geometry.RectIntersection(c.Bounds, rect); ok {
				cc.Bounds = inter
			}
		}
		group = append(group, cc)
		idxs = append(idxs, i)
	}
	return group, idxs
}

func markUsed(used []bool, idxs []int) {
	for _, i := range idxs {
		used[i] = true
	}
}

func boundsOf(cs []contourx.Contour) geometry.RectInt {
	out := cs[0].Bounds
	for _, c := range cs[1:] {
		out = geometry.RectUnionInt(out, c.Bounds)
	}
	return out
}

// TypeParams bundles the type-assignment stage's tunables.
type TypeParams struct {
	MaxCharWidth  int
	MaxCharHeight int
	MaxCharArea   int // upper bound on a typed character's bounding-box area
	Roots         []geometry.RectInt // root rectangles for Type1; starts with the anchor's
}

// AssignTypes runs the four type-assignment passes in order, mutating
// each Character's Type in place. A character whose bounding box grew
// past MaxCharArea during rectangleAdjust (typically several merged
// contours) is demoted back to unknown before the final default pass.
func AssignTypes(chars []Character, raster scope.Raster, params TypeParams) {
	assignType1(chars, params.Roots)
	assignType2(chars, params, true)
	assignType2(chars, params, false)
	rectangleAdjust(chars, raster, true)
	rectangleAdjust(chars, raster, false)
	assignType3(chars, params, true)
	assignType3(chars, params, false)
	for i := range chars {
		if params.MaxCharArea > 0 && chars[i].Bounds.Width*chars[i].Bounds.Height > params.MaxCharArea {
			chars[i].Type = TypeUnknown
		}
	}
	for i := range chars {
		if chars[i].Type == TypeUnknown {
			chars[i].Type = Type4
		}
	}
}

func assignType1(chars []Character, roots []geometry.RectInt) {
	for i := range chars {
		for _, r := range roots {
			if geometry.RectContains(r, chars[i].Bounds) {
				chars[i].Type = Type1
				break
			}
		}
	}
}

// estimateRect builds the containment-padded rectangle placed immediately
// adjacent to a typed neighbour: max_char_width wide, spanning the
// neighbour's own Y-range padded by a quarter of max_char_height on each
// side (top clamped to 0). Its height follows the neighbour's height, not
// max_char_height.
func estimateRect(neighbour geometry.RectInt, params TypeParams, leftToRight bool) geometry.RectInt {
	pad := 0.25 * float64(params.MaxCharHeight)
	yRange := neighbour.YRange().Pad(pad).ClampLower(0)
	x := neighbour.X + neighbour.Width
	if !leftToRight {
		x = neighbour.X - params.MaxCharWidth
	}
	return geometry.RectInt{
		X:      x,
		Y:      int(yRange.Min),
		Width:  params.MaxCharWidth,
		Height: int(yRange.Span()),
	}
}

func assignType2(chars []Character, params TypeParams, leftToRight bool) {
	order := make([]int, len(chars))
	for i := range order {
		order[i] = i
	}
	if !leftToRight {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	for _, i := range order {
		if chars[i].Type != TypeUnknown {
			continue
		}
		nIdx := i - 1
		if !leftToRight {
			nIdx = i + 1
		}
		if nIdx < 0 || nIdx >= len(chars) {
			continue
		}
		neighbour := chars[nIdx]
		if !isEligibleNeighbour(neighbour) {
			continue
		}
		est := estimateRect(neighbour.Bounds, params, leftToRight)
		if chars[i].Bounds.YRange().WithinRange(est.YRange()) {
			chars[i].Type = Type2
		}
	}
}

func isEligibleNeighbour(c Character) bool {
	return c.Type == Type1 || c.Type == Type2 || (len(c.Contours) == 1 && c.Contours[0].Size == contourx.Medium)
}

// rectangleAdjust snaps an untyped character next to a typed neighbour's
// Y/height to the neighbour's, then may shrink X/width to the pixel
// extents found in the new Y-band.
func rectangleAdjust(chars []Character, raster scope.Raster, leftToRight bool) {
	order := make([]int, len(chars))
	for i := range order {
		order[i] = i
	}
	if !leftToRight {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	for _, i := range order {
		if chars[i].Type != TypeUnknown {
			continue
		}
		nIdx := i - 1
		if !leftToRight {
			nIdx = i + 1
		}
		if nIdx < 0 || nIdx >= len(chars) || chars[nIdx].Type == TypeUnknown {
			continue
		}
		neighbour := chars[nIdx]
		b := chars[i].Bounds
		b.Y = neighbour.Bounds.Y
		b.Height = neighbour.Bounds.Height
		if minX, maxX, ok := pixelExtentsInBand(raster, b); ok {
			b.X = minX
			b.Width = maxX - minX + 1
		}
		chars[i].Bounds = b
	}
}

func pixelExtentsInBand(raster scope.Raster, band geometry.RectInt) (minX, maxX int, ok bool) {
	x0, x1 := band.X, band.X+band.Width
	y0, y1 := band.Y, band.Y+band.Height
	minX, maxX = x1, x0
	for y := y0; y < y1; y++ {
		if y < 0 || y >= raster.Rows() {
			continue
		}
		for x := x0; x < x1; x++ {
			if x < 0 || x >= raster.Cols() {
				continue
			}
			if raster.Mat.GetUCharAt(y, x) != 0 {
				ok = true
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
			}
		}
	}
	return minX, maxX, ok
}

// nearEstimateRect is the unpadded, same-size-as-neighbour rectangle placed
// immediately adjacent to a typed neighbour.
func nearEstimateRect(neighbour geometry.RectInt, leftToRight bool) geometry.RectInt {
	x := neighbour.X + neighbour.Width
	if !leftToRight {
		x = neighbour.X - neighbour.Width
	}
	return geometry.RectInt{X: x, Y: neighbour.Y, Width: neighbour.Width, Height: neighbour.Height}
}

func assignType3(chars []Character, params TypeParams, leftToRight bool) {
	order := make([]int, len(chars))
	for i := range order {
		order[i] = i
	}
	if !leftToRight {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	for _, i := range order {
		if chars[i].Type != TypeUnknown {
			continue
		}
		nIdx := i - 1
		if !leftToRight {
			nIdx = i + 1
		}
		if nIdx < 0 || nIdx >= len(chars) || chars[nIdx].Type == TypeUnknown {
			continue
		}
		neighbour := chars[nIdx]
		near := nearEstimateRect(neighbour.Bounds, leftToRight)
		if !geometry.RectIntersects(near, chars[i].Bounds) {
			continue
		}
		mid := neighbour.Bounds.Y + neighbour.Bounds.Height/2
		if chars[i].Bounds.Y+chars[i].Bounds.Height <= mid {
			continue
		}
		b := chars[i].Bounds
		b.Y = neighbour.Bounds.Y
		b.Height = neighbour.Bounds.Height
		chars[i].Bounds = b
		chars[i].Type = Type3
	}
}

// Emit drops Type4 characters and returns the rest sorted by X with dense
// indices reassigned.
func Emit(chars []Character) []Character {
	var out []Character
	for _, c := range chars {
		if c.Type != Type4 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bounds.X < out[j].Bounds.X })
	for i := range out {
		out[i].Index = i
	}
	return out
}

// LineBoundingRect computes X extent from type-1/2/3 rectangles, Y extent
// from type-1/2 rectangles only, padded left/right by 5 and clamped to
// the image, falling back to the union of onLineContours if no character
// survived typing.
func LineBoundingRect(chars []Character, onLineContours []contourx.Contour, imgW, imgH int) geometry.RectInt {
	var minX, minY, maxX, maxY int
	found := false
	for _, c := range chars {
		if c.Type != Type1 && c.Type != Type2 && c.Type != Type3 {
			continue
		}
		if !found {
			minX, maxX = c.Bounds.X, c.Bounds.X+c.Bounds.Width
			found = true
		}
		if c.Bounds.X < minX {
			minX = c.Bounds.X
		}
		if c.Bounds.X+c.Bounds.Width > maxX {
			maxX = c.Bounds.X + c.Bounds.Width
		}
	}

	yFound := false
	for _, c := range chars {
		if c.Type != Type1 && c.Type != Type2 {
			continue
		}
		if !yFound {
			minY, maxY = c.Bounds.Y, c.Bounds.Y+c.Bounds.Height
			yFound = true
		}
		if c.Bounds.Y < minY {
			minY = c.Bounds.Y
		}
		if c.Bounds.Y+c.Bounds.Height > maxY {
			maxY = c.Bounds.Y + c.Bounds.Height
		}
	}

	if !found || !yFound {
		if len(onLineContours) == 0 {
			return geometry.RectInt{}
		}
		out := onLineContours[0].Bounds
		for _, c := range onLineContours[1:] {
			out = geometry.RectUnionInt(out, c.Bounds)
		}
		return out.ClampToSize(imgW, imgH)
	}

	rect := geometry.RectInt{X: minX - 5, Y: minY, Width: (maxX + 5) - (minX - 5), Height: maxY - minY}
	return rect.ClampToSize(imgW, imgH)
}
