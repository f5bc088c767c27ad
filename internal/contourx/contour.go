// Package contourx extracts and filters connected-component contours from
// a binarized raster, the third pipeline stage.
package contourx

import (
	"image"
	"sort"

	"gocv.io/x/gocv"

	"micrscan/internal/scope"
	"micrscan/pkg/geometry"
)

// SizeClass buckets a contour by its measured dimensions relative to the
// per-line thresholds the line builder derives from the anchor.
type SizeClass int

const (
	Unknown SizeClass = iota
	Small
	Medium
	Large
)

func (c SizeClass) String() string {
	switch c {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return "unknown"
	}
}

// Border names an edge a contour's rectangle can be forbidden from
// touching.
type Border int

const (
	Top Border = iota
	Bottom
	Left
	Right
)

// Contour is one connected component surviving extraction.
type Contour struct {
	Index          int
	Points         []geometry.PointInt
	Bounds         geometry.RectInt
	RectArea       int
	FilledArea     float64
	MidX           float64
	Size           SizeClass
	InLine         bool
	OverlapAdjusted bool
}

// Filter bounds every configurable extraction criterion: a contour failing
// any specified bound, or touching a forbidden border, is discarded.
type Filter struct {
	MinWidth, MaxWidth   int // 0 means unbounded
	MinHeight, MaxHeight int
	MinArea, MaxArea     float64
	ForbiddenBorders     map[Border]bool
}

// Extract runs external, polygon-approximated contour extraction on a
// binarized raster and returns the survivors of f, sorted strictly
// ascending by rectangle.X with dense indices assigned.
func Extract(raster scope.Raster, f Filter) []Contour {
	contours := gocv.FindContours(raster.Mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	w, h := raster.Cols(), raster.Rows()

	var out []Contour
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		rect := gocv.BoundingRect(pv)
		filled := gocv.ContourArea(pv)
		if filled <= 0 {
			filled = 1
		}

		if !passesFilter(rect, filled, w, h, f) {
			continue
		}

		pts := make([]geometry.PointInt, pv.Size())
		for j := 0; j < pv.Size(); j++ {
			p := pv.At(j)
			pts[j] = geometry.PointInt{X: p.X, Y: p.Y}
		}

		out = append(out, Contour{
			Points:     pts,
			Bounds:     geometry.RectInt{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()},
			RectArea:   rect.Dx() * rect.Dy(),
			FilledArea: filled,
			MidX:       float64(rect.Min.X) + float64(rect.Dx())/2,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Bounds.X < out[j].Bounds.X })
	for i := range out {
		out[i].Index = i
	}
	return out
}

func passesFilter(rect image.Rectangle, filled float64, imgW, imgH int, f Filter) bool {
	w, h := rect.Dx(), rect.Dy()
	if f.MinWidth > 0 && w < f.MinWidth {
		return false
	}
	if f.MaxWidth > 0 && w > f.MaxWidth {
		return false
	}
	if f.MinHeight > 0 && h < f.MinHeight {
		return false
	}
	if f.MaxHeight > 0 && h > f.MaxHeight {
		return false
	}
	if f.MinArea > 0 && filled < f.MinArea {
		return false
	}
	if f.MaxArea > 0 && filled > f.MaxArea {
		return false
	}
	if f.ForbiddenBorders[Top] && rect.Min.Y <= 0 {
		return false
	}
	if f.ForbiddenBorders[Bottom] && rect.Max.Y >= imgH {
		return false
	}
	if f.ForbiddenBorders[Left] && rect.Min.X <= 0 {
		return false
	}
	if f.ForbiddenBorders[Right] && rect.Max.X >= imgW {
		return false
	}
	return true
}

// Classify assigns a SizeClass against the per-line thresholds: Small below
// min_area/min_height, Large above max_area, Medium otherwise.
func Classify(c Contour, minArea, minHeight float64, maxArea float64) SizeClass {
	if c.FilledArea < minArea || float64(c.Bounds.Height) < minHeight {
		return Small
	}
	if c.FilledArea > maxArea {
		return Large
	}
	return Medium
}
