// Package reference loads the reference glyph assets: a single binary image
// containing every glyph in index order plus a JSON descriptor list, and
// slices it into per-glyph contour sets the anchor finder and character
// translators match against.
package reference

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"micrscan/internal/micrerr"
	"micrscan/pkg/geometry"
)

// Glyph is one reference character, possibly composed of several contours
// (control symbols T/U/A/D are printed with multiple strokes).
type Glyph struct {
	Label    string
	Contours []gocv.Mat // one cropped, binarized tile per contour
}

// Library holds every loaded glyph plus a fast lookup by label.
type Library struct {
	Glyphs []Glyph
	byName map[string]*Glyph
}

// Lookup returns the glyph for a label, if loaded.
func (l *Library) Lookup(label string) (*Glyph, bool) {
	g, ok := l.byName[label]
	return g, ok
}

// Zero returns the reference "0" glyph, the anchor finder's mandatory
// template. Its absence is a Configuration error.
func (l *Library) Zero() (*Glyph, error) {
	g, ok := l.byName["0"]
	if !ok {
		return nil, micrerr.New(micrerr.Configuration, `no "0" reference template loaded`)
	}
	return g, nil
}

// descriptor is one entry of the JSON descriptor list, e.g. "5" or "T:3".
func parseDescriptor(raw string) (label string, contourCount int, err error) {
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		label = raw[:idx]
		n, perr := strconv.Atoi(raw[idx+1:])
		if perr != nil {
			return "", 0, fmt.Errorf("bad contour count in descriptor %q: %w", raw, perr)
		}
		return label, n, nil
	}
	return raw, 1, nil
}

// Load reads the reference image and descriptor list, binarizes the image,
// extracts external contours left-to-right, and slices them across
// descriptors according to each descriptor's ":N" contour count.
func Load(imagePath, descriptorPath string) (*Library, error) {
	descBytes, err := os.ReadFile(descriptorPath)
	if err != nil {
		return nil, micrerr.Wrap(micrerr.Configuration, "reading reference descriptor list", err)
	}
	var raw []string
	if err := json.Unmarshal(descBytes, &raw); err != nil {
		return nil, micrerr.Wrap(micrerr.Configuration, "parsing reference descriptor list", err)
	}

	img := gocv.IMRead(imagePath, gocv.IMReadGrayScale)
	if img.Empty() {
		return nil, micrerr.New(micrerr.Configuration, "reference glyph image missing or unreadable: "+imagePath)
	}
	defer img.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(img, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	tiles := make([]referenceTile, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		crop := binary.Region(rect)
		out := gocv.NewMat()
		crop.CopyTo(&out)
		crop.Close()
		tiles = append(tiles, referenceTile{x: rect.Min.X, mat: out})
	}
	sortTilesByX(tiles)

	lib := &Library{byName: make(map[string]*Glyph)}
	cursor := 0
	for _, d := range raw {
		label, count, derr := parseDescriptor(d)
		if derr != nil {
			return nil, micrerr.Wrap(micrerr.Configuration, "invalid reference descriptor", derr)
		}
		if cursor+count > len(tiles) {
			return nil, micrerr.New(micrerr.Configuration, fmt.Sprintf(
				"reference descriptor list wants %d contours for %q but only %d remain", count, label, len(tiles)-cursor))
		}
		g := Glyph{Label: label}
		for k := 0; k < count; k++ {
			g.Contours = append(g.Contours, tiles[cursor+k].mat)
		}
		cursor += count
		lib.Glyphs = append(lib.Glyphs, g)
		lib.byName[label] = &lib.Glyphs[len(lib.Glyphs)-1]
	}

	return lib, nil
}

type referenceTile struct {
	x   int
	mat gocv.Mat
}

func sortTilesByX(tiles []referenceTile) {
	for i := 1; i < len(tiles); i++ {
		for j := i; j > 0 && tiles[j].x < tiles[j-1].x; j-- {
			tiles[j], tiles[j-1] = tiles[j-1], tiles[j]
		}
	}
}

// Bounds returns the bounding rectangle of a glyph's tiles unioned, useful
// for diagnostics.
func (g Glyph) Bounds() geometry.RectInt {
	var out geometry.RectInt
	for i, m := range g.Contours {
		r := geometry.RectInt{X: 0, Y: 0, Width: m.Cols(), Height: m.Rows()}
		if i == 0 {
			out = r
			continue
		}
		out = geometry.RectUnionInt(out, r)
	}
	return out
}
