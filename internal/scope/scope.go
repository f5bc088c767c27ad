// Package scope provides the request-scoped allocation arena every MICR
// pipeline stage allocates rasters and OpenCV matrices through. It replaces
// the ad hoc per-function `defer mat.Close()` idiom with a single owner that
// releases everything a request allocated, in reverse order, when the
// request ends.
package scope

import (
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Polarity records which tone of a raster is considered foreground ink.
type Polarity int

const (
	// PolarityDarkFG means dark pixels are foreground (typical scanned
	// document: dark ink on a light background).
	PolarityDarkFG Polarity = iota
	// PolarityBrightFG means bright pixels are foreground. Every raster
	// the geometric stages operate on is normalized to this polarity by
	// the binarizer, so downstream code can assume foreground = bright.
	PolarityBrightFG
)

func (p Polarity) String() string {
	if p == PolarityBrightFG {
		return "bright-fg"
	}
	return "dark-fg"
}

// Raster wraps a gocv.Mat with the polarity flag the pipeline threads
// through every stage.
type Raster struct {
	Mat      gocv.Mat
	Polarity Polarity
}

// Rows returns the raster height.
func (r Raster) Rows() int { return r.Mat.Rows() }

// Cols returns the raster width.
func (r Raster) Cols() int { return r.Mat.Cols() }

// Scope owns every Mat and Raster allocated while servicing one request.
// Resources are released in reverse allocation order on Close; a release
// failure is logged and the rest still run, matching the concurrency
// model's resource-release guarantee.
type Scope struct {
	log       zerolog.Logger
	closers   []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// New creates an empty Scope bound to a request logger.
func New(log zerolog.Logger) *Scope {
	return &Scope{log: log}
}

// Track registers a Mat for release when the scope closes and returns it
// unchanged, so allocation sites can wrap gocv constructors inline:
//
//	gray := s.Track("gray", gocv.NewMat())
func (s *Scope) Track(name string, m gocv.Mat) gocv.Mat {
	s.closers = append(s.closers, namedCloser{name: name, fn: m.Close})
	return m
}

// TrackRaster registers a Raster for release and returns it unchanged.
func (s *Scope) TrackRaster(name string, r Raster) Raster {
	s.closers = append(s.closers, namedCloser{name: name, fn: r.Mat.Close})
	return r
}

// TrackFunc registers an arbitrary release function, for non-Mat resources
// (PointVectors, contour vectors, classifier handles) that also need
// deterministic cleanup within the request.
func (s *Scope) TrackFunc(name string, fn func() error) {
	s.closers = append(s.closers, namedCloser{name: name, fn: fn})
}

// Close releases every tracked resource in reverse allocation order. It
// never stops early: a failing release is logged and the rest still run.
func (s *Scope) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.fn(); err != nil {
			s.log.Debug().Str("resource", c.name).Err(err).Msg("scope release failed")
		}
	}
	s.closers = nil
}
