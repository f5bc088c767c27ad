package micrscan

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"micrscan/internal/anchor"
	"micrscan/internal/binarize"
	"micrscan/internal/config"
	"micrscan/internal/contourx"
	"micrscan/internal/line"
	"micrscan/internal/micrerr"
	"micrscan/internal/micrgrammar"
	"micrscan/internal/overlap"
	"micrscan/internal/preprocess"
	"micrscan/internal/reference"
	"micrscan/internal/scope"
	"micrscan/internal/segment"
	"micrscan/internal/translator"
	"micrscan/pkg/geometry"
)

// DebugImage is one stage's exported geometry, emitted instead of a
// rendered overlay: data, not drawing.
type DebugImage struct {
	Name       string           `json:"name"`
	Rectangles []RectGeometry   `json:"rectangles"`
}

// RectGeometry is the plain-JSON form of a geometry.RectInt for debug
// export.
type RectGeometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TranslatorOutput is one translator's entry in the scan response map.
type TranslatorOutput struct {
	Result  MICRFields      `json:"result"`
	Details *TranslatorDetail `json:"details,omitempty"`
}

// MICRFields mirrors micrgrammar.Fields on the wire.
type MICRFields struct {
	RoutingNumber string `json:"routingNumber"`
	AccountNumber string `json:"accountNumber"`
	CheckNumber   string `json:"checkNumber"`
	MICRLine      string `json:"micrLine"`
}

// TranslatorDetail carries the per-character detail a translator reports,
// when requested via Request.Debug.
type TranslatorDetail struct {
	Value string            `json:"value"`
	Score float64           `json:"score"`
	Chars []translator.CharResult `json:"chars"`
}

// ScanResponse is the wire shape scan returns.
type ScanResponse struct {
	ID          string                      `json:"id"`
	Overlap     bool                        `json:"overlap"`
	LineBounds  RectGeometry                `json:"lineBounds"`
	Images      []DebugImage                `json:"images,omitempty"`
	Translators map[string]TranslatorOutput `json:"translators"`
}

// PreprocessResponse is the wire shape preprocess returns: the deskew angle
// found. Preprocess does not fill Images and does not return the cleaned,
// cropped raster.
type PreprocessResponse struct {
	ID        string  `json:"id"`
	SkewAngle float64 `json:"skewAngle"`
	Images    []DebugImage `json:"images,omitempty"`
}

// Session owns the immutable shared state every request reads: the loaded
// configuration, reference glyph library, and started translator backends.
// Readers require no synchronization once startup completes.
type Session struct {
	cfg         config.Config
	lib         *reference.Library
	translators map[string]translator.Translator
	log         zerolog.Logger
}

// New builds a Session, starting every translator named in cfg.Translators.
func New(cfg config.Config, lib *reference.Library, log zerolog.Logger) (*Session, error) {
	s := &Session{cfg: cfg, lib: lib, log: log, translators: map[string]translator.Translator{}}

	for _, name := range cfg.Translators.Enabled {
		var t translator.Translator
		switch name {
		case "template_match":
			t = translator.NewTemplateMatch(lib)
		case "third_party_ocr":
			t = translator.NewThirdPartyOCR()
		case "full_page_fallback":
			t = translator.NewFullPageFallback()
		default:
			return nil, micrerr.New(micrerr.Configuration, "unknown translator name: "+name)
		}
		if err := t.Start(); err != nil {
			return nil, err
		}
		s.translators[name] = t
	}

	return s, nil
}

// Close stops every started translator backend.
func (s *Session) Close() {
	for _, t := range s.translators {
		if err := t.Stop(); err != nil {
			s.log.Debug().Str("translator", t.Name()).Err(err).Msg("translator stop failed")
		}
	}
}

// pipelineResult bundles every intermediate artifact downstream stages and
// debug export need.
type pipelineResult struct {
	raster     scope.Raster
	fullRaster scope.Raster
	skewAngle  float64
	contours   []contourx.Contour
	anchor     contourx.Contour
	anchorOK   bool
	ln         *line.Line
	chars      []segment.Character
}

func (s *Session) runGeometricPipeline(sc *scope.Scope, src image.Image) (pipelineResult, error) {
	mat := imageToMat(src)
	sc.Track("session.src", mat)
	fullRaster := scope.Raster{Mat: mat, Polarity: scope.PolarityDarkFG}

	pre, err := preprocess.Run(sc, mat, s.cfg.Deskew, preprocess.DefaultCrop(s.cfg.Deskew))
	if err != nil {
		return pipelineResult{}, err
	}

	binRaster, err := binarize.Run(sc, pre.Raster.Mat, s.cfg.Binarizer)
	if err != nil {
		return pipelineResult{}, err
	}

	filter := contourx.Filter{
		MinArea:   float64(s.cfg.MinContourArea),
		MinHeight: s.cfg.MinContourHeight,
		MinWidth:  s.cfg.MinContourWidth,
	}
	contours := contourx.Extract(binRaster, filter)

	result := pipelineResult{raster: binRaster, fullRaster: fullRaster, skewAngle: pre.SkewAngle, contours: contours}

	anchorResult, ok, err := anchor.Find(binRaster, contours, s.lib, s.cfg.Anchor)
	if err != nil {
		return result, err
	}
	result.anchorOK = ok
	if !ok {
		return result, nil
	}
	result.anchor = anchorResult.Contour

	ln := line.Build(binRaster, anchorResult.Contour, contours, s.cfg.Overlap.MaxProjectionIter, s.log)

	workingRaster := binRaster
	if s.cfg.OverlapCorrection && ln.Overlap {
		thickness := overlap.VerticalThickness{
			MinHorizontal: ln.Thresh.MinHorizontalRun,
			MinVertical:   ln.Thresh.MinVerticalRun,
		}
		corrected := overlap.Correct(binRaster.Mat, s.cfg.OverlapPadding, thickness, s.cfg.Overlap)
		workingRaster = sc.TrackRaster("session.overlap_corrected", scope.Raster{Mat: corrected, Polarity: binRaster.Polarity})

		// The correction pass replaced the ROI's pixels, so contours,
		// anchor and line all get rebuilt against the corrected raster
		// rather than reused from before the correction.
		correctedContours := contourx.Extract(workingRaster, filter)
		if correctedAnchor, ok, err := anchor.Find(workingRaster, correctedContours, s.lib, s.cfg.Anchor); err == nil && ok {
			contours = correctedContours
			anchorResult = correctedAnchor
			ln = line.Build(workingRaster, correctedAnchor.Contour, correctedContours, s.cfg.Overlap.MaxProjectionIter, s.log)
			result.contours = contours
			result.anchor = anchorResult.Contour
		}
	}

	stats := segment.DeriveStats(ln.Contours)
	chars := segment.Iterate(ln.Contours, stats, ln.Thresh.MinArea)
	segment.AssignTypes(chars, workingRaster, segment.TypeParams{
		MaxCharWidth:  s.cfg.MaxCharWidth,
		MaxCharHeight: s.cfg.MaxCharHeight,
		MaxCharArea:   s.cfg.MaxCharArea,
		Roots:         []geometry.RectInt{anchorResult.Contour.Bounds},
	})
	chars = segment.Emit(chars)

	result.raster = workingRaster
	result.ln = ln
	result.chars = chars
	return result, nil
}

// Scan implements the scan entry point: runs the full pipeline, then every
// requested (or all enabled) translator, and assembles the response map.
func (s *Session) Scan(ctx context.Context, req Request) (ScanResponse, error) {
	reqLog := s.log.With().Str("request_id", req.ID).Logger()
	sc := scope.New(reqLog)
	defer sc.Close()

	stop := s.startSoftDeadline(reqLog)
	defer stop()

	resp := ScanResponse{ID: req.ID, Translators: map[string]TranslatorOutput{}}

	img, err := decodeImage(req.Image)
	if err != nil {
		return resp, err
	}

	pr, err := s.runGeometricPipeline(sc, img)
	if err != nil {
		return resp, err
	}
	if !pr.anchorOK || pr.ln == nil {
		reqLog.Info().Msg("anchor not found; returning empty translator results")
		return resp, nil
	}
	resp.Overlap = pr.ln.Overlap
	bounds := segment.LineBoundingRect(pr.chars, pr.ln.Contours, pr.raster.Mat.Cols(), pr.raster.Mat.Rows())
	resp.LineBounds = RectGeometry{X: bounds.X, Y: bounds.Y, Width: bounds.Width, Height: bounds.Height}

	names := req.Translators
	if len(names) == 0 {
		for name := range s.translators {
			names = append(names, name)
		}
	}

	for _, name := range names {
		t, ok := s.translators[name]
		if !ok {
			continue
		}
		result, err := t.Translate(ctx, pr.raster, pr.chars)
		if err != nil {
			reqLog.Debug().Str("translator", name).Err(err).Msg("translator failed")
			continue
		}
		fields := micrgrammar.Parse(result.MICRLine)
		out := TranslatorOutput{Result: MICRFields{
			RoutingNumber: fields.RoutingNumber,
			AccountNumber: fields.AccountNumber,
			CheckNumber:   fields.CheckNumber,
			MICRLine:      fields.MICRLine,
		}}
		if hasDebug(req.Debug, "chars") {
			out.Details = &TranslatorDetail{Value: result.MICRLine, Chars: result.Chars}
		}
		resp.Translators[name] = out
	}

	// Supplemental cheque-number fallback: only runs when every primary
	// translator left checkNumber empty. full_page_fallback's whitelist is
	// numeric-only, so its digit run has no control tokens for the grammar
	// to key off of; it is used directly as the check number rather than
	// parsed as a full MICR line.
	if needsFallback(resp.Translators) {
		if fb, ok := s.translators["full_page_fallback"]; ok {
			if result, err := fb.Translate(ctx, pr.fullRaster, pr.chars); err == nil {
				checkNumber := fallbackCheckNumber(result.MICRLine)
				if checkNumber != "" {
					out := resp.Translators["full_page_fallback"]
					out.Result.CheckNumber = checkNumber
					resp.Translators["full_page_fallback"] = out
				}
			}
		}
	}

	resp.Images = s.debugImages(req.Debug, pr)
	return resp, nil
}

// fallbackCheckNumber keeps only digits from a full-page OCR read and
// strips leading zeros, mirroring the grammar parser's own check-number
// normalization without requiring a control-token stream to key off of.
func fallbackCheckNumber(s string) string {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	out := digits.String()
	i := 0
	for i < len(out)-1 && out[i] == '0' {
		i++
	}
	return out[i:]
}

func needsFallback(outs map[string]TranslatorOutput) bool {
	if len(outs) == 0 {
		return false
	}
	for _, o := range outs {
		if o.Result.CheckNumber != "" {
			return false
		}
	}
	return true
}

func hasDebug(debug []string, name string) bool {
	for _, d := range debug {
		if d == name {
			return true
		}
	}
	return false
}

func (s *Session) debugImages(debug []string, pr pipelineResult) []DebugImage {
	var out []DebugImage
	if hasDebug(debug, "contours") {
		out = append(out, DebugImage{Name: "contours", Rectangles: rectanglesOf(pr.contours)})
	}
	if hasDebug(debug, "line") && pr.ln != nil {
		out = append(out, DebugImage{Name: "line", Rectangles: rectanglesOf(pr.ln.Contours)})
	}
	if hasDebug(debug, "chars") {
		out = append(out, DebugImage{Name: "chars", Rectangles: charRectangles(pr.chars)})
	}
	return out
}

func rectanglesOf(contours []contourx.Contour) []RectGeometry {
	out := make([]RectGeometry, len(contours))
	for i, c := range contours {
		out[i] = RectGeometry{X: c.Bounds.X, Y: c.Bounds.Y, Width: c.Bounds.Width, Height: c.Bounds.Height}
	}
	return out
}

func charRectangles(chars []segment.Character) []RectGeometry {
	out := make([]RectGeometry, len(chars))
	for i, c := range chars {
		out[i] = RectGeometry{X: c.Bounds.X, Y: c.Bounds.Y, Width: c.Bounds.Width, Height: c.Bounds.Height}
	}
	return out
}

// Preprocess implements the preprocess entry point: runs only the
// deskew/polarity/crop stage and reports the skew angle found.
func (s *Session) Preprocess(ctx context.Context, req Request) (PreprocessResponse, error) {
	reqLog := s.log.With().Str("request_id", req.ID).Logger()
	sc := scope.New(reqLog)
	defer sc.Close()

	src, err := decodeMat(req.Image)
	if err != nil {
		return PreprocessResponse{ID: req.ID}, err
	}
	sc.Track("session.decoded", src)

	pre, err := preprocess.Run(sc, src, s.cfg.Deskew, preprocess.DefaultCrop(s.cfg.Deskew))
	if err != nil {
		return PreprocessResponse{ID: req.ID}, err
	}

	return PreprocessResponse{ID: req.ID, SkewAngle: pre.SkewAngle}, nil
}

// startSoftDeadline arms the slow- and hung-request timers: neither ever
// cancels in-flight work, they only log at slowOrHungLevel (hung logs one
// level above slow, capped at warn) and let the request run to completion.
func (s *Session) startSoftDeadline(log zerolog.Logger) func() {
	var timers []*time.Timer
	if s.cfg.SlowRequestMS > 0 {
		timers = append(timers, time.AfterFunc(time.Duration(s.cfg.SlowRequestMS)*time.Millisecond, func() {
			logSlowOrHung(log, s.cfg.SlowOrHungRequestLogLevel, "request exceeded slow-request threshold")
		}))
	}
	if s.cfg.HungRequestMS > 0 {
		timers = append(timers, time.AfterFunc(time.Duration(s.cfg.HungRequestMS)*time.Millisecond, func() {
			logSlowOrHung(log, escalate(s.cfg.SlowOrHungRequestLogLevel), "request exceeded hung-request threshold")
		}))
	}
	return func() {
		for _, t := range timers {
			t.Stop()
		}
	}
}

// escalate bumps a slow-request log level up one notch for the
// hung-request timer.
func escalate(level string) string {
	switch level {
	case "debug":
		return "info"
	case "info":
		return "warn"
	default:
		return "warn"
	}
}

func logSlowOrHung(log zerolog.Logger, level, msg string) {
	switch level {
	case "info":
		log.Info().Msg(msg)
	case "warn":
		log.Warn().Msg(msg)
	default:
		log.Debug().Msg(msg)
	}
}
