// Package translator turns a segmented Line's characters into MICR text
// through a fixed set of interchangeable classifier backends.
package translator

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"micrscan/internal/micrerr"
	"micrscan/internal/reference"
	"micrscan/internal/scope"
	"micrscan/internal/segment"
)

// CharResult is one character's recognized label and confidence.
type CharResult struct {
	Label string
	Score float64
}

// Result is a translator's verdict over a full Line: the decoded MICR
// string plus per-character detail.
type Result struct {
	MICRLine string
	Chars    []CharResult
}

// Translator is the interface every classifier backend implements. Name
// identifies the backend in the response map's `translators.<name>` entry.
type Translator interface {
	Name() string
	Start() error
	Stop() error
	Translate(ctx context.Context, raster scope.Raster, chars []segment.Character) (Result, error)
}

// TemplateMatch recognizes characters by normalized cross-correlation
// against the reference glyph library, the same matching idiom the anchor
// finder uses.
type TemplateMatch struct {
	lib *reference.Library
}

// NewTemplateMatch builds a template-matching translator bound to a loaded
// reference glyph library.
func NewTemplateMatch(lib *reference.Library) *TemplateMatch {
	return &TemplateMatch{lib: lib}
}

func (t *TemplateMatch) Name() string    { return "template_match" }
func (t *TemplateMatch) Start() error    { return nil }
func (t *TemplateMatch) Stop() error     { return nil }

func (t *TemplateMatch) Translate(_ context.Context, raster scope.Raster, chars []segment.Character) (Result, error) {
	var sb strings.Builder
	results := make([]CharResult, 0, len(chars))

	for _, c := range chars {
		region := raster.Mat.Region(image.Rect(
			c.Bounds.X, c.Bounds.Y, c.Bounds.X+c.Bounds.Width, c.Bounds.Y+c.Bounds.Height))
		label, score := bestGlyph(region, t.lib)
		region.Close()

		sb.WriteString(label)
		results = append(results, CharResult{Label: label, Score: score})
	}

	return Result{MICRLine: sb.String(), Chars: results}, nil
}

func bestGlyph(region gocv.Mat, lib *reference.Library) (string, float64) {
	tile := resizeSquare(region, 36)
	defer tile.Close()

	var bestLabel string
	var bestScore float64
	for _, g := range lib.Glyphs {
		if len(g.Contours) == 0 {
			continue
		}
		ref := resizeSquare(g.Contours[0], 36)
		score := matchScore(tile, ref)
		ref.Close()
		if score > bestScore {
			bestScore = score
			bestLabel = g.Label
		}
	}
	return bestLabel, bestScore
}

func resizeSquare(src gocv.Mat, size int) gocv.Mat {
	out := gocv.NewMat()
	gocv.Resize(src, &out, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	return out
}

func matchScore(a, b gocv.Mat) float64 {
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(a, b, &result, gocv.TmCcorrNormed, mask)
	_, maxVal, _, _ := gocv.MinMaxLoc(result)
	return float64(maxVal) * 100
}

// micrWhitelist restricts Tesseract to the MICR character set: digits plus
// the control glyph stand-ins used by E-13B fonts.
const micrWhitelist = "0123456789TUAD"

// ThirdPartyOCR recognizes characters using Tesseract, one crop per
// character.
type ThirdPartyOCR struct {
	client *gosseract.Client
}

// NewThirdPartyOCR constructs a Tesseract-backed translator. Start must be
// called before Translate.
func NewThirdPartyOCR() *ThirdPartyOCR {
	return &ThirdPartyOCR{}
}

func (o *ThirdPartyOCR) Name() string { return "third_party_ocr" }

func (o *ThirdPartyOCR) Start() error {
	o.client = gosseract.NewClient()
	if err := o.client.SetLanguage("eng"); err != nil {
		o.client.Close()
		return micrerr.Wrap(micrerr.Configuration, "setting OCR language", err)
	}
	_ = o.client.SetVariable("load_system_dawg", "false")
	_ = o.client.SetVariable("load_freq_dawg", "false")
	if err := o.client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return micrerr.Wrap(micrerr.Configuration, "setting OCR page segmentation mode", err)
	}
	if err := o.client.SetWhitelist(micrWhitelist); err != nil {
		return micrerr.Wrap(micrerr.Configuration, "setting OCR whitelist", err)
	}
	return nil
}

func (o *ThirdPartyOCR) Stop() error {
	if o.client == nil {
		return nil
	}
	return o.client.Close()
}

func (o *ThirdPartyOCR) Translate(_ context.Context, raster scope.Raster, chars []segment.Character) (Result, error) {
	if o.client == nil {
		return Result{}, micrerr.New(micrerr.Classifier, "third_party_ocr translator not started")
	}

	var sb strings.Builder
	results := make([]CharResult, 0, len(chars))

	for _, c := range chars {
		region := raster.Mat.Region(image.Rect(
			c.Bounds.X, c.Bounds.Y, c.Bounds.X+c.Bounds.Width, c.Bounds.Y+c.Bounds.Height))
		text, err := ocrRegion(o.client, region)
		region.Close()
		if err != nil {
			return Result{}, micrerr.Wrap(micrerr.Classifier, "third_party_ocr recognition failed", err)
		}

		label := strings.TrimSpace(text)
		sb.WriteString(label)
		results = append(results, CharResult{Label: label, Score: 0})
	}

	return Result{MICRLine: sb.String(), Chars: results}, nil
}

func ocrRegion(client *gosseract.Client, region gocv.Mat) (string, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, region)
	if err != nil {
		return "", fmt.Errorf("encoding region for OCR: %w", err)
	}
	defer buf.Close()

	if err := client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", fmt.Errorf("setting OCR image: %w", err)
	}
	return client.Text()
}

// FullPageFallback runs Tesseract over the entire input raster with a
// numeric-only whitelist, used only to recover a check number when the
// primary translators returned an empty one.
type FullPageFallback struct {
	client *gosseract.Client
}

// NewFullPageFallback constructs the full-page OCR fallback translator.
func NewFullPageFallback() *FullPageFallback {
	return &FullPageFallback{}
}

func (f *FullPageFallback) Name() string { return "full_page_fallback" }

func (f *FullPageFallback) Start() error {
	f.client = gosseract.NewClient()
	if err := f.client.SetLanguage("eng"); err != nil {
		f.client.Close()
		return micrerr.Wrap(micrerr.Configuration, "setting OCR language", err)
	}
	if err := f.client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return micrerr.Wrap(micrerr.Configuration, "setting OCR page segmentation mode", err)
	}
	if err := f.client.SetWhitelist("0123456789"); err != nil {
		return micrerr.Wrap(micrerr.Configuration, "setting OCR whitelist", err)
	}
	return nil
}

func (f *FullPageFallback) Stop() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Translate ignores the segmented characters and OCRs the full raster,
// returning whatever digit run Tesseract finds as the MICR line.
func (f *FullPageFallback) Translate(_ context.Context, raster scope.Raster, _ []segment.Character) (Result, error) {
	if f.client == nil {
		return Result{}, micrerr.New(micrerr.Classifier, "full_page_fallback translator not started")
	}
	text, err := ocrRegion(f.client, raster.Mat)
	if err != nil {
		return Result{}, micrerr.Wrap(micrerr.Classifier, "full_page_fallback recognition failed", err)
	}
	return Result{MICRLine: strings.TrimSpace(text)}, nil
}
