// Package micrscan is the request/response facade: it decodes the wire
// request, drives the geometric pipeline stage by stage inside one request
// scope, and assembles the translator response map.
package micrscan

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"gocv.io/x/gocv"

	"micrscan/internal/micrerr"
)

// Fraction is an optional width/height crop bound in [0,1].
type Fraction struct {
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// CropSpec bounds the region the deskew/bottom-band crop operates within.
type CropSpec struct {
	Begin *Fraction `json:"begin,omitempty"`
	End   *Fraction `json:"end,omitempty"`
}

// ImageInput is the wire image payload; Buffer is base64-decoded
// automatically by encoding/json since its Go type is []byte.
type ImageInput struct {
	Format string `json:"format"`
	Buffer []byte `json:"buffer"`
}

// Request is the wire shape shared by preprocess and scan.
type Request struct {
	ID          string     `json:"id"`
	Image       ImageInput `json:"image"`
	Crop        *CropSpec  `json:"crop,omitempty"`
	Debug       []string   `json:"debug,omitempty"`
	LogLevel    string     `json:"logLevel,omitempty"`
	Translators []string   `json:"translators,omitempty"`
	Correct     *bool      `json:"correct,omitempty"`
	Actual      string     `json:"actual,omitempty"`
}

// decodeImage decodes the request's image buffer into a Go image.Image
// (the format-specific codecs are registered via blank imports so
// image.Decode dispatches on content, not the declared format string).
func decodeImage(in ImageInput) (image.Image, error) {
	if len(in.Buffer) == 0 {
		return nil, micrerr.New(micrerr.Input, "empty image buffer")
	}

	img, _, err := image.Decode(bytes.NewReader(in.Buffer))
	if err != nil {
		return nil, micrerr.Wrap(micrerr.Input, fmt.Sprintf("decoding %s image", in.Format), err)
	}
	return img, nil
}

// decodeMat decodes the request's image buffer straight into a BGR
// gocv.Mat, via a straightforward image.Image -> gocv.Mat pixel copy.
func decodeMat(in ImageInput) (gocv.Mat, error) {
	img, err := decodeImage(in)
	if err != nil {
		return gocv.Mat{}, err
	}
	return imageToMat(img), nil
}

func imageToMat(img image.Image) gocv.Mat {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat
}
