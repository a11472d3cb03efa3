package render

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"math/rand/v2"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/capgate/capgate"
)

const (
	baseFontSize = 24
	jpegQuality  = 85
)

// Drawn renders challenge text onto a noisy JPEG canvas. The parsed
// font is shared and immutable; each Render call builds its own drawing
// context, so concurrent calls never share mutable state.
type Drawn struct {
	font *truetype.Font
}

func NewDrawn() (*Drawn, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("render: can't parse builtin font: %w", err)
	}

	return &Drawn{font: f}, nil
}

func (d *Drawn) Render(text string, style Style) ([]byte, error) {
	if err := style.Valid(); err != nil {
		return nil, err
	}

	w := capgate.BaseImageWidth * style.Scale
	h := capgate.BaseImageHeight * style.Scale

	dc := gg.NewContext(w, h)

	if style.RandomizeBackground {
		setRandomColor(dc)
	} else {
		dc.SetRGB(1, 1, 1)
	}
	dc.Clear()

	face := truetype.NewFace(d.font, &truetype.Options{
		Size: baseFontSize * float64(style.Scale),
	})
	dc.SetFontFace(face)

	if style.RandomizeTextColor {
		setRandomColor(dc)
	} else {
		dc.SetRGB(0, 0, 0)
	}
	dc.DrawStringAnchored(text, float64(w)/2, float64(h)/2, 0.5, 0.5)

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(float64(style.LineWidth * style.Scale))
	for i := 0; i < style.Lines; i++ {
		dc.DrawLine(
			rand.Float64()*float64(w), rand.Float64()*float64(h),
			rand.Float64()*float64(w), rand.Float64()*float64(h),
		)
		dc.Stroke()
	}

	// Noise covers a fraction of the canvas proportional to the noise
	// level. Visual randomness only, so math/rand is fine here.
	specks := int(style.Noise * float64(w*h))
	for i := 0; i < specks; i++ {
		setRandomColor(dc)
		dc.SetPixel(rand.IntN(w), rand.IntN(h))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("render: can't encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

func setRandomColor(dc *gg.Context) {
	dc.SetRGB(rand.Float64(), rand.Float64(), rand.Float64())
}
