package canvas

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/rivo/uniseg"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"hizuke-thumb/core"
	"hizuke-thumb/dateformat"
)

type (
	// GlyphRun is a piece of text painted as one shaped string starting at
	// X on its line's baseline.
	GlyphRun struct {
		Text string
		X    float64
	}

	TextLine struct {
		Text string
		// Width is the natural width of the line, or the sum of cluster
		// advances plus letter spacing when the layer is letter-spaced.
		Width float64
		// X is the aligned start of the line.
		X float64
		// Y is the line's anchor; Baseline is where glyphs sit.
		Y        float64
		Baseline float64
		Runs     []GlyphRun
	}

	// TextLayout is the resolved geometry of a text layer.
	TextLayout struct {
		Family string
		// Spaced is set when letter spacing forces per-cluster runs.
		Spaced bool
		Lines  []TextLine
		Width  float64
		Height float64
	}
)

// TextEngine lays out and paints text layers.
type TextEngine struct {
	fonts *FontLibrary
}

func NewTextEngine(fonts *FontLibrary) *TextEngine {
	return &TextEngine{fonts: fonts}
}

// Fonts returns the font library the engine resolves families from.
func (e *TextEngine) Fonts() *FontLibrary {
	return e.fonts
}

// Resolve returns the string a text content renders to on date.
func (e *TextEngine) Resolve(content core.TextContent, date time.Time) (string, error) {
	switch content.Type {
	case core.ContentStatic:
		return content.Value, nil
	case core.ContentDate:
		return dateformat.Format(date, content.Format, content.Locale)
	}
	return "", fmt.Errorf("unknown text content type %q", content.Type)
}

// Layout computes line geometry with the cached family for the layer's
// font; it never reads the store.
func (e *TextEngine) Layout(layer core.TextLayer, date time.Time) (*TextLayout, error) {
	text, err := e.Resolve(layer.Content, date)
	if err != nil {
		return nil, err
	}
	family := e.fonts.CachedFamily(layer.Style.FontID)
	face, err := e.face(family, layer.Style)
	if err != nil {
		return nil, err
	}
	defer face.Close()
	return layoutText(face, family, layer, text), nil
}

// Measure returns the bounding size of the layer's text: the widest line by
// the number of lines times the line pitch.
func (e *TextEngine) Measure(layer core.TextLayer, date time.Time) (core.Size, error) {
	l, err := e.Layout(layer, date)
	if err != nil {
		return core.Size{}, err
	}
	return core.Size{Width: l.Width, Height: l.Height}, nil
}

func (e *TextEngine) face(family string, style core.TextStyle) (font.Face, error) {
	return e.fonts.Face(family, style.FontSize, style.Bold, style.Italic)
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

func alignStart(x, width float64, align core.TextAlign) float64 {
	switch align {
	case core.AlignCenter:
		return x - width/2
	case core.AlignRight:
		return x - width
	}
	return x
}

// baselineOffset maps a vertical anchor to the distance from the anchor
// down to the baseline. descent is positive.
func baselineOffset(v core.VerticalAlign, ascent, descent float64) float64 {
	switch v {
	case core.VerticalMiddle:
		return (ascent - descent) / 2
	case core.VerticalBottom:
		return -descent
	}
	return ascent
}

func layoutText(face font.Face, family string, layer core.TextLayer, text string) *TextLayout {
	style := layer.Style
	pitch := style.FontSize * style.LineHeight
	m := face.Metrics()
	offset := baselineOffset(style.VerticalAlign, toFloat(m.Ascent), toFloat(m.Descent))

	out := &TextLayout{
		Family: family,
		Spaced: style.LetterSpacing != 0,
	}
	for i, line := range strings.Split(text, "\n") {
		y := layer.Position.Y + float64(i)*pitch
		tl := TextLine{Text: line, Y: y, Baseline: y + offset}

		if !out.Spaced {
			tl.Width = toFloat(font.MeasureString(face, line))
			tl.X = alignStart(layer.Position.X, tl.Width, style.Align)
			if line != "" {
				tl.Runs = []GlyphRun{{Text: line, X: tl.X}}
			}
		} else {
			var clusters []string
			var advances []float64
			g := uniseg.NewGraphemes(line)
			for g.Next() {
				c := g.Str()
				clusters = append(clusters, c)
				advances = append(advances, toFloat(font.MeasureString(face, c)))
			}
			for _, a := range advances {
				tl.Width += a
			}
			if n := len(clusters); n > 1 {
				tl.Width += float64(n-1) * style.LetterSpacing
			}
			tl.X = alignStart(layer.Position.X, tl.Width, style.Align)

			x := tl.X
			for j, c := range clusters {
				tl.Runs = append(tl.Runs, GlyphRun{Text: c, X: x})
				x += advances[j] + style.LetterSpacing
			}
		}

		out.Width = math.Max(out.Width, tl.Width)
		out.Lines = append(out.Lines, tl)
	}
	out.Height = float64(len(out.Lines)) * pitch
	return out
}

// Paint draws the layer's text onto s. The font is resolved through the
// store on first use. Each run is painted back to front: shadow, outline,
// fill; underlines follow each line in non-spaced mode.
func (e *TextEngine) Paint(ctx context.Context, s *Surface, layer core.TextLayer, date time.Time) error {
	text, err := e.Resolve(layer.Content, date)
	if err != nil {
		return err
	}
	style := layer.Style
	if style.FontSize <= 0 {
		return nil
	}

	family, err := e.fonts.Family(ctx, style.FontID)
	if err != nil {
		return err
	}
	face, err := e.face(family, style)
	if err != nil {
		return err
	}
	defer face.Close()

	l := layoutText(face, family, layer, text)
	fill := colorOr(style.Color, color.NRGBA{A: 0xff})

	fakeBold, fakeItalic := e.fonts.Synthetic(family, style.Bold, style.Italic)
	var embolden float64
	if fakeBold {
		embolden = math.Max(1, math.Round(style.FontSize/30))
	}

	var shadow *core.TextShadow
	if style.Shadow != nil && style.Shadow.Enabled {
		shadow = style.Shadow
	}
	var outline *core.TextOutline
	if style.Outline != nil && style.Outline.Enabled && style.Outline.Width > 0 {
		outline = style.Outline
	}

	for _, line := range l.Lines {
		for _, run := range line.Runs {
			alpha := runMask(face, run, line.Baseline, maskPad(shadow, outline, embolden))
			if alpha == nil {
				continue
			}
			var mask image.Image = alpha
			if fakeItalic {
				mask = slant(alpha, line.Baseline)
			}
			if embolden > 0 {
				mask = effect.Dilate(mask, embolden)
			}
			if shadow != nil {
				paintShadow(s, mask, shadow)
			}
			if outline != nil {
				// The stroke straddles the glyph edge, so only its outer half
				// (the configured width) shows around the fill.
				s.DrawMask(effect.Dilate(mask, outline.Width), 0, 0, colorOr(outline.Color, color.NRGBA{A: 0xff}))
			}
			s.DrawMask(mask, 0, 0, fill)
		}

		if style.Underline && !l.Spaced && line.Width > 0 {
			thickness := style.FontSize * 0.05
			s.FillRect(line.X, line.Y+style.FontSize*0.1-thickness/2, line.Width, thickness, fill)
		}
	}
	return nil
}

// blurRadius converts a CSS shadow blur into bild's Gaussian radius. bild's
// kernel exp(-x²/4r) has σ = √(2r) and CSS uses σ = blur/2.
func blurRadius(b float64) float64 {
	return b * b / 8
}

// maskPad is how far decorations and synthetic bold grow a glyph mask.
func maskPad(shadow *core.TextShadow, outline *core.TextOutline, embolden float64) int {
	grow := embolden
	if outline != nil {
		grow += outline.Width
	}
	if shadow != nil && shadow.Blur > 0 {
		grow = math.Max(grow, embolden+blurRadius(shadow.Blur))
	}
	return int(math.Ceil(grow)) + 2
}

// fauxItalicSkew is the horizontal lean per pixel above the baseline used
// when a family has no italic face.
const fauxItalicSkew = 0.2

// slant shears mask about baseline into an oblique.
func slant(mask *image.Alpha, baseline float64) *image.Alpha {
	b := mask.Bounds()
	left := int(math.Ceil(fauxItalicSkew * math.Max(0, float64(b.Max.Y)-baseline)))
	right := int(math.Ceil(fauxItalicSkew * math.Max(0, baseline-float64(b.Min.Y))))
	dst := image.NewAlpha(image.Rect(b.Min.X-left, b.Min.Y, b.Max.X+right, b.Max.Y))
	s2d := f64.Aff3{1, -fauxItalicSkew, fauxItalicSkew * baseline, 0, 1, 0}
	draw.BiLinear.Transform(dst, s2d, mask, b, draw.Src, nil)
	return dst
}

// runMask rasterises one run into an alpha mask in surface coordinates,
// padded by pad pixels so anything grown from it is not clipped.
func runMask(face font.Face, run GlyphRun, baseline float64, pad int) *image.Alpha {
	d := &font.Drawer{
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{X: toFixed(run.X), Y: toFixed(baseline)},
	}
	b, _ := d.BoundString(run.Text)
	if b.Empty() {
		return nil
	}

	mask := image.NewAlpha(image.Rect(
		b.Min.X.Floor()-pad, b.Min.Y.Floor()-pad,
		b.Max.X.Ceil()+pad, b.Max.Y.Ceil()+pad,
	))
	d.Dst = mask
	d.DrawString(run.Text)
	return mask
}

// paintShadow draws the blurred mask at the shadow offset and then the
// glyphs themselves in the shadow colour, as a canvas fillText with a
// shadow does.
func paintShadow(s *Surface, mask image.Image, shadow *core.TextShadow) {
	c := colorOr(shadow.Color, color.NRGBA{A: 0xff})
	var blurred image.Image = mask
	if shadow.Blur > 0 {
		blurred = blur.Gaussian(mask, blurRadius(shadow.Blur))
	}
	s.DrawMask(blurred, int(math.Round(shadow.OffsetX)), int(math.Round(shadow.OffsetY)), c)
	s.DrawMask(mask, 0, 0, c)
}
