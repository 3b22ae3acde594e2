package canvas

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"
)

// Surface is an RGBA pixel buffer with the handful of 2D primitives the
// compositor needs. It is not safe for concurrent use.
type Surface struct {
	img *image.RGBA
	ras *vector.Rasterizer
}

// MaxDimension bounds each side of a surface, matching the canvas limits
// browsers enforce.
const MaxDimension = 8192

// NewSurface returns a transparent surface. Sizes are clamped to
// [0, MaxDimension].
func NewSurface(width, height int) *Surface {
	width, height = min(max(width, 0), MaxDimension), min(max(height, 0), MaxDimension)
	return &Surface{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
		ras: vector.NewRasterizer(width, height),
	}
}

func (s *Surface) Width() int  { return s.img.Rect.Dx() }
func (s *Surface) Height() int { return s.img.Rect.Dy() }

func (s *Surface) empty() bool {
	return s.img.Rect.Empty()
}

// RGBA exposes the backing buffer.
func (s *Surface) RGBA() *image.RGBA {
	return s.img
}

// Snapshot returns a copy of the current pixels.
func (s *Surface) Snapshot() *image.RGBA {
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// Clear resets every pixel to transparent.
func (s *Surface) Clear() {
	clear(s.img.Pix)
}

func (s *Surface) fill(c color.Color, path func(r *vector.Rasterizer)) {
	if s.empty() {
		return
	}
	s.ras.Reset(s.Width(), s.Height())
	s.ras.DrawOp = draw.Over
	path(s.ras)
	s.ras.Draw(s.img, s.img.Rect, image.NewUniform(c), image.Point{})
}

func rectPath(r *vector.Rasterizer, x0, y0, x1, y1 float64, clockwise bool) {
	r.MoveTo(float32(x0), float32(y0))
	if clockwise {
		r.LineTo(float32(x1), float32(y0))
		r.LineTo(float32(x1), float32(y1))
		r.LineTo(float32(x0), float32(y1))
	} else {
		r.LineTo(float32(x0), float32(y1))
		r.LineTo(float32(x1), float32(y1))
		r.LineTo(float32(x1), float32(y0))
	}
	r.ClosePath()
}

// FillRect fills the axis-aligned rectangle with antialiased edges.
func (s *Surface) FillRect(x, y, w, h float64, c color.Color) {
	if w <= 0 || h <= 0 {
		return
	}
	s.fill(c, func(r *vector.Rasterizer) {
		rectPath(r, x, y, x+w, y+h, true)
	})
}

// StrokeRect strokes the rectangle outline with the line centred on its
// edges.
func (s *Surface) StrokeRect(x, y, w, h, lineWidth float64, c color.Color) {
	if lineWidth <= 0 || w < 0 || h < 0 {
		return
	}
	half := lineWidth / 2
	s.fill(c, func(r *vector.Rasterizer) {
		rectPath(r, x-half, y-half, x+w+half, y+h+half, true)
		if w > lineWidth && h > lineWidth {
			rectPath(r, x+half, y+half, x+w-half, y+h-half, false)
		}
	})
}

// DashedRect strokes the rectangle outline with an on/off dash pattern that
// continues around the corners, starting at the top-left.
func (s *Surface) DashedRect(x, y, w, h, lineWidth, dash, gap float64, c color.Color) {
	if lineWidth <= 0 || w < 0 || h < 0 {
		return
	}
	if dash <= 0 {
		s.StrokeRect(x, y, w, h, lineWidth, c)
		return
	}
	half := lineWidth / 2
	corners := [5][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}, {x, y}}
	period := dash + max(gap, 0)

	s.fill(c, func(r *vector.Rasterizer) {
		var travelled float64
		for i := 0; i < 4; i++ {
			ax, ay := corners[i][0], corners[i][1]
			bx, by := corners[i+1][0], corners[i+1][1]
			length := math.Hypot(bx-ax, by-ay)
			if length == 0 {
				continue
			}
			ux, uy := (bx-ax)/length, (by-ay)/length

			for pos := 0.0; pos < length; {
				phase := math.Mod(travelled+pos, period)
				if phase >= dash {
					pos += period - phase
					continue
				}
				end := math.Min(length, pos+dash-phase)
				// Butt caps, except where a dash meets a corner.
				from, to := pos, end
				if from == 0 {
					from -= half
				}
				if to == length {
					to += half
				}
				sx, sy := ax+ux*from, ay+uy*from
				ex, ey := ax+ux*to, ay+uy*to
				// Widen across the edge only; ux, uy is axis aligned.
				wx, wy := math.Abs(uy)*half, math.Abs(ux)*half
				rectPath(r, math.Min(sx, ex)-wx, math.Min(sy, ey)-wy,
					math.Max(sx, ex)+wx, math.Max(sy, ey)+wy, true)
				pos = end
			}
			travelled += length
		}
	})
}

// DrawImage draws src stretched into the destination rectangle with a
// uniform opacity in [0, 1].
func (s *Surface) DrawImage(src image.Image, x, y, w, h, opacity float64) {
	sr := src.Bounds()
	if s.empty() || sr.Empty() || w <= 0 || h <= 0 || opacity <= 0 {
		return
	}
	sx, sy := w/float64(sr.Dx()), h/float64(sr.Dy())
	m := f64.Aff3{
		sx, 0, x - sx*float64(sr.Min.X),
		0, sy, y - sy*float64(sr.Min.Y),
	}

	var opts *draw.Options
	if opacity < 1 {
		opts = &draw.Options{
			SrcMask: image.NewUniform(color.Alpha16{A: uint16(opacity*0xffff + 0.5)}),
		}
	}
	draw.BiLinear.Transform(s.img, m, src, sr, draw.Over, opts)
}

// DrawMask paints c through mask, whose pixels are placed at their own
// coordinates shifted by (dx, dy).
func (s *Surface) DrawMask(mask image.Image, dx, dy int, c color.Color) {
	mb := mask.Bounds()
	r := mb.Add(image.Pt(dx, dy)).Intersect(s.img.Rect)
	if r.Empty() {
		return
	}
	draw.DrawMask(s.img, r, image.NewUniform(c), image.Point{}, mask, r.Min.Sub(image.Pt(dx, dy)), draw.Over)
}
