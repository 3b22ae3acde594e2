package canvas

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := map[string]color.NRGBA{
		"#fff":                 {0xff, 0xff, 0xff, 0xff},
		"#3b82f6":              {0x3b, 0x82, 0xf6, 0xff},
		"#3B82F6":              {0x3b, 0x82, 0xf6, 0xff},
		"#00000080":            {0, 0, 0, 0x80},
		"#f008":                {0xff, 0, 0, 0x88},
		"rgb(255, 0, 0)":       {0xff, 0, 0, 0xff},
		"rgba(0,0,0,0.5)":      {0, 0, 0, 0x80},
		"rgb(100% 0% 0% / 0)":  {0xff, 0, 0, 0},
		"  white ":             {0xff, 0xff, 0xff, 0xff},
		"transparent":          {},
		"rgba(300, -5, 0, 2)":  {0xff, 0, 0, 0xff},
	}
	for in, want := range tests {
		got, err := ParseColor(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got, in)
		}
	}

	for _, bad := range []string{"", "#12", "#ggg", "rgb(1,2)", "hsl(0,0,0)", "chartreuse-ish"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, color.NRGBA{A: 0xff}, colorOr("nope", color.NRGBA{A: 0xff}))
}

func TestSurface_FillAndStroke(t *testing.T) {
	s := NewSurface(20, 20)
	s.FillRect(2, 2, 6, 6, red)
	img := s.RGBA()
	assert.Equal(t, red, img.RGBAAt(4, 4))
	assert.Zero(t, img.RGBAAt(9, 9).A)

	s.Clear()
	s.StrokeRect(5, 5, 10, 10, 2, green)
	assert.Equal(t, green, img.RGBAAt(5, 10), "left edge")
	assert.Zero(t, img.RGBAAt(10, 10).A, "interior stays empty")

	before := s.Snapshot()
	s.FillRect(0, 0, 0, 10, red)
	s.StrokeRect(0, 0, 10, 10, 0, red)
	assert.Equal(t, before.Pix, s.RGBA().Pix, "degenerate shapes draw nothing")
}

func TestSurface_DrawImageStretches(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, red)
	src.SetRGBA(1, 0, blue)

	s := NewSurface(40, 10)
	s.DrawImage(src, 0, 0, 40, 10, 1)
	img := s.RGBA()
	assert.Equal(t, red, img.RGBAAt(2, 5))
	assert.Equal(t, blue, img.RGBAAt(37, 5))

	s.Clear()
	s.DrawImage(src, 0, 0, 40, 10, 0)
	assert.Zero(t, img.RGBAAt(2, 5).A, "zero opacity draws nothing")
}

func TestSurface_DrawMaskOffsets(t *testing.T) {
	mask := image.NewAlpha(image.Rect(10, 10, 12, 12))
	mask.SetAlpha(10, 10, color.Alpha{A: 0xff})

	s := NewSurface(20, 20)
	s.DrawMask(mask, 3, -2, red)
	assert.Equal(t, red, s.RGBA().RGBAAt(13, 8))
	assert.Zero(t, s.RGBA().RGBAAt(10, 10).A)

	s.DrawMask(mask, 100, 100, red)
}

func TestSurface_ZeroSize(t *testing.T) {
	s := NewSurface(-1, 0)
	require.Equal(t, 0, s.Width())
	s.FillRect(0, 0, 10, 10, red)
	s.DashedRect(0, 0, 10, 10, 2, 5, 5, red)
	s.DrawImage(image.NewRGBA(image.Rect(0, 0, 1, 1)), 0, 0, 1, 1, 1)
	assert.Empty(t, s.RGBA().Pix)
}

func TestSurface_ClampsToMaxDimension(t *testing.T) {
	s := NewSurface(1_000_000, 1)
	assert.Equal(t, MaxDimension, s.Width())
	assert.Equal(t, 1, s.Height())
}
