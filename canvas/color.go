package canvas

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

var namedColors = map[string]color.NRGBA{
	"black":       {0x00, 0x00, 0x00, 0xff},
	"white":       {0xff, 0xff, 0xff, 0xff},
	"red":         {0xff, 0x00, 0x00, 0xff},
	"green":       {0x00, 0x80, 0x00, 0xff},
	"blue":        {0x00, 0x00, 0xff, 0xff},
	"yellow":      {0xff, 0xff, 0x00, 0xff},
	"orange":      {0xff, 0xa5, 0x00, 0xff},
	"purple":      {0x80, 0x00, 0x80, 0xff},
	"gray":        {0x80, 0x80, 0x80, 0xff},
	"grey":        {0x80, 0x80, 0x80, 0xff},
	"pink":        {0xff, 0xc0, 0xcb, 0xff},
	"transparent": {},
}

// ParseColor parses the CSS colour forms the editor stores: #rgb, #rgba,
// #rrggbb, #rrggbbaa, rgb(), rgba() and a handful of names.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	if strings.HasPrefix(s, "#") {
		return parseHex(s)
	}
	if strings.HasPrefix(s, "rgb") {
		return parseFunctional(s)
	}
	return color.NRGBA{}, fmt.Errorf("unsupported color %q", s)
}

func parseHex(s string) (color.NRGBA, error) {
	alpha := uint8(0xff)
	switch len(s) {
	case 5:
		a, err := strconv.ParseUint(strings.Repeat(s[4:], 2), 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("bad color %q: %w", s, err)
		}
		alpha, s = uint8(a), s[:4]
	case 9:
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("bad color %q: %w", s, err)
		}
		alpha, s = uint8(a), s[:7]
	}

	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

func parseFunctional(s string) (color.NRGBA, error) {
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return color.NRGBA{}, fmt.Errorf("bad color %q", s)
	}
	parts := strings.FieldsFunc(s[open+1:end], func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("bad color %q", s)
	}

	var ch [3]float64
	for i := range ch {
		v, err := channel(parts[i], 255)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("bad color %q: %w", s, err)
		}
		ch[i] = v / 255
	}
	alpha := 1.0
	if len(parts) == 4 {
		v, err := channel(parts[3], 1)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("bad color %q: %w", s, err)
		}
		alpha = v
	}

	r, g, b := colorful.Color{R: ch[0], G: ch[1], B: ch[2]}.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(clamp01(alpha)*255 + 0.5)}, nil
}

// channel parses a number or percentage; percentages are scaled to max.
func channel(s string, max float64) (float64, error) {
	if p, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(p, 64)
		return v / 100 * max, err
	}
	return strconv.ParseFloat(s, 64)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// colorOr parses s, falling back to def when it is empty or invalid.
func colorOr(s string, def color.NRGBA) color.NRGBA {
	if s == "" {
		return def
	}
	c, err := ParseColor(s)
	if err != nil {
		return def
	}
	return c
}
