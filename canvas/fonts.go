package canvas

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/sync/singleflight"

	"hizuke-thumb/core"
)

// DefaultFamily is used when a font id is empty or not yet resolved.
const DefaultFamily = "sans-serif"

// FontSource is the slice of the store the font library reads from.
type FontSource interface {
	GetFont(ctx context.Context, id string) (*core.FontRecord, error)
}

// variants holds the parsed faces of one family. Families registered from
// uploads only carry a regular face; the painter synthesises the rest.
type variants struct {
	regular, bold, italic, boldItalic *opentype.Font
}

func (v *variants) pick(bold, italic bool) *opentype.Font {
	switch {
	case bold && italic && v.boldItalic != nil:
		return v.boldItalic
	case bold && v.bold != nil:
		return v.bold
	case italic && v.italic != nil:
		return v.italic
	}
	return v.regular
}

var builtinFamilies = sync.OnceValue(func() map[string]*variants {
	parse := func(ttf []byte) *opentype.Font {
		f, err := opentype.Parse(ttf)
		if err != nil {
			panic(fmt.Sprintf("parse builtin font: %v", err))
		}
		return f
	}
	sans := &variants{
		regular:    parse(goregular.TTF),
		bold:       parse(gobold.TTF),
		italic:     parse(goitalic.TTF),
		boldItalic: parse(gobolditalic.TTF),
	}
	mono := &variants{
		regular:    parse(gomono.TTF),
		bold:       parse(gomonobold.TTF),
		italic:     parse(gomonoitalic.TTF),
		boldItalic: parse(gomonobolditalic.TTF),
	}
	return map[string]*variants{
		"sans-serif": sans,
		"serif":      sans,
		"monospace":  mono,
	}
})

// FontLibrary maps font ids to family names and family names to parsed
// fonts. It is safe for concurrent use.
type FontLibrary struct {
	source FontSource

	mu       sync.RWMutex
	names    map[string]string
	families map[string]*variants

	group singleflight.Group
}

// NewFontLibrary returns a library holding only the built-in generic
// families.
func NewFontLibrary(source FontSource) *FontLibrary {
	return &FontLibrary{
		source:   source,
		names:    make(map[string]string),
		families: make(map[string]*variants),
	}
}

// CachedFamily returns the family already resolved for fontID without
// touching the store.
func (l *FontLibrary) CachedFamily(fontID string) string {
	if fontID == "" {
		return DefaultFamily
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if name, ok := l.names[fontID]; ok {
		return name
	}
	return DefaultFamily
}

// Family resolves fontID to a family name, loading and registering the font
// from the store on first use. Missing fonts resolve to DefaultFamily; a
// font whose payload cannot be parsed keeps its family name and renders
// with the fallback face.
func (l *FontLibrary) Family(ctx context.Context, fontID string) (string, error) {
	if fontID == "" {
		return DefaultFamily, nil
	}
	l.mu.RLock()
	name, ok := l.names[fontID]
	l.mu.RUnlock()
	if ok {
		return name, nil
	}

	ch := l.group.DoChan(fontID, func() (any, error) {
		return l.fetch(context.WithoutCancel(ctx), fontID)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (l *FontLibrary) fetch(ctx context.Context, fontID string) (string, error) {
	l.mu.RLock()
	name, ok := l.names[fontID]
	l.mu.RUnlock()
	if ok {
		return name, nil
	}

	rec, err := l.source.GetFont(ctx, fontID)
	if errors.Is(err, core.ErrNotFound) || (err == nil && rec == nil) {
		logrus.WithField("fontId", fontID).Warn("Font not found, using fallback family")
		return DefaultFamily, nil
	}
	if err != nil {
		return "", fmt.Errorf("load font %s: %w", fontID, err)
	}

	if err := l.Register(rec.Family, rec.Data); err != nil {
		logrus.WithFields(logrus.Fields{
			"fontId": fontID,
			"family": rec.Family,
			"error":  err,
		}).Warn("Failed to register font")
	}

	l.mu.Lock()
	l.names[fontID] = rec.Family
	l.mu.Unlock()
	return rec.Family, nil
}

// Register parses an OpenType payload and makes it available under family.
func (l *FontLibrary) Register(family string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: font %q: %v", ErrDecode, family, err)
	}
	l.mu.Lock()
	l.families[family] = &variants{regular: f}
	l.mu.Unlock()
	return nil
}

// RegisterAll resolves every id, warming the family cache before a render.
// Individual failures are logged and skipped.
func (l *FontLibrary) RegisterAll(ctx context.Context, fontIDs []string) {
	for _, id := range fontIDs {
		if _, err := l.Family(ctx, id); err != nil {
			logrus.WithFields(logrus.Fields{
				"fontId": id,
				"error":  err,
			}).Debug("Font preload failed")
		}
	}
}

// Evict forgets the family name resolved for fontID so the next Family call
// reloads it.
func (l *FontLibrary) Evict(fontID string) {
	l.mu.Lock()
	delete(l.names, fontID)
	l.mu.Unlock()
}

// Face returns a new face for family at size px. Unknown families fall back
// to DefaultFamily. Faces are not safe for concurrent use, so callers get
// their own.
func (l *FontLibrary) Face(family string, size float64, bold, italic bool) (font.Face, error) {
	return opentype.NewFace(l.lookup(family).pick(bold, italic), &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// Synthetic reports which of the requested bold and italic styles family
// has no face for. Those have to be faked when painting.
func (l *FontLibrary) Synthetic(family string, bold, italic bool) (fakeBold, fakeItalic bool) {
	v := l.lookup(family)
	f := v.pick(bold, italic)
	fakeBold = bold && f != v.bold && f != v.boldItalic
	fakeItalic = italic && f != v.italic && f != v.boldItalic
	return fakeBold, fakeItalic
}

func (l *FontLibrary) lookup(family string) *variants {
	l.mu.RLock()
	v, ok := l.families[family]
	l.mu.RUnlock()
	if ok {
		return v
	}
	if v, ok = builtinFamilies()[family]; ok {
		return v
	}
	return builtinFamilies()[DefaultFamily]
}
