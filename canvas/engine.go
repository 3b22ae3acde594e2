package canvas

import (
	"context"
	"image"
	"image/color"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
)

const (
	selectionMargin    = 4
	selectionLineWidth = 2
	selectionDash      = 5
	handleSize         = 8
)

var (
	selectionColor = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	handleFill     = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Phase names the steps of one render cycle.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseClearing         Phase = "clearing"
	PhaseBaseDraw         Phase = "base_draw"
	PhaseLayerPass        Phase = "layer_pass"
	PhaseSelectionOverlay Phase = "selection_overlay"
	PhaseDone             Phase = "done"
)

// RenderContext carries per-render inputs.
type RenderContext struct {
	Date            time.Time
	SelectedLayerID string
	ShowSelection   bool
}

type Option func(*Engine)

// WithEncoder registers or replaces the encoder for mime.
func WithEncoder(mime string, enc Encoder) Option {
	return func(e *Engine) {
		e.encoders[mime] = enc
	}
}

// WithSize sets the initial surface size.
func WithSize(width, height int) Option {
	return func(e *Engine) {
		e.width, e.height = width, height
	}
}

// Engine composites a base image and a layer stack onto its own surface.
// Calls on one engine are serialised; the image cache and text engine may
// be shared between engines.
type Engine struct {
	images *ImageCache
	text   *TextEngine

	mu          sync.Mutex
	width       int
	height      int
	surface     *Surface
	baseImageID string
	encoders    map[string]Encoder
	seq         uint64
}

func NewEngine(images *ImageCache, text *TextEngine, opts ...Option) *Engine {
	e := &Engine{
		images:   images,
		text:     text,
		encoders: defaultEncoders(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.surface = NewSurface(e.width, e.height)
	return e
}

// SetSize replaces the surface with a fresh one of the given size.
func (e *Engine) SetSize(width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.width, e.height = width, height
	e.surface = NewSurface(width, height)
}

func (e *Engine) Size() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// SetBaseImage records the base image and starts loading it in the
// background. An empty id removes the base image.
func (e *Engine) SetBaseImage(ctx context.Context, id string) {
	e.mu.Lock()
	e.baseImageID = id
	e.mu.Unlock()

	if id == "" {
		return
	}
	go func() {
		if _, err := e.images.Load(context.WithoutCancel(ctx), id); err != nil {
			logrus.WithFields(logrus.Fields{
				"imageId": id,
				"error":   err,
			}).Warn("Failed to load base image")
		}
	}()
}

func (e *Engine) BaseImage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseImageID
}

// PreloadLayerImages warms the cache with the base image and every image
// layer's asset in one batch.
func (e *Engine) PreloadLayerImages(ctx context.Context, layers core.Layers) {
	ids := make([]string, 0, len(layers)+1)
	if base := e.BaseImage(); base != "" {
		ids = append(ids, base)
	}
	for _, l := range layers {
		if img, ok := l.(core.ImageLayer); ok {
			ids = append(ids, img.ImageID)
		}
	}
	e.images.Preload(ctx, ids)
}

// Clear makes the surface transparent.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surface.Clear()
}

// Render clears the surface and paints the base image and the visible
// layers in z order. Failures of individual layers are logged and skipped;
// only cancellation of ctx is returned.
func (e *Engine) Render(ctx context.Context, layers core.Layers, rc RenderContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.render(ctx, e.surface, layers, rc)
}

// Image returns a copy of the surface.
func (e *Engine) Image() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface.Snapshot()
}

// ToBlob encodes the current surface. Unknown types are encoded as PNG.
func (e *Engine) ToBlob(mime string, quality float64) (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encode(e.surface.RGBA(), mime, quality)
}

func (e *Engine) ToDataURL(mime string, quality float64) (string, error) {
	b, err := e.ToBlob(mime, quality)
	if err != nil {
		return "", err
	}
	return b.DataURL(), nil
}

// RenderToBlob renders layers off-screen at the engine's size without the
// selection overlay and encodes the result as PNG. The editing surface is
// not touched.
func (e *Engine) RenderToBlob(ctx context.Context, layers core.Layers, rc RenderContext) (*Blob, error) {
	return e.Export(ctx, layers, rc, MimePNG, DefaultQuality)
}

// Export is RenderToBlob with a choice of format.
func (e *Engine) Export(ctx context.Context, layers core.Layers, rc RenderContext, mime string, quality float64) (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rc.ShowSelection = false
	off := NewSurface(e.width, e.height)
	if err := e.render(ctx, off, layers, rc); err != nil {
		return nil, err
	}
	return e.encode(off.RGBA(), mime, quality)
}

// Visible returns the layers that render paints, in paint order: visible
// only, ascending z, ties kept in input order.
func Visible(layers core.Layers) core.Layers {
	out := make(core.Layers, 0, len(layers))
	for _, l := range layers {
		if l.Base().Visible {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Base().ZIndex < out[j].Base().ZIndex
	})
	return out
}

func (e *Engine) render(ctx context.Context, s *Surface, layers core.Layers, rc RenderContext) error {
	e.seq++
	log := logrus.WithField("render", e.seq)
	phase := func(p Phase) {
		log.WithField("phase", p).Debug("Render phase")
	}

	phase(PhaseClearing)
	s.Clear()

	phase(PhaseBaseDraw)
	if e.baseImageID != "" {
		if base := e.images.Peek(e.baseImageID); base != nil {
			s.DrawImage(base, 0, 0, float64(s.Width()), float64(s.Height()), 1)
		}
	}

	phase(PhaseLayerPass)
	for _, l := range Visible(layers) {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.paintLayer(ctx, s, l, rc.Date)

		if rc.ShowSelection && l.Base().ID == rc.SelectedLayerID {
			phase(PhaseSelectionOverlay)
			e.paintSelection(s, l, rc.Date)
		}
	}

	phase(PhaseDone)
	return nil
}

func (e *Engine) paintLayer(ctx context.Context, s *Surface, l core.Layer, date time.Time) {
	log := logrus.WithFields(logrus.Fields{
		"layerId": l.Base().ID,
		"type":    l.Type(),
	})

	switch v := l.(type) {
	case core.ImageLayer:
		img, err := e.images.Load(ctx, v.ImageID)
		if err != nil {
			log.WithField("error", err).Warn("Skipping image layer")
			return
		}
		if img == nil {
			return
		}
		s.DrawImage(img, v.Position.X, v.Position.Y, v.Size.Width, v.Size.Height, clamp01(v.Opacity))
	case core.TextLayer:
		if err := e.text.Paint(ctx, s, v, date); err != nil {
			log.WithField("error", err).Warn("Skipping text layer")
		}
	}
}

// Bounds returns the rectangle the selection overlay frames: an image
// layer's box, or a text layer's measured box shifted by its alignment.
func (e *Engine) Bounds(l core.Layer, date time.Time) (x, y, w, h float64, err error) {
	switch v := l.(type) {
	case core.ImageLayer:
		return v.Position.X, v.Position.Y, v.Size.Width, v.Size.Height, nil
	case core.TextLayer:
		size, err := e.text.Measure(v, date)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		x := alignStart(v.Position.X, size.Width, v.Style.Align)
		return x, v.Position.Y, size.Width, size.Height, nil
	}
	return 0, 0, 0, 0, nil
}

func (e *Engine) paintSelection(s *Surface, l core.Layer, date time.Time) {
	x, y, w, h, err := e.Bounds(l, date)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"layerId": l.Base().ID,
			"error":   err,
		}).Debug("Cannot measure selected layer")
		return
	}

	s.DashedRect(x-selectionMargin, y-selectionMargin, w+2*selectionMargin, h+2*selectionMargin,
		selectionLineWidth, selectionDash, selectionDash, selectionColor)

	corners := [4][2]float64{
		{x - selectionMargin, y - selectionMargin},
		{x + w + selectionMargin, y - selectionMargin},
		{x - selectionMargin, y + h + selectionMargin},
		{x + w + selectionMargin, y + h + selectionMargin},
	}
	for _, c := range corners {
		hx, hy := c[0]-handleSize/2, c[1]-handleSize/2
		s.FillRect(hx, hy, handleSize, handleSize, handleFill)
		s.StrokeRect(hx, hy, handleSize, handleSize, selectionLineWidth, selectionColor)
	}
}
