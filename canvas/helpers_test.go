package canvas

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"hizuke-thumb/core"
)

// fakeAssets is an in-memory image and font source that counts fetches and
// can hold fetches until released.
type fakeAssets struct {
	mu      sync.Mutex
	images  map[string][]byte
	fonts   map[string]*core.FontRecord
	fetches map[string]int

	started chan string
	gate    chan struct{}
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{
		images:  make(map[string][]byte),
		fonts:   make(map[string]*core.FontRecord),
		fetches: make(map[string]int),
	}
}

func (f *fakeAssets) GetImage(ctx context.Context, id string) (*core.ImageRecord, error) {
	f.mu.Lock()
	f.fetches[id]++
	data, ok := f.images[id]
	started, gate := f.started, f.gate
	f.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, core.ErrNotFound
	}
	return &core.ImageRecord{ID: id, MimeType: "image/png", Data: data}, nil
}

func (f *fakeAssets) GetFont(ctx context.Context, id string) (*core.FontRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches["font:"+id]++
	rec, ok := f.fonts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return rec, nil
}

func (f *fakeAssets) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

func (f *fakeAssets) addSolid(t *testing.T, id string, w, h int, c color.Color) {
	t.Helper()
	f.images[id] = solidPNG(t, w, h, c)
}

func (f *fakeAssets) addFont(id, family string) {
	f.fonts[id] = &core.FontRecord{ID: id, Name: family + ".ttf", Family: family, Data: goregular.TTF}
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() failed: %v", err)
	}
	return buf.Bytes()
}

func newTestEngine(assets *fakeAssets, w, h int, opts ...Option) *Engine {
	text := NewTextEngine(NewFontLibrary(assets))
	return NewEngine(NewImageCache(assets), text, append([]Option{WithSize(w, h)}, opts...)...)
}

func rgbaAt(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
)
