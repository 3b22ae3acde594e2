// Package apitest builds services and requests for handler tests.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"hizuke-thumb/canvas"
	"hizuke-thumb/core"
	"hizuke-thumb/presets"
	"hizuke-thumb/stores/memory"
)

// ErrBackend is returned by every call on a BrokenStore.
var ErrBackend = errors.New("backend unavailable")

// NewService returns a service over an empty in-memory store.
func NewService(t *testing.T) *presets.Service {
	t.Helper()
	return ServiceFor(memory.NewStore())
}

func ServiceFor(store core.Store) *presets.Service {
	images := canvas.NewImageCache(store)
	text := canvas.NewTextEngine(canvas.NewFontLibrary(store))
	return presets.NewService(store, images, text)
}

// PNG encodes a solid w×h image.
func PNG(t *testing.T, w, h int, c color.Color) []byte {
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

// Request builds a request with chi URL params given as name, value pairs.
func Request(method, target string, body io.Reader, params ...string) *http.Request {
	if body == nil {
		body = http.NoBody
	}
	req := httptest.NewRequest(method, target, body)
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// BrokenStore fails every operation with ErrBackend.
type BrokenStore struct{}

func (BrokenStore) GetPreset(context.Context, string) (*core.Preset, error) { return nil, ErrBackend }
func (BrokenStore) ListPresets(context.Context) ([]*core.Preset, error) { return nil, ErrBackend }
func (BrokenStore) CreatePreset(context.Context, *core.Preset) error { return ErrBackend }
func (BrokenStore) SavePreset(context.Context, *core.Preset) error { return ErrBackend }
func (BrokenStore) DeletePreset(context.Context, string) error { return ErrBackend }
func (BrokenStore) GetImage(context.Context, string) (*core.ImageRecord, error) {
	return nil, ErrBackend
}
func (BrokenStore) SaveImage(context.Context, *core.ImageRecord) error { return ErrBackend }
func (BrokenStore) DeleteImages(context.Context, ...string) error { return ErrBackend }
func (BrokenStore) GetFont(context.Context, string) (*core.FontRecord, error) {
	return nil, ErrBackend
}
func (BrokenStore) ListFonts(context.Context) ([]*core.FontRecord, error) { return nil, ErrBackend }
func (BrokenStore) SaveFont(context.Context, *core.FontRecord) error { return ErrBackend }
func (BrokenStore) DeleteFonts(context.Context, ...string) error { return ErrBackend }
func (BrokenStore) GetSetting(context.Context, string) (json.RawMessage, error) {
	return nil, ErrBackend
}
func (BrokenStore) PutSetting(context.Context, string, json.RawMessage) error { return ErrBackend }
func (BrokenStore) DeleteSetting(context.Context, string) error { return ErrBackend }
