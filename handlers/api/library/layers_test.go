package library

import (
	"context"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hizuke-thumb/core"
	"hizuke-thumb/handlers/api/apitest"
	"hizuke-thumb/presets"
)

// addLayer posts body to the add-layer handler and returns the new layer.
func addLayer(t *testing.T, svc *presets.Service, presetID, body string) core.Layer {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleAddLayer(svc)(rec, apitest.Request(http.MethodPost, "/", strings.NewReader(body), "id", presetID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("HandleAddLayer status: got %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body)
	}
	l, err := core.UnmarshalLayer(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("Failed to decode layer %s: %v", rec.Body, err)
	}
	return l
}

func storedLayers(t *testing.T, svc *presets.Service, id string) core.Layers {
	t.Helper()
	p, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return p.Layers
}

func TestHandleAddLayer_Text(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "p")

	l := addLayer(t, svc, p.ID, `{"type":"text","content":{"type":"date","format":"yyyy/MM/dd","locale":"ja"},"position":{"x":12,"y":34}}`)
	text, ok := l.(core.TextLayer)
	if !ok {
		t.Fatalf("Added layer is %T, want core.TextLayer", l)
	}
	if text.Name != "日付" || text.Position != (core.Point{X: 12, Y: 34}) || text.Style.FontSize <= 0 {
		t.Errorf("Added text layer = %+v", text)
	}
	if layers := storedLayers(t, svc, p.ID); len(layers) != 1 {
		t.Errorf("Stored layer count = %d, want 1", len(layers))
	}
}

func TestHandleAddLayer_ImageUsesNaturalSize(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "p")
	logo, err := svc.UploadImage(context.Background(), "logo.png", apitest.PNG(t, 24, 12, color.Black))
	if err != nil {
		t.Fatal(err)
	}

	l := addLayer(t, svc, p.ID, `{"type":"image","imageId":"`+logo.ID+`","name":"logo"}`)
	img, ok := l.(core.ImageLayer)
	if !ok {
		t.Fatalf("Added layer is %T, want core.ImageLayer", l)
	}
	if img.Size != (core.Size{Width: 24, Height: 12}) || img.Opacity != 1 {
		t.Errorf("Added image layer = %+v", img)
	}
}

func TestHandleAddLayer_BadRequests(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "p")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"unknown type", `{"type":"shape"}`, http.StatusBadRequest},
		{"image without id", `{"type":"image"}`, http.StatusBadRequest},
		{"missing image", `{"type":"image","imageId":"nope"}`, http.StatusNotFound},
		{"zero font size", `{"type":"text","style":{"fontSize":0}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleAddLayer(svc)(rec, apitest.Request(http.MethodPost, "/", strings.NewReader(tt.body), "id", p.ID))
			if rec.Code != tt.want {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if layers := storedLayers(t, svc, p.ID); len(layers) != 0 {
		t.Errorf("Rejected requests stored %d layers", len(layers))
	}

	rec := httptest.NewRecorder()
	HandleAddLayer(svc)(rec, apitest.Request(http.MethodPost, "/", strings.NewReader(`{"type":"text"}`), "id", "missing"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Unknown preset: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleUpdateLayer(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "p")
	l := addLayer(t, svc, p.ID, `{"type":"text","content":{"type":"static","value":"old"}}`).(core.TextLayer)

	l.Content = core.StaticText("new")
	l.Style.Color = "#ff0000"
	body, _ := json.Marshal(l)

	rec := httptest.NewRecorder()
	HandleUpdateLayer(svc)(rec, apitest.Request(http.MethodPatch, "/", strings.NewReader(string(body)), "id", p.ID, "layerId", l.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body)
	}
	got := storedLayers(t, svc, p.ID)[0].(core.TextLayer)
	if got.Content.Value != "new" || got.Style.Color != "#ff0000" {
		t.Errorf("Stored layer = %+v", got)
	}

	image := core.NewImageLayer(l.ID, "swap", "img", 1, 1, 1)
	body, _ = json.Marshal(image)
	rec = httptest.NewRecorder()
	HandleUpdateLayer(svc)(rec, apitest.Request(http.MethodPatch, "/", strings.NewReader(string(body)), "id", p.ID, "layerId", l.ID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Changing the layer type: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = httptest.NewRecorder()
	HandleUpdateLayer(svc)(rec, apitest.Request(http.MethodPatch, "/", strings.NewReader(string(body)), "id", p.ID, "layerId", "missing"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Unknown layer: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleDeleteLayer(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "p")
	l := addLayer(t, svc, p.ID, `{"type":"text"}`)

	rec := httptest.NewRecorder()
	HandleDeleteLayer(svc)(rec, apitest.Request(http.MethodDelete, "/", nil, "id", p.ID, "layerId", l.Base().ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if layers := storedLayers(t, svc, p.ID); len(layers) != 0 {
		t.Errorf("Layer not deleted: %v", layers)
	}

	rec = httptest.NewRecorder()
	HandleDeleteLayer(svc)(rec, apitest.Request(http.MethodDelete, "/", nil, "id", p.ID, "layerId", l.Base().ID))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Second delete: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleDuplicateLayer(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "p")
	l := addLayer(t, svc, p.ID, `{"type":"text","name":"title","position":{"x":10,"y":10}}`)

	rec := httptest.NewRecorder()
	HandleDuplicateLayer(svc)(rec, apitest.Request(http.MethodPost, "/", nil, "id", p.ID, "layerId", l.Base().ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusCreated)
	}
	dup, err := core.UnmarshalLayer(rec.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	b := dup.Base()
	if b.ID == l.Base().ID || b.Name != "title (コピー)" || b.Position != (core.Point{X: 30, Y: 30}) || b.ZIndex <= l.Base().ZIndex {
		t.Errorf("Duplicate layer = %+v", b)
	}
	if layers := storedLayers(t, svc, p.ID); len(layers) != 2 {
		t.Errorf("Stored layer count = %d, want 2", len(layers))
	}
}

func TestHandleOrderLayer(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "p")
	bottom := addLayer(t, svc, p.ID, `{"type":"text","name":"bottom"}`).Base().ID
	top := addLayer(t, svc, p.ID, `{"type":"text","name":"top"}`).Base().ID

	order := func(layerID, direction string) int {
		rec := httptest.NewRecorder()
		HandleOrderLayer(svc)(rec, apitest.Request(http.MethodPost, "/", strings.NewReader(`{"direction":"`+direction+`"}`), "id", p.ID, "layerId", layerID))
		return rec.Code
	}
	z := func(id string) int {
		l, _ := storedLayers(t, svc, p.ID).Find(id)
		return l.Base().ZIndex
	}

	if code := order(bottom, "front"); code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", code, http.StatusOK)
	}
	if z(bottom) <= z(top) {
		t.Errorf("front: z(bottom)=%d, z(top)=%d", z(bottom), z(top))
	}

	order(bottom, "backward")
	if z(bottom) >= z(top) {
		t.Errorf("backward: z(bottom)=%d, z(top)=%d", z(bottom), z(top))
	}

	if code := order(bottom, "sideways"); code != http.StatusBadRequest {
		t.Errorf("Unknown direction: got %d, want %d", code, http.StatusBadRequest)
	}
	if code := order("missing", "front"); code != http.StatusNotFound {
		t.Errorf("Unknown layer: got %d, want %d", code, http.StatusNotFound)
	}
}
