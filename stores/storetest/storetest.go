// Package storetest holds the behaviour every core.Store backend shares,
// run by each backend's tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"hizuke-thumb/core"
)

// Run exercises store against the core.Store contract. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Run("PresetRoundTrip", func(t *testing.T) { testPresetRoundTrip(t, newStore(t)) })
	t.Run("PresetNotFound", func(t *testing.T) { testPresetNotFound(t, newStore(t)) })
	t.Run("CreateConflict", func(t *testing.T) { testCreateConflict(t, newStore(t)) })
	t.Run("SaveStampsUpdatedAt", func(t *testing.T) { testSaveStamps(t, newStore(t)) })
	t.Run("ListOrder", func(t *testing.T) { testListOrder(t, newStore(t)) })
	t.Run("Images", func(t *testing.T) { testImages(t, newStore(t)) })
	t.Run("Fonts", func(t *testing.T) { testFonts(t, newStore(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, newStore(t)) })
}

// SamplePreset returns a preset with one layer of each kind.
func SamplePreset(id string) *core.Preset {
	p := core.NewPreset(id, "preset "+id, "base-"+id, 1280, 720)
	style := core.DefaultTextStyle()
	style.FontID = "font-" + id
	style.Shadow = &core.TextShadow{Enabled: true, OffsetX: 2, OffsetY: 2, Blur: 4, Color: "#000000"}
	p.Layers = core.Layers{
		core.NewImageLayer("img", "logo", "asset-"+id, 200, 100, 1),
		core.NewTextLayer("txt", "date", core.DateText("yyyy/MM/dd", "ja"), 2, style),
	}
	return p
}

func testPresetRoundTrip(t *testing.T, store core.Store) {
	ctx := context.Background()
	want := SamplePreset("p1")
	if err := store.CreatePreset(ctx, want); err != nil {
		t.Fatalf("CreatePreset() failed: %v", err)
	}

	got, err := store.GetPreset(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPreset() failed: %v", err)
	}
	if got.Name != want.Name || got.Canvas != want.Canvas {
		t.Errorf("GetPreset() = %+v, want %+v", got, want)
	}
	if len(got.Layers) != 2 {
		t.Fatalf("GetPreset() layers = %d, want 2", len(got.Layers))
	}
	txt, ok := got.Layers[1].(core.TextLayer)
	if !ok {
		t.Fatalf("layer 1 is %T, want core.TextLayer", got.Layers[1])
	}
	if txt.Style.Shadow == nil || txt.Style.Shadow.Blur != 4 || txt.Content.Format != "yyyy/MM/dd" {
		t.Errorf("text layer did not round-trip: %+v", txt)
	}

	if err := store.DeletePreset(ctx, "p1"); err != nil {
		t.Fatalf("DeletePreset() failed: %v", err)
	}
	if _, err := store.GetPreset(ctx, "p1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetPreset() after delete error = %v, want ErrNotFound", err)
	}
}

func testPresetNotFound(t *testing.T, store core.Store) {
	ctx := context.Background()
	if _, err := store.GetPreset(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetPreset() error = %v, want ErrNotFound", err)
	}
	if err := store.DeletePreset(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeletePreset() error = %v, want ErrNotFound", err)
	}
	presets, err := store.ListPresets(ctx)
	if err != nil {
		t.Fatalf("ListPresets() failed: %v", err)
	}
	if presets == nil || len(presets) != 0 {
		t.Errorf("ListPresets() on empty store = %#v, want empty slice", presets)
	}
}

func testCreateConflict(t *testing.T, store core.Store) {
	ctx := context.Background()
	if err := store.CreatePreset(ctx, SamplePreset("dup")); err != nil {
		t.Fatalf("CreatePreset() failed: %v", err)
	}
	if err := store.CreatePreset(ctx, SamplePreset("dup")); !errors.Is(err, core.ErrConflict) {
		t.Errorf("second CreatePreset() error = %v, want ErrConflict", err)
	}
}

func testSaveStamps(t *testing.T, store core.Store) {
	ctx := context.Background()
	p := SamplePreset("s1")
	p.CreatedAt, p.UpdatedAt = 10, 10
	if err := store.CreatePreset(ctx, p); err != nil {
		t.Fatalf("CreatePreset() failed: %v", err)
	}

	p.Name = "renamed"
	p.CreatedAt = 99
	if err := store.SavePreset(ctx, p); err != nil {
		t.Fatalf("SavePreset() failed: %v", err)
	}
	if p.UpdatedAt <= 10 {
		t.Errorf("SavePreset() did not stamp UpdatedAt: %d", p.UpdatedAt)
	}

	got, err := store.GetPreset(ctx, "s1")
	if err != nil {
		t.Fatalf("GetPreset() failed: %v", err)
	}
	if got.Name != "renamed" || got.CreatedAt != 10 || got.UpdatedAt != p.UpdatedAt {
		t.Errorf("GetPreset() = name %q created %d updated %d", got.Name, got.CreatedAt, got.UpdatedAt)
	}

	// SavePreset upserts.
	fresh := SamplePreset("s2")
	if err := store.SavePreset(ctx, fresh); err != nil {
		t.Fatalf("SavePreset() of a new preset failed: %v", err)
	}
	if _, err := store.GetPreset(ctx, "s2"); err != nil {
		t.Errorf("GetPreset() after upsert failed: %v", err)
	}
}

func testListOrder(t *testing.T, store core.Store) {
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		p := SamplePreset(id)
		p.UpdatedAt = int64([]int{200, 100, 300}[i])
		if err := store.CreatePreset(ctx, p); err != nil {
			t.Fatalf("CreatePreset(%s) failed: %v", id, err)
		}
	}

	presets, err := store.ListPresets(ctx)
	if err != nil {
		t.Fatalf("ListPresets() failed: %v", err)
	}
	var ids []string
	for _, p := range presets {
		ids = append(ids, p.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("ListPresets() order = %v, want [c a b]", ids)
	}
}

func testImages(t *testing.T, store core.Store) {
	ctx := context.Background()
	rec := &core.ImageRecord{ID: "i1", Name: "logo.png", MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}, CreatedAt: 5}
	if err := store.SaveImage(ctx, rec); err != nil {
		t.Fatalf("SaveImage() failed: %v", err)
	}

	got, err := store.GetImage(ctx, "i1")
	if err != nil {
		t.Fatalf("GetImage() failed: %v", err)
	}
	if got.Name != rec.Name || got.MimeType != rec.MimeType || string(got.Data) != string(rec.Data) || got.CreatedAt != 5 {
		t.Errorf("GetImage() = %+v", got)
	}

	if err := store.DeleteImages(ctx, "i1", "never-stored"); err != nil {
		t.Fatalf("DeleteImages() failed: %v", err)
	}
	if _, err := store.GetImage(ctx, "i1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetImage() after delete error = %v, want ErrNotFound", err)
	}
}

func testFonts(t *testing.T, store core.Store) {
	ctx := context.Background()
	for _, f := range []*core.FontRecord{
		{ID: "f2", Name: "Zen.ttf", Family: "Zen", Data: []byte("zen")},
		{ID: "f1", Name: "Alpha.otf", Family: "Alpha", Data: []byte("alpha")},
	} {
		if err := store.SaveFont(ctx, f); err != nil {
			t.Fatalf("SaveFont(%s) failed: %v", f.ID, err)
		}
	}

	fonts, err := store.ListFonts(ctx)
	if err != nil {
		t.Fatalf("ListFonts() failed: %v", err)
	}
	if len(fonts) != 2 || fonts[0].ID != "f1" || fonts[1].ID != "f2" {
		t.Fatalf("ListFonts() = %+v, want f1 then f2", fonts)
	}
	if len(fonts[0].Data) != 0 {
		t.Error("ListFonts() should omit font data")
	}

	got, err := store.GetFont(ctx, "f2")
	if err != nil {
		t.Fatalf("GetFont() failed: %v", err)
	}
	if got.Family != "Zen" || string(got.Data) != "zen" {
		t.Errorf("GetFont() = %+v", got)
	}

	if err := store.DeleteFonts(ctx, "f1", "f2"); err != nil {
		t.Fatalf("DeleteFonts() failed: %v", err)
	}
	if _, err := store.GetFont(ctx, "f1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetFont() after delete error = %v, want ErrNotFound", err)
	}
}

func testSettings(t *testing.T, store core.Store) {
	ctx := context.Background()
	if _, err := store.GetSetting(ctx, "canvasSettings"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetSetting() error = %v, want ErrNotFound", err)
	}

	value := json.RawMessage(`{"showGrid":true,"gridSize":32}`)
	if err := store.PutSetting(ctx, "canvasSettings", value); err != nil {
		t.Fatalf("PutSetting() failed: %v", err)
	}
	got, err := store.GetSetting(ctx, "canvasSettings")
	if err != nil {
		t.Fatalf("GetSetting() failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(got, &decoded); err != nil || decoded["gridSize"] != float64(32) {
		t.Errorf("GetSetting() = %s", got)
	}

	if err := store.PutSetting(ctx, "bad", json.RawMessage(`{`)); err == nil {
		t.Error("PutSetting() accepted invalid JSON")
	}

	if err := store.DeleteSetting(ctx, "canvasSettings"); err != nil {
		t.Fatalf("DeleteSetting() failed: %v", err)
	}
	if _, err := store.GetSetting(ctx, "canvasSettings"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetSetting() after delete error = %v, want ErrNotFound", err)
	}
}
