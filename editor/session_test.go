package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hizuke-thumb/core"
)

type fakePresets struct {
	mu      sync.Mutex
	presets map[string]*core.Preset
	saves   int
	fail    error
}

func newFakePresets(ps ...*core.Preset) *fakePresets {
	f := &fakePresets{presets: make(map[string]*core.Preset)}
	for _, p := range ps {
		f.presets[p.ID] = p.Clone()
	}
	return f
}

func (f *fakePresets) GetPreset(_ context.Context, id string) (*core.Preset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.presets[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *fakePresets) ListPresets(context.Context) ([]*core.Preset, error) { return nil, nil }

func (f *fakePresets) CreatePreset(_ context.Context, p *core.Preset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presets[p.ID] = p.Clone()
	return nil
}

func (f *fakePresets) SavePreset(_ context.Context, p *core.Preset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.fail != nil {
		return f.fail
	}
	p.UpdatedAt = core.NowMillis()
	f.presets[p.ID] = p.Clone()
	return nil
}

func (f *fakePresets) DeletePreset(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.presets, id)
	return nil
}

func (f *fakePresets) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type recordingFonts struct{ ids []string }

func (r *recordingFonts) RegisterAll(_ context.Context, ids []string) { r.ids = append(r.ids, ids...) }

func samplePreset() *core.Preset {
	p := core.NewPreset("p1", "weekly", "base", 640, 360)
	style := core.DefaultTextStyle()
	style.FontID = "font-1"
	p.Layers = core.Layers{core.NewTextLayer("t", "date", core.DateText("M/d", "en"), 1, style)}
	return p
}

func TestSession_LoadAndSave(t *testing.T) {
	store := newFakePresets(samplePreset())
	fonts := &recordingFonts{}
	s := NewSession(store, WithFonts(fonts))
	ctx := context.Background()

	ok, err := s.Load(ctx, "missing")
	if ok || err != nil {
		t.Fatalf("Load(missing) = %v, %v", ok, err)
	}
	if err := s.Save(ctx); err != nil || store.saveCount() != 0 {
		t.Fatalf("Save() with nothing open = %v, saves %d", err, store.saveCount())
	}

	ok, err = s.Load(ctx, "p1")
	if !ok || err != nil {
		t.Fatalf("Load(p1) = %v, %v", ok, err)
	}
	if len(fonts.ids) != 1 || fonts.ids[0] != "font-1" {
		t.Errorf("fonts registered = %v", fonts.ids)
	}
	if c := s.Canvas(); c.Width != 640 || c.BaseImageID != "base" {
		t.Errorf("canvas = %+v", c)
	}

	s.Update(func(ls LayerState) LayerState { return ls.Move("t", 10, 20) })
	if s.Status() != core.StatusUnsaved {
		t.Errorf("Status() after edit = %s", s.Status())
	}

	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if s.Status() != core.StatusSaved {
		t.Errorf("Status() after save = %s", s.Status())
	}
	stored, _ := store.GetPreset(ctx, "p1")
	if pos := stored.Layers[0].Base().Position; pos != (core.Point{X: 10, Y: 20}) {
		t.Errorf("stored position = %+v", pos)
	}

	if err := s.Rename(ctx, "daily"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}
	if stored, _ := store.GetPreset(ctx, "p1"); stored.Name != "daily" {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestSession_SaveFailureRevertsStatus(t *testing.T) {
	store := newFakePresets(samplePreset())
	s := NewSession(store)
	ctx := context.Background()
	if _, err := s.Load(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	store.fail = errors.New("quota exceeded")
	s.Update(func(ls LayerState) LayerState { return ls.ToggleVisibility("t") })

	err := s.Save(ctx)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Save() error = %v, want ErrPersistence", err)
	}
	if s.Status() != core.StatusUnsaved {
		t.Errorf("Status() = %s, want unsaved", s.Status())
	}

	store.fail = nil
	if err := s.Save(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if s.Status() != core.StatusSaved {
		t.Errorf("Status() after retry = %s", s.Status())
	}
}

func TestSession_AutoSaveDebounces(t *testing.T) {
	store := newFakePresets(samplePreset())
	s := NewSession(store, WithAutoSaveDelay(30*time.Millisecond))
	defer s.Close()
	if _, err := s.Load(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		s.Update(func(ls LayerState) LayerState { return ls.Move("t", 1, 0) })
		s.TriggerAutoSave()
		time.Sleep(5 * time.Millisecond)
	}
	if s.Status() != core.StatusUnsaved {
		t.Errorf("Status() while pending = %s", s.Status())
	}

	deadline := time.Now().Add(time.Second)
	for s.Status() != core.StatusSaved && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Status() != core.StatusSaved {
		t.Fatal("auto-save never completed")
	}
	if n := store.saveCount(); n != 1 {
		t.Errorf("saves = %d, want 1", n)
	}
}

func TestSession_CloseCancelsAutoSave(t *testing.T) {
	store := newFakePresets(samplePreset())
	s := NewSession(store, WithAutoSaveDelay(20*time.Millisecond))
	s.Open(samplePreset())

	s.TriggerAutoSave()
	s.Close()
	time.Sleep(60 * time.Millisecond)

	if n := store.saveCount(); n != 0 {
		t.Errorf("saves after Close = %d, want 0", n)
	}
}

func TestSession_PresetSnapshotIsDetached(t *testing.T) {
	s := NewSession(newFakePresets())
	if s.Preset() != nil {
		t.Fatal("Preset() with nothing open should be nil")
	}
	s.Open(samplePreset())

	p := s.Preset()
	p.Layers = append(p.Layers, core.NewImageLayer("x", "x", "x", 1, 1, 9))
	p.Name = "changed"

	if got := s.Preset(); len(got.Layers) != 1 || got.Name != "weekly" {
		t.Errorf("session state leaked through snapshot: %+v", got)
	}
}
