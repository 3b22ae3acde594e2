package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
)

// ErrPersistence wraps store failures raised while saving.
var ErrPersistence = errors.New("persistence failure")

// DefaultAutoSaveDelay is how long TriggerAutoSave waits for further edits.
const DefaultAutoSaveDelay = time.Second

// FontRegistrar warms fonts for a loaded preset.
type FontRegistrar interface {
	RegisterAll(ctx context.Context, fontIDs []string)
}

type SessionOption func(*Session)

func WithAutoSaveDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.delay = d }
}

func WithFonts(fonts FontRegistrar) SessionOption {
	return func(s *Session) { s.fonts = fonts }
}

// Session is one open preset: the stored record plus the layer and canvas
// state being edited. It is safe for concurrent use.
type Session struct {
	store core.PresetStore
	fonts FontRegistrar
	delay time.Duration

	mu      sync.Mutex
	preset  *core.Preset
	layers  LayerState
	canvas  CanvasState
	status  core.SaveStatus
	version uint64
	timer   *time.Timer

	// saveMu orders concurrent saves so an older snapshot never lands last.
	saveMu sync.Mutex
}

func NewSession(store core.PresetStore, opts ...SessionOption) *Session {
	s := &Session{
		store:  store,
		delay:  DefaultAutoSaveDelay,
		canvas: NewCanvasState(),
		status: core.StatusSaved,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load opens the stored preset id. It reports false when there is no such
// preset.
func (s *Session) Load(ctx context.Context, id string) (bool, error) {
	p, err := s.store.GetPreset(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: load preset %s: %w", ErrPersistence, id, err)
	}
	s.Open(p)
	if s.fonts != nil {
		s.fonts.RegisterAll(ctx, p.FontIDs())
	}
	return true, nil
}

// Open makes p the current preset without touching the store.
func (s *Session) Open(p *core.Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
	s.preset = p.Clone()
	s.canvas = s.canvas.SetSize(p.Canvas.Width, p.Canvas.Height).SetBaseImage(p.Canvas.BaseImageID)
	s.layers = NewLayerState(p.Layers)
	s.status = core.StatusSaved
	s.version++
}

// Preset returns the current preset with the edited canvas and layers
// applied, or nil when nothing is open.
func (s *Session) Preset() *core.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() *core.Preset {
	if s.preset == nil {
		return nil
	}
	p := s.preset.Clone()
	p.Canvas = core.CanvasConfig{
		Width:       s.canvas.Width,
		Height:      s.canvas.Height,
		BaseImageID: s.canvas.BaseImageID,
	}
	p.Layers = s.layers.Layers()
	return p
}

func (s *Session) Layers() LayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers
}

func (s *Session) Canvas() CanvasState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas
}

func (s *Session) Status() core.SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Update replaces the layer state with fn's result and marks the session
// unsaved.
func (s *Session) Update(fn func(LayerState) LayerState) LayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = fn(s.layers)
	s.markDirty()
	return s.layers
}

// UpdateCanvas replaces the canvas state with fn's result. Only size and
// base image changes are persisted.
func (s *Session) UpdateCanvas(fn func(CanvasState) CanvasState) CanvasState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas = fn(s.canvas)
	s.markDirty()
	return s.canvas
}

func (s *Session) markDirty() {
	s.version++
	if s.preset != nil {
		s.status = core.StatusUnsaved
	}
}

// Save writes the current state to the store. On failure the status reverts
// to unsaved and the error wraps ErrPersistence. Saving with no preset open
// is a no-op.
func (s *Session) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	p := s.snapshot()
	if p == nil {
		s.mu.Unlock()
		return nil
	}
	version := s.version
	s.status = core.StatusSaving
	s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"presetId": p.ID,
		"layers":   len(p.Layers),
	})

	err := s.store.SavePreset(ctx, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = core.StatusUnsaved
		log.WithField("error", err).Error("Failed to save preset")
		return fmt.Errorf("%w: save preset %s: %w", ErrPersistence, p.ID, err)
	}

	if s.preset != nil && s.preset.ID == p.ID {
		s.preset.UpdatedAt = p.UpdatedAt
		s.preset.Canvas = p.Canvas
	}
	if s.version == version {
		s.status = core.StatusSaved
	} else {
		s.status = core.StatusUnsaved
	}
	log.Info("Preset saved")
	return nil
}

// TriggerAutoSave marks the session unsaved and schedules a save after the
// auto-save delay, restarting the delay on every call.
func (s *Session) TriggerAutoSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preset == nil {
		return
	}
	s.status = core.StatusUnsaved
	s.stopTimer()
	s.timer = time.AfterFunc(s.delay, func() {
		if err := s.Save(context.Background()); err != nil {
			logrus.WithField("error", err).Warn("Auto-save failed")
		}
	})
}

// Rename changes the preset's name and saves it.
func (s *Session) Rename(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.preset == nil {
		s.mu.Unlock()
		return nil
	}
	s.preset.Name = name
	s.markDirty()
	s.mu.Unlock()
	return s.Save(ctx)
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close cancels any pending auto-save.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
}
