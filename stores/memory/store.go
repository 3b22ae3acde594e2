package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
)

// memStore keeps every record in maps. Records are copied on the way in and
// out so callers never share state with the store.
type memStore struct {
	mu       sync.RWMutex
	presets  map[string]*core.Preset
	images   map[string]*core.ImageRecord
	fonts    map[string]*core.FontRecord
	settings map[string]json.RawMessage
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		presets:  make(map[string]*core.Preset),
		images:   make(map[string]*core.ImageRecord),
		fonts:    make(map[string]*core.FontRecord),
		settings: make(map[string]json.RawMessage),
	}
}

func (s *memStore) GetPreset(ctx context.Context, id string) (*core.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[id]
	if !ok {
		logrus.WithField("presetId", id).Warn("Preset not found")
		return nil, fmt.Errorf("preset %s: %w", id, core.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *memStore) ListPresets(ctx context.Context) ([]*core.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	presets := make([]*core.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		presets = append(presets, p.Clone())
	}
	core.SortPresets(presets)
	return presets, nil
}

func (s *memStore) CreatePreset(ctx context.Context, preset *core.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if preset.ID == "" {
		return fmt.Errorf("preset id cannot be empty")
	}
	if _, exists := s.presets[preset.ID]; exists {
		return fmt.Errorf("preset %s: %w", preset.ID, core.ErrConflict)
	}
	s.presets[preset.ID] = preset.Clone()
	logrus.WithField("presetId", preset.ID).Info("Preset created successfully")
	return nil
}

func (s *memStore) SavePreset(ctx context.Context, preset *core.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if preset.ID == "" {
		return fmt.Errorf("preset id cannot be empty")
	}
	now := core.NowMillis()
	if existing, ok := s.presets[preset.ID]; ok {
		preset.CreatedAt = existing.CreatedAt
	} else if preset.CreatedAt == 0 {
		preset.CreatedAt = now
	}
	preset.UpdatedAt = now
	s.presets[preset.ID] = preset.Clone()
	logrus.WithField("presetId", preset.ID).Debug("Preset saved")
	return nil
}

func (s *memStore) DeletePreset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presets[id]; !ok {
		logrus.WithField("presetId", id).Warn("Preset not found for deletion")
		return fmt.Errorf("preset %s: %w", id, core.ErrNotFound)
	}
	delete(s.presets, id)
	logrus.WithField("presetId", id).Info("Preset deleted successfully")
	return nil
}

func (s *memStore) GetImage(ctx context.Context, id string) (*core.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[id]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", id, core.ErrNotFound)
	}
	c := *img
	return &c, nil
}

func (s *memStore) SaveImage(ctx context.Context, image *core.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if image.ID == "" {
		return fmt.Errorf("image id cannot be empty")
	}
	c := *image
	s.images[image.ID] = &c
	logrus.WithFields(logrus.Fields{
		"imageId":     image.ID,
		"data_length": len(image.Data),
	}).Info("Image saved successfully")
	return nil
}

func (s *memStore) DeleteImages(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.images, id)
	}
	return nil
}

func (s *memStore) GetFont(ctx context.Context, id string) (*core.FontRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fonts[id]
	if !ok {
		return nil, fmt.Errorf("font %s: %w", id, core.ErrNotFound)
	}
	c := *f
	return &c, nil
}

func (s *memStore) ListFonts(ctx context.Context) ([]*core.FontRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fonts := make([]*core.FontRecord, 0, len(s.fonts))
	for _, f := range s.fonts {
		c := *f
		c.Data = nil
		fonts = append(fonts, &c)
	}
	core.SortFonts(fonts)
	return fonts, nil
}

func (s *memStore) SaveFont(ctx context.Context, font *core.FontRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if font.ID == "" {
		return fmt.Errorf("font id cannot be empty")
	}
	c := *font
	s.fonts[font.ID] = &c
	logrus.WithFields(logrus.Fields{
		"fontId": font.ID,
		"family": font.Family,
	}).Info("Font saved successfully")
	return nil
}

func (s *memStore) DeleteFonts(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.fonts, id)
	}
	return nil
}

func (s *memStore) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.settings[key]
	if !ok {
		return nil, fmt.Errorf("setting %s: %w", key, core.ErrNotFound)
	}
	return slices.Clone(v), nil
}

func (s *memStore) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("setting %s: value is not valid JSON", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = slices.Clone(value)
	return nil
}

func (s *memStore) DeleteSetting(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, key)
	return nil
}
