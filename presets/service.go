// Package presets implements preset lifecycle operations on top of a store:
// creation from an uploaded base image, duplication, deletion with
// collection of assets no other preset uses, the default preset, layer
// edits, export and import, and server-side rendering.
package presets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"hizuke-thumb/canvas"
	"hizuke-thumb/core"
	"hizuke-thumb/editor"
	"hizuke-thumb/fileutil"
)

// ErrInvalid marks input the service rejects: unsupported uploads and
// malformed presets or exports.
var ErrInvalid = errors.New("invalid input")

// Service is safe for concurrent use. Layer edits are serialised so two
// edits of one preset never overwrite each other.
type Service struct {
	store  core.Store
	images *canvas.ImageCache
	text   *canvas.TextEngine

	editMu sync.Mutex
}

func NewService(store core.Store, images *canvas.ImageCache, text *canvas.TextEngine) *Service {
	return &Service{
		store:  store,
		images: images,
		text:   text,
	}
}

// List returns every preset, most recently updated first.
func (s *Service) List(ctx context.Context) ([]*core.Preset, error) {
	return s.store.ListPresets(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*core.Preset, error) {
	return s.store.GetPreset(ctx, id)
}

// CreateFromImage stores data as a base image and creates a preset sized to
// it, named after the file without its extension.
func (s *Service) CreateFromImage(ctx context.Context, filename string, data []byte) (*core.Preset, error) {
	img, cfg, err := s.saveImage(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	if name == "" {
		name = "preset"
	}
	p := core.NewPreset(core.NewID(), name, img.ID, cfg.Width, cfg.Height)

	log := logrus.WithFields(logrus.Fields{
		"presetId": p.ID,
		"imageId":  img.ID,
		"width":    cfg.Width,
		"height":   cfg.Height,
	})
	if err := s.store.CreatePreset(ctx, p); err != nil {
		log.WithField("error", err).Error("Failed to create preset")
		return nil, err
	}
	log.Info("Preset created")
	return p, nil
}

// Duplicate copies preset id under a new id. An empty name appends
// " (コピー)" to the original's. The copy is never the default.
func (s *Service) Duplicate(ctx context.Context, id, name string) (*core.Preset, error) {
	src, err := s.store.GetPreset(ctx, id)
	if err != nil {
		return nil, err
	}

	dup := src.Clone()
	dup.ID = core.NewID()
	dup.Name = name
	if dup.Name == "" {
		dup.Name = src.Name + " (コピー)"
	}
	dup.IsDefault = false
	dup.CreatedAt = core.NowMillis()
	dup.UpdatedAt = dup.CreatedAt

	if err := s.store.CreatePreset(ctx, dup); err != nil {
		logrus.WithFields(logrus.Fields{
			"presetId": id,
			"error":    err,
		}).Error("Failed to duplicate preset")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"presetId": id,
		"copyId":   dup.ID,
	}).Info("Preset duplicated")
	return dup, nil
}

// Delete removes preset id together with the images and fonts that no
// other preset references.
func (s *Service) Delete(ctx context.Context, id string) error {
	all, err := s.store.ListPresets(ctx)
	if err != nil {
		return err
	}

	var target *core.Preset
	for _, p := range all {
		if p.ID == id {
			target = p
			break
		}
	}
	if target == nil {
		return fmt.Errorf("preset %s: %w", id, core.ErrNotFound)
	}

	usedImages, usedFonts := references(all, id)
	images := orphans(target.ImageIDs(), usedImages)
	fonts := orphans(target.FontIDs(), usedFonts)

	log := logrus.WithFields(logrus.Fields{
		"presetId": id,
		"images":   len(images),
		"fonts":    len(fonts),
	})

	if err := s.store.DeletePreset(ctx, id); err != nil {
		log.WithField("error", err).Error("Failed to delete preset")
		return err
	}
	if len(images) > 0 {
		if err := s.store.DeleteImages(ctx, images...); err != nil {
			log.WithField("error", err).Error("Failed to delete orphaned images")
			return fmt.Errorf("delete images of preset %s: %w", id, err)
		}
		for _, img := range images {
			s.images.Evict(img)
		}
	}
	if len(fonts) > 0 {
		if err := s.store.DeleteFonts(ctx, fonts...); err != nil {
			log.WithField("error", err).Error("Failed to delete orphaned fonts")
			return fmt.Errorf("delete fonts of preset %s: %w", id, err)
		}
		for _, f := range fonts {
			s.text.Fonts().Evict(f)
		}
	}
	log.Info("Preset deleted")
	return nil
}

// references collects the image and font ids used by every preset in all
// except the one with id exclude.
func references(all []*core.Preset, exclude string) (images, fonts map[string]bool) {
	images = make(map[string]bool)
	fonts = make(map[string]bool)
	for _, p := range all {
		if p.ID == exclude {
			continue
		}
		for _, img := range p.ImageIDs() {
			images[img] = true
		}
		for _, f := range p.FontIDs() {
			fonts[f] = true
		}
	}
	return images, fonts
}

// orphans returns the ids not in used, de-duplicated in order.
func orphans(ids []string, used map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if id == "" || used[id] || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Default returns the default preset. The error wraps core.ErrNotFound when
// none is marked.
func (s *Service) Default(ctx context.Context) (*core.Preset, error) {
	all, err := s.store.ListPresets(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if p.IsDefault {
			return p, nil
		}
	}
	return nil, fmt.Errorf("default preset: %w", core.ErrNotFound)
}

// SetDefault marks preset id as the default and clears the flag on any
// other preset.
func (s *Service) SetDefault(ctx context.Context, id string) error {
	target, err := s.store.GetPreset(ctx, id)
	if err != nil {
		return err
	}
	all, err := s.store.ListPresets(ctx)
	if err != nil {
		return err
	}
	for _, p := range all {
		if p.IsDefault && p.ID != id {
			p.IsDefault = false
			if err := s.store.SavePreset(ctx, p); err != nil {
				return err
			}
		}
	}
	target.IsDefault = true
	if err := s.store.SavePreset(ctx, target); err != nil {
		return err
	}
	logrus.WithField("presetId", id).Info("Default preset set")
	return nil
}

// Rename changes the name of preset id.
func (s *Service) Rename(ctx context.Context, id, name string) (*core.Preset, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalid)
	}
	s.editMu.Lock()
	defer s.editMu.Unlock()

	sess, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.Rename(ctx, name); err != nil {
		return nil, err
	}
	return sess.Preset(), nil
}

// Save validates p and writes it over the stored preset with the same id.
func (s *Service) Save(ctx context.Context, p *core.Preset) error {
	if err := Validate(p); err != nil {
		return err
	}
	if _, err := s.store.GetPreset(ctx, p.ID); err != nil {
		return err
	}
	return s.store.SavePreset(ctx, p)
}

// Edit loads preset id into an editing session, applies fn to its layers
// and saves the result.
func (s *Service) Edit(ctx context.Context, id string, fn func(editor.LayerState) editor.LayerState) (*core.Preset, error) {
	return s.edit(ctx, id, func(st editor.LayerState) (editor.LayerState, error) {
		return fn(st), nil
	})
}

// EditLayer is Edit for an operation on a single layer. Nothing is saved
// and the error wraps core.ErrNotFound when the preset has no such layer.
func (s *Service) EditLayer(ctx context.Context, id, layerID string, fn func(editor.LayerState) editor.LayerState) (*core.Preset, error) {
	return s.edit(ctx, id, func(st editor.LayerState) (editor.LayerState, error) {
		if _, ok := st.Find(layerID); !ok {
			return st, fmt.Errorf("layer %s of preset %s: %w", layerID, id, core.ErrNotFound)
		}
		return fn(st), nil
	})
}

func (s *Service) edit(ctx context.Context, id string, fn func(editor.LayerState) (editor.LayerState, error)) (*core.Preset, error) {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	sess, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	next, err := fn(sess.Layers())
	if err != nil {
		return nil, err
	}
	sess.Update(func(editor.LayerState) editor.LayerState { return next })
	p := sess.Preset()
	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := sess.Save(ctx); err != nil {
		return nil, err
	}
	return sess.Preset(), nil
}

func (s *Service) open(ctx context.Context, id string) (*editor.Session, error) {
	sess := editor.NewSession(s.store)
	ok, err := sess.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("preset %s: %w", id, core.ErrNotFound)
	}
	return sess, nil
}

// Validate checks the structural rules every stored preset obeys.
func Validate(p *core.Preset) error {
	if p == nil {
		return fmt.Errorf("%w: missing preset", ErrInvalid)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalid)
	}
	if p.Canvas.Width <= 0 || p.Canvas.Height <= 0 ||
		p.Canvas.Width > canvas.MaxDimension || p.Canvas.Height > canvas.MaxDimension {
		return fmt.Errorf("%w: canvas size %dx%d", ErrInvalid, p.Canvas.Width, p.Canvas.Height)
	}
	return validateLayers(p.Layers)
}

func validateLayers(layers core.Layers) error {
	seen := make(map[string]bool, len(layers))
	for i, l := range layers {
		b := l.Base()
		if b.ID == "" {
			return fmt.Errorf("%w: layer %d has no id", ErrInvalid, i)
		}
		if seen[b.ID] {
			return fmt.Errorf("%w: duplicate layer id %s", ErrInvalid, b.ID)
		}
		seen[b.ID] = true

		switch l := l.(type) {
		case core.ImageLayer:
			if l.Opacity < 0 || l.Opacity > 1 {
				return fmt.Errorf("%w: layer %s opacity %v", ErrInvalid, b.ID, l.Opacity)
			}
		case core.TextLayer:
			if l.Style.FontSize <= 0 {
				return fmt.Errorf("%w: layer %s font size %v", ErrInvalid, b.ID, l.Style.FontSize)
			}
		}
	}
	return nil
}

// saveImage sniffs and decodes the header of an uploaded image, then
// stores it.
func (s *Service) saveImage(ctx context.Context, filename string, data []byte) (*core.ImageRecord, image.Config, error) {
	if !fileutil.IsImage(data) {
		return nil, image.Config{}, fmt.Errorf("%w: %s is not a supported image", ErrInvalid, filename)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, image.Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, filename, err)
	}
	if cfg.Width > canvas.MaxDimension || cfg.Height > canvas.MaxDimension {
		return nil, image.Config{}, fmt.Errorf("%w: %s is %dx%d, limit is %d per side",
			ErrInvalid, filename, cfg.Width, cfg.Height, canvas.MaxDimension)
	}

	rec := &core.ImageRecord{
		ID:        core.NewID(),
		Name:      filename,
		MimeType:  fileutil.DetectMime(data),
		Data:      data,
		CreatedAt: core.NowMillis(),
	}
	if err := s.store.SaveImage(ctx, rec); err != nil {
		logrus.WithFields(logrus.Fields{
			"filename": filename,
			"error":    err,
		}).Error("Failed to save image")
		return nil, image.Config{}, err
	}
	return rec, cfg, nil
}
