package presets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
)

// MissingAssetsError lists the assets an import references that the store
// does not hold.
type MissingAssetsError struct {
	Images []string
	Fonts  []string
}

func (e *MissingAssetsError) Error() string {
	var parts []string
	if len(e.Images) > 0 {
		parts = append(parts, "images "+strings.Join(e.Images, ", "))
	}
	if len(e.Fonts) > 0 {
		parts = append(parts, "fonts "+strings.Join(e.Fonts, ", "))
	}
	return "missing assets: " + strings.Join(parts, "; ")
}

// Export returns the portable form of p. RequiredAssets lists the base
// image first, then image layer assets and text layer fonts in layer order,
// each id once.
func Export(p *core.Preset) core.PresetExport {
	var images, fonts []string
	add := func(ids []string, id string) []string {
		if id == "" || slices.Contains(ids, id) {
			return ids
		}
		return append(ids, id)
	}

	images = add(images, p.Canvas.BaseImageID)
	for _, l := range p.Layers {
		switch l := l.(type) {
		case core.ImageLayer:
			images = add(images, l.ImageID)
		case core.TextLayer:
			fonts = add(fonts, l.Style.FontID)
		}
	}

	layers := p.Layers.Clone()
	if layers == nil {
		layers = core.Layers{}
	}
	return core.PresetExport{
		Version: core.ExportVersion,
		Name:    p.Name,
		Canvas: core.ExportCanvas{
			Width:  p.Canvas.Width,
			Height: p.Canvas.Height,
		},
		Layers: layers,
		RequiredAssets: core.RequiredAssets{
			Images: nonNil(images),
			Fonts:  nonNil(fonts),
		},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Import creates a preset from an export. baseImageID overrides the base
// image; when empty, the first required image is used unless an image
// layer references it. Assets must already be stored: any that are absent
// are reported in a *MissingAssetsError and nothing is created.
func (s *Service) Import(ctx context.Context, data []byte, baseImageID string) (*core.Preset, error) {
	var exp core.PresetExport
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if exp.Version != core.ExportVersion {
		return nil, fmt.Errorf("%w: unsupported export version %q", ErrInvalid, exp.Version)
	}

	if baseImageID == "" {
		baseImageID = inferBaseImage(exp)
	}

	p := core.NewPreset(core.NewID(), exp.Name, baseImageID, exp.Canvas.Width, exp.Canvas.Height)
	if exp.Layers != nil {
		p.Layers = exp.Layers
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := s.checkAssets(ctx, p); err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{
		"presetId": p.ID,
		"layers":   len(p.Layers),
	})
	if err := s.store.CreatePreset(ctx, p); err != nil {
		log.WithField("error", err).Error("Failed to import preset")
		return nil, err
	}
	log.Info("Preset imported")
	return p, nil
}

func inferBaseImage(exp core.PresetExport) string {
	if len(exp.RequiredAssets.Images) == 0 {
		return ""
	}
	first := exp.RequiredAssets.Images[0]
	for _, l := range exp.Layers {
		if img, ok := l.(core.ImageLayer); ok && img.ImageID == first {
			return ""
		}
	}
	return first
}

// checkAssets verifies every asset p references is stored.
func (s *Service) checkAssets(ctx context.Context, p *core.Preset) error {
	exp := Export(p)
	missing := &MissingAssetsError{}
	for _, id := range exp.RequiredAssets.Images {
		if _, err := s.store.GetImage(ctx, id); err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				return err
			}
			missing.Images = append(missing.Images, id)
		}
	}
	for _, id := range exp.RequiredAssets.Fonts {
		if _, err := s.store.GetFont(ctx, id); err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				return err
			}
			missing.Fonts = append(missing.Fonts, id)
		}
	}
	if len(missing.Images) > 0 || len(missing.Fonts) > 0 {
		logrus.WithFields(logrus.Fields{
			"images": missing.Images,
			"fonts":  missing.Fonts,
		}).Warn("Import references missing assets")
		return missing
	}
	return nil
}
