package presets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
	"hizuke-thumb/fileutil"
)

// UploadImage stores an image asset for use by image layers.
func (s *Service) UploadImage(ctx context.Context, filename string, data []byte) (*core.ImageRecord, error) {
	rec, cfg, err := s.saveImage(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"imageId": rec.ID,
		"mime":    rec.MimeType,
		"width":   cfg.Width,
		"height":  cfg.Height,
	}).Info("Image uploaded")
	return rec, nil
}

// Image returns the stored image record.
func (s *Service) Image(ctx context.Context, id string) (*core.ImageRecord, error) {
	return s.store.GetImage(ctx, id)
}

// UploadFont stores a font file and registers it under a family named
// after the file.
func (s *Service) UploadFont(ctx context.Context, filename string, data []byte) (*core.FontRecord, error) {
	if !fileutil.IsFont(data) {
		return nil, fmt.Errorf("%w: %s is not a font", ErrInvalid, filename)
	}
	family := fileutil.FontFamilyFromFilename(filename)
	if err := s.text.Fonts().Register(family, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	rec := &core.FontRecord{
		ID:        core.NewID(),
		Name:      filename,
		Family:    family,
		Data:      data,
		CreatedAt: core.NowMillis(),
	}
	log := logrus.WithFields(logrus.Fields{
		"fontId": rec.ID,
		"family": family,
	})
	if err := s.store.SaveFont(ctx, rec); err != nil {
		log.WithField("error", err).Error("Failed to save font")
		return nil, err
	}
	log.Info("Font uploaded")
	return rec, nil
}

// Fonts lists font metadata ordered by name.
func (s *Service) Fonts(ctx context.Context) ([]*core.FontRecord, error) {
	return s.store.ListFonts(ctx)
}

// ImageSize returns the pixel dimensions of a stored image.
func (s *Service) ImageSize(ctx context.Context, id string) (int, int, error) {
	rec, err := s.store.GetImage(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("image %s: %w", id, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Setting returns the stored JSON value for key.
func (s *Service) Setting(ctx context.Context, key string) (json.RawMessage, error) {
	return s.store.GetSetting(ctx, key)
}

// PutSetting stores value under key. value must be valid JSON.
func (s *Service) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("%w: setting key must not be empty", ErrInvalid)
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: setting %s is not valid JSON", ErrInvalid, key)
	}
	if err := s.store.PutSetting(ctx, key, value); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Error("Failed to save setting")
		return err
	}
	return nil
}

func (s *Service) DeleteSetting(ctx context.Context, key string) error {
	return s.store.DeleteSetting(ctx, key)
}
