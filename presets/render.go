package presets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"hizuke-thumb/canvas"
	"hizuke-thumb/core"
)

// ThumbnailWidth is the width preset thumbnails are scaled to.
const ThumbnailWidth = 320

// Render composites preset id for date and encodes it as mime. Each call
// uses its own engine over the shared image cache and text engine.
func (s *Service) Render(ctx context.Context, id string, date time.Time, mime string, quality float64) (*canvas.Blob, *core.Preset, error) {
	p, err := s.store.GetPreset(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	engine := s.prepare(ctx, p)

	blob, err := engine.Export(ctx, p.Layers, canvas.RenderContext{Date: date}, mime, quality)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"presetId": id,
			"mime":     mime,
			"error":    err,
		}).Error("Failed to render preset")
		return nil, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"presetId": id,
		"mime":     blob.Type,
		"bytes":    len(blob.Data),
	}).Info("Preset rendered")
	return blob, p, nil
}

// prepare builds an engine for p and warms every asset it needs.
func (s *Service) prepare(ctx context.Context, p *core.Preset) *canvas.Engine {
	engine := canvas.NewEngine(s.images, s.text, canvas.WithSize(p.Canvas.Width, p.Canvas.Height))
	engine.SetBaseImage(ctx, p.Canvas.BaseImageID)
	engine.PreloadLayerImages(ctx, p.Layers)
	s.text.Fonts().RegisterAll(ctx, p.FontIDs())
	return engine
}

// RefreshThumbnail renders preset id for date, scales it to ThumbnailWidth
// and stores it as the preset's thumbnail. The previous thumbnail image is
// deleted.
func (s *Service) RefreshThumbnail(ctx context.Context, id string, date time.Time) (*core.Preset, error) {
	p, err := s.store.GetPreset(ctx, id)
	if err != nil {
		return nil, err
	}
	engine := s.prepare(ctx, p)
	if err := engine.Render(ctx, p.Layers, canvas.RenderContext{Date: date}); err != nil {
		return nil, err
	}

	data, err := encodeThumbnail(engine.Image())
	if err != nil {
		return nil, err
	}
	rec := &core.ImageRecord{
		ID:        core.NewID(),
		Name:      "thumbnail_" + p.ID + ".png",
		MimeType:  canvas.MimePNG,
		Data:      data,
		CreatedAt: core.NowMillis(),
	}
	if err := s.store.SaveImage(ctx, rec); err != nil {
		return nil, err
	}

	old := p.ThumbnailID
	p.ThumbnailID = rec.ID
	if err := s.store.SavePreset(ctx, p); err != nil {
		return nil, err
	}
	if old != "" {
		s.dropThumbnail(ctx, old)
	}
	logrus.WithFields(logrus.Fields{
		"presetId":    id,
		"thumbnailId": rec.ID,
	}).Info("Thumbnail refreshed")
	return p, nil
}

// dropThumbnail deletes a replaced thumbnail image once no preset refers to
// it. Duplicated presets share their thumbnail until one is refreshed.
func (s *Service) dropThumbnail(ctx context.Context, id string) {
	log := logrus.WithField("imageId", id)
	all, err := s.store.ListPresets(ctx)
	if err != nil {
		log.WithField("error", err).Warn("Failed to list presets, keeping previous thumbnail")
		return
	}
	used, _ := references(all, "")
	if used[id] {
		log.Debug("Previous thumbnail still referenced")
		return
	}
	if err := s.store.DeleteImages(ctx, id); err != nil {
		log.WithField("error", err).Warn("Failed to delete previous thumbnail")
	}
	s.images.Evict(id)
}

func encodeThumbnail(src *image.RGBA) ([]byte, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty canvas", canvas.ErrEncoding)
	}
	w := min(ThumbnailWidth, b.Dx())
	h := max(1, b.Dy()*w/b.Dx())

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("%w: %v", canvas.ErrEncoding, err)
	}
	return buf.Bytes(), nil
}
