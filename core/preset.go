package core

import (
	"encoding/json"
	"time"
)

// ExportVersion is written into every preset export.
const ExportVersion = "1.0"

type (
	// CanvasConfig is the output size and base image of a preset.
	CanvasConfig struct {
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		BaseImageID string `json:"baseImageId"`
	}

	// Preset is the persisted editor document. Timestamps are unix millis.
	Preset struct {
		ID          string       `json:"id"`
		Name        string       `json:"name"`
		IsDefault   bool         `json:"isDefault"`
		CreatedAt   int64        `json:"createdAt"`
		UpdatedAt   int64        `json:"updatedAt"`
		Canvas      CanvasConfig `json:"canvas"`
		Layers      Layers       `json:"layers"`
		ThumbnailID string       `json:"thumbnailId"`
	}

	ImageRecord struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		MimeType  string `json:"mimeType"`
		Data      []byte `json:"data,omitempty"`
		CreatedAt int64  `json:"createdAt"`
	}

	FontRecord struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Family    string `json:"family"`
		Data      []byte `json:"data,omitempty"`
		CreatedAt int64  `json:"createdAt"`
	}

	SettingsRecord struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}

	ExportCanvas struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}

	RequiredAssets struct {
		Images []string `json:"images"`
		Fonts  []string `json:"fonts"`
	}

	// PresetExport is the portable JSON form of a preset. RequiredAssets
	// lists every asset id the layers reference.
	PresetExport struct {
		Version        string         `json:"version"`
		Name           string         `json:"name"`
		Canvas         ExportCanvas   `json:"canvas"`
		Layers         Layers         `json:"layers"`
		RequiredAssets RequiredAssets `json:"requiredAssets"`
	}

	SaveStatus string
)

const (
	StatusSaved   SaveStatus = "saved"
	StatusSaving  SaveStatus = "saving"
	StatusUnsaved SaveStatus = "unsaved"
)

// NowMillis is the timestamp source for records.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NewPreset returns an empty preset over the given base image.
func NewPreset(id, name, baseImageID string, width, height int) *Preset {
	now := NowMillis()
	return &Preset{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Canvas: CanvasConfig{
			Width:       width,
			Height:      height,
			BaseImageID: baseImageID,
		},
		Layers: Layers{},
	}
}

// Clone returns a copy of p that shares no layer state with it.
func (p *Preset) Clone() *Preset {
	c := *p
	c.Layers = p.Layers.Clone()
	return &c
}

// ImageIDs lists the image ids a preset references: base image, thumbnail
// and image layers.
func (p *Preset) ImageIDs() []string {
	ids := make([]string, 0, len(p.Layers)+2)
	if p.Canvas.BaseImageID != "" {
		ids = append(ids, p.Canvas.BaseImageID)
	}
	if p.ThumbnailID != "" {
		ids = append(ids, p.ThumbnailID)
	}
	for _, l := range p.Layers {
		if img, ok := l.(ImageLayer); ok && img.ImageID != "" {
			ids = append(ids, img.ImageID)
		}
	}
	return ids
}

// FontIDs lists the non-empty font ids used by text layers.
func (p *Preset) FontIDs() []string {
	var ids []string
	for _, l := range p.Layers {
		if t, ok := l.(TextLayer); ok && t.Style.FontID != "" {
			ids = append(ids, t.Style.FontID)
		}
	}
	return ids
}
