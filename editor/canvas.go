package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"hizuke-thumb/core"
)

const (
	ZoomMin  = 0.25
	ZoomMax  = 4.0
	zoomStep = 1.2

	DefaultWidth  = 1920
	DefaultHeight = 1080

	snapThreshold = 10

	// SettingsKey is the settings record canvas settings persist under.
	SettingsKey = "canvasSettings"
)

// ZoomPresets are the zoom levels offered in the toolbar.
var ZoomPresets = []float64{0.25, 0.5, 1.0, 2.0, 4.0}

type (
	CanvasSettings struct {
		ShowGrid     bool    `json:"showGrid"`
		ShowGuides   bool    `json:"showGuides"`
		ShowRuler    bool    `json:"showRuler"`
		GridSize     float64 `json:"gridSize"`
		SnapToGrid   bool    `json:"snapToGrid"`
		SnapToLayers bool    `json:"snapToLayers"`
		SnapToCenter bool    `json:"snapToCenter"`
	}

	GuidelineType string

	Guideline struct {
		ID       string        `json:"id"`
		Type     GuidelineType `json:"type"`
		Position float64       `json:"position"`
	}

	// CanvasState is the editor's view of the canvas: document size and
	// base image, plus zoom, pan, settings and guidelines.
	CanvasState struct {
		Width       int            `json:"width"`
		Height      int            `json:"height"`
		BaseImageID string         `json:"baseImageId"`
		Zoom        float64        `json:"zoom"`
		Pan         core.Point     `json:"pan"`
		Settings    CanvasSettings `json:"settings"`
		Guidelines  []Guideline    `json:"guidelines"`
	}
)

const (
	GuideHorizontal GuidelineType = "horizontal"
	GuideVertical   GuidelineType = "vertical"
)

func DefaultCanvasSettings() CanvasSettings {
	return CanvasSettings{
		ShowGuides:   true,
		ShowRuler:    true,
		GridSize:     20,
		SnapToLayers: true,
		SnapToCenter: true,
	}
}

func NewCanvasState() CanvasState {
	return CanvasState{
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		Zoom:     1,
		Settings: DefaultCanvasSettings(),
	}
}

func (c CanvasState) AspectRatio() float64 {
	if c.Height == 0 {
		return 0
	}
	return float64(c.Width) / float64(c.Height)
}

func (c CanvasState) SetSize(width, height int) CanvasState {
	c.Width, c.Height = width, height
	return c
}

func (c CanvasState) SetBaseImage(id string) CanvasState {
	c.BaseImageID = id
	return c
}

// SetZoom clamps zoom to [ZoomMin, ZoomMax].
func (c CanvasState) SetZoom(zoom float64) CanvasState {
	c.Zoom = math.Max(ZoomMin, math.Min(ZoomMax, zoom))
	return c
}

func (c CanvasState) ZoomIn() CanvasState  { return c.SetZoom(c.Zoom * zoomStep) }
func (c CanvasState) ZoomOut() CanvasState { return c.SetZoom(c.Zoom / zoomStep) }

// ZoomToFit fits the canvas into a container at 90%, never enlarging, and
// resets the pan.
func (c CanvasState) ZoomToFit(containerWidth, containerHeight float64) CanvasState {
	if c.Width <= 0 || c.Height <= 0 {
		return c
	}
	scale := math.Min(containerWidth/float64(c.Width), containerHeight/float64(c.Height))
	c.Zoom = math.Min(scale, 1) * 0.9
	c.Pan = core.Point{}
	return c
}

func (c CanvasState) ResetZoom() CanvasState {
	c.Zoom = 1
	c.Pan = core.Point{}
	return c
}

func (c CanvasState) PanBy(dx, dy float64) CanvasState {
	c.Pan = core.Point{X: c.Pan.X + dx, Y: c.Pan.Y + dy}
	return c
}

func (c CanvasState) ResetPan() CanvasState {
	c.Pan = core.Point{}
	return c
}

func (c CanvasState) ToggleGrid() CanvasState {
	c.Settings.ShowGrid = !c.Settings.ShowGrid
	return c
}

func (c CanvasState) ToggleGuides() CanvasState {
	c.Settings.ShowGuides = !c.Settings.ShowGuides
	return c
}

func (c CanvasState) ToggleRuler() CanvasState {
	c.Settings.ShowRuler = !c.Settings.ShowRuler
	return c
}

func (c CanvasState) ToggleSnapToGrid() CanvasState {
	c.Settings.SnapToGrid = !c.Settings.SnapToGrid
	return c
}

func (c CanvasState) ToggleSnapToLayers() CanvasState {
	c.Settings.SnapToLayers = !c.Settings.SnapToLayers
	return c
}

func (c CanvasState) ToggleSnapToCenter() CanvasState {
	c.Settings.SnapToCenter = !c.Settings.SnapToCenter
	return c
}

func (c CanvasState) SetGridSize(size float64) CanvasState {
	c.Settings.GridSize = size
	return c
}

// AddGuideline returns the new state and the guideline's id.
func (c CanvasState) AddGuideline(t GuidelineType, position float64) (CanvasState, string) {
	id := NewID()
	c.Guidelines = append(slices.Clip(c.Guidelines), Guideline{ID: id, Type: t, Position: position})
	return c, id
}

func (c CanvasState) RemoveGuideline(id string) CanvasState {
	c.Guidelines = slices.DeleteFunc(slices.Clone(c.Guidelines), func(g Guideline) bool {
		return g.ID == id
	})
	return c
}

func (c CanvasState) MoveGuideline(id string, position float64) CanvasState {
	c.Guidelines = slices.Clone(c.Guidelines)
	for i := range c.Guidelines {
		if c.Guidelines[i].ID == id {
			c.Guidelines[i].Position = position
		}
	}
	return c
}

func (c CanvasState) ClearGuidelines() CanvasState {
	c.Guidelines = nil
	return c
}

// SnapPosition snaps p to the grid, then to the canvas centre when it is
// within 10 screen pixels of it.
func (c CanvasState) SnapPosition(p core.Point) core.Point {
	if c.Settings.SnapToGrid && c.Settings.GridSize > 0 {
		g := c.Settings.GridSize
		p.X = math.Round(p.X/g) * g
		p.Y = math.Round(p.Y/g) * g
	}
	if c.Settings.SnapToCenter && c.Zoom > 0 {
		cx, cy := float64(c.Width)/2, float64(c.Height)/2
		threshold := snapThreshold / c.Zoom
		if math.Abs(p.X-cx) < threshold {
			p.X = cx
		}
		if math.Abs(p.Y-cy) < threshold {
			p.Y = cy
		}
	}
	return p
}

// Reset returns the initial state.
func (c CanvasState) Reset() CanvasState {
	return NewCanvasState()
}

// LoadSettings reads persisted canvas settings, returning the defaults when
// none are stored.
func LoadSettings(ctx context.Context, store core.SettingsStore) (CanvasSettings, error) {
	raw, err := store.GetSetting(ctx, SettingsKey)
	if errors.Is(err, core.ErrNotFound) {
		return DefaultCanvasSettings(), nil
	}
	if err != nil {
		return CanvasSettings{}, fmt.Errorf("%w: load settings: %w", ErrPersistence, err)
	}
	settings := DefaultCanvasSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return CanvasSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func SaveSettings(ctx context.Context, store core.SettingsStore, settings CanvasSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	if err := store.PutSetting(ctx, SettingsKey, raw); err != nil {
		return fmt.Errorf("%w: save settings: %w", ErrPersistence, err)
	}
	return nil
}
