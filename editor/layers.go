// Package editor holds the editor's view state as plain values. Every
// update returns a new snapshot; snapshots never share mutable layer state.
package editor

import (
	"slices"
	"sort"

	"hizuke-thumb/core"
)

const (
	defaultTextName = "テキスト"
	defaultDateName = "日付"
	copySuffix      = " (コピー)"
	duplicateOffset = 20
)

// NewID generates layer ids. Tests may replace it.
var NewID = core.NewID

// LayerState is the layer list plus the selected layer id.
type LayerState struct {
	layers     core.Layers
	selectedID string
}

// NewLayerState returns a state over a copy of layers with the last layer
// selected.
func NewLayerState(layers core.Layers) LayerState {
	return LayerState{}.SetLayers(layers)
}

// Layers returns a copy of the layers in list order.
func (s LayerState) Layers() core.Layers {
	out := s.layers.Clone()
	if out == nil {
		out = core.Layers{}
	}
	return out
}

func (s LayerState) Len() int { return len(s.layers) }

func (s LayerState) SelectedID() string { return s.selectedID }

// Selected returns the selected layer, if any.
func (s LayerState) Selected() (core.Layer, bool) {
	l, i := s.layers.Find(s.selectedID)
	if i < 0 {
		return nil, false
	}
	return core.CloneLayer(l), true
}

// Find returns a copy of the layer with id.
func (s LayerState) Find(id string) (core.Layer, bool) {
	l, i := s.layers.Find(id)
	if i < 0 {
		return nil, false
	}
	return core.CloneLayer(l), true
}

// Visible returns the visible layers in list order.
func (s LayerState) Visible() core.Layers {
	out := core.Layers{}
	for _, l := range s.layers {
		if l.Base().Visible {
			out = append(out, core.CloneLayer(l))
		}
	}
	return out
}

// Sorted returns every layer ordered by z-index, ties in list order.
func (s LayerState) Sorted() core.Layers {
	out := s.Layers()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Base().ZIndex < out[j].Base().ZIndex
	})
	return out
}

func (s LayerState) maxZ() int {
	if len(s.layers) == 0 {
		return 0
	}
	z := s.layers[0].Base().ZIndex
	for _, l := range s.layers[1:] {
		z = max(z, l.Base().ZIndex)
	}
	return z
}

func (s LayerState) minZ() int {
	if len(s.layers) == 0 {
		return 0
	}
	z := s.layers[0].Base().ZIndex
	for _, l := range s.layers[1:] {
		z = min(z, l.Base().ZIndex)
	}
	return z
}

func (s LayerState) appended(l core.Layer) LayerState {
	return LayerState{
		layers:     append(slices.Clip(s.layers), l),
		selectedID: l.Base().ID,
	}
}

// mapLayer returns a state where the layer with id is replaced by fn's
// result. Other layers are shared, which is safe because layers are values
// and updates never write through their pointers.
func (s LayerState) mapLayer(id string, fn func(core.Layer) core.Layer) LayerState {
	_, i := s.layers.Find(id)
	if i < 0 {
		return s
	}
	out := slices.Clone(s.layers)
	out[i] = fn(core.CloneLayer(out[i]))
	return LayerState{layers: out, selectedID: s.selectedID}
}

func (s LayerState) mapBase(id string, fn func(*core.LayerBase)) LayerState {
	return s.mapLayer(id, func(l core.Layer) core.Layer {
		b := l.Base()
		fn(&b)
		b.ID = id
		return core.WithBase(l, b)
	})
}

// AddImageLayer appends an image layer above every other layer and selects
// it.
func (s LayerState) AddImageLayer(imageID, name string, width, height float64) (LayerState, core.ImageLayer) {
	l := core.NewImageLayer(NewID(), name, imageID, width, height, s.maxZ()+1)
	return s.appended(l), l
}

// AddTextLayer appends a text layer above every other layer and selects
// it. An empty name is derived from the content type; a nil style uses the
// defaults.
func (s LayerState) AddTextLayer(content core.TextContent, name string, style *core.TextStyle) (LayerState, core.TextLayer) {
	if name == "" {
		name = defaultTextName
		if content.Type == core.ContentDate {
			name = defaultDateName
		}
	}
	st := core.DefaultTextStyle()
	if style != nil {
		st = *style
	}
	l := core.CloneLayer(core.NewTextLayer(NewID(), name, content, s.maxZ()+1, st)).(core.TextLayer)
	return s.appended(l), l
}

// Remove deletes the layer. If it was selected, the last remaining layer
// becomes selected.
func (s LayerState) Remove(id string) LayerState {
	out := make(core.Layers, 0, len(s.layers))
	for _, l := range s.layers {
		if l.Base().ID != id {
			out = append(out, l)
		}
	}
	next := LayerState{layers: out, selectedID: s.selectedID}
	if s.selectedID == id {
		next.selectedID = ""
		if len(out) > 0 {
			next.selectedID = out[len(out)-1].Base().ID
		}
	}
	return next
}

// Duplicate copies the layer on top of the stack, offset by 20px, and
// selects the copy.
func (s LayerState) Duplicate(id string) (LayerState, core.Layer, bool) {
	src, i := s.layers.Find(id)
	if i < 0 {
		return s, nil, false
	}
	b := src.Base()
	b.ID = NewID()
	b.Name += copySuffix
	b.ZIndex = s.maxZ() + 1
	b.Position = core.Point{X: b.Position.X + duplicateOffset, Y: b.Position.Y + duplicateOffset}

	dup := core.WithBase(core.CloneLayer(src), b)
	return s.appended(dup), core.CloneLayer(dup), true
}

// Select sets the selected layer; "" clears the selection.
func (s LayerState) Select(id string) LayerState {
	return LayerState{layers: s.layers, selectedID: id}
}

// Move offsets the layer's position.
func (s LayerState) Move(id string, dx, dy float64) LayerState {
	return s.mapBase(id, func(b *core.LayerBase) {
		b.Position.X += dx
		b.Position.Y += dy
	})
}

func (s LayerState) SetPosition(id string, p core.Point) LayerState {
	return s.mapBase(id, func(b *core.LayerBase) { b.Position = p })
}

func (s LayerState) ToggleVisibility(id string) LayerState {
	return s.mapBase(id, func(b *core.LayerBase) { b.Visible = !b.Visible })
}

func (s LayerState) ToggleLock(id string) LayerState {
	return s.mapBase(id, func(b *core.LayerBase) { b.Locked = !b.Locked })
}

func (s LayerState) Rename(id, name string) LayerState {
	return s.mapBase(id, func(b *core.LayerBase) { b.Name = name })
}

// BringToFront gives the layer a z-index above every other layer.
func (s LayerState) BringToFront(id string) LayerState {
	top := s.maxZ() + 1
	return s.mapBase(id, func(b *core.LayerBase) { b.ZIndex = top })
}

// SendToBack gives the layer a z-index below every other layer.
func (s LayerState) SendToBack(id string) LayerState {
	bottom := s.minZ() - 1
	return s.mapBase(id, func(b *core.LayerBase) { b.ZIndex = bottom })
}

// BringForward swaps z-index with the nearest layer above.
func (s LayerState) BringForward(id string) LayerState {
	return s.swapWithNeighbour(id, func(other, z int) bool { return other > z }, func(a, b int) bool { return a < b })
}

// SendBackward swaps z-index with the nearest layer below.
func (s LayerState) SendBackward(id string) LayerState {
	return s.swapWithNeighbour(id, func(other, z int) bool { return other < z }, func(a, b int) bool { return a > b })
}

func (s LayerState) swapWithNeighbour(id string, eligible func(other, z int) bool, closer func(a, b int) bool) LayerState {
	l, i := s.layers.Find(id)
	if i < 0 {
		return s
	}
	z := l.Base().ZIndex

	neighbour := -1
	for j, other := range s.layers {
		oz := other.Base().ZIndex
		if j == i || !eligible(oz, z) {
			continue
		}
		if neighbour < 0 || closer(oz, s.layers[neighbour].Base().ZIndex) {
			neighbour = j
		}
	}
	if neighbour < 0 {
		return s
	}

	nID, nz := s.layers[neighbour].Base().ID, s.layers[neighbour].Base().ZIndex
	next := s.mapBase(id, func(b *core.LayerBase) { b.ZIndex = nz })
	return next.mapBase(nID, func(b *core.LayerBase) { b.ZIndex = z })
}

// UpdateImage applies fn to an image layer. The id cannot be changed.
func (s LayerState) UpdateImage(id string, fn func(*core.ImageLayer)) LayerState {
	return s.mapLayer(id, func(l core.Layer) core.Layer {
		img, ok := l.(core.ImageLayer)
		if !ok {
			return l
		}
		fn(&img)
		img.ID = id
		return img
	})
}

// UpdateText applies fn to a text layer. The id cannot be changed.
func (s LayerState) UpdateText(id string, fn func(*core.TextLayer)) LayerState {
	return s.mapLayer(id, func(l core.Layer) core.Layer {
		t, ok := l.(core.TextLayer)
		if !ok {
			return l
		}
		fn(&t)
		t.ID = id
		return t
	})
}

// UpdateTextStyle applies fn to a text layer's style.
func (s LayerState) UpdateTextStyle(id string, fn func(*core.TextStyle)) LayerState {
	return s.UpdateText(id, func(t *core.TextLayer) { fn(&t.Style) })
}

// SetLayers replaces the whole list, selecting the last layer.
func (s LayerState) SetLayers(layers core.Layers) LayerState {
	next := LayerState{layers: layers.Clone()}
	if len(layers) > 0 {
		next.selectedID = layers[len(layers)-1].Base().ID
	}
	return next
}

func (s LayerState) Clear() LayerState {
	return LayerState{}
}
