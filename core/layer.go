package core

import (
	"encoding/json"
	"fmt"
)

type (
	// LayerType is the discriminant stored in the "type" field of a layer.
	LayerType string

	// ContentType is the discriminant of a text layer's content.
	ContentType string

	TextAlign     string
	VerticalAlign string
)

const (
	LayerTypeImage LayerType = "image"
	LayerTypeText  LayerType = "text"

	ContentStatic ContentType = "static"
	ContentDate   ContentType = "date"

	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"

	VerticalTop    VerticalAlign = "top"
	VerticalMiddle VerticalAlign = "middle"
	VerticalBottom VerticalAlign = "bottom"
)

type (
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	Size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}

	// LayerBase holds the fields shared by every layer variant.
	LayerBase struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Position Point  `json:"position"`
		Visible  bool   `json:"visible"`
		ZIndex   int    `json:"zIndex"`
		Locked   bool   `json:"locked"`
	}

	// Layer is a sum type over ImageLayer and TextLayer. Dispatch on it with
	// a type switch; the interface is sealed to this package.
	Layer interface {
		Base() LayerBase
		Type() LayerType
		isLayer()
	}

	// ImageLayer draws a stored image at Position, stretched to Size.
	ImageLayer struct {
		LayerBase
		ImageID string  `json:"imageId"`
		Size    Size    `json:"size"`
		Opacity float64 `json:"opacity"`
	}

	// TextContent is either a literal string or a date rendered with Format
	// in Locale at render time.
	TextContent struct {
		Type   ContentType `json:"type"`
		Value  string      `json:"value,omitempty"`
		Format string      `json:"format,omitempty"`
		Locale string      `json:"locale,omitempty"`
	}

	TextOutline struct {
		Enabled bool    `json:"enabled"`
		Width   float64 `json:"width"`
		Color   string  `json:"color"`
	}

	TextShadow struct {
		Enabled bool    `json:"enabled"`
		OffsetX float64 `json:"offsetX"`
		OffsetY float64 `json:"offsetY"`
		Blur    float64 `json:"blur"`
		Color   string  `json:"color"`
	}

	TextStyle struct {
		FontID        string        `json:"fontId"`
		FontSize      float64       `json:"fontSize"`
		Color         string        `json:"color"`
		LineHeight    float64       `json:"lineHeight"`
		LetterSpacing float64       `json:"letterSpacing"`
		Align         TextAlign     `json:"align"`
		VerticalAlign VerticalAlign `json:"verticalAlign"`
		Bold          bool          `json:"bold"`
		Italic        bool          `json:"italic"`
		Underline     bool          `json:"underline"`
		Outline       *TextOutline  `json:"outline,omitempty"`
		Shadow        *TextShadow   `json:"shadow,omitempty"`
	}

	// TextLayer draws resolved content anchored at Position.
	TextLayer struct {
		LayerBase
		Content TextContent `json:"content"`
		Style   TextStyle   `json:"style"`
	}

	// Layers is an ordered layer collection that round-trips through JSON.
	Layers []Layer
)

func (l ImageLayer) Base() LayerBase { return l.LayerBase }
func (l ImageLayer) Type() LayerType { return LayerTypeImage }
func (ImageLayer) isLayer()          {}

func (l TextLayer) Base() LayerBase { return l.LayerBase }
func (l TextLayer) Type() LayerType { return LayerTypeText }
func (TextLayer) isLayer()          {}

// StaticText returns literal content.
func StaticText(value string) TextContent {
	return TextContent{Type: ContentStatic, Value: value}
}

// DateText returns content formatted from the render date.
func DateText(format, locale string) TextContent {
	return TextContent{Type: ContentDate, Format: format, Locale: locale}
}

// DefaultTextStyle is the style new text layers start from.
func DefaultTextStyle() TextStyle {
	return TextStyle{
		FontSize:      48,
		Color:         "#ffffff",
		LineHeight:    1.2,
		Align:         AlignLeft,
		VerticalAlign: VerticalTop,
	}
}

func NewImageLayer(id, name, imageID string, width, height float64, zIndex int) ImageLayer {
	return ImageLayer{
		LayerBase: LayerBase{ID: id, Name: name, Visible: true, ZIndex: zIndex},
		ImageID:   imageID,
		Size:      Size{Width: width, Height: height},
		Opacity:   1,
	}
}

func NewTextLayer(id, name string, content TextContent, zIndex int, style TextStyle) TextLayer {
	return TextLayer{
		LayerBase: LayerBase{ID: id, Name: name, Visible: true, ZIndex: zIndex},
		Content:   content,
		Style:     style,
	}
}

// WithBase returns a copy of l with its shared fields replaced by b.
func WithBase(l Layer, b LayerBase) Layer {
	switch v := l.(type) {
	case ImageLayer:
		v.LayerBase = b
		return v
	case TextLayer:
		v.LayerBase = b
		return v
	}
	return l
}

// CloneLayer returns a deep copy of l; the optional style records are
// copied so the clone can be restyled independently.
func CloneLayer(l Layer) Layer {
	t, ok := l.(TextLayer)
	if !ok {
		return l
	}
	if t.Style.Outline != nil {
		o := *t.Style.Outline
		t.Style.Outline = &o
	}
	if t.Style.Shadow != nil {
		s := *t.Style.Shadow
		t.Style.Shadow = &s
	}
	return t
}

// Clone deep-copies the collection.
func (ls Layers) Clone() Layers {
	if ls == nil {
		return nil
	}
	out := make(Layers, len(ls))
	for i, l := range ls {
		out[i] = CloneLayer(l)
	}
	return out
}

// Find returns the layer with the given id.
func (ls Layers) Find(id string) (Layer, int) {
	for i, l := range ls {
		if l.Base().ID == id {
			return l, i
		}
	}
	return nil, -1
}

func (l ImageLayer) MarshalJSON() ([]byte, error) {
	type plain ImageLayer
	return json.Marshal(struct {
		Type LayerType `json:"type"`
		plain
	}{LayerTypeImage, plain(l)})
}

func (l TextLayer) MarshalJSON() ([]byte, error) {
	type plain TextLayer
	return json.Marshal(struct {
		Type LayerType `json:"type"`
		plain
	}{LayerTypeText, plain(l)})
}

// UnmarshalLayer decodes a single layer, choosing the variant from its
// "type" field.
func UnmarshalLayer(data []byte) (Layer, error) {
	var head struct {
		Type LayerType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case LayerTypeImage:
		type plain ImageLayer
		var l plain
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, err
		}
		return ImageLayer(l), nil
	case LayerTypeText:
		type plain TextLayer
		var l plain
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, err
		}
		return TextLayer(l), nil
	}
	return nil, fmt.Errorf("unknown layer type %q", head.Type)
}

func (ls *Layers) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*ls = nil
		return nil
	}

	out := make(Layers, 0, len(raw))
	for i, r := range raw {
		l, err := UnmarshalLayer(r)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		out = append(out, l)
	}
	*ls = out
	return nil
}
