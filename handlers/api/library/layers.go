package library

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
	"hizuke-thumb/editor"
	"hizuke-thumb/handlers/api"
	"hizuke-thumb/presets"
)

type (
	// addLayerRequest creates an image or a text layer depending on Type.
	// Image layers without a size take the image's own dimensions.
	addLayerRequest struct {
		Type     core.LayerType    `json:"type"`
		Name     string            `json:"name"`
		Position *core.Point       `json:"position"`
		ImageID  string            `json:"imageId"`
		Width    float64           `json:"width"`
		Height   float64           `json:"height"`
		Content  *core.TextContent `json:"content"`
		Style    *core.TextStyle   `json:"style"`
	}

	orderRequest struct {
		Direction string `json:"direction"`
	}
)

// HandleAddLayer appends a layer on top of the preset and returns it.
func HandleAddLayer(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req addLayerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.BadRequest(w, r, "Invalid layer body")
			return
		}
		fields := logrus.Fields{"presetId": id, "type": req.Type}

		var add func(editor.LayerState) (editor.LayerState, core.Layer)
		switch req.Type {
		case core.LayerTypeImage:
			if req.ImageID == "" {
				api.BadRequest(w, r, "imageId is required")
				return
			}
			width, height := req.Width, req.Height
			if width <= 0 || height <= 0 {
				iw, ih, err := svc.ImageSize(r.Context(), req.ImageID)
				if err != nil {
					api.Error(w, r, err, "Failed to read layer image", fields)
					return
				}
				width, height = float64(iw), float64(ih)
			}
			add = func(st editor.LayerState) (editor.LayerState, core.Layer) {
				return st.AddImageLayer(req.ImageID, req.Name, width, height)
			}
		case core.LayerTypeText:
			content := core.StaticText("")
			if req.Content != nil {
				content = *req.Content
			}
			add = func(st editor.LayerState) (editor.LayerState, core.Layer) {
				return st.AddTextLayer(content, req.Name, req.Style)
			}
		default:
			api.BadRequest(w, r, fmt.Sprintf("Unknown layer type %q", req.Type))
			return
		}

		var added core.Layer
		_, err := svc.Edit(r.Context(), id, func(st editor.LayerState) editor.LayerState {
			next, l := add(st)
			if req.Position != nil {
				next = next.SetPosition(l.Base().ID, *req.Position)
			}
			added, _ = next.Find(l.Base().ID)
			return next
		})
		if err != nil {
			api.Error(w, r, err, "Failed to add layer", fields)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, added)
	}
}

// HandleUpdateLayer replaces a layer with the request body. The layer
// keeps its id and type.
func HandleUpdateLayer(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, layerID := chi.URLParam(r, "id"), chi.URLParam(r, "layerId")
		fields := logrus.Fields{"presetId": id, "layerId": layerID}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			api.BadRequest(w, r, "Failed to read layer body")
			return
		}
		replacement, err := core.UnmarshalLayer(body)
		if err != nil {
			api.BadRequest(w, r, fmt.Sprintf("Invalid layer body: %v", err))
			return
		}

		cur, err := currentLayer(r, svc, id, layerID)
		if err != nil {
			api.Error(w, r, err, "Failed to update layer", fields)
			return
		}
		if cur.Type() != replacement.Type() {
			api.BadRequest(w, r, "Layer type cannot change")
			return
		}

		p, err := svc.EditLayer(r.Context(), id, layerID, func(st editor.LayerState) editor.LayerState {
			switch l := replacement.(type) {
			case core.ImageLayer:
				return st.UpdateImage(layerID, func(img *core.ImageLayer) { *img = l })
			case core.TextLayer:
				return st.UpdateText(layerID, func(t *core.TextLayer) { *t = l })
			}
			return st
		})
		if err != nil {
			api.Error(w, r, err, "Failed to update layer", fields)
			return
		}
		updated, _ := p.Layers.Find(layerID)
		render.JSON(w, r, updated)
	}
}

func currentLayer(r *http.Request, svc *presets.Service, id, layerID string) (core.Layer, error) {
	p, err := svc.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	l, i := p.Layers.Find(layerID)
	if i < 0 {
		return nil, fmt.Errorf("layer %s of preset %s: %w", layerID, id, core.ErrNotFound)
	}
	return l, nil
}

func HandleDeleteLayer(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, layerID := chi.URLParam(r, "id"), chi.URLParam(r, "layerId")
		p, err := svc.EditLayer(r.Context(), id, layerID, func(st editor.LayerState) editor.LayerState {
			return st.Remove(layerID)
		})
		if err != nil {
			api.Error(w, r, err, "Failed to delete layer", logrus.Fields{"presetId": id, "layerId": layerID})
			return
		}
		render.JSON(w, r, p)
	}
}

// HandleDuplicateLayer copies a layer on top of the stack and returns the
// copy.
func HandleDuplicateLayer(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, layerID := chi.URLParam(r, "id"), chi.URLParam(r, "layerId")
		var dup core.Layer
		_, err := svc.EditLayer(r.Context(), id, layerID, func(st editor.LayerState) editor.LayerState {
			next, l, _ := st.Duplicate(layerID)
			dup = l
			return next
		})
		if err != nil {
			api.Error(w, r, err, "Failed to duplicate layer", logrus.Fields{"presetId": id, "layerId": layerID})
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, dup)
	}
}

// HandleOrderLayer moves a layer in the stack. direction is one of front,
// back, forward and backward.
func HandleOrderLayer(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, layerID := chi.URLParam(r, "id"), chi.URLParam(r, "layerId")
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.BadRequest(w, r, "Invalid order body")
			return
		}

		var move func(editor.LayerState, string) editor.LayerState
		switch req.Direction {
		case "front":
			move = editor.LayerState.BringToFront
		case "back":
			move = editor.LayerState.SendToBack
		case "forward":
			move = editor.LayerState.BringForward
		case "backward":
			move = editor.LayerState.SendBackward
		default:
			api.BadRequest(w, r, fmt.Sprintf("Unknown direction %q", req.Direction))
			return
		}

		p, err := svc.EditLayer(r.Context(), id, layerID, func(st editor.LayerState) editor.LayerState {
			return move(st, layerID)
		})
		if err != nil {
			api.Error(w, r, err, "Failed to reorder layer", logrus.Fields{"presetId": id, "layerId": layerID})
			return
		}
		render.JSON(w, r, p)
	}
}
