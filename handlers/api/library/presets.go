// Package library serves the preset collection: CRUD, the default preset,
// export and import, and layer edits.
package library

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
	"hizuke-thumb/fileutil"
	"hizuke-thumb/handlers/api"
	"hizuke-thumb/presets"
)

func HandleListPresets(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			api.Error(w, r, err, "Failed to list presets", nil)
			return
		}
		if list == nil {
			list = []*core.Preset{}
		}
		render.JSON(w, r, list)
	}
}

// HandleCreatePreset creates a preset from an uploaded base image.
func HandleCreatePreset(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, data, err := api.ReadUpload(w, r)
		if err != nil {
			api.Error(w, r, err, "Failed to read upload", nil)
			return
		}
		p, err := svc.CreateFromImage(r.Context(), filename, data)
		if err != nil {
			api.Error(w, r, err, "Failed to create preset", logrus.Fields{"filename": filename})
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, p)
	}
}

func HandleGetPreset(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := svc.Get(r.Context(), id)
		if err != nil {
			api.Error(w, r, err, "Preset not found", logrus.Fields{"presetId": id})
			return
		}
		render.JSON(w, r, p)
	}
}

// HandleSavePreset replaces a stored preset with the request body. The id
// in the path wins over any id in the body.
func HandleSavePreset(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var p core.Preset
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.BadRequest(w, r, "Invalid preset body")
			return
		}
		p.ID = id
		if p.Layers == nil {
			p.Layers = core.Layers{}
		}
		if err := svc.Save(r.Context(), &p); err != nil {
			api.Error(w, r, err, "Failed to save preset", logrus.Fields{"presetId": id})
			return
		}
		render.JSON(w, r, &p)
	}
}

// HandleRenamePreset applies {"name": ...}.
func HandleRenamePreset(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.BadRequest(w, r, "Invalid rename body")
			return
		}
		p, err := svc.Rename(r.Context(), id, body.Name)
		if err != nil {
			api.Error(w, r, err, "Failed to rename preset", logrus.Fields{"presetId": id})
			return
		}
		render.JSON(w, r, p)
	}
}

func HandleDeletePreset(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.Delete(r.Context(), id); err != nil {
			api.Error(w, r, err, "Failed to delete preset", logrus.Fields{"presetId": id})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleDuplicatePreset copies a preset. The body may carry a name for the
// copy; an empty body keeps the default copy name.
func HandleDuplicatePreset(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			api.BadRequest(w, r, "Invalid duplicate body")
			return
		}
		p, err := svc.Duplicate(r.Context(), id, body.Name)
		if err != nil {
			api.Error(w, r, err, "Failed to duplicate preset", logrus.Fields{"presetId": id})
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, p)
	}
}

func HandleGetDefault(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Default(r.Context())
		if err != nil {
			api.Error(w, r, err, "No default preset", nil)
			return
		}
		render.JSON(w, r, p)
	}
}

func HandleSetDefault(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.SetDefault(r.Context(), id); err != nil {
			api.Error(w, r, err, "Failed to set default preset", logrus.Fields{"presetId": id})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleExportPreset serves the preset's portable JSON as an attachment.
func HandleExportPreset(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := svc.Get(r.Context(), id)
		if err != nil {
			api.Error(w, r, err, "Preset not found", logrus.Fields{"presetId": id})
			return
		}
		filename := fileutil.SanitizeFilename(p.Name) + ".json"
		api.Attachment(w, filename)
		render.JSON(w, r, presets.Export(p))
	}
}

// HandleImportPreset creates a preset from an export sent as the body or
// as a multipart "file". The baseImageId query parameter overrides the
// base image.
func HandleImportPreset(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, data, err := api.ReadUpload(w, r)
		if err != nil {
			api.Error(w, r, err, "Failed to read export", nil)
			return
		}
		p, err := svc.Import(r.Context(), data, r.URL.Query().Get("baseImageId"))
		if err != nil {
			api.Error(w, r, err, "Failed to import preset", nil)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, p)
	}
}
