// Package assets serves uploaded images and fonts and the editor's stored
// settings.
package assets

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
	"hizuke-thumb/handlers/api"
	"hizuke-thumb/presets"
)

// imageResponse is an image record without its bytes.
type imageResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MimeType  string `json:"mimeType"`
	CreatedAt int64  `json:"createdAt"`
}

func HandleUploadImage(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, data, err := api.ReadUpload(w, r)
		if err != nil {
			api.Error(w, r, err, "Failed to read upload", nil)
			return
		}
		rec, err := svc.UploadImage(r.Context(), filename, data)
		if err != nil {
			api.Error(w, r, err, "Failed to upload image", logrus.Fields{"filename": filename})
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, imageResponse{
			ID:        rec.ID,
			Name:      rec.Name,
			MimeType:  rec.MimeType,
			CreatedAt: rec.CreatedAt,
		})
	}
}

// HandleGetImage serves the stored image bytes.
func HandleGetImage(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := svc.Image(r.Context(), id)
		if err != nil {
			api.Error(w, r, err, "Image not found", logrus.Fields{"imageId": id})
			return
		}
		mimeType := rec.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(rec.Data)))
		w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
		w.Write(rec.Data)
	}
}

func HandleUploadFont(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, data, err := api.ReadUpload(w, r)
		if err != nil {
			api.Error(w, r, err, "Failed to read upload", nil)
			return
		}
		rec, err := svc.UploadFont(r.Context(), filename, data)
		if err != nil {
			api.Error(w, r, err, "Failed to upload font", logrus.Fields{"filename": filename})
			return
		}
		meta := *rec
		meta.Data = nil
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, &meta)
	}
}

func HandleListFonts(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fonts, err := svc.Fonts(r.Context())
		if err != nil {
			api.Error(w, r, err, "Failed to list fonts", nil)
			return
		}
		if fonts == nil {
			fonts = []*core.FontRecord{}
		}
		render.JSON(w, r, fonts)
	}
}

func HandleGetSetting(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		value, err := svc.Setting(r.Context(), key)
		if err != nil {
			api.Error(w, r, err, "Setting not found", logrus.Fields{"key": key})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(value)
	}
}

// HandlePutSetting stores the raw JSON body under the key.
func HandlePutSetting(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, api.MaxUploadSize))
		if err != nil {
			api.BadRequest(w, r, "Failed to read request body")
			return
		}
		defer r.Body.Close()

		if err := svc.PutSetting(r.Context(), key, json.RawMessage(body)); err != nil {
			api.Error(w, r, err, "Failed to save setting", logrus.Fields{"key": key})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleDeleteSetting(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if err := svc.DeleteSetting(r.Context(), key); err != nil {
			api.Error(w, r, err, "Failed to delete setting", logrus.Fields{"key": key})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
