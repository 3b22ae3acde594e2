// Package thumbnails renders presets to downloadable images and serves the
// date format previews the editor offers.
package thumbnails

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"hizuke-thumb/canvas"
	"hizuke-thumb/dateformat"
	"hizuke-thumb/fileutil"
	"hizuke-thumb/handlers/api"
	"hizuke-thumb/presets"
)

const dateLayout = "2006-01-02"

// parseDate reads the "date" query parameter as a local calendar day,
// defaulting to today.
func parseDate(r *http.Request) (time.Time, error) {
	s := r.URL.Query().Get("date")
	if s == "" {
		return time.Now(), nil
	}
	return time.ParseInLocation(dateLayout, s, time.Local)
}

// HandleRender serves preset id rendered for ?date as ?type (image/png or
// image/jpeg) at ?quality in [0, 1]. The attachment name is expanded from
// filenameTemplate.
func HandleRender(svc *presets.Service, filenameTemplate string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		date, err := parseDate(r)
		if err != nil {
			api.BadRequest(w, r, "date must be YYYY-MM-DD")
			return
		}
		mimeType := r.URL.Query().Get("type")
		if mimeType == "" {
			mimeType = canvas.MimePNG
		}
		quality := canvas.DefaultQuality
		if q := r.URL.Query().Get("quality"); q != "" {
			if quality, err = strconv.ParseFloat(q, 64); err != nil {
				api.BadRequest(w, r, "quality must be a number")
				return
			}
		}

		blob, p, err := svc.Render(r.Context(), id, date, mimeType, quality)
		if err != nil {
			api.Error(w, r, err, "Failed to render preset", logrus.Fields{"presetId": id})
			return
		}

		filename := fileutil.WithExtension(fileutil.GenerateFilename(filenameTemplate, date, p.Name), blob.Type)
		w.Header().Set("Content-Type", blob.Type)
		w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
		api.Attachment(w, filename)
		w.Write(blob.Data)
	}
}

// HandleRefreshThumbnail re-renders the stored thumbnail of preset id.
func HandleRefreshThumbnail(svc *presets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		date, err := parseDate(r)
		if err != nil {
			api.BadRequest(w, r, "date must be YYYY-MM-DD")
			return
		}
		p, err := svc.RefreshThumbnail(r.Context(), id, date)
		if err != nil {
			api.Error(w, r, err, "Failed to refresh thumbnail", logrus.Fields{"presetId": id})
			return
		}
		render.JSON(w, r, p)
	}
}

type formatPreview struct {
	dateformat.Preset
	Preview string `json:"preview"`
}

// HandleDateFormats lists the built-in date formats with a preview of
// each. A "format" query parameter previews that pattern instead, in the
// "locale" given.
func HandleDateFormats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if format := r.URL.Query().Get("format"); format != "" {
			locale := r.URL.Query().Get("locale")
			render.JSON(w, r, formatPreview{
				Preset:  dateformat.Preset{Format: format, Locale: locale},
				Preview: dateformat.Preview(format, locale),
			})
			return
		}

		out := make([]formatPreview, 0, len(dateformat.Presets))
		for _, p := range dateformat.Presets {
			out = append(out, formatPreview{Preset: p, Preview: dateformat.Preview(p.Format, p.Locale)})
		}
		render.JSON(w, r, out)
	}
}
