// Package api holds the response and request helpers shared by the HTTP
// handlers.
package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
	"hizuke-thumb/presets"
)

// MaxUploadSize bounds request bodies carrying images, fonts and exports.
const MaxUploadSize = 50 << 20

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var missing *presets.MissingAssetsError
	switch {
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, presets.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error logs err with fields and renders {"error": msg}. Client errors
// carry the error text so the caller can see what was rejected; missing
// assets are listed in full.
func Error(w http.ResponseWriter, r *http.Request, err error, msg string, fields logrus.Fields) {
	status := StatusFor(err)
	log := logrus.WithFields(fields).WithField("error", err)
	switch {
	case status == http.StatusNotFound:
		log.Warn(msg)
	case status >= http.StatusInternalServerError:
		log.Error(msg)
	default:
		log.Info(msg)
	}

	render.Status(r, status)
	var missing *presets.MissingAssetsError
	if errors.As(err, &missing) {
		render.JSON(w, r, map[string]any{
			"error":         msg,
			"missingImages": missing.Images,
			"missingFonts":  missing.Fonts,
		})
		return
	}
	if status < http.StatusInternalServerError {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	render.JSON(w, r, map[string]string{"error": msg})
}

// BadRequest renders a 400 for input rejected before reaching the service.
func BadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, map[string]string{"error": msg})
}

// ReadUpload returns the uploaded file name and bytes. Multipart requests
// carry the file in the "file" field; any other body is the file itself,
// named by the "filename" query parameter.
func ReadUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	defer r.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			return "", nil, fmt.Errorf("%w: %v", presets.ErrInvalid, err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", presets.ErrInvalid, err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, err
		}
		return filepath.Base(header.Filename), data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", presets.ErrInvalid, err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty upload", presets.ErrInvalid)
	}
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload"
	}
	return filepath.Base(name), data, nil
}

// Attachment sets a Content-Disposition naming the download. Non-ASCII
// names are encoded per RFC 2231.
func Attachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}
