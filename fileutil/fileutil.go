// Package fileutil holds filename and upload helpers.
package fileutil

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/h2non/filetype"
)

// DefaultTemplate is used when no filename template is configured.
const DefaultTemplate = "thumbnail_{date}.png"

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// SanitizeFilename replaces characters that are unsafe in filenames and
// runs of whitespace with underscores.
func SanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = whitespace.ReplaceAllString(name, "_")
	return strings.TrimSpace(name)
}

// GenerateFilename expands {date} to YYYYMMDD and {preset_name} to the
// sanitized preset name, or "preset" when it is empty. Only the first
// occurrence of each placeholder is replaced.
func GenerateFilename(template string, date time.Time, presetName string) string {
	if template == "" {
		template = DefaultTemplate
	}
	dateStr := fmt.Sprintf("%04d%02d%02d", date.Year(), int(date.Month()), date.Day())

	name := "preset"
	if presetName != "" {
		name = SanitizeFilename(presetName)
	}

	out := strings.Replace(template, "{date}", dateStr, 1)
	return strings.Replace(out, "{preset_name}", name, 1)
}

// WithExtension swaps the extension of filename to match mimeType.
func WithExtension(filename, mimeType string) string {
	ext := ".png"
	if mimeType == "image/jpeg" {
		ext = ".jpg"
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}

// DetectMime sniffs the payload's type from its magic bytes. It returns ""
// when the type is unknown.
func DetectMime(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// IsImage reports whether data is a supported raster upload.
func IsImage(data []byte) bool {
	switch DetectMime(data) {
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return true
	}
	return false
}

// IsFont reports whether data looks like a font file.
func IsFont(data []byte) bool {
	return filetype.IsFont(data)
}

// FontFamilyFromFilename derives a family name from an uploaded font's
// filename by dropping the extension.
func FontFamilyFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
