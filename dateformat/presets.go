package dateformat

import "time"

// Preset is a named format offered to the editor.
type Preset struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Format string `json:"format"`
	Locale string `json:"locale"`
}

// Presets are the built-in formats, Japanese first.
var Presets = []Preset{
	{ID: "ja-1", Label: "2024/01/09", Format: "yyyy/MM/dd", Locale: "ja"},
	{ID: "ja-2", Label: "2024.01.09", Format: "yyyy.MM.dd", Locale: "ja"},
	{ID: "ja-3", Label: "2024-01-09", Format: "yyyy-MM-dd", Locale: "ja"},
	{ID: "ja-4", Label: "2024年01月09日", Format: "yyyy年MM月dd日", Locale: "ja"},
	{ID: "ja-5", Label: "1月9日", Format: "M月d日", Locale: "ja"},
	{ID: "ja-6", Label: "2024/01/09 (火)", Format: "yyyy/MM/dd (EEE)", Locale: "ja"},
	{ID: "ja-7", Label: "1/9 (火曜日)", Format: "M/d (EEEE)", Locale: "ja"},
	{ID: "en-1", Label: "Jan 9, 2024", Format: "MMM d, yyyy", Locale: "en"},
	{ID: "en-2", Label: "January 9, 2024", Format: "MMMM d, yyyy", Locale: "en"},
	{ID: "en-3", Label: "1/9/2024", Format: "M/d/yyyy", Locale: "en"},
	{ID: "en-4", Label: "Jan 9, 2024 (Tue)", Format: "MMM d, yyyy (EEE)", Locale: "en"},
	{ID: "en-5", Label: "January 9, 2024 (Tuesday)", Format: "MMMM d, yyyy (EEEE)", Locale: "en"},
}

// SampleDate is the date previews are rendered against (a Tuesday).
var SampleDate = time.Date(2024, time.January, 9, 0, 0, 0, 0, time.Local)

// Preview formats SampleDate, returning Placeholder when the pattern is
// invalid.
func Preview(format, locale string) string {
	s, err := Format(SampleDate, format, locale)
	if err != nil {
		return Placeholder
	}
	return s
}
