package core

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
)

// ErrNotFound is wrapped by every store when a record is absent. Callers
// treat it as "no value", not as a failure.
var ErrNotFound = errors.New("not found")

// ErrConflict is wrapped when CreatePreset is given an id that is taken.
var ErrConflict = errors.New("already exists")

type (
	// PresetStore persists presets. ListPresets orders by UpdatedAt, newest
	// first.
	PresetStore interface {
		GetPreset(ctx context.Context, id string) (*Preset, error)
		ListPresets(ctx context.Context) ([]*Preset, error)
		// CreatePreset inserts a preset and fails if the id is taken.
		CreatePreset(ctx context.Context, preset *Preset) error
		// SavePreset upserts a preset and stamps UpdatedAt.
		SavePreset(ctx context.Context, preset *Preset) error
		DeletePreset(ctx context.Context, id string) error
	}

	ImageStore interface {
		GetImage(ctx context.Context, id string) (*ImageRecord, error)
		SaveImage(ctx context.Context, image *ImageRecord) error
		DeleteImages(ctx context.Context, ids ...string) error
	}

	FontStore interface {
		GetFont(ctx context.Context, id string) (*FontRecord, error)
		// ListFonts returns metadata for every font ordered by name. Data is
		// left empty.
		ListFonts(ctx context.Context) ([]*FontRecord, error)
		SaveFont(ctx context.Context, font *FontRecord) error
		DeleteFonts(ctx context.Context, ids ...string) error
	}

	SettingsStore interface {
		GetSetting(ctx context.Context, key string) (json.RawMessage, error)
		PutSetting(ctx context.Context, key string, value json.RawMessage) error
		DeleteSetting(ctx context.Context, key string) error
	}

	// Store is the union every backend implements.
	Store interface {
		PresetStore
		ImageStore
		FontStore
		SettingsStore
	}
)

// SortPresets orders presets most recently updated first, newest id first
// on ties.
func SortPresets(presets []*Preset) {
	slices.SortFunc(presets, func(a, b *Preset) int {
		if c := cmp.Compare(b.UpdatedAt, a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// SortFonts orders fonts by name, then id.
func SortFonts(fonts []*FontRecord) {
	slices.SortFunc(fonts, func(a, b *FontRecord) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
