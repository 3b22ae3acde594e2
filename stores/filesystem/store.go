package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
)

const (
	presetsDir  = "presets"
	imagesDir   = "images"
	fontsDir    = "fonts"
	settingsDir = "settings"
)

// fsStore keeps one JSON file per record under basePath, in a directory
// per record kind.
type fsStore struct {
	basePath string
	// mu serialises read-modify-write sequences such as CreatePreset.
	mu sync.Mutex
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{presetsDir, imagesDir, fontsDir, settingsDir} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create storage directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

// recordPath resolves the file for id inside dir, rejecting ids that would
// escape it.
func (s *fsStore) recordPath(dir, id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid id %q: must be a plain name", id)
	}
	absDir, err := filepath.Abs(filepath.Join(s.basePath, dir))
	if err != nil {
		return "", err
	}
	absFile, err := filepath.Abs(filepath.Join(absDir, id+".json"))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absFile, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied")
	}
	return absFile, nil
}

func (s *fsStore) read(dir, kind, id string, v any) error {
	path, err := s.recordPath(dir, id)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"kind": kind, "id": id, "path": path})

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Record file not found")
			return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read record file")
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.WithError(err).Error("Failed to unmarshal record")
		return fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *fsStore) write(dir, id string, v any) error {
	path, err := s.recordPath(dir, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	// Write then rename so readers never observe a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logrus.WithError(err).WithField("path", path).Error("Failed to write record file")
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fsStore) remove(dir string, ids []string) error {
	for _, id := range ids {
		path, err := s.recordPath(dir, id)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).WithField("path", path).Error("Failed to delete record file")
			return err
		}
	}
	return nil
}

// list decodes every record in dir, skipping unreadable files.
func list[T any](s *fsStore, dir string) ([]*T, error) {
	dirPath := filepath.Join(s.basePath, dir)
	log := logrus.WithField("path", dirPath)

	files, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*T{}, nil
		}
		log.WithError(err).Error("Failed to read storage directory")
		return nil, err
	}

	out := make([]*T, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dirPath, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read record file %s, skipping", file.Name())
			continue
		}
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal record file %s, skipping", file.Name())
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *fsStore) GetPreset(ctx context.Context, id string) (*core.Preset, error) {
	var p core.Preset
	if err := s.read(presetsDir, "preset", id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *fsStore) ListPresets(ctx context.Context) ([]*core.Preset, error) {
	presets, err := list[core.Preset](s, presetsDir)
	if err != nil {
		return nil, err
	}
	core.SortPresets(presets)
	logrus.Debugf("Listed %d presets", len(presets))
	return presets, nil
}

func (s *fsStore) CreatePreset(ctx context.Context, preset *core.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.recordPath(presetsDir, preset.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("preset %s: %w", preset.ID, core.ErrConflict)
	}
	if err := s.write(presetsDir, preset.ID, preset); err != nil {
		return err
	}
	logrus.WithField("presetId", preset.ID).Info("Preset created successfully")
	return nil
}

func (s *fsStore) SavePreset(ctx context.Context, preset *core.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := core.NowMillis()
	var existing core.Preset
	err := s.read(presetsDir, "preset", preset.ID, &existing)
	switch {
	case err == nil:
		preset.CreatedAt = existing.CreatedAt
	case errors.Is(err, core.ErrNotFound):
		if preset.CreatedAt == 0 {
			preset.CreatedAt = now
		}
	default:
		return err
	}
	preset.UpdatedAt = now

	if err := s.write(presetsDir, preset.ID, preset); err != nil {
		return err
	}
	logrus.WithField("presetId", preset.ID).Debug("Preset saved")
	return nil
}

func (s *fsStore) DeletePreset(ctx context.Context, id string) error {
	path, err := s.recordPath(presetsDir, id)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"presetId": id, "path": path})
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Preset file not found for deletion")
			return fmt.Errorf("preset %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to delete preset file")
		return err
	}
	log.Info("Preset deleted successfully")
	return nil
}

func (s *fsStore) GetImage(ctx context.Context, id string) (*core.ImageRecord, error) {
	var img core.ImageRecord
	if err := s.read(imagesDir, "image", id, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *fsStore) SaveImage(ctx context.Context, image *core.ImageRecord) error {
	if err := s.write(imagesDir, image.ID, image); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"imageId":     image.ID,
		"data_length": len(image.Data),
	}).Info("Image saved successfully")
	return nil
}

func (s *fsStore) DeleteImages(ctx context.Context, ids ...string) error {
	return s.remove(imagesDir, ids)
}

func (s *fsStore) GetFont(ctx context.Context, id string) (*core.FontRecord, error) {
	var f core.FontRecord
	if err := s.read(fontsDir, "font", id, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *fsStore) ListFonts(ctx context.Context) ([]*core.FontRecord, error) {
	fonts, err := list[core.FontRecord](s, fontsDir)
	if err != nil {
		return nil, err
	}
	for _, f := range fonts {
		f.Data = nil
	}
	core.SortFonts(fonts)
	return fonts, nil
}

func (s *fsStore) SaveFont(ctx context.Context, font *core.FontRecord) error {
	if err := s.write(fontsDir, font.ID, font); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"fontId": font.ID,
		"family": font.Family,
	}).Info("Font saved successfully")
	return nil
}

func (s *fsStore) DeleteFonts(ctx context.Context, ids ...string) error {
	return s.remove(fontsDir, ids)
}

func (s *fsStore) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	var rec core.SettingsRecord
	if err := s.read(settingsDir, "setting", key, &rec); err != nil {
		return nil, err
	}
	return rec.Value, nil
}

func (s *fsStore) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("setting %s: value is not valid JSON", key)
	}
	return s.write(settingsDir, key, core.SettingsRecord{Key: key, Value: value})
}

func (s *fsStore) DeleteSetting(ctx context.Context, key string) error {
	return s.remove(settingsDir, []string{key})
}
