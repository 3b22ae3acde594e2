package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"hizuke-thumb/core"
)

type sqliteStore struct {
	db *sql.DB
}

var schema = []string{
	// The preset body is stored as JSON; the scalar columns serve listing
	// and ordering.
	`CREATE TABLE IF NOT EXISTS presets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		data BLOB NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS presets_updated_at ON presets (updated_at DESC);`,
	`CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		name TEXT,
		mime_type TEXT,
		data BLOB,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS fonts (
		id TEXT PRIMARY KEY,
		name TEXT,
		family TEXT,
		data BLOB,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS settings (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	s, err := Open(dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}
	return s
}

// Open opens dataSourceName and creates the schema if needed.
func Open(dataSourceName string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &sqliteStore{db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) GetPreset(ctx context.Context, id string) (*core.Preset, error) {
	log := logrus.WithField("presetId", id)
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM presets WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Preset not found")
			return nil, fmt.Errorf("preset %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve preset")
		return nil, err
	}
	var p core.Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode preset %s: %w", id, err)
	}
	return &p, nil
}

func (s *sqliteStore) ListPresets(ctx context.Context) ([]*core.Preset, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM presets ORDER BY updated_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	presets := []*core.Preset{}
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var p core.Preset
		if err := json.Unmarshal(data, &p); err != nil {
			logrus.WithError(err).WithField("presetId", id).Warn("Failed to decode preset, skipping")
			continue
		}
		presets = append(presets, &p)
	}
	return presets, rows.Err()
}

func (s *sqliteStore) CreatePreset(ctx context.Context, preset *core.Preset) error {
	data, err := json.Marshal(preset)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{
		"presetId":    preset.ID,
		"data_length": len(data),
	})
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO presets (id, name, is_default, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?, ?)",
		preset.ID, preset.Name, preset.IsDefault, preset.CreatedAt, preset.UpdatedAt, data)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("preset %s: %w", preset.ID, core.ErrConflict)
		}
		log.WithError(err).Error("Failed to create preset")
		return err
	}
	log.Info("Preset created successfully")
	return nil
}

func (s *sqliteStore) SavePreset(ctx context.Context, preset *core.Preset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := core.NowMillis()
	var createdAt int64
	err = tx.QueryRowContext(ctx, "SELECT created_at FROM presets WHERE id = ?", preset.ID).Scan(&createdAt)
	switch {
	case err == nil:
		preset.CreatedAt = createdAt
	case errors.Is(err, sql.ErrNoRows):
		if preset.CreatedAt == 0 {
			preset.CreatedAt = now
		}
	default:
		return err
	}
	preset.UpdatedAt = now

	data, err := json.Marshal(preset)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO presets (id, name, is_default, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_default = excluded.is_default,
			updated_at = excluded.updated_at, data = excluded.data`,
		preset.ID, preset.Name, preset.IsDefault, preset.CreatedAt, preset.UpdatedAt, data)
	if err != nil {
		logrus.WithError(err).WithField("presetId", preset.ID).Error("Failed to save preset")
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) DeletePreset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM presets WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		logrus.WithField("presetId", id).Warn("Preset not found for deletion")
		return fmt.Errorf("preset %s: %w", id, core.ErrNotFound)
	}
	logrus.WithField("presetId", id).Info("Preset deleted successfully")
	return nil
}

func (s *sqliteStore) GetImage(ctx context.Context, id string) (*core.ImageRecord, error) {
	img := core.ImageRecord{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT name, mime_type, data, created_at FROM images WHERE id = ?", id).
		Scan(&img.Name, &img.MimeType, &img.Data, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("image %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return &img, nil
}

func (s *sqliteStore) SaveImage(ctx context.Context, image *core.ImageRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO images (id, name, mime_type, data, created_at) VALUES (?, ?, ?, ?, ?)",
		image.ID, image.Name, image.MimeType, image.Data, image.CreatedAt)
	if err != nil {
		logrus.WithError(err).WithField("imageId", image.ID).Error("Failed to save image")
		return err
	}
	logrus.WithFields(logrus.Fields{
		"imageId":     image.ID,
		"data_length": len(image.Data),
	}).Info("Image saved successfully")
	return nil
}

func (s *sqliteStore) DeleteImages(ctx context.Context, ids ...string) error {
	return s.deleteIDs(ctx, "images", ids)
}

func (s *sqliteStore) GetFont(ctx context.Context, id string) (*core.FontRecord, error) {
	f := core.FontRecord{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT name, family, data, created_at FROM fonts WHERE id = ?", id).
		Scan(&f.Name, &f.Family, &f.Data, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("font %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return &f, nil
}

func (s *sqliteStore) ListFonts(ctx context.Context) ([]*core.FontRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, family, created_at FROM fonts ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fonts := []*core.FontRecord{}
	for rows.Next() {
		var f core.FontRecord
		if err := rows.Scan(&f.ID, &f.Name, &f.Family, &f.CreatedAt); err != nil {
			return nil, err
		}
		fonts = append(fonts, &f)
	}
	return fonts, rows.Err()
}

func (s *sqliteStore) SaveFont(ctx context.Context, font *core.FontRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO fonts (id, name, family, data, created_at) VALUES (?, ?, ?, ?, ?)",
		font.ID, font.Name, font.Family, font.Data, font.CreatedAt)
	if err != nil {
		logrus.WithError(err).WithField("fontId", font.ID).Error("Failed to save font")
		return err
	}
	logrus.WithFields(logrus.Fields{
		"fontId": font.ID,
		"family": font.Family,
	}).Info("Font saved successfully")
	return nil
}

func (s *sqliteStore) DeleteFonts(ctx context.Context, ids ...string) error {
	return s.deleteIDs(ctx, "fonts", ids)
}

// deleteIDs removes ids from table in one transaction. table is never user
// input.
func (s *sqliteStore) deleteIDs(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM "+table+" WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("setting %s: %w", key, core.ErrNotFound)
		}
		return nil, err
	}
	return json.RawMessage(value), nil
}

func (s *sqliteStore) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("setting %s: value is not valid JSON", key)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, string(value))
	return err
}

func (s *sqliteStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	return err
}
