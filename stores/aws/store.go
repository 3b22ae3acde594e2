package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
)

const (
	presetsPrefix  = "presets"
	imagesPrefix   = "images"
	fontsPrefix    = "fonts"
	settingsPrefix = "settings"
)

// Client is the subset of the S3 API the store uses.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Store keeps one JSON object per record, keyed "<kind>/<id>.json".
type s3Store struct {
	s3Client Client
	bucket   string
	// mu serialises read-modify-write sequences within this process.
	mu sync.Mutex
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	return NewStoreWithClient(s3.NewFromConfig(cfg), bucketName)
}

func NewStoreWithClient(client Client, bucketName string) *s3Store {
	return &s3Store{
		s3Client: client,
		bucket:   bucketName,
	}
}

// objectKey builds the key for id under prefix. id must be a plain name so
// it cannot address objects outside prefix.
func objectKey(prefix, id string) (string, error) {
	if path.Base(id) != id {
		return "", fmt.Errorf("invalid id %q: must not be a path", id)
	}
	if id == "" || id == "." || id == ".." {
		return "", fmt.Errorf("invalid id: must not be empty or a dot directory")
	}
	return path.Join(prefix, id+".json"), nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *s3Store) getJSON(ctx context.Context, prefix, kind, id string, v any) error {
	key, err := objectKey(prefix, id)
	if err != nil {
		return err
	}
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			logrus.WithFields(logrus.Fields{"kind": kind, "id": id}).Warn("Object not found")
			return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
		}
		return fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s data: %w", kind, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *s3Store) putJSON(ctx context.Context, prefix, kind, id string, v any) error {
	key, err := objectKey(prefix, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *s3Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// listJSON decodes every object under prefix. Unreadable objects are
// logged and skipped.
func listJSON[T any](ctx context.Context, s *s3Store, prefix string) ([]*T, error) {
	out := []*T{}
	p := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix + "/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, object := range page.Contents {
			resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    object.Key,
			})
			if err != nil {
				logrus.WithError(err).Warnf("Failed to get object %s, skipping", aws.ToString(object.Key))
				continue
			}
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				logrus.WithError(err).Warnf("Failed to read object %s, skipping", aws.ToString(object.Key))
				continue
			}
			var rec T
			if err := json.Unmarshal(data, &rec); err != nil {
				logrus.WithError(err).Warnf("Failed to unmarshal object %s, skipping", aws.ToString(object.Key))
				continue
			}
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (s *s3Store) deleteKeys(ctx context.Context, prefix string, ids []string) error {
	objects := make([]s3types.ObjectIdentifier, 0, len(ids))
	for _, id := range ids {
		key, err := objectKey(prefix, id)
		if err != nil {
			return err
		}
		objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(key)})
	}
	// DeleteObjects accepts at most 1000 keys per call.
	for len(objects) > 0 {
		n := min(len(objects), 1000)
		_, err := s.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: objects[:n]},
		})
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", prefix, err)
		}
		objects = objects[n:]
	}
	return nil
}

func (s *s3Store) GetPreset(ctx context.Context, id string) (*core.Preset, error) {
	var p core.Preset
	if err := s.getJSON(ctx, presetsPrefix, "preset", id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *s3Store) ListPresets(ctx context.Context) ([]*core.Preset, error) {
	presets, err := listJSON[core.Preset](ctx, s, presetsPrefix)
	if err != nil {
		return nil, err
	}
	core.SortPresets(presets)
	return presets, nil
}

func (s *s3Store) CreatePreset(ctx context.Context, preset *core.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := objectKey(presetsPrefix, preset.ID)
	if err != nil {
		return err
	}
	ok, err := s.exists(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("preset %s: %w", preset.ID, core.ErrConflict)
	}
	if err := s.putJSON(ctx, presetsPrefix, "preset", preset.ID, preset); err != nil {
		return err
	}
	logrus.WithField("presetId", preset.ID).Info("Preset created successfully")
	return nil
}

func (s *s3Store) SavePreset(ctx context.Context, preset *core.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := core.NowMillis()
	// Preserve CreatedAt on update
	var existing core.Preset
	err := s.getJSON(ctx, presetsPrefix, "preset", preset.ID, &existing)
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
	return s.putJSON(ctx, presetsPrefix, "preset", preset.ID, preset)
}

func (s *s3Store) DeletePreset(ctx context.Context, id string) error {
	key, err := objectKey(presetsPrefix, id)
	if err != nil {
		return err
	}
	ok, err := s.exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("preset %s: %w", id, core.ErrNotFound)
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete preset %s: %w", id, err)
	}
	logrus.WithField("presetId", id).Info("Preset deleted successfully")
	return nil
}

func (s *s3Store) GetImage(ctx context.Context, id string) (*core.ImageRecord, error) {
	var img core.ImageRecord
	if err := s.getJSON(ctx, imagesPrefix, "image", id, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *s3Store) SaveImage(ctx context.Context, image *core.ImageRecord) error {
	return s.putJSON(ctx, imagesPrefix, "image", image.ID, image)
}

func (s *s3Store) DeleteImages(ctx context.Context, ids ...string) error {
	return s.deleteKeys(ctx, imagesPrefix, ids)
}

func (s *s3Store) GetFont(ctx context.Context, id string) (*core.FontRecord, error) {
	var f core.FontRecord
	if err := s.getJSON(ctx, fontsPrefix, "font", id, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *s3Store) ListFonts(ctx context.Context) ([]*core.FontRecord, error) {
	fonts, err := listJSON[core.FontRecord](ctx, s, fontsPrefix)
	if err != nil {
		return nil, err
	}
	// For list view, we don't need the font data.
	for _, f := range fonts {
		f.Data = nil
	}
	core.SortFonts(fonts)
	return fonts, nil
}

func (s *s3Store) SaveFont(ctx context.Context, font *core.FontRecord) error {
	return s.putJSON(ctx, fontsPrefix, "font", font.ID, font)
}

func (s *s3Store) DeleteFonts(ctx context.Context, ids ...string) error {
	return s.deleteKeys(ctx, fontsPrefix, ids)
}

func (s *s3Store) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	var rec core.SettingsRecord
	if err := s.getJSON(ctx, settingsPrefix, "setting", key, &rec); err != nil {
		return nil, err
	}
	return rec.Value, nil
}

func (s *s3Store) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("setting %s: value is not valid JSON", key)
	}
	return s.putJSON(ctx, settingsPrefix, "setting", key, core.SettingsRecord{Key: key, Value: value})
}

func (s *s3Store) DeleteSetting(ctx context.Context, key string) error {
	return s.deleteKeys(ctx, settingsPrefix, []string{key})
}
