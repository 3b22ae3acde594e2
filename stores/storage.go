package stores

import (
	"os"

	"github.com/sirupsen/logrus"

	"hizuke-thumb/core"
	"hizuke-thumb/stores/aws"
	"hizuke-thumb/stores/filesystem"
	"hizuke-thumb/stores/memory"
	"hizuke-thumb/stores/sqlite"
)

// Backend names accepted in STORAGE_TYPE.
const (
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeSQLite     = "sqlite"
	TypeS3         = "s3"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetStore opens the preset library backend named by STORAGE_TYPE. Every
// backend holds the same four record kinds: presets, images, fonts and
// editor settings. Unknown or empty values keep everything in memory,
// which loses the library on restart.
func GetStore() core.Store {
	kind := os.Getenv("STORAGE_TYPE")
	fields := logrus.Fields{"storageType": kind}

	var store core.Store
	switch kind {
	case TypeFilesystem:
		// One JSON file per record under presets/, images/, fonts/ and
		// settings/.
		dir := envOr("LOCAL_STORAGE_PATH", "./data")
		fields["basePath"] = dir
		store = filesystem.NewStore(dir)
	case TypeSQLite:
		// One table per record kind; image and font payloads are BLOBs.
		dsn := envOr("DATA_SOURCE_NAME", "hizuke-thumb.db")
		fields["dataSourceName"] = dsn
		store = sqlite.NewStore(dsn)
	case TypeS3:
		// Records are JSON objects keyed by kind and id; payloads live
		// inside them.
		bucket := os.Getenv("S3_BUCKET_NAME")
		if bucket == "" {
			logrus.WithFields(fields).Fatal("S3_BUCKET_NAME must be set to keep presets in S3")
		}
		fields["bucketName"] = bucket
		store = aws.NewStore(bucket)
	default:
		fields["storageType"] = TypeMemory
		store = memory.NewStore()
	}
	logrus.WithFields(fields).Info("Preset library storage ready")
	return store
}
