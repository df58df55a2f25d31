package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/skuwatch/internal/config"
)

// Uploader ships exported run files to an S3-compatible bucket.
type Uploader struct {
	client *minio.Client
	bucket string
}

// NewUploader builds the S3 client from the export configuration.
func NewUploader(cfg config.S3Config) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be provided")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed creating s3 client: %w", err)
	}

	return &Uploader{client: client, bucket: cfg.Bucket}, nil
}

// Upload pushes every local file under the given key prefix, keyed by
// base name.
func (u *Uploader) Upload(ctx context.Context, prefix string, paths []string) error {
	for _, path := range paths {
		key := filepath.Base(path)
		if prefix != "" {
			key = strings.TrimSuffix(prefix, "/") + "/" + key
		}

		info, err := u.client.FPutObject(ctx, u.bucket, key, path, minio.PutObjectOptions{
			ContentType: contentType(path),
		})
		if err != nil {
			return fmt.Errorf("failed uploading %s: %w", path, err)
		}

		log.Debug().Str("key", key).Int64("size", info.Size).Msg("uploaded export file")
	}

	log.Info().Int("files", len(paths)).Str("bucket", u.bucket).Msg("exports uploaded")

	return nil
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
