package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"jobmatch-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
)

// Archive keeps the raw connector pages in object storage so a bad
// normalization can be diagnosed and replayed. Objects expire via a
// bucket lifecycle rule.
type Archive struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewArchive connects to MinIO, creates the archive bucket if missing and
// installs the expiry lifecycle rule.
func NewArchive(ctx context.Context, cfg *config.MinIOConfig, logger zerolog.Logger) (*Archive, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	a := &Archive{
		client: client,
		bucket: cfg.ArchiveBucket,
		logger: logger.With().Str("component", "archive").Logger(),
	}
	if err := a.ensureBucket(ctx, cfg.ArchiveExpireDays); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureBucket(ctx context.Context, expireDays int) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", a.bucket, err)
		}
	}

	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     "expire-raw-pages",
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expireDays),
			},
		},
	}
	if err := a.client.SetBucketLifecycle(ctx, a.bucket, lc); err != nil {
		// Some deployments restrict lifecycle configuration; the archive
		// still works, it just never expires on its own.
		a.logger.Warn().Err(err).Str("bucket", a.bucket).Msg("failed to set lifecycle rule")
	}
	return nil
}

// ArchivePage stores one raw connector page. The object path encodes the
// run, source and page so replays overwrite rather than accumulate.
func (a *Archive) ArchivePage(ctx context.Context, runID, source string, page int, body []byte) (string, error) {
	objectName := fmt.Sprintf("%s/%s/%s/page_%04d.json",
		source, time.Now().UTC().Format("2006-01-02"), runID, page)
	_, err := a.client.PutObject(ctx, a.bucket, objectName,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("archive page %s: %w", objectName, err)
	}
	a.logger.Debug().Str("object", objectName).Int("bytes", len(body)).Msg("archived raw page")
	return objectName, nil
}

// ReadPage retrieves an archived page for replay or inspection.
func (a *Archive) ReadPage(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get archived page %s: %w", objectName, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read archived page %s: %w", objectName, err)
	}
	return buf.Bytes(), nil
}
