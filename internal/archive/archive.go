package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
)

// Archiver stores final job snapshots
type Archiver interface {
	Archive(ctx context.Context, job *model.Job) error
}

// New creates the archiver described by cfg; a disabled archive is a no-op
func New(cfg config.ArchiveConfig, logger *slog.Logger) (Archiver, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	logger.Info("s3 archive enabled",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)

	return NewS3(client, cfg.Bucket, cfg.Prefix), nil
}

// Noop discards snapshots
type Noop struct{}

func (Noop) Archive(context.Context, *model.Job) error { return nil }

// objectPutter is the subset of *minio.Client used by the archive
type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 writes snapshots to <prefix><job id>.json in a bucket
type S3 struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3 creates an S3 archiver
func NewS3(client objectPutter, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a job
func (s *S3) Key(jobID string) string {
	return s.prefix + jobID + ".json"
}

func (s *S3) Archive(ctx context.Context, job *model.Job) error {
	if s.client == nil {
		return fmt.Errorf("s3 client not initialized")
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	_, err = s.client.PutObject(
		ctx,
		s.bucket,
		s.Key(job.ID),
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: "application/json",
		},
	)
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	return nil
}
