package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/logger"
	"github.com/kirychukyurii/domain-search/internal/model"
)

type fakePutter struct {
	bucket string
	key    string
	body   []byte
	opts   minio.PutObjectOptions
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(body)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.bucket, f.key, f.body, f.opts = bucket, object, body, opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func TestS3_Archive(t *testing.T) {
	putter := &fakePutter{}
	s := NewS3(putter, "snapshots", "jobs/")

	job := model.NewJob("abc", model.Brief{BusinessName: "Sunrise Bakery"}, "heuristic", time.Now())
	job.State = model.JobStateCompleted

	if err := s.Archive(context.Background(), job); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if putter.bucket != "snapshots" || putter.key != "jobs/abc.json" {
		t.Errorf("stored at %s/%s", putter.bucket, putter.key)
	}
	if putter.opts.ContentType != "application/json" {
		t.Errorf("content type = %s", putter.opts.ContentType)
	}

	var got model.Job
	if err := json.Unmarshal(putter.body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "abc" || got.State != model.JobStateCompleted {
		t.Errorf("archived job = %+v", got)
	}
}

func TestS3_ArchiveError(t *testing.T) {
	s := NewS3(&fakePutter{err: errors.New("access denied")}, "b", "")
	err := s.Archive(context.Background(), model.NewJob("x", model.Brief{}, "heuristic", time.Now()))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_DisabledIsNoop(t *testing.T) {
	a, err := New(config.ArchiveConfig{}, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := a.(Noop); !ok {
		t.Errorf("got %T, want Noop", a)
	}
}
