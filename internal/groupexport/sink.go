package groupexport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/waferline-labs/waferline-go/internal/domain"
)

const snapshotContentType = "application/x-ndjson"

// ObjectPutter is the slice of object storage the snapshot sink needs.
type ObjectPutter interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// MinioPutter adapts a minio client to ObjectPutter.
type MinioPutter struct {
	Client *minio.Client
}

func (p MinioPutter) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if p.Client == nil {
		return fmt.Errorf("minio client is required")
	}
	_, err := p.Client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// SnapshotSink exports groups as NDJSON objects. Keys are
// groups/<group-id>/<utc-timestamp>.ndjson so repeated exports of the same
// group never overwrite each other.
type SnapshotSink struct {
	store  ObjectPutter
	bucket string
	now    func() time.Time
}

func NewSnapshotSink(store ObjectPutter, bucket string) *SnapshotSink {
	if store == nil || bucket == "" {
		return nil
	}
	return &SnapshotSink{
		store:  store,
		bucket: bucket,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upload writes the group snapshot and returns the object key.
func (s *SnapshotSink) Upload(ctx context.Context, group domain.ExperimentGroup) (string, error) {
	var buf bytes.Buffer
	if err := NewNDJSONExporter(&buf).Export(ctx, group); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := fmt.Sprintf("groups/%s/%s.ndjson", group.ID, s.now().Format("20060102T150405Z"))
	if err := s.store.Put(ctx, s.bucket, key, &buf, int64(buf.Len()), snapshotContentType); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return key, nil
}
