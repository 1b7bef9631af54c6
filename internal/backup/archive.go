package backup

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/model"
)

// S3API is the slice of the S3 client the archiver needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SnapshotReader reads snapshot content off the managed host.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, host model.Host, ref model.SnapshotRef) ([]byte, error)
}

// Archiver mirrors snapshots to an S3 bucket so a dead host does not take
// the whole backup chain with it. Archival is best-effort: callers log
// failures but never fail a deploy or rollback over them.
type Archiver struct {
	api    S3API
	reader SnapshotReader
	logger zerolog.Logger
	bucket string
}

// NewArchiver creates an Archiver writing to the given bucket.
func NewArchiver(api S3API, reader SnapshotReader, logger zerolog.Logger, bucket string) *Archiver {
	return &Archiver{
		api:    api,
		reader: reader,
		logger: logger.With().Str("component", "snapshot-archiver").Logger(),
		bucket: bucket,
	}
}

// Archive copies the snapshot's bytes to s3://<bucket>/<host-tag>/<name>.
func (a *Archiver) Archive(ctx context.Context, host model.Host, ref model.SnapshotRef) error {
	data, err := a.reader.ReadSnapshot(ctx, host, ref)
	if err != nil {
		return fmt.Errorf("archive %s: %w", ref.Name, err)
	}

	key := path.Join(host.Tag, ref.Name)
	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/html"),
	})
	if err != nil {
		return fmt.Errorf("archive %s to s3://%s/%s: %w", ref.Name, a.bucket, key, err)
	}

	a.logger.Info().Str("snapshot", ref.Name).Str("bucket", a.bucket).Str("key", key).Msg("snapshot archived")
	return nil
}
