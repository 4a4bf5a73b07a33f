// Package storage archives accepted audio uploads.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/config"
)

// Archiver keeps a copy of an uploaded clip. sessionID is uuid.Nil for
// transcribe-only uploads.
type Archiver interface {
	Archive(ctx context.Context, sessionID uuid.UUID, filename string, body io.Reader) (key string, err error)
}

var ErrEmptyS3BucketName = errors.New("empty S3 bucket name")

// putter is the part of manager.Uploader the archive uses
type putter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver uploads clips to an S3 bucket
type S3Archiver struct {
	bucket string
	prefix string
	up     putter
	now    func() time.Time
}

// NewS3Archiver loads the default AWS credential chain for the configured region
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	if cfg.S3Bucket == "" {
		return nil, ErrEmptyS3BucketName
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	uploader := manager.NewUploader(s3.NewFromConfig(awsCfg))
	return newS3Archiver(cfg.S3Bucket, cfg.S3Prefix, uploader), nil
}

func newS3Archiver(bucket, prefix string, up putter) *S3Archiver {
	return &S3Archiver{bucket: bucket, prefix: prefix, up: up, now: time.Now}
}

// Archive uploads body under <prefix>/<session or "unbound">/<date>/<uuid>-<filename>
func (a *S3Archiver) Archive(ctx context.Context, sessionID uuid.UUID, filename string, body io.Reader) (string, error) {
	key := a.key(sessionID, filename)

	_, err := a.up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

func (a *S3Archiver) key(sessionID uuid.UUID, filename string) string {
	scope := "unbound"
	if sessionID != uuid.Nil {
		scope = sessionID.String()
	}
	name := path.Base(filename)
	if name == "." || name == "/" {
		name = "clip"
	}
	return path.Join(a.prefix, scope, a.now().UTC().Format("2006-01-02"), uuid.NewString()+"-"+name)
}
