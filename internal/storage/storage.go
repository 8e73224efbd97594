// Package storage wraps MinIO/S3 interactions for staged originals and
// finished output images.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/harlowframe/darkroom/internal/config"
)

// Layout builds object keys from the configured prefixes. It is kept separate
// from the client so key construction stays testable without a live bucket.
type Layout struct {
	Staging string
	Review  string
	Gallery string
}

// NewLayout constructs a Layout from config, normalizing trailing slashes.
func NewLayout(cfg *config.Config) Layout {
	return Layout{
		Staging: ensureSlash(cfg.StagingPrefix),
		Review:  ensureSlash(cfg.ReviewPrefix),
		Gallery: ensureSlash(cfg.GalleryPrefix),
	}
}

// StagedKey places an uploaded original under the staging prefix.
func (l Layout) StagedKey(filename string) string {
	return l.Staging + path.Base(filename)
}

// ReviewKey places a finished file in the admin review queue, namespaced by
// job so two batches with identical filenames cannot collide.
func (l Layout) ReviewKey(jobID, filename string) string {
	return l.Review + jobID + "/" + path.Base(filename)
}

// FinishedKey places a finished file under its gallery's finished prefix.
func (l Layout) FinishedKey(galleryID, filename string) string {
	return l.Gallery + galleryID + "/finished/" + path.Base(filename)
}

func ensureSlash(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

// Storage wraps a MinIO client scoped to the darkroom bucket.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket, region: cfg.S3Region}, nil
}

// EnsureBucket makes sure the bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Download fetches an object's bytes.
func (s *Storage) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return buf, nil
}

// Put stores an object under the given key. The content type is inferred
// from the key's extension when the caller passes none.
func (s *Storage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Remove deletes the given keys in one bulk operation. Per-object failures
// are collected and returned joined; callers treat the result as advisory.
func (s *Storage) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var errs []error
	for result := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", result.ObjectName, result.Err))
		}
	}
	return errors.Join(errs...)
}

// ContentTypeFor guesses a content type from a key's extension.
func ContentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
