// Package storage persists raw dataset files in S3-compatible object storage
// (Cloudflare R2 in production, MinIO locally).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned when the requested object key does not exist.
var ErrNotFound = errors.New("object not found")

// Config carries the connection settings for the object store.
type Config struct {
	Endpoint  string // host[:port], no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store is the object-storage client used by the upload pipeline.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the S3-compatible endpoint. It does not create the bucket;
// provisioning is an operator concern.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores the file under a fresh uuid-derived key that keeps the
// original extension, and returns that key.
func (s *Store) Upload(ctx context.Context, r io.Reader, size int64, originalFilename string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(originalFilename), ".")
	if ext == "" {
		ext = "csv"
	}
	key := fmt.Sprintf("%s.%s", uuid.NewString(), ext)
	if err := s.put(ctx, key, r, size); err != nil {
		return "", err
	}
	return key, nil
}

// UploadCleaned stores a cleaned variant of an existing object under a
// cleaned_ prefixed key derived from the original, and returns the new key.
func (s *Store) UploadCleaned(ctx context.Context, r io.Reader, size int64, originalKey string) (string, error) {
	base := strings.TrimSuffix(originalKey, filepath.Ext(originalKey))
	ext := strings.TrimPrefix(filepath.Ext(originalKey), ".")
	if ext == "" {
		ext = "csv"
	}
	key := fmt.Sprintf("cleaned_%s.%s", base, ext)
	if err := s.put(ctx, key, r, size); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Download fetches an object's contents. Returns ErrNotFound for missing keys.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Delete removes an object. Deleting a missing key reports ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	// RemoveObject is idempotent on S3, so probe first to surface 404s.
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrNotFound
		}
		return fmt.Errorf("stat object %s: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// PresignedURL returns a time-limited download URL for the object.
func (s *Store) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = time.Hour
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat object %s: %w", key, err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == 404
	}
	return false
}
