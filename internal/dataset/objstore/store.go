// Package objstore persists frame series in S3-compatible object storage so
// sweep inputs and leaf outputs can outlive a single process.
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vk/mdsweep/internal/ctxlog"
	"github.com/vk/mdsweep/internal/dataset"
)

// Config names the object storage endpoint and bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Store is a minio-backed dataset store.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the configured endpoint. The bucket is created on first
// use if missing.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("object store requires endpoint, access key, secret key, and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PutFrames stores a frame series as a JSON object under the given key.
// Existing objects are not overwritten: node outputs are single-assignment
// and a key collision means the caller is re-publishing the same dataset.
func (s *Store) PutFrames(ctx context.Context, key string, f *dataset.Frames) error {
	logger := ctxlog.FromContext(ctx)
	key = ObjectKey(key)

	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		logger.Debug("Dataset object already exists, skipping write.", "key", key)
		return nil
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("checking for existing object %s: %w", key, err)
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding dataset %s: %w", f.Label(), err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("storing dataset %s: %w", key, err)
	}
	logger.Debug("Stored dataset object.", "key", key, "bytes", len(data))
	return nil
}

// GetFrames loads a frame series stored under the given key.
func (s *Store) GetFrames(ctx context.Context, key string) (*dataset.Frames, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ObjectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching dataset %s: %w", key, err)
	}
	defer obj.Close()

	var f dataset.Frames
	if err := json.NewDecoder(obj).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding dataset %s: %w", key, err)
	}
	return &f, nil
}

// ObjectKey normalizes a label into a valid object key.
func ObjectKey(label string) string {
	key := strings.ToLower(label)
	key = strings.ReplaceAll(key, " ", "-")
	replacer := strings.NewReplacer("(", "_", ")", "", ",", "_", "=", "-")
	return "datasets/" + replacer.Replace(key) + ".json"
}
