package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxDescriptionSize caps a stored markdown description.
const MaxDescriptionSize = 512 * 1024

// DescriptionStoreConfig configures the MinIO backed description store.
type DescriptionStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DescriptionStore keeps per-book markdown descriptions as objects keyed by slug,
// independent of the book rows.
type DescriptionStore struct {
	mc     *minio.Client
	bucket string
	logger *slog.Logger
}

// NewDescriptionStore creates a DescriptionStore.
func NewDescriptionStore(cfg DescriptionStoreConfig, logger *slog.Logger) (*DescriptionStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &DescriptionStore{
		mc:     mc,
		bucket: cfg.Bucket,
		logger: logger.With("component", "storage.descriptions"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *DescriptionStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		s.logger.Info("description bucket created", "bucket", s.bucket)
	}
	return nil
}

// Get returns the markdown for slug, or "" when none was written.
func (s *DescriptionStore) Get(ctx context.Context, slug string) (string, error) {
	obj, err := s.mc.GetObject(ctx, s.bucket, descriptionKey(slug), minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get description %s: %w", slug, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, MaxDescriptionSize))
	if err != nil {
		if isNoSuchKey(err) {
			return "", nil
		}
		return "", fmt.Errorf("read description %s: %w", slug, err)
	}
	return string(data), nil
}

// Put stores the markdown for slug, replacing any previous version.
func (s *DescriptionStore) Put(ctx context.Context, slug, content string) error {
	_, err := s.mc.PutObject(ctx, s.bucket, descriptionKey(slug),
		bytes.NewReader([]byte(content)), int64(len(content)),
		minio.PutObjectOptions{ContentType: "text/markdown; charset=utf-8"},
	)
	if err != nil {
		return fmt.Errorf("put description %s: %w", slug, err)
	}
	return nil
}

// Rename moves a description when a book's slug changes.
func (s *DescriptionStore) Rename(ctx context.Context, oldSlug, newSlug string) error {
	_, err := s.mc.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: descriptionKey(newSlug)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: descriptionKey(oldSlug)},
	)
	if err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("copy description %s -> %s: %w", oldSlug, newSlug, err)
	}
	return s.Delete(ctx, oldSlug)
}

// Delete removes the description for slug. Missing objects are not an error.
func (s *DescriptionStore) Delete(ctx context.Context, slug string) error {
	if err := s.mc.RemoveObject(ctx, s.bucket, descriptionKey(slug), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete description %s: %w", slug, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *DescriptionStore) Ping(ctx context.Context) error {
	_, err := s.mc.BucketExists(ctx, s.bucket)
	return err
}

func descriptionKey(slug string) string {
	return "descriptions/" + strings.ToLower(slug) + ".md"
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
