package s3

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	LinkTTL   time.Duration
}

// Storage resolves stored media references into time-limited download links.
type Storage struct {
	cfg    Config
	client *minio.Client
}

func New(cfg Config) (*Storage, error) {
	cl, err := minio.New(strings.TrimPrefix(cfg.Endpoint, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &Storage{cfg: cfg, client: cl}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// SignedLink produces a presigned GET URL for a stored blob, valid for the
// configured window. Presigning alone does not touch the object, so a stat
// runs first: a deleted blob must surface here, not as a dead link in a
// delivered email.
func (s *Storage) SignedLink(ctx context.Context, storagePath string) (string, error) {
	if _, err := s.client.StatObject(ctx, s.cfg.Bucket, storagePath, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat %q: %w", storagePath, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, storagePath, s.cfg.LinkTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", storagePath, err)
	}
	return u.String(), nil
}
