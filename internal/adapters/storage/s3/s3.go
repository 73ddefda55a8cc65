// Package s3 stores artifacts in an S3-compatible bucket through minio-go.
package s3

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"comfybridge/internal/ports"
)

// Config holds configuration for S3-compatible storage.
type Config struct {
	Endpoint  string // host:port (e.g., "localhost:9000")
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
	region string
}

func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &Store{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func (s *Store) Provider() string { return "s3" }

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
}

func (s *Store) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	size := in.Size
	if size <= 0 {
		size = -1
	}
	info, err := s.client.PutObject(ctx, s.bucket, in.ObjectKey, in.Reader, size, minio.PutObjectOptions{
		ContentType: in.ContentType,
	})
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	return ports.PutObjectOutput{
		ObjectKey: info.Key,
		Location:  Location(s.bucket, info.Key),
		Size:      info.Size,
	}, nil
}

// Location renders s3://bucket/key.
func Location(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

var _ ports.StorageProvider = (*Store)(nil)
