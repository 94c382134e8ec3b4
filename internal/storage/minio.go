package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/acta-labs/minutero/pkg/utils"
)

const defaultBucket = "meeting-audio"

// StoredObject describes one uploaded audio file.
type StoredObject struct {
	Key         string
	Bucket      string
	ContentType string
	Size        int64
	// URL is the address handed to the speech provider for download.
	URL string
}

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	useSSL          bool
	publicBaseURL   string
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		bucket: defaultBucket,
		useSSL: false,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// MinioUploader stores uploaded audio in an S3-compatible bucket and hands
// back URLs the speech provider can fetch.
type MinioUploader struct {
	cfg    *minioConfig
	client *minio.Client
}

func NewMinioUploader(opts ...MinioOpts) (*MinioUploader, error) {
	cfg := newConfig(opts...)
	if cfg.endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, utils.WrapIfNotNil(err, "failed to create storage client")
	}

	return &MinioUploader{cfg: cfg, client: minioClient}, nil
}

// EnsureBucket creates the configured bucket if it does not exist yet.
func (s *MinioUploader) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.bucket)
	if err != nil {
		return utils.WrapIfNotNil(err, "failed to check bucket")
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.cfg.bucket, minio.MakeBucketOptions{})
	return utils.WrapIfNotNil(err, "failed to create bucket")
}

// Upload stores one audio file under a fresh object key and returns where it
// landed. The original filename only contributes its extension; the key is
// random so concurrent uploads of identically named files never collide.
func (s *MinioUploader) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (*StoredObject, error) {
	key := uuid.NewString() + strings.ToLower(path.Ext(filename))

	info, err := s.client.PutObject(ctx, s.cfg.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, utils.WrapIfNotNil(err, "failed to store object")
	}

	return &StoredObject{
		Key:         info.Key,
		Bucket:      s.cfg.bucket,
		ContentType: contentType,
		Size:        info.Size,
		URL:         s.objectURL(info.Key),
	}, nil
}

func (s *MinioUploader) objectURL(key string) string {
	base := strings.TrimRight(s.cfg.publicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if s.cfg.useSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, s.cfg.endpoint)
	}
	return fmt.Sprintf("%s/%s/%s", base, s.cfg.bucket, key)
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		if bucket != "" {
			c.bucket = bucket
		}
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

// WithPublicBaseURL overrides the URL prefix used for stored objects, for
// deployments where the bucket is served through a CDN or reverse proxy.
func WithPublicBaseURL(baseURL string) MinioOpts {
	return func(c *minioConfig) {
		c.publicBaseURL = baseURL
	}
}
