package blob

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	ProviderAWS     = "aws"
	ProviderAlibaba = "alibaba"
	ProviderMinio   = "minio"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	region          string
	accessKey       string
	secretAccessKey string
	useSSL          bool
	bucketLookup    minio.BucketLookupType
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL:       true,
		bucketLookup: minio.BucketLookupAuto,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// minioProvider talks to any S3 compatible store: AWS S3, Alibaba OSS and MinIO
// differ only in endpoint and bucket addressing style.
type minioProvider struct {
	name   string
	cfg    *minioConfig
	client *minio.Client
}

func NewMinioProvider(name string, opts ...MinioOpts) (Provider, error) {
	cfg := newConfig(opts...)

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure:       cfg.useSSL,
		Region:       cfg.region,
		BucketLookup: cfg.bucketLookup,
	})
	if err != nil {
		return nil, err
	}

	return &minioProvider{name: name, cfg: cfg, client: client}, nil
}

func (m *minioProvider) Put(ctx context.Context, localPath string, obj Object) error {
	_, err := m.client.FPutObject(ctx, obj.Bucket, obj.Key, localPath, minio.PutObjectOptions{
		ContentType: obj.ContentType,
	})
	return err
}

func (m *minioProvider) Type() string {
	return m.name
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithRegion(region string) MinioOpts {
	return func(c *minioConfig) {
		c.region = region
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

// WithVirtualHostStyle addresses buckets as <bucket>.<endpoint>, required by OSS.
func WithVirtualHostStyle() MinioOpts {
	return func(c *minioConfig) {
		c.bucketLookup = minio.BucketLookupDNS
	}
}

func WithPathStyle() MinioOpts {
	return func(c *minioConfig) {
		c.bucketLookup = minio.BucketLookupPath
	}
}
