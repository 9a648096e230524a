package blob

import (
	"context"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/flowbot/media-migrator/internal/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrUnknownProvider = errors.New("unknown cloud provider")

// Object is the destination of an upload.
type Object struct {
	Bucket      string
	Key         string
	ContentType string
}

// Provider puts a local file into a bucket.
type Provider interface {
	Put(ctx context.Context, localPath string, obj Object) error
	Type() string
}

type Option func(u *Uploader)

// Uploader re-hosts staged files on the configured provider and synthesizes
// their public URL from the storage URL template.
type Uploader struct {
	provider    Provider
	bucket      string
	bucketPath  string
	urlTemplate string
	deleteAfter bool
}

func New(provider Provider, opts ...Option) *Uploader {
	u := &Uploader{provider: provider, deleteAfter: true}
	for _, o := range opts {
		o(u)
	}
	return u
}

// NewFromConfig builds the uploader for cfg.Provider. An unknown provider is
// reported as ErrUnknownProvider.
func NewFromConfig(cfg *config.CloudConfig) (*Uploader, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	return New(provider,
		WithBucket(cfg.Bucket),
		WithBucketPath(cfg.BucketPath),
		WithURLTemplate(cfg.StorageURL),
		WithDeleteAfterUpload(cfg.DeleteAfterUpload),
	), nil
}

func newProvider(cfg *config.CloudConfig) (Provider, error) {
	common := []MinioOpts{
		WithAccessKey(cfg.AccessKeyID),
		WithSecretKey(cfg.SecretAccessKey),
		WithRegion(cfg.Region),
		WithSSL(cfg.UseSSL),
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderAWS:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = awsEndpoint(cfg.Region)
		}
		return NewMinioProvider(ProviderAWS, append(common, WithEndpoint(endpoint))...)
	case ProviderAlibaba:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = endpointFromTemplate(cfg.StorageURL)
		}
		return NewMinioProvider(ProviderAlibaba, append(common, WithEndpoint(endpoint), WithVirtualHostStyle())...)
	case ProviderMinio:
		if cfg.Endpoint == "" {
			return nil, errors.New("minio provider requires CLOUD_ENDPOINT")
		}
		return NewMinioProvider(ProviderMinio, append(common, WithEndpoint(cfg.Endpoint), WithPathStyle())...)
	default:
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", cfg.Provider)
	}
}

func WithBucket(bucket string) Option {
	return func(u *Uploader) {
		u.bucket = bucket
	}
}

func WithBucketPath(bucketPath string) Option {
	return func(u *Uploader) {
		u.bucketPath = strings.Trim(bucketPath, "/")
	}
}

func WithURLTemplate(tmpl string) Option {
	return func(u *Uploader) {
		u.urlTemplate = tmpl
	}
}

func WithDeleteAfterUpload(deleteAfter bool) Option {
	return func(u *Uploader) {
		u.deleteAfter = deleteAfter
	}
}

func (u *Uploader) Type() string {
	return u.provider.Type()
}

// Upload puts localPath under filename and returns its public URL. The local
// file is removed on success when configured and always kept on failure.
func (u *Uploader) Upload(ctx context.Context, localPath string, filename string) (string, error) {
	obj := Object{
		Bucket:      u.bucket,
		Key:         u.objectKey(filename),
		ContentType: mime.TypeByExtension(path.Ext(filename)),
	}

	if err := u.provider.Put(ctx, localPath, obj); err != nil {
		return "", errors.Wrapf(err, "%s upload of %q failed", u.provider.Type(), obj.Key)
	}

	publicURL := PublicURL(u.urlTemplate, u.bucket, obj.Key)

	if u.deleteAfter {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			zap.S().Named("uploader").Warnw("failed to remove staged file", "path", localPath, "error", err)
		}
	}

	return publicURL, nil
}

func (u *Uploader) objectKey(filename string) string {
	if u.bucketPath == "" {
		return filename
	}
	return u.bucketPath + "/" + filename
}

// PublicURL substitutes bucket into tmpl ("{bucket}" or "{}") and appends the
// escaped object key.
func PublicURL(tmpl, bucket, key string) string {
	base := strings.NewReplacer("{bucket}", bucket, "{}", bucket).Replace(tmpl)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return base + strings.Join(segments, "/")
}

// ObjectName returns the unescaped last path segment of a source URL.
func ObjectName(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Path == "" {
		return path.Base(sourceURL)
	}
	return path.Base(u.Path)
}

func awsEndpoint(region string) string {
	if region == "" || region == "us-east-1" {
		return "s3.amazonaws.com"
	}
	return "s3." + region + ".amazonaws.com"
}

// endpointFromTemplate turns "https://{bucket}.oss-cn-hangzhou.aliyuncs.com/" into
// "oss-cn-hangzhou.aliyuncs.com".
func endpointFromTemplate(tmpl string) string {
	host := strings.NewReplacer("{bucket}.", "", "{}.", "").Replace(tmpl)
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.Trim(host, "/")
}
