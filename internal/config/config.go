package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database  *dbConfig
	Mongo     *mongoConfig
	Cloud     *CloudConfig
	Registrar *RegistrarConfig
	Pipeline  *PipelineConfig
	Service   *svcConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"media-migrator.db"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type mongoConfig struct {
	URL        string `envconfig:"MONGO_URL" default:"mongodb://localhost:27017"`
	Database   string `envconfig:"MONGO_DATABASE" default:"bot"`
	Collection string `envconfig:"MONGO_COLLECTION" default:"flow"`
}

// CloudConfig describes the destination blob store.
// StorageURL is a template where "{bucket}" (or "{}") is replaced by Bucket,
// e.g. "https://{bucket}.s3.amazonaws.com/".
type CloudConfig struct {
	Provider          string `envconfig:"CLOUD_PROVIDER" default:"aws"`
	StorageURL        string `envconfig:"CLOUD_STORAGE_URL" default:"https://{bucket}.s3.amazonaws.com/"`
	Bucket            string `envconfig:"CLOUD_BUCKET" default:""`
	AccessKeyID       string `envconfig:"CLOUD_ACCESS_KEY_ID" default:""`
	SecretAccessKey   string `envconfig:"CLOUD_SECRET_ACCESS_KEY" default:""`
	Endpoint          string `envconfig:"CLOUD_ENDPOINT" default:""`
	Region            string `envconfig:"CLOUD_REGION" default:""`
	BucketPath        string `envconfig:"CLOUD_BUCKET_PATH" default:""`
	UseSSL            bool   `envconfig:"CLOUD_USE_SSL" default:"true"`
	DeleteAfterUpload bool   `envconfig:"CLOUD_DELETE_AFTER_UPLOAD" default:"true"`
}

type RegistrarConfig struct {
	AccessToken   string        `envconfig:"FACEBOOK_PAGE_ACCESS_TOKEN" default:""`
	AttachmentURL string        `envconfig:"FACEBOOK_ATTACHMENT_URL" default:"https://graph.facebook.com/v7.0/me/message_attachments"`
	RetryCap      int           `envconfig:"REGISTRAR_RETRY_CAP" default:"5"`
	Backoff       time.Duration `envconfig:"REGISTRAR_BACKOFF" default:"500ms"`
	MaxBackoff    time.Duration `envconfig:"REGISTRAR_MAX_BACKOFF" default:"10s"`
}

type PipelineConfig struct {
	Concurrency     int           `envconfig:"MIGRATOR_CONCURRENCY" default:"10"`
	StagingDir      string        `envconfig:"MIGRATOR_STAGING_DIR" default:"temp"`
	ChunkSize       int           `envconfig:"MIGRATOR_CHUNK_SIZE" default:"32768"`
	BatchTimeout    time.Duration `envconfig:"MIGRATOR_BATCH_TIMEOUT" default:"2h"`
	RequestTimeout  time.Duration `envconfig:"MIGRATOR_REQUEST_TIMEOUT" default:"1m"`
	DownloadTimeout time.Duration `envconfig:"MIGRATOR_DOWNLOAD_TIMEOUT" default:"10m"`
}

type svcConfig struct {
	LogLevel        string `envconfig:"MIGRATOR_LOG_LEVEL" default:"info"`
	MetricsAddress  string `envconfig:"MIGRATOR_METRICS_ADDRESS" default:""`
	MigrationFolder string `envconfig:"MIGRATOR_MIGRATIONS_FOLDER" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a fresh configuration that bypasses the singleton.
func NewDefault() *Config {
	cfg := new(Config)
	_ = envconfig.Process("", cfg)
	return cfg
}
