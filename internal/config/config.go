package config

import "github.com/kelseyhightower/envconfig"

type Config struct {
	// ----------------------------
	// AWS (SES templates + transport, S3 archival)
	// ----------------------------
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID" default:""`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY" default:""`

	// ----------------------------
	// Mail transport
	// ----------------------------
	TransportProvider string `envconfig:"TRANSPORT_PROVIDER" default:"ses"`
	SourceEmail       string `envconfig:"SOURCE_EMAIL" required:"true"`
	SMTPHost          string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort          int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser          string `envconfig:"SMTP_USER" default:""`
	SMTPPassword      string `envconfig:"SMTP_PASSWORD" default:""`

	// ----------------------------
	// Dispatch
	// ----------------------------
	WorkerCount     int `envconfig:"WORKER_COUNT" default:"5"`
	ExportBlankRows int `envconfig:"EXPORT_BLANK_ROWS" default:"500"`

	// ----------------------------
	// Outcome logs + archival
	// ----------------------------
	SuccessLogPath string `envconfig:"SUCCESS_LOG_PATH" default:"succeeded_email_log.txt"`
	FailedLogPath  string `envconfig:"FAILED_LOG_PATH" default:"failed_email_log.txt"`
	ArchiveBucket  string `envconfig:"ARCHIVE_BUCKET" default:""`
	SuccessLogKey  string `envconfig:"SUCCESS_LOG_KEY" default:"succeeded_email_log.txt"`
	FailedLogKey   string `envconfig:"FAILED_LOG_KEY" default:"failed_email_log.txt"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
