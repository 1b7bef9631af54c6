package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config carries everything an operation needs, constructed once in main
// and passed into each component. There is no process-wide mutable state;
// two invocations with different configs never interfere.
type Config struct {
	// HostTag is the Name tag of the managed EC2 instance.
	HostTag string `yaml:"host_tag" validate:"required"`
	// AWSRegion overrides the ambient AWS region when non-empty.
	AWSRegion string `yaml:"aws_region"`

	SSHUser    string        `yaml:"ssh_user" validate:"required"`
	SSHKeyPath string        `yaml:"ssh_key_path" validate:"required"`
	SSHTimeout time.Duration `yaml:"ssh_timeout"`

	// LivePath is the well-known path of the live artifact on the host.
	LivePath string `yaml:"live_path" validate:"required"`
	// StagingPath receives uploads before the atomic move into place.
	StagingPath string `yaml:"staging_path" validate:"required"`
	// BackupDir holds the snapshot chain.
	BackupDir string `yaml:"backup_dir" validate:"required"`

	// WebOwner and WebMode are reapplied to the live artifact after every
	// install or restore.
	WebOwner string `yaml:"web_owner" validate:"required"`
	WebMode  string `yaml:"web_mode" validate:"required"`
	// ServiceName is the systemd unit serving the artifact.
	ServiceName string `yaml:"service_name" validate:"required"`

	ProbeURL string `yaml:"probe_url" validate:"required,url"`
	// ProbeSubstring, when set, must appear in the probe body for
	// verification to pass.
	ProbeSubstring string `yaml:"probe_substring"`

	// MetricNamespace is the CloudWatch namespace for custom metrics.
	MetricNamespace string `yaml:"metric_namespace" validate:"required"`
	// AlarmActions are ARNs notified when an alarm fires (e.g. SNS topics).
	AlarmActions []string `yaml:"alarm_actions"`
	// ArchiveBucket, when set, mirrors new snapshots to this S3 bucket.
	ArchiveBucket string `yaml:"archive_bucket"`

	WatchInterval     time.Duration `yaml:"watch_interval"`
	MetricsListenAddr string        `yaml:"metrics_listen_addr"`

	// LockDir holds the per-host advisory lock files on the operator
	// machine.
	LockDir string `yaml:"lock_dir" validate:"required"`

	LogLevel string `yaml:"log_level"`
}

// Load builds the config from defaults, then the optional YAML file, then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		SSHUser:           "ubuntu",
		SSHKeyPath:        filepath.Join(home, ".ssh", "id_rsa"),
		SSHTimeout:        60 * time.Second,
		LivePath:          "/var/www/html/index.html",
		StagingPath:       "/tmp/index.html.staging",
		BackupDir:         "/var/backups/website",
		WebOwner:          "www-data:www-data",
		WebMode:           "0644",
		ServiceName:       "nginx",
		ProbeURL:          "http://127.0.0.1/",
		MetricNamespace:   "WebDeploy",
		WatchInterval:     60 * time.Second,
		MetricsListenAddr: ":9100",
		LockDir:           filepath.Join(home, ".local", "state", "deployctl"),
		LogLevel:          "info",
	}
}

func applyEnv(cfg *Config) {
	setEnv(&cfg.HostTag, "HOST_TAG")
	setEnv(&cfg.AWSRegion, "AWS_REGION")
	setEnv(&cfg.SSHUser, "SSH_USER")
	setEnv(&cfg.SSHKeyPath, "SSH_KEY_PATH")
	setEnv(&cfg.LivePath, "LIVE_PATH")
	setEnv(&cfg.StagingPath, "STAGING_PATH")
	setEnv(&cfg.BackupDir, "BACKUP_DIR")
	setEnv(&cfg.WebOwner, "WEB_OWNER")
	setEnv(&cfg.ServiceName, "SERVICE_NAME")
	setEnv(&cfg.ProbeURL, "PROBE_URL")
	setEnv(&cfg.ProbeSubstring, "PROBE_SUBSTRING")
	setEnv(&cfg.MetricNamespace, "METRIC_NAMESPACE")
	setEnv(&cfg.ArchiveBucket, "ARCHIVE_BUCKET")
	setEnv(&cfg.MetricsListenAddr, "METRICS_LISTEN_ADDR")
	setEnv(&cfg.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("SSH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SSHTimeout = d
		}
	}
	if v := os.Getenv("WATCH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WatchInterval = d
		}
	}
}

func setEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ArtifactName is the bare filename of the deployable, derived from the
// live path.
func (c *Config) ArtifactName() string {
	return filepath.Base(c.LivePath)
}
