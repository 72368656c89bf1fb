package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"projectmonitor/monitor-service/internal/service/workflow"
	"projectmonitor/pkg/config"
)

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// BlobConfig is the local evidence store and its guard.
type BlobConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
	// Secret signs evidence URLs; it falls back to the JWT secret.
	Secret           string        `yaml:"secret"`
	URLTTL           time.Duration `yaml:"url_ttl"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	MaxRequestBytes  int64         `yaml:"max_request_bytes"`
}

type MonitorConfig struct {
	Server   config.ServerConfig `yaml:"server"`
	Outbox   OutboxConfig        `yaml:"outbox"`
	Workflow workflow.Config     `yaml:"workflow"`
	Blob     BlobConfig          `yaml:"blob"`
}

type Config struct {
	DB      config.DBConfig   `yaml:"db"`
	MQ      config.MQConfig   `yaml:"mq"`
	JWT     config.JWTConfig  `yaml:"jwt"`
	Log     config.LogConfig  `yaml:"log"`
	Otel    config.OtelConfig `yaml:"otel"`
	Monitor MonitorConfig     `yaml:"monitor"`
}

// Load reads CONFIG_PATH (default "config"), applies env overrides and
// fills defaults.
func Load() (*Config, error) {
	var cfg Config
	// 使用统一配置中心
	if err := config.LoadInto(config.GetEnv("CONFIG_PATH", "config"), &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Monitor.Server)
	config.OverrideLogFromEnv(&cfg.Log)
	config.OverrideOtelFromEnv(&cfg.Otel)
	overrideMonitorFromEnv(&cfg.Monitor)

	cfg.applyDefaults()
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return &cfg, nil
}

func overrideMonitorFromEnv(cfg *MonitorConfig) {
	if root := os.Getenv("BLOB_ROOT"); root != "" {
		cfg.Blob.Root = root
	}
	if base := os.Getenv("BLOB_BASE_URL"); base != "" {
		cfg.Blob.BaseURL = base
	}
	if secret := os.Getenv("BLOB_SECRET"); secret != "" {
		cfg.Blob.Secret = secret
	}
	if v := os.Getenv("WORKFLOW_ALLOW_APPROVE_QUERIED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Workflow.AllowApproveQueried = b
		}
	}
}

func (c *Config) applyDefaults() {
	config.ApplyDBDefaults(&c.DB)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	m := &c.Monitor
	if m.Server.Port == "" {
		m.Server.Port = ":8080"
	}
	if m.Server.ShutdownTimeout == 0 {
		m.Server.ShutdownTimeout = 30 * time.Second
	}
	if m.Outbox.Interval == 0 {
		m.Outbox.Interval = time.Second
	}
	if m.Outbox.BatchSize == 0 {
		m.Outbox.BatchSize = 100
	}
	if m.Outbox.MaxRetries == 0 {
		m.Outbox.MaxRetries = 5
	}

	b := &m.Blob
	if b.Root == "" {
		b.Root = "data/evidence"
	}
	if b.BaseURL == "" {
		b.BaseURL = "http://localhost" + m.Server.Port
	}
	if b.Secret == "" {
		b.Secret = c.JWT.Secret
	}
	if b.URLTTL == 0 {
		b.URLTTL = 60 * time.Second
	}
	if m.Workflow.URLTTL == 0 {
		m.Workflow.URLTTL = b.URLTTL
	}
	if b.Timeout == 0 {
		b.Timeout = 10 * time.Second
	}
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 5
	}
	if b.OpenTimeout == 0 {
		b.OpenTimeout = 30 * time.Second
	}
	if b.MaxRequestBytes == 0 {
		b.MaxRequestBytes = 64 << 20
	}
}
