package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"projectmonitor/pkg/config"
)

type NotificationConfig struct {
	Server config.ServerConfig `yaml:"server"`
	Queue  string              `yaml:"queue"`
	// 超过 MaxRetries 次失败后消息进入 DLQ
	MaxRetries int           `yaml:"max_retries"`
	DedupeTTL  time.Duration `yaml:"dedupe_ttl"`
	Channel    string        `yaml:"channel"`
	ListLimit  int           `yaml:"list_limit"`
}

type Config struct {
	DB           config.DBConfig    `yaml:"db"`
	MQ           config.MQConfig    `yaml:"mq"`
	Redis        config.RedisConfig `yaml:"redis"`
	Log          config.LogConfig   `yaml:"log"`
	Otel         config.OtelConfig  `yaml:"otel"`
	Notification NotificationConfig `yaml:"notification"`
}

func Load() (*Config, error) {
	var cfg Config
	// 使用统一配置中心
	if err := config.LoadInto(config.GetEnv("CONFIG_PATH", "config"), &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideLogFromEnv(&cfg.Log)
	config.OverrideOtelFromEnv(&cfg.Otel)
	if port := os.Getenv("NOTIFICATION_PORT"); port != "" {
		cfg.Notification.Server.Port = port
	}
	if channel := os.Getenv("NOTIFICATION_CHANNEL"); channel != "" {
		cfg.Notification.Channel = channel
	}
	if v := os.Getenv("NOTIFICATION_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Notification.MaxRetries = n
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	config.ApplyDBDefaults(&c.DB)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	n := &c.Notification
	if n.Server.Port == "" {
		n.Server.Port = ":8085"
	}
	if n.Server.ShutdownTimeout == 0 {
		n.Server.ShutdownTimeout = 30 * time.Second
	}
	if n.Queue == "" {
		n.Queue = "notification.workflow.q"
	}
	if n.MaxRetries <= 0 {
		n.MaxRetries = 3
	}
	if n.DedupeTTL == 0 {
		n.DedupeTTL = 24 * time.Hour
	}
	n.Channel = strings.ToUpper(strings.TrimSpace(n.Channel))
	if n.Channel == "" {
		n.Channel = "EMAIL"
	}
	if n.ListLimit <= 0 {
		n.ListLimit = 50
	}
}
