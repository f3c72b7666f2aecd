// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf = Default()

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	History  HistoryConfig  `mapstructure:"history"`
	Session  SessionConfig  `mapstructure:"session"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RedisConfig 存储 Redis 的配置，仅在 history.backend=redis 时使用。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储答案完成事件的投递配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。启用后上传的 PDF 原文会被暂存，但不会被解析。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// UploadConfig 定义上传槽的校验规则。
type UploadConfig struct {
	MaxSizeBytes     int64    `mapstructure:"max_size_bytes"`
	AllowedMIMETypes []string `mapstructure:"allowed_mime_types"`
}

// StageConfig 描述一个处理阶段。
type StageConfig struct {
	Name       string `mapstructure:"name"`
	Label      string `mapstructure:"label"`
	DurationMS int    `mapstructure:"duration_ms"`
}

// Duration 返回阶段的模拟耗时。
func (s StageConfig) Duration() time.Duration {
	return time.Duration(s.DurationMS) * time.Millisecond
}

// PipelineConfig 存储提交流水线的阶段列表。
type PipelineConfig struct {
	Stages []StageConfig `mapstructure:"stages"`
}

// HistoryConfig 选择聊天历史的存储后端。
type HistoryConfig struct {
	Backend string `mapstructure:"backend"` // "memory" 或 "redis"
	// TTLMinutes 仅对 redis 后端生效，等同于会话寿命。
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

// SessionConfig 配置会话的空闲回收。
type SessionConfig struct {
	IdleTTLMinutes         int `mapstructure:"idle_ttl_minutes"`
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes"`
}

const (
	HistoryBackendMemory = "memory"
	HistoryBackendRedis  = "redis"
)

// Default 返回不依赖配置文件的默认配置。
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080", Mode: "release"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Redis:  RedisConfig{Addr: "127.0.0.1:6379"},
		Kafka:  KafkaConfig{Brokers: "127.0.0.1:9092", Topic: "medassist.answers"},
		MinIO:  MinIOConfig{Endpoint: "127.0.0.1:9000", BucketName: "medassist-documents"},
		Upload: UploadConfig{
			MaxSizeBytes:     100 * 1024 * 1024,
			AllowedMIMETypes: []string{"application/pdf"},
		},
		Pipeline: PipelineConfig{Stages: []StageConfig{
			{Name: "document", Label: "Processing your document…", DurationMS: 1000},
			{Name: "question", Label: "Analyzing your question…", DurationMS: 1500},
			{Name: "answer", Label: "Generating answer…", DurationMS: 2000},
		}},
		History: HistoryConfig{Backend: HistoryBackendMemory, TTLMinutes: 24 * 60},
		Session: SessionConfig{IdleTTLMinutes: 120, CleanupIntervalMinutes: 10},
	}
}

// Init 从指定路径读取 YAML 文件并解析到 Conf。路径为空时只使用默认值和环境变量。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load 读取配置但不修改全局变量，便于测试。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MEDASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查配置的基本约束。
func (c Config) Validate() error {
	if c.Upload.MaxSizeBytes <= 0 {
		return errors.New("upload.max_size_bytes 必须大于 0")
	}
	if len(c.Upload.AllowedMIMETypes) == 0 {
		return errors.New("upload.allowed_mime_types 不能为空")
	}
	if len(c.Pipeline.Stages) < 3 {
		return fmt.Errorf("pipeline.stages 至少需要 3 个阶段，当前 %d 个", len(c.Pipeline.Stages))
	}
	for i, s := range c.Pipeline.Stages {
		if s.Label == "" {
			return fmt.Errorf("pipeline.stages[%d].label 不能为空", i)
		}
		if s.DurationMS < 0 {
			return fmt.Errorf("pipeline.stages[%d].duration_ms 不能为负数", i)
		}
	}
	switch c.History.Backend {
	case HistoryBackendMemory, HistoryBackendRedis:
	default:
		return fmt.Errorf("未知的 history.backend: %q", c.History.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output_path", d.Log.OutputPath)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("minio.enabled", d.MinIO.Enabled)
	v.SetDefault("minio.endpoint", d.MinIO.Endpoint)
	v.SetDefault("minio.access_key_id", d.MinIO.AccessKeyID)
	v.SetDefault("minio.secret_access_key", d.MinIO.SecretAccessKey)
	v.SetDefault("minio.use_ssl", d.MinIO.UseSSL)
	v.SetDefault("minio.bucket_name", d.MinIO.BucketName)
	v.SetDefault("upload.max_size_bytes", d.Upload.MaxSizeBytes)
	v.SetDefault("upload.allowed_mime_types", d.Upload.AllowedMIMETypes)
	stages := make([]map[string]interface{}, 0, len(d.Pipeline.Stages))
	for _, s := range d.Pipeline.Stages {
		stages = append(stages, map[string]interface{}{
			"name":        s.Name,
			"label":       s.Label,
			"duration_ms": s.DurationMS,
		})
	}
	v.SetDefault("pipeline.stages", stages)
	v.SetDefault("history.backend", d.History.Backend)
	v.SetDefault("history.ttl_minutes", d.History.TTLMinutes)
	v.SetDefault("session.idle_ttl_minutes", d.Session.IdleTTLMinutes)
	v.SetDefault("session.cleanup_interval_minutes", d.Session.CleanupIntervalMinutes)
}
