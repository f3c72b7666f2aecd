package main

import (
	"os"
	"time"

	"med-assist-go/internal/config"
	"med-assist-go/internal/repository"
	"med-assist-go/pkg/database"
	"med-assist-go/pkg/log"
	"med-assist-go/pkg/storage"
)

var configPath string

// loadConfig 初始化配置和日志。配置文件不存在时只使用默认值和环境变量。
// quiet 为 true 时只输出 error 级别日志，命令行输出不被日志打断。
func loadConfig(quiet bool) config.Config {
	path := configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	config.Init(path)
	cfg := config.Conf

	level := cfg.Log.Level
	if quiet {
		level = "error"
	}
	log.Init(level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Info("日志记录器初始化成功")
	return cfg
}

// newHistoryRepository 按 history.backend 选择历史存储。
func newHistoryRepository(cfg config.Config) repository.ChatHistoryRepository {
	if cfg.History.Backend == config.HistoryBackendRedis {
		database.InitRedis(cfg.Redis)
		return repository.NewRedisChatHistoryRepository(database.RDB, time.Duration(cfg.History.TTLMinutes)*time.Minute)
	}
	log.Info("使用进程内聊天历史")
	return repository.NewMemoryChatHistoryRepository()
}

// newDocumentRepository 在启用 MinIO 时暂存上传的原始文件，否则丢弃内容。
func newDocumentRepository(cfg config.Config) repository.DocumentRepository {
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
		return repository.NewMinioDocumentRepository(storage.MinioClient, cfg.MinIO.BucketName)
	}
	log.Info("MinIO 未启用，上传的文档只保留元数据")
	return repository.NewDiscardDocumentRepository()
}
