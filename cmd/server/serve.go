package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"med-assist-go/internal/handler"
	"med-assist-go/internal/metrics"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/service"
	"med-assist-go/internal/session"
	"med-assist-go/pkg/kafka"
	"med-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var port string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(false)
			defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
			if port != "" {
				cfg.Server.Port = port
			}

			// 1. 初始化存储
			historyRepo := newHistoryRepository(cfg)
			docRepo := newDocumentRepository(cfg)

			// 2. 初始化事件投递
			var publisher kafka.Publisher = kafka.NewNoopPublisher()
			if cfg.Kafka.Enabled {
				publisher = kafka.NewProducer(cfg.Kafka)
			}
			defer publisher.Close()

			// 3. 初始化会话注册表 (依赖注入)
			m := metrics.New()
			manager := session.NewManager(historyRepo, session.Options{
				Stages:      pipeline.StagesFromConfig(cfg.Pipeline),
				UploadRules: session.UploadRulesFromConfig(cfg.Upload),
				Hooks:       service.NewPipelineHooks(m, publisher),
				IdleTTL:     time.Duration(cfg.Session.IdleTTLMinutes) * time.Minute,
				OnRemove:    service.NewDocumentCleanup(docRepo),
			})
			m.TrackSessions(manager.Len)

			janitorCtx, stopJanitor := context.WithCancel(context.Background())
			defer stopJanitor()
			manager.StartJanitor(janitorCtx, time.Duration(cfg.Session.CleanupIntervalMinutes)*time.Minute)

			// 4. 初始化 Service 和路由
			gin.SetMode(cfg.Server.Mode)
			r := handler.NewRouter(handler.Handlers{
				Session:      handler.NewSessionHandler(service.NewSessionService(manager)),
				Upload:       handler.NewUploadHandler(service.NewUploadService(manager, docRepo, m)),
				Chat:         handler.NewChatHandler(service.NewChatService(manager, m)),
				Conversation: handler.NewConversationHandler(service.NewConversationService(manager)),
				Meta:         handler.NewMetaHandler(),
				Metrics:      m.Handler(),
			})

			// 启动 HTTP 服务器并实现优雅停机
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infof("服务启动于 %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// 等待中断信号以实现优雅停机
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
				log.Info("接收到停机信号，正在关闭服务...")
			case err := <-errCh:
				return fmt.Errorf("HTTP 服务监听失败: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
			}
			log.Info("服务已优雅关闭")
			return nil
		},
	}
	serve.Flags().StringVar(&port, "port", "", "listen port (overrides server.port)")
	return serve
}
