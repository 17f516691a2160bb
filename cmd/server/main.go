// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"agent-vault-go/internal/app"
	"agent-vault-go/internal/config"
	"agent-vault-go/internal/handler"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/metrics"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config file")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 构造进程上下文：ledger、存储后端、会话缓存、Kafka、ES、各服务与工具分发器
	appCtx, err := app.New(rootCtx, &cfg)
	if err != nil {
		log.Fatalf("初始化进程上下文失败: %v", err)
	}
	defer func() {
		if err := appCtx.Close(); err != nil {
			log.Errorf("释放资源失败: %v", err)
		}
	}()

	// 4. 启动后台索引消费者
	go func() {
		if err := appCtx.RunIndexer(rootCtx); err != nil {
			log.Errorf("索引消费者异常退出: %v", err)
		}
	}()

	// 4.1 导入初始化目录（已导入则跳过）
	go func() {
		if n, err := appCtx.Seed(rootCtx); err != nil {
			log.Warnf("初始化导入未完成: %v", err)
		} else if n > 0 {
			log.Infof("初始化导入完成, 共 %d 个文件", n)
		}
	}()

	// 5. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.RouterDeps{
		Dispatcher:      appCtx.Dispatcher,
		Sessions:        appCtx,
		JWT:             appCtx.JWT,
		OperatorAddress: cfg.Operator.Address,
		Metrics:         metrics.Handler(),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 停止索引消费者与初始化导入
	cancel()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
