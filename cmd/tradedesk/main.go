package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tradedesk/internal/app"
	"tradedesk/internal/config"
	"tradedesk/internal/logger"
)

func main() {
	// .env 可选，缺失时忽略
	_ = godotenv.Load()

	cfgPath := os.Getenv("TRADEDESK_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，券商=%s，账本=%s）", cfg.App.Env, cfg.Broker.Mode, cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfg, cfgPath)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
	logger.Infof("tradedesk stopped")
}

// setupLogOutput tees log output to stdout and a rotated file.
func setupLogOutput(cfg config.AppConfig) (io.Closer, error) {
	if cfg.LogPath == "" {
		return nil, nil
	}
	w, err := logger.RotatingWriter(cfg.LogPath, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, w)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return w, nil
}
