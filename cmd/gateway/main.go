// API Gatewayサービスのエントリポイント。
// ハンドルとパスワードによるログイン、トークンの発行・更新・失効、
// 書籍APIへのリクエストルーティングを担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/bookgate/internal/gateway"
	"github.com/nao1215/bookgate/pkg/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := gateway.LoadConfig()
	if err != nil {
		logging.New("info", "json", os.Stderr).WithError(err).Error("設定の読み込みに失敗しました")
		return 1
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if cfg.UsesDefaultSecret() {
		logger.Warn("JWT_SECRET が未設定のため開発用の署名鍵を使用します")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Gatewayサーバーの初期化に失敗しました")
		return 1
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.WithError(err).Warn("リソースの解放に失敗しました")
		}
	}()

	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("Gatewayサービスが異常終了しました")
		return 1
	}
	logger.Info("Gatewayサービスを停止しました")
	return 0
}
