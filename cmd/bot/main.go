package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vip-relay-bot/internal/bot"
	"vip-relay-bot/internal/common"
	"vip-relay-bot/internal/config"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The shared logger is not installed yet; bring one up so the
		// failure is actually visible before exiting.
		if logger, logErr := zap.NewProduction(); logErr == nil {
			zap.ReplaceGlobals(logger)
		}
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting VIP relay bot")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	b := bot.NewBot(cfg, services.DbService, services.Relay, services.Telegram)
	if err := b.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start bot", zap.Error(err))
	}

	go b.Run(ctx, services.Telegram.Updates())

	zap.L().Info("Bot running")
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")
	cancel()
	services.Telegram.StopUpdates()
	zap.L().Info("Stopped")
}
