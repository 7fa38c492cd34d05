package common

import (
	"context"
	"log"
	"strings"

	"vip-relay-bot/internal/database"
	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/relay"
	"vip-relay-bot/internal/telegram"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from a .env file if one exists.
// Environment variables can also come from the shell, docker, etc.
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

type Services struct {
	DbService *database.Service
	Telegram  *telegram.Client
	Relay     *relay.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	tgClient, err := telegram.NewClient(cfg.Telegram.Token)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Loading peer directory", zap.String("file", cfg.Relay.PeersFile))
	peers, err := relay.LoadPeerDirectory(cfg.Relay.PeersFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	relayService := relay.NewService(tgClient, peers)
	zap.L().Info("Peer directory loaded", zap.Int("peers", len(peers)))

	return &Services{
		DbService: dbService,
		Telegram:  tgClient,
		Relay:     relayService,
	}, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
