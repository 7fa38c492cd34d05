package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"vip-relay-bot/internal/models"
)

func Load() (*models.Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	ownerId := os.Getenv("OWNER_ID")
	if ownerId == "" {
		return nil, fmt.Errorf("OWNER_ID is required")
	}

	replyTimeout, err := getEnvDuration("REPLY_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	commandCooldown, err := getEnvDuration("COMMAND_COOLDOWN", 3500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	adminCacheTTL, err := getEnvDuration("ADMIN_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, err
	}
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}
	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Telegram: models.TelegramConfig{
			Token:        token,
			OwnerId:      ownerId,
			SeedAdminIds: splitList(os.Getenv("SEED_ADMIN_IDS")),
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "vipbot.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Relay: models.RelayConfig{
			PeersFile:    getEnvString("PEERS_FILE", "peers.yaml"),
			ReplyTimeout: replyTimeout,
		},
		Bot: models.BotConfig{
			CommandCooldown: commandCooldown,
			AdminCacheTTL:   adminCacheTTL,
		},
	}, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
