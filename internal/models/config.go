package models

import "time"

// Config represents the application configuration
type Config struct {
	Telegram TelegramConfig
	Database DatabaseConfig
	Relay    RelayConfig
	Bot      BotConfig
}

// TelegramConfig holds bot credentials and bootstrap identities
type TelegramConfig struct {
	Token        string
	OwnerId      string
	SeedAdminIds []string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// RelayConfig holds peer directory and reply correlation settings
type RelayConfig struct {
	PeersFile    string
	ReplyTimeout time.Duration
}

// BotConfig holds command-surface settings
type BotConfig struct {
	CommandCooldown time.Duration
	AdminCacheTTL   time.Duration
}
