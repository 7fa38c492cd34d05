package database

import (
	"context"
	"database/sql"
	"fmt"

	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Store.
var _ store.Store = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	-- Telegram users known to the bot
	CREATE TABLE IF NOT EXISTS users (
		telegram_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		credits INTEGER NOT NULL DEFAULT 0,
		assigned_accounts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	-- Which users an admin is allowed to see assignments for
	CREATE TABLE IF NOT EXISTS admin_clients (
		admin_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(admin_id, client_id)
	);

	-- External logins, keyed by email; upserted, never deleted
	CREATE TABLE IF NOT EXISTS accounts (
		email TEXT PRIMARY KEY,
		expires_at TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Account ownership; rows are deactivated, never deleted
	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		user_id TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		assigned_by TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- One active owner per account, enforced by the store itself
	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_email
		ON assignments(email) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_assignments_user ON assignments(user_id, active);

	-- Tracked long-running user actions
	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT,
		status TEXT NOT NULL DEFAULT 'pendiente',
		raw_reply TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_operations_user_status ON operations(user_id, status);

	-- Append-only audit trail for credit mutations
	CREATE TABLE IF NOT EXISTS credit_history (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		actor TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_credit_history_user ON credit_history(user_id);

	-- Replacement saga records
	CREATE TABLE IF NOT EXISTS replacement_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pendiente',
		decided_by TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_replacement_requests_status ON replacement_requests(status);
	CREATE INDEX IF NOT EXISTS idx_replacement_requests_email ON replacement_requests(email, status);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("unable to create schema: %w", err)
	}
	return nil
}
