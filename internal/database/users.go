package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/store"

	"go.uber.org/zap"
)

func (s *Service) UpsertUser(ctx context.Context, telegramId, username string) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertUser, telegramId, username); err != nil {
		zap.L().Error("Failed to upsert user", zap.String("telegram_id", telegramId), zap.Error(err))
		return fmt.Errorf("unable to upsert user: %w", err)
	}
	return nil
}

func (s *Service) SetUserRole(ctx context.Context, telegramId, username, role string) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertUserWithRole, telegramId, username, role); err != nil {
		zap.L().Error("Failed to set user role",
			zap.String("telegram_id", telegramId),
			zap.String("role", role),
			zap.Error(err))
		return fmt.Errorf("unable to set user role: %w", err)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, telegramId string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, queryGetUser, telegramId).Scan(
		&user.TelegramId, &user.Username, &user.Role, &user.Credits,
		&user.AssignedAccounts, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		zap.L().Error("Failed to query user", zap.String("telegram_id", telegramId), zap.Error(err))
		return nil, fmt.Errorf("unable to query user: %w", err)
	}
	return &user, nil
}

// GetUserRole never fails the caller: an unknown user, or a store error, is
// treated as a plain user.
func (s *Service) GetUserRole(ctx context.Context, telegramId string) string {
	var role string
	err := s.db.QueryRowContext(ctx, queryGetUserRole, telegramId).Scan(&role)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			zap.L().Warn("Failed to query user role, assuming user",
				zap.String("telegram_id", telegramId), zap.Error(err))
		}
		return models.RoleUser
	}
	if role == "" {
		return models.RoleUser
	}
	return role
}

func (s *Service) ListAdminIds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryListAdminIds)
	if err != nil {
		zap.L().Error("Failed to query admin ids", zap.Error(err))
		return nil, fmt.Errorf("unable to query admin ids: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("unable to scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admin ids: %w", err)
	}
	return ids, nil
}

func (s *Service) AddAdminClient(ctx context.Context, adminId, clientId string) error {
	if _, err := s.db.ExecContext(ctx, queryAddAdminClient, adminId, clientId); err != nil {
		zap.L().Error("Failed to link client to admin",
			zap.String("admin_id", adminId),
			zap.String("client_id", clientId),
			zap.Error(err))
		return fmt.Errorf("unable to link client to admin: %w", err)
	}
	return nil
}

func (s *Service) GetAdminClientIds(ctx context.Context, adminId string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAdminClientIds, adminId)
	if err != nil {
		zap.L().Error("Failed to query admin clients", zap.String("admin_id", adminId), zap.Error(err))
		return nil, fmt.Errorf("unable to query admin clients: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("unable to scan client id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating client ids: %w", err)
	}
	return ids, nil
}
