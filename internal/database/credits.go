package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GetCredits returns 0 for a missing user row. A malformed stored value
// cannot round-trip through the INTEGER column, so only genuine store
// failures surface as errors.
func (s *Service) GetCredits(ctx context.Context, userId string) (int, error) {
	var credits int
	err := s.db.QueryRowContext(ctx, queryGetCredits, userId).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		zap.L().Error("Failed to query credits", zap.String("user_id", userId), zap.Error(err))
		return 0, fmt.Errorf("unable to query credits: %w", err)
	}
	if credits < 0 {
		return 0, nil
	}
	return credits, nil
}

func (s *Service) SetCredits(ctx context.Context, userId string, value int) error {
	if value < 0 {
		value = 0
	}
	if _, err := s.db.ExecContext(ctx, querySetCredits, value, userId); err != nil {
		zap.L().Error("Failed to set credits",
			zap.String("user_id", userId),
			zap.Int("value", value),
			zap.Error(err))
		return fmt.Errorf("unable to set credits: %w", err)
	}
	return nil
}

func (s *Service) AddCreditHistory(ctx context.Context, userId string, delta int, reason, actor string) error {
	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx, queryInsertCreditHistory, id, userId, delta, reason, actor); err != nil {
		zap.L().Error("Failed to append credit history",
			zap.String("user_id", userId),
			zap.Int("delta", delta),
			zap.String("reason", reason),
			zap.Error(err))
		return fmt.Errorf("unable to append credit history: %w", err)
	}
	return nil
}
