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

// UntrackedOperation is the sentinel id handed out when operation tracking
// is unavailable; FinishOperation ignores it.
const UntrackedOperation int64 = -1

func (s *Service) HasPendingOperation(ctx context.Context, userId string) (bool, error) {
	var pending bool
	err := s.db.QueryRowContext(ctx, queryHasPendingOperation, userId).Scan(&pending)
	if err != nil {
		zap.L().Error("Failed to query pending operations", zap.String("user_id", userId), zap.Error(err))
		return false, fmt.Errorf("unable to query pending operations: %w", err)
	}
	return pending, nil
}

func (s *Service) StartOperation(ctx context.Context, userId, kind, payload string, exclusive bool) (int64, error) {
	if exclusive {
		res, err := s.db.ExecContext(ctx, queryInsertOperationExclusive, userId, kind, payload, userId)
		if err != nil {
			zap.L().Error("Failed to insert operation",
				zap.String("user_id", userId), zap.String("kind", kind), zap.Error(err))
			return UntrackedOperation, fmt.Errorf("unable to insert operation: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return UntrackedOperation, fmt.Errorf("unable to read insert result: %w", err)
		}
		if affected == 0 {
			return UntrackedOperation, store.ErrPendingOperation
		}
		id, err := res.LastInsertId()
		if err != nil {
			return UntrackedOperation, fmt.Errorf("unable to read operation id: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, queryInsertOperation, userId, kind, payload)
	if err != nil {
		zap.L().Error("Failed to insert operation",
			zap.String("user_id", userId), zap.String("kind", kind), zap.Error(err))
		return UntrackedOperation, fmt.Errorf("unable to insert operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return UntrackedOperation, fmt.Errorf("unable to read operation id: %w", err)
	}
	return id, nil
}

// LatestOperation returns the user's most recent operation, nil when none
// exists.
func (s *Service) LatestOperation(ctx context.Context, userId string) (*models.Operation, error) {
	var op models.Operation
	err := s.db.QueryRowContext(ctx, queryLatestOperation, userId).Scan(
		&op.Id, &op.UserId, &op.Kind, &op.Payload, &op.Status, &op.RawReply,
		&op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("Failed to query latest operation", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query latest operation: %w", err)
	}
	return &op, nil
}

func (s *Service) FinishOperation(ctx context.Context, id int64, status, rawReply string) error {
	if id == UntrackedOperation {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, queryFinishOperation, status, rawReply, id); err != nil {
		zap.L().Error("Failed to finish operation",
			zap.Int64("operation_id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("unable to finish operation: %w", err)
	}
	return nil
}
