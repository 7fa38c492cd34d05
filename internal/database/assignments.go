package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/store"

	"go.uber.org/zap"
)

func (s *Service) UpsertAccount(ctx context.Context, email, expiresAt string) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertAccount, email, expiresAt); err != nil {
		zap.L().Error("Failed to upsert account", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("unable to upsert account: %w", err)
	}
	return nil
}

func (s *Service) FindActiveOwner(ctx context.Context, email string) (*models.Assignment, error) {
	return s.scanAssignmentRow(s.db.QueryRowContext(ctx, queryFindActiveOwner, email))
}

func (s *Service) FindActiveAssignment(ctx context.Context, userId, email string) (*models.Assignment, error) {
	return s.scanAssignmentRow(s.db.QueryRowContext(ctx, queryFindActiveAssignment, userId, email))
}

func (s *Service) scanAssignmentRow(row *sql.Row) (*models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(&a.Id, &a.Email, &a.UserId, &a.ExpiresAt, &a.AssignedBy, &a.Active, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("Failed to query assignment", zap.Error(err))
		return nil, fmt.Errorf("unable to query assignment: %w", err)
	}
	return &a, nil
}

func (s *Service) ListActiveAssignments(ctx context.Context, userId string) ([]models.Assignment, error) {
	return s.queryAssignments(ctx, queryListActiveAssignments, userId)
}

func (s *Service) ListAllActiveAssignments(ctx context.Context) ([]models.Assignment, error) {
	return s.queryAssignments(ctx, queryListAllActiveAssignments)
}

func (s *Service) queryAssignments(ctx context.Context, query string, args ...any) ([]models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		zap.L().Error("Failed to query assignments", zap.Error(err))
		return nil, fmt.Errorf("unable to query assignments: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var assignments []models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.Id, &a.Email, &a.UserId, &a.ExpiresAt, &a.AssignedBy, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan assignment row: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignment rows: %w", err)
	}
	return assignments, nil
}

// UpsertAssignment extends the user's own active assignment, or inserts a
// new active one. The partial unique index on active assignments backstops
// the ownership pre-check, so a lost race still cannot produce two active
// owners for one email.
func (s *Service) UpsertAssignment(ctx context.Context, userId, email, expiresAt, assignedBy string) error {
	owner, err := s.FindActiveOwner(ctx, email)
	if err != nil {
		return err
	}
	if owner != nil && owner.UserId != userId {
		return store.ErrOwnershipConflict
	}
	if owner != nil {
		if _, err := s.db.ExecContext(ctx, queryExtendAssignment, expiresAt, userId, email); err != nil {
			zap.L().Error("Failed to extend assignment",
				zap.String("user_id", userId), zap.String("email", email), zap.Error(err))
			return fmt.Errorf("unable to extend assignment: %w", err)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, queryInsertAssignment, email, userId, expiresAt, assignedBy); err != nil {
		if isUniqueViolation(err) {
			return store.ErrOwnershipConflict
		}
		zap.L().Error("Failed to insert assignment",
			zap.String("user_id", userId), zap.String("email", email), zap.Error(err))
		return fmt.Errorf("unable to insert assignment: %w", err)
	}
	return nil
}

func (s *Service) DeactivateAssignment(ctx context.Context, userId, email string) error {
	if _, err := s.db.ExecContext(ctx, queryDeactivateAssignment, userId, email); err != nil {
		zap.L().Error("Failed to deactivate assignment",
			zap.String("user_id", userId), zap.String("email", email), zap.Error(err))
		return fmt.Errorf("unable to deactivate assignment: %w", err)
	}
	return nil
}

func (s *Service) RecountAssignments(ctx context.Context, userId string) (int, error) {
	if _, err := s.db.ExecContext(ctx, queryRecountAssignments, userId, userId); err != nil {
		zap.L().Error("Failed to recount assignments", zap.String("user_id", userId), zap.Error(err))
		return 0, fmt.Errorf("unable to recount assignments: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountActiveAssignments, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count assignments: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
