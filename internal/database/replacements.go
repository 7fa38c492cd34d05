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

func (s *Service) CreateReplacementRequest(ctx context.Context, userId, email, reason, status, decidedBy string) (int64, error) {
	var decided any
	if decidedBy != "" {
		decided = decidedBy
	}
	res, err := s.db.ExecContext(ctx, queryInsertReplacementRequest, userId, email, reason, status, decided)
	if err != nil {
		zap.L().Error("Failed to insert replacement request",
			zap.String("user_id", userId), zap.String("email", email), zap.Error(err))
		return 0, fmt.Errorf("unable to insert replacement request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("unable to read request id: %w", err)
	}
	return id, nil
}

func (s *Service) GetReplacementRequest(ctx context.Context, id int64) (*models.ReplacementRequest, error) {
	req, err := s.scanRequestRow(s.db.QueryRowContext(ctx, queryGetReplacementRequest, id))
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, store.ErrNotFound
	}
	return req, nil
}

func (s *Service) ListPendingReplacementRequests(ctx context.Context) ([]models.ReplacementRequest, error) {
	rows, err := s.db.QueryContext(ctx, queryListPendingReplacementRequests)
	if err != nil {
		zap.L().Error("Failed to query pending replacement requests", zap.Error(err))
		return nil, fmt.Errorf("unable to query replacement requests: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var requests []models.ReplacementRequest
	for rows.Next() {
		var r models.ReplacementRequest
		if err := rows.Scan(&r.Id, &r.UserId, &r.Email, &r.Reason, &r.Status, &r.DecidedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan replacement request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating replacement requests: %w", err)
	}
	return requests, nil
}

// DecideReplacementRequest is a conditional update guarding against a
// double decision; it reports false when the request was no longer pending.
func (s *Service) DecideReplacementRequest(ctx context.Context, id int64, status, decidedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx, queryDecideReplacementRequest, status, decidedBy, id)
	if err != nil {
		zap.L().Error("Failed to decide replacement request",
			zap.Int64("request_id", id), zap.String("status", status), zap.Error(err))
		return false, fmt.Errorf("unable to decide replacement request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to read decide result: %w", err)
	}
	return affected > 0, nil
}

func (s *Service) LatestOpenReplacementRequest(ctx context.Context, email string) (*models.ReplacementRequest, error) {
	if email == "" {
		return s.scanRequestRow(s.db.QueryRowContext(ctx, queryLatestOpenReplacementRequest))
	}
	return s.scanRequestRow(s.db.QueryRowContext(ctx, queryLatestOpenReplacementRequestByEmail, email))
}

func (s *Service) SetReplacementStatus(ctx context.Context, id int64, status string) error {
	if _, err := s.db.ExecContext(ctx, querySetReplacementStatus, status, id); err != nil {
		zap.L().Error("Failed to set replacement request status",
			zap.Int64("request_id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("unable to set replacement request status: %w", err)
	}
	return nil
}

func (s *Service) scanRequestRow(row *sql.Row) (*models.ReplacementRequest, error) {
	var r models.ReplacementRequest
	err := row.Scan(&r.Id, &r.UserId, &r.Email, &r.Reason, &r.Status, &r.DecidedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("Failed to query replacement request", zap.Error(err))
		return nil, fmt.Errorf("unable to query replacement request: %w", err)
	}
	return &r, nil
}
