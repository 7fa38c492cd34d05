package store

import (
	"context"
	"errors"

	"vip-relay-bot/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	// ErrOwnershipConflict means the account already has an active
	// assignment belonging to a different user.
	ErrOwnershipConflict = errors.New("account already assigned to another user")
	// ErrPendingOperation means the user already has a pending operation
	// and an exclusive start was refused.
	ErrPendingOperation = errors.New("user has a pending operation")
	ErrNotFound         = errors.New("not found")
)

// Store defines the contract the bot needs from the persistence backend.
type Store interface {
	// --- Users ---
	UpsertUser(ctx context.Context, telegramId, username string) error
	SetUserRole(ctx context.Context, telegramId, username, role string) error
	GetUser(ctx context.Context, telegramId string) (*models.User, error)
	// GetUserRole returns RoleUser for unknown users; it never fails the
	// caller over a missing row.
	GetUserRole(ctx context.Context, telegramId string) string
	ListAdminIds(ctx context.Context) ([]string, error)

	// --- Admin/client links ---
	AddAdminClient(ctx context.Context, adminId, clientId string) error
	GetAdminClientIds(ctx context.Context, adminId string) ([]string, error)

	// --- Credits ---
	// GetCredits returns 0 for a missing user row or a malformed value.
	GetCredits(ctx context.Context, userId string) (int, error)
	// SetCredits clamps negative values to 0 before writing.
	SetCredits(ctx context.Context, userId string, value int) error
	AddCreditHistory(ctx context.Context, userId string, delta int, reason, actor string) error

	// --- Accounts and assignments ---
	UpsertAccount(ctx context.Context, email, expiresAt string) error
	FindActiveOwner(ctx context.Context, email string) (*models.Assignment, error)
	FindActiveAssignment(ctx context.Context, userId, email string) (*models.Assignment, error)
	ListActiveAssignments(ctx context.Context, userId string) ([]models.Assignment, error)
	ListAllActiveAssignments(ctx context.Context) ([]models.Assignment, error)
	// UpsertAssignment extends the user's own active assignment in place,
	// or inserts a new active one. Returns ErrOwnershipConflict while
	// another user holds an active assignment for the same email.
	UpsertAssignment(ctx context.Context, userId, email, expiresAt, assignedBy string) error
	DeactivateAssignment(ctx context.Context, userId, email string) error
	// RecountAssignments recomputes the denormalized active-assignment
	// count and writes it back to the user row.
	RecountAssignments(ctx context.Context, userId string) (int, error)

	// --- Operations ---
	HasPendingOperation(ctx context.Context, userId string) (bool, error)
	// StartOperation inserts a pending operation. With exclusive set it is
	// a conditional insert and returns ErrPendingOperation when the user
	// already has one in flight.
	StartOperation(ctx context.Context, userId, kind, payload string, exclusive bool) (int64, error)
	// FinishOperation is a no-op for the sentinel id -1.
	FinishOperation(ctx context.Context, id int64, status, rawReply string) error

	// --- Replacement requests ---
	CreateReplacementRequest(ctx context.Context, userId, email, reason, status, decidedBy string) (int64, error)
	GetReplacementRequest(ctx context.Context, id int64) (*models.ReplacementRequest, error)
	ListPendingReplacementRequests(ctx context.Context) ([]models.ReplacementRequest, error)
	// DecideReplacementRequest transitions pending -> status atomically.
	// It reports false when the request was already handled.
	DecideReplacementRequest(ctx context.Context, id int64, status, decidedBy string) (bool, error)
	// LatestOpenReplacementRequest returns the most recent request in
	// {accepted, pending}, optionally filtered by email (empty = any).
	LatestOpenReplacementRequest(ctx context.Context, email string) (*models.ReplacementRequest, error)
	SetReplacementStatus(ctx context.Context, id int64, status string) error

	// --- Lifecycle ---
	Close()
}
