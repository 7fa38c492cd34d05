package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return service, cleanup
}

func TestUpsertUser_PreservesRoleAndCredits(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.SetUserRole(ctx, "100", "boss", models.RoleAdmin); err != nil {
		t.Fatalf("SetUserRole failed: %v", err)
	}
	if err := service.SetCredits(ctx, "100", 7); err != nil {
		t.Fatalf("SetCredits failed: %v", err)
	}

	// A later upsert (e.g. from /start) must not reset role or balance.
	if err := service.UpsertUser(ctx, "100", "boss_renamed"); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	if role := service.GetUserRole(ctx, "100"); role != models.RoleAdmin {
		t.Errorf("Expected role %q, got %q", models.RoleAdmin, role)
	}
	credits, err := service.GetCredits(ctx, "100")
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if credits != 7 {
		t.Errorf("Expected 7 credits, got %d", credits)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := service.GetUser(context.Background(), "absent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetUserRole_DefaultsToUser(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	if role := service.GetUserRole(context.Background(), "absent"); role != models.RoleUser {
		t.Errorf("Expected default role %q, got %q", models.RoleUser, role)
	}
}

func TestGetCredits_MissingUserIsZero(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	credits, err := service.GetCredits(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if credits != 0 {
		t.Errorf("Expected 0 credits for missing user, got %d", credits)
	}
}

func TestSetCredits_ClampsNegative(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.UpsertUser(ctx, "100", "u"); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	if err := service.SetCredits(ctx, "100", -5); err != nil {
		t.Fatalf("SetCredits failed: %v", err)
	}

	credits, err := service.GetCredits(ctx, "100")
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if credits != 0 {
		t.Errorf("Expected negative value clamped to 0, got %d", credits)
	}
}

func TestAddCreditHistory_AppendsRows(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.AddCreditHistory(ctx, "100", 3, "compra", "100"); err != nil {
		t.Fatalf("AddCreditHistory failed: %v", err)
	}
	if err := service.AddCreditHistory(ctx, "100", -1, "renovacion", "100"); err != nil {
		t.Fatalf("AddCreditHistory failed: %v", err)
	}

	var count int
	if err := service.db.QueryRow("SELECT COUNT(*) FROM credit_history WHERE user_id = ?", "100").Scan(&count); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 history rows, got %d", count)
	}
}

func TestUpsertAssignment_OwnershipConflict(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.UpsertAccount(ctx, "a@x.com", "2026-12-31"); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	if err := service.UpsertAssignment(ctx, "100", "a@x.com", "2026-12-31", "admin"); err != nil {
		t.Fatalf("First assignment failed: %v", err)
	}

	err := service.UpsertAssignment(ctx, "200", "a@x.com", "2027-01-31", "admin")
	if !errors.Is(err, store.ErrOwnershipConflict) {
		t.Errorf("Expected ErrOwnershipConflict for second owner, got %v", err)
	}

	owner, err := service.FindActiveOwner(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindActiveOwner failed: %v", err)
	}
	if owner == nil || owner.UserId != "100" {
		t.Errorf("Expected owner 100 to keep the account, got %+v", owner)
	}
}

func TestUpsertAssignment_ExtendsOwnRow(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.UpsertAssignment(ctx, "100", "a@x.com", "2026-06-30", "admin"); err != nil {
		t.Fatalf("First assignment failed: %v", err)
	}
	if err := service.UpsertAssignment(ctx, "100", "a@x.com", "2026-12-31", "renovacion"); err != nil {
		t.Fatalf("Extension failed: %v", err)
	}

	assignments, err := service.ListActiveAssignments(ctx, "100")
	if err != nil {
		t.Fatalf("ListActiveAssignments failed: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("Expected 1 active assignment after extension, got %d", len(assignments))
	}
	if assignments[0].ExpiresAt != "2026-12-31" {
		t.Errorf("Expected extended expiry 2026-12-31, got %s", assignments[0].ExpiresAt)
	}
}

func TestDeactivateAssignment_FreesOwnership(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.UpsertAssignment(ctx, "100", "a@x.com", "2026-12-31", "admin"); err != nil {
		t.Fatalf("Assignment failed: %v", err)
	}
	if err := service.DeactivateAssignment(ctx, "100", "a@x.com"); err != nil {
		t.Fatalf("DeactivateAssignment failed: %v", err)
	}

	// Another user can now take the account.
	if err := service.UpsertAssignment(ctx, "200", "a@x.com", "2027-01-31", "admin"); err != nil {
		t.Fatalf("Reassignment after deactivate failed: %v", err)
	}

	owner, err := service.FindActiveOwner(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindActiveOwner failed: %v", err)
	}
	if owner == nil || owner.UserId != "200" {
		t.Errorf("Expected owner 200, got %+v", owner)
	}
}

func TestRecountAssignments(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.UpsertUser(ctx, "100", "u"); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		if err := service.UpsertAssignment(ctx, "100", email, "2026-12-31", "admin"); err != nil {
			t.Fatalf("Assignment %s failed: %v", email, err)
		}
	}
	if err := service.DeactivateAssignment(ctx, "100", "b@x.com"); err != nil {
		t.Fatalf("DeactivateAssignment failed: %v", err)
	}

	count, err := service.RecountAssignments(ctx, "100")
	if err != nil {
		t.Fatalf("RecountAssignments failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 active assignments, got %d", count)
	}

	user, err := service.GetUser(ctx, "100")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.AssignedAccounts != 2 {
		t.Errorf("Expected denormalized count 2, got %d", user.AssignedAccounts)
	}
}

func TestStartOperation_ExclusiveRejectsSecondPending(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := service.StartOperation(ctx, "100", "renovar", "{}", true)
	if err != nil {
		t.Fatalf("First StartOperation failed: %v", err)
	}

	_, err = service.StartOperation(ctx, "100", "renovar", "{}", true)
	if !errors.Is(err, store.ErrPendingOperation) {
		t.Errorf("Expected ErrPendingOperation, got %v", err)
	}

	// Another user is not blocked.
	if _, err := service.StartOperation(ctx, "200", "renovar", "{}", true); err != nil {
		t.Errorf("Unrelated user blocked: %v", err)
	}

	// Finishing the first operation unblocks the user.
	if err := service.FinishOperation(ctx, id, models.OperationCompleted, "ok"); err != nil {
		t.Fatalf("FinishOperation failed: %v", err)
	}
	if _, err := service.StartOperation(ctx, "100", "renovar", "{}", true); err != nil {
		t.Errorf("Expected start after finish to succeed, got %v", err)
	}
}

func TestStartOperation_NonExclusiveAllowsConcurrent(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.StartOperation(ctx, "100", "compra", "{}", false); err != nil {
		t.Fatalf("First StartOperation failed: %v", err)
	}
	if _, err := service.StartOperation(ctx, "100", "compra", "{}", false); err != nil {
		t.Errorf("Non-exclusive second start failed: %v", err)
	}
}

func TestFinishOperation_IgnoresUntrackedSentinel(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	if err := service.FinishOperation(context.Background(), UntrackedOperation, models.OperationFailed, "x"); err != nil {
		t.Errorf("Expected sentinel finish to be a no-op, got %v", err)
	}
}

func TestHasPendingOperation(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pending, err := service.HasPendingOperation(ctx, "100")
	if err != nil {
		t.Fatalf("HasPendingOperation failed: %v", err)
	}
	if pending {
		t.Error("Expected no pending operation for fresh user")
	}

	id, err := service.StartOperation(ctx, "100", "renovar", "{}", true)
	if err != nil {
		t.Fatalf("StartOperation failed: %v", err)
	}
	pending, err = service.HasPendingOperation(ctx, "100")
	if err != nil {
		t.Fatalf("HasPendingOperation failed: %v", err)
	}
	if !pending {
		t.Error("Expected pending operation after start")
	}

	if err := service.FinishOperation(ctx, id, models.OperationFailed, "timeout"); err != nil {
		t.Fatalf("FinishOperation failed: %v", err)
	}
	pending, err = service.HasPendingOperation(ctx, "100")
	if err != nil {
		t.Fatalf("HasPendingOperation failed: %v", err)
	}
	if pending {
		t.Error("Expected no pending operation after finish")
	}
}

func TestLatestOperation(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	op, err := service.LatestOperation(ctx, "100")
	if err != nil {
		t.Fatalf("LatestOperation failed: %v", err)
	}
	if op != nil {
		t.Fatalf("Expected no operation for fresh user, got %+v", op)
	}

	first, err := service.StartOperation(ctx, "100", "renovar", "{}", true)
	if err != nil {
		t.Fatalf("StartOperation failed: %v", err)
	}
	if err := service.FinishOperation(ctx, first, models.OperationFailed, "timeout"); err != nil {
		t.Fatalf("FinishOperation failed: %v", err)
	}
	second, err := service.StartOperation(ctx, "100", "compra", "{}", true)
	if err != nil {
		t.Fatalf("StartOperation failed: %v", err)
	}
	if err := service.FinishOperation(ctx, second, models.OperationCompleted, "ok"); err != nil {
		t.Fatalf("FinishOperation failed: %v", err)
	}

	op, err = service.LatestOperation(ctx, "100")
	if err != nil {
		t.Fatalf("LatestOperation failed: %v", err)
	}
	if op == nil || op.Id != second {
		t.Fatalf("Expected most recent operation %d, got %+v", second, op)
	}
	if op.Kind != "compra" || op.Status != models.OperationCompleted || op.RawReply != "ok" {
		t.Errorf("Unexpected operation contents: %+v", op)
	}
}

func TestDecideReplacementRequest_OnlyOncePerRequest(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := service.CreateReplacementRequest(ctx, "100", "a@x.com", "no entra", models.RequestPending, "")
	if err != nil {
		t.Fatalf("CreateReplacementRequest failed: %v", err)
	}

	decided, err := service.DecideReplacementRequest(ctx, id, models.RequestAccepted, "999")
	if err != nil {
		t.Fatalf("DecideReplacementRequest failed: %v", err)
	}
	if !decided {
		t.Fatal("Expected first decision to win")
	}

	// A second admin clicking the other button loses the race.
	decided, err = service.DecideReplacementRequest(ctx, id, models.RequestRejected, "888")
	if err != nil {
		t.Fatalf("DecideReplacementRequest failed: %v", err)
	}
	if decided {
		t.Error("Expected second decision to be rejected")
	}

	req, err := service.GetReplacementRequest(ctx, id)
	if err != nil {
		t.Fatalf("GetReplacementRequest failed: %v", err)
	}
	if req.Status != models.RequestAccepted {
		t.Errorf("Expected status %q, got %q", models.RequestAccepted, req.Status)
	}
	if req.DecidedBy != "999" {
		t.Errorf("Expected decided_by 999, got %q", req.DecidedBy)
	}
}

func TestLatestOpenReplacementRequest(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first, err := service.CreateReplacementRequest(ctx, "100", "a@x.com", "", models.RequestAccepted, "999")
	if err != nil {
		t.Fatalf("CreateReplacementRequest failed: %v", err)
	}
	second, err := service.CreateReplacementRequest(ctx, "200", "b@x.com", "", models.RequestAccepted, "999")
	if err != nil {
		t.Fatalf("CreateReplacementRequest failed: %v", err)
	}

	// By email.
	req, err := service.LatestOpenReplacementRequest(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("LatestOpenReplacementRequest failed: %v", err)
	}
	if req == nil || req.Id != first {
		t.Errorf("Expected request %d for a@x.com, got %+v", first, req)
	}

	// Most recent open request regardless of email.
	req, err = service.LatestOpenReplacementRequest(ctx, "")
	if err != nil {
		t.Fatalf("LatestOpenReplacementRequest failed: %v", err)
	}
	if req == nil || req.Id != second {
		t.Errorf("Expected most recent request %d, got %+v", second, req)
	}

	// Closed requests are not returned.
	if err := service.SetReplacementStatus(ctx, second, "completado"); err != nil {
		t.Fatalf("SetReplacementStatus failed: %v", err)
	}
	req, err = service.LatestOpenReplacementRequest(ctx, "b@x.com")
	if err != nil {
		t.Fatalf("LatestOpenReplacementRequest failed: %v", err)
	}
	if req != nil {
		t.Errorf("Expected no open request for closed email, got %+v", req)
	}
}

func TestAdminClients(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.AddAdminClient(ctx, "999", "100"); err != nil {
		t.Fatalf("AddAdminClient failed: %v", err)
	}
	// Re-adding the same pair is idempotent.
	if err := service.AddAdminClient(ctx, "999", "100"); err != nil {
		t.Fatalf("Repeated AddAdminClient failed: %v", err)
	}
	if err := service.AddAdminClient(ctx, "999", "200"); err != nil {
		t.Fatalf("AddAdminClient failed: %v", err)
	}

	clients, err := service.GetAdminClientIds(ctx, "999")
	if err != nil {
		t.Fatalf("GetAdminClientIds failed: %v", err)
	}
	if len(clients) != 2 {
		t.Errorf("Expected 2 clients, got %d", len(clients))
	}
}

func TestListAdminIds_IncludesOwnerAndAdmins(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.SetUserRole(ctx, "1", "owner", models.RoleOwner); err != nil {
		t.Fatalf("SetUserRole failed: %v", err)
	}
	if err := service.SetUserRole(ctx, "2", "admin", models.RoleAdmin); err != nil {
		t.Fatalf("SetUserRole failed: %v", err)
	}
	if err := service.UpsertUser(ctx, "3", "plain"); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	ids, err := service.ListAdminIds(ctx)
	if err != nil {
		t.Fatalf("ListAdminIds failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 privileged ids, got %v", ids)
	}
}
