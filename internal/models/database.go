package models

import "time"

// User roles. Escalation to admin is owner-only; owner and seed admins are
// written at startup.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleOwner = "owner"
)

// Operation lifecycle states.
const (
	OperationPending   = "pendiente"
	OperationCompleted = "completado"
	OperationFailed    = "fallido"
)

// Replacement request lifecycle states.
const (
	RequestPending  = "pendiente"
	RequestAccepted = "aceptado"
	RequestRejected = "rechazado"
)

// User is a Telegram user known to the bot. Credits never go negative;
// AssignedAccounts is a denormalized count recomputed after every
// assignment mutation.
type User struct {
	TelegramId       string
	Username         string
	Role             string
	Credits          int
	AssignedAccounts int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Account is an external login identified by its email. Upserted whenever a
// workflow touches it, never deleted.
type Account struct {
	Email     string
	ExpiresAt string // ISO date (yyyy-mm-dd)
}

// Assignment ties an account to a user until an expiry date. Rows are
// deactivated, never deleted; at most one active row per email exists.
type Assignment struct {
	Id         int64
	Email      string
	UserId     string
	ExpiresAt  string // ISO date (yyyy-mm-dd)
	AssignedBy string
	Active     bool
	CreatedAt  time.Time
}

// Operation is one tracked long-running user action, used to serialize
// peer-bound commands per user.
type Operation struct {
	Id        int64
	UserId    string
	Kind      string
	Payload   string
	Status    string
	RawReply  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditEntry is an immutable audit row appended alongside every balance
// mutation.
type CreditEntry struct {
	Id        string
	UserId    string
	Delta     int
	Reason    string
	Actor     string
	CreatedAt time.Time
}

// ReplacementRequest is the saga record for the replace-account workflow:
// user request -> admin decision -> peer-mediated outcome.
type ReplacementRequest struct {
	Id        int64
	UserId    string
	Email     string
	Reason    string
	Status    string
	DecidedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
