package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vip-relay-bot/internal/common"
	"vip-relay-bot/internal/database"
	"vip-relay-bot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Shared building blocks for the user-facing orchestrators: cooldown,
// blocking-action serialization, ownership checks and degraded operation
// tracking.

func (b *Bot) enforceCooldown(msg *tgbotapi.Message, role string) bool {
	ok, wait := b.cooldown.Allow(userIdOf(msg), b.isPrivileged(role))
	if !ok {
		b.reply(msg.Chat.ID, fmt.Sprintf("⏳ Espera %.1fs antes de usar otro comando.", wait.Seconds()))
		return false
	}
	return true
}

// hasBlockingAction is advisory: a store failure reads as "not blocked" so
// a broken operations table cannot lock every user out.
func (b *Bot) hasBlockingAction(ctx context.Context, uid string) bool {
	pending, err := b.store.HasPendingOperation(ctx, uid)
	if err != nil {
		zap.L().Warn("Failed to check pending operations", zap.String("user_id", uid), zap.Error(err))
		return false
	}
	return pending
}

// mustOwnEmail verifies the email is assigned to the user; privileged
// roles skip the check. It reports the rejection to the user itself.
func (b *Bot) mustOwnEmail(ctx context.Context, msg *tgbotapi.Message, role, email string) bool {
	if b.isPrivileged(role) {
		return true
	}
	assignment, err := b.store.FindActiveAssignment(ctx, userIdOf(msg), email)
	if err != nil {
		b.replyErr(msg.Chat.ID, "Error verificando el correo: "+common.Esc(err.Error()))
		return false
	}
	if assignment == nil {
		b.replyErr(msg.Chat.ID, "Ese correo no está asignado a tu usuario.")
		return false
	}
	return true
}

// operationPayload records what was sent to the peer together with a fresh
// attempt id, so a retry after a timeout stays distinguishable in the
// audit trail.
func operationPayload(email, raw string) string {
	payload, err := json.Marshal(map[string]string{
		"correo":  email,
		"raw":     raw,
		"attempt": uuid.New().String(),
	})
	if err != nil {
		return raw
	}
	return string(payload)
}

// startOperation opens a tracked operation. Losing the exclusive-insert
// race surfaces as store.ErrPendingOperation; any other store failure
// degrades to the untracked sentinel, because tracking is advisory and
// must not fail the user-visible action.
func (b *Bot) startOperation(ctx context.Context, uid, kind, payload string, exclusive bool) (int64, error) {
	id, err := b.store.StartOperation(ctx, uid, kind, payload, exclusive)
	if err != nil {
		if errors.Is(err, store.ErrPendingOperation) {
			return database.UntrackedOperation, err
		}
		zap.L().Warn("Operation tracking unavailable, continuing untracked",
			zap.String("user_id", uid), zap.String("kind", kind), zap.Error(err))
		return database.UntrackedOperation, nil
	}
	return id, nil
}

func (b *Bot) finishOperation(ctx context.Context, id int64, status, rawReply string) {
	if err := b.store.FinishOperation(ctx, id, status, rawReply); err != nil {
		zap.L().Warn("Failed to finish operation", zap.Int64("operation_id", id), zap.Error(err))
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
